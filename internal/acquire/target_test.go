package acquire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewTarget(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		raw      string
		wantURL  string
		wantHost string
		wantErr  bool
	}{
		{name: "bare host", raw: "acme.example", wantURL: "https://acme.example/", wantHost: "acme.example"},
		{name: "uppercase", raw: "HTTP://Acme.Example:80/Path#top", wantURL: "http://acme.example/Path", wantHost: "acme.example"},
		{name: "https default port", raw: "https://acme.example:443/a?b=1", wantURL: "https://acme.example/a?b=1", wantHost: "acme.example"},
		{name: "protocol relative", raw: "//acme.example/x", wantURL: "https://acme.example/x", wantHost: "acme.example"},
		{name: "whitespace", raw: "  www.acme.example  ", wantURL: "https://www.acme.example/", wantHost: "www.acme.example"},
		{name: "empty", raw: " ", wantErr: true},
		{name: "ftp", raw: "ftp://acme.example", wantErr: true},
		{name: "no host", raw: "https://", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NewTarget(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantURL, got.URL)
			require.Equal(t, tt.wantHost, got.Host)
		})
	}
}

func TestPlainTextAndTitle(t *testing.T) {
	t.Parallel()

	html := `<html><head><title> Acme </title><style>p{}</style></head>
<body><script>var x = 1;</script><h1>Hello</h1>
<p>World   again</p><noscript>enable js</noscript></body></html>`
	require.Equal(t, "Acme Hello World again", PlainText(html))
	require.Equal(t, "Acme", Title(html))
	require.Empty(t, PlainText("  "))
	require.Empty(t, Title(""))
}
