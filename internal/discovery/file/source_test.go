package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadgraph-enricher/internal/lead"
)

const listing = `[
  {"name": "Acme Dental", "website": "acme.example", "category": "Dentist", "address": "1 Main St, Austin TX"},
  {"id": "fixed", "name": "Bright Smiles", "website": "https://bright.example", "category": "Dentist", "address": "9 Oak Ave, Dallas TX"},
  {"name": "Corner Bakery", "phone": "555-0100", "category": "Bakery", "address": "3 Elm St, Austin TX"}
]`

func writeListing(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listing.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDiscover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query lead.Query
		want  []string
	}{
		{name: "all records", query: lead.Query{}, want: []string{"Acme Dental", "Bright Smiles", "Corner Bakery"}},
		{name: "keyword matches category", query: lead.Query{Keyword: "dentist"}, want: []string{"Acme Dental", "Bright Smiles"}},
		{name: "keyword and location", query: lead.Query{Keyword: "dentist", Location: "austin"}, want: []string{"Acme Dental"}},
		{name: "per source cap", query: lead.Query{MaxPerSrc: 2}, want: []string{"Acme Dental", "Bright Smiles"}},
	}

	src, err := New(Config{Path: writeListing(t, listing)})
	require.NoError(t, err)

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			records, err := src.Discover(context.Background(), tc.query)
			require.NoError(t, err)
			names := make([]string, 0, len(records))
			for _, rec := range records {
				require.Equal(t, DefaultName, rec.Source)
				require.NotEmpty(t, rec.ID)
				names = append(names, rec.Name)
			}
			require.Equal(t, tc.want, names)
		})
	}
}

func TestDiscoverKeepsProvidedIDsAndStableGeneratedOnes(t *testing.T) {
	t.Parallel()

	src, err := New(Config{Path: writeListing(t, listing), Name: "export"})
	require.NoError(t, err)
	require.Equal(t, "export", src.Name())

	first, err := src.Discover(context.Background(), lead.Query{})
	require.NoError(t, err)
	second, err := src.Discover(context.Background(), lead.Query{})
	require.NoError(t, err)

	require.Equal(t, "fixed", first[1].ID)
	require.Equal(t, first[0].ID, second[0].ID)
	require.NotEqual(t, first[0].ID, first[2].ID)
}

func TestDiscoverJSONLines(t *testing.T) {
	t.Parallel()

	body := "{\"name\":\"Acme\",\"website\":\"acme.example\"}\n\n{\"name\":\"Beta\",\"phone\":\"555\"}\n"
	src, err := New(Config{Path: writeListing(t, body)})
	require.NoError(t, err)

	records, err := src.Discover(context.Background(), lead.Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Beta", records[1].Name)
}

func TestDiscoverErrors(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)

	missing, err := New(Config{Path: filepath.Join(t.TempDir(), "nope.json")})
	require.NoError(t, err)
	_, err = missing.Discover(context.Background(), lead.Query{})
	require.ErrorContains(t, err, "read listing")

	bad, err := New(Config{Path: writeListing(t, "{\"name\":\"ok\"}\n{broken\n")})
	require.NoError(t, err)
	_, err = bad.Discover(context.Background(), lead.Query{})
	require.ErrorContains(t, err, "line 2")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = missing.Discover(ctx, lead.Query{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestDiscoverEmptyFile(t *testing.T) {
	t.Parallel()

	src, err := New(Config{Path: writeListing(t, "  \n")})
	require.NoError(t, err)
	records, err := src.Discover(context.Background(), lead.Query{})
	require.NoError(t, err)
	require.Empty(t, records)
}
