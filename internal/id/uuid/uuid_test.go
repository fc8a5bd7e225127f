package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestRecordIDIsStable(t *testing.T) {
	t.Parallel()

	a := RecordID("file", "Acme Dental", "https://acme.example")
	b := RecordID(" FILE", "acme dental ", "https://ACME.example")
	c := RecordID("file", "Acme Dental", "https://other.example")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	parsed, err := goUUID.Parse(a)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(5), parsed.Version())
}
