package persist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boonlang/boon-core/internal/persist"
	"github.com/boonlang/boon-core/internal/value"
)

func TestMemoryReadOfUnwrittenKeyIsSkip(t *testing.T) {
	m := persist.NewMemory()
	v, err := m.Read(context.Background(), "missing")
	require.NoError(t, err)
	assert.True(t, value.IsSkip(v))
}

func TestMemoryWriteThenReadRoundTrips(t *testing.T) {
	m := persist.NewMemory()
	require.NoError(t, m.Write(context.Background(), "theme", value.Text("dark")))
	v, err := m.Read(context.Background(), "theme")
	require.NoError(t, err)
	assert.Equal(t, value.Text("dark"), v)
}

func TestMemoryWriteOverwritesPriorValue(t *testing.T) {
	m := persist.NewMemory()
	require.NoError(t, m.Write(context.Background(), "count", value.Number(1)))
	require.NoError(t, m.Write(context.Background(), "count", value.Number(2)))
	v, err := m.Read(context.Background(), "count")
	require.NoError(t, err)
	assert.Equal(t, value.Number(2), v)
}
