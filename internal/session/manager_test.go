package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datasage-io/datasage/internal/config"
	"github.com/datasage-io/datasage/internal/errs"
)

func TestManager_GetSameID(t *testing.T) {
	m := NewManager(config.Default(), nil)
	t.Cleanup(func() { m.Close() })

	assert.Same(t, m.Get("a"), m.Get("a"))
	assert.NotSame(t, m.Get("a"), m.Get("b"))
	assert.Same(t, m.Get(""), m.Get(DefaultID))
}

func TestManager_SessionsAreIsolated(t *testing.T) {
	m := NewManager(config.Default(), nil)
	t.Cleanup(func() { m.Close() })

	upload(t, m.Get("a"))

	_, err := m.Get("a").Info()
	require.NoError(t, err)

	_, err = m.Get("b").Info()
	require.Error(t, err)
	assert.True(t, errs.IsNoDataset(err))
}

func TestManager_Remove(t *testing.T) {
	m := NewManager(config.Default(), nil)
	t.Cleanup(func() { m.Close() })

	first := m.Get("a")
	upload(t, first)
	require.NoError(t, m.Remove("a"))

	// A fresh session replaces the removed one.
	_, err := m.Get("a").Ask(context.Background(), "how many rows are there", false)
	require.Error(t, err)
	assert.True(t, errs.IsNoDataset(err))

	assert.NoError(t, m.Remove("never-created"))
}
