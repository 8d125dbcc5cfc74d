package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasdir/site-crawler/internal/archive/memory"
)

func TestPutObject(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()

	uri, err := store.PutObject(context.Background(), "snapshots/example.com/abc.html", "text/html", []byte("<html></html>"))
	require.NoError(t, err)
	assert.Equal(t, "memory://snapshots/example.com/abc.html", uri)

	data, ok := store.Get("snapshots/example.com/abc.html")
	require.True(t, ok)
	assert.Equal(t, []byte("<html></html>"), data)
}

func TestPutObjectEmptyPath(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	_, err := store.PutObject(context.Background(), "", "text/html", []byte("data"))
	assert.Error(t, err)
}
