package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("Region,Density\n")
	uri, err := store.PutObject(context.Background(), "exports/out.csv", "text/csv", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "memory://exports/out.csv", uri)

	payload[0] = 'X'
	got, contentType, ok := store.Object("exports/out.csv")
	require.True(t, ok)
	assert.Equal(t, "Region,Density\n", string(got))
	assert.Equal(t, "text/csv", contentType)

	got[0] = 'Y'
	again, _, _ := store.Object("exports/out.csv")
	assert.Equal(t, byte('R'), again[0])
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.csv", "a.csv"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"a.csv", "b.csv"}, store.Paths())

	_, _, ok := store.Object("missing.csv")
	assert.False(t, ok)

	_, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	assert.Error(t, err)
}
