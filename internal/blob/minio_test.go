package blob

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"honestai/internal/config"
)

func TestMinioStoreRoundTrip(t *testing.T) {
	endpoint := os.Getenv("TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("set TEST_MINIO_ENDPOINT to run minio-backed tests")
	}
	ctx := context.Background()
	store, err := NewMinioStore(ctx, config.MinioConfig{
		Endpoint:  endpoint,
		AccessKey: os.Getenv("TEST_MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("TEST_MINIO_SECRET_KEY"),
		Bucket:    "honestai-test",
		Region:    "us-east-1",
	})
	require.NoError(t, err)

	key := "1/" + uuid.NewString() + ".wav"
	ok, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.LocalPath(ctx, key)
	assert.ErrorIs(t, err, ErrNotExist)

	n, err := store.Put(ctx, key, strings.NewReader("hello"), "audio/wav")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	path, release, err := store.LocalPath(ctx, key)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
