package storage_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/pestwatch/internal/infra/storage"
)

func TestURL_IsPresigned(t *testing.T) {
	t.Parallel()

	s, err := storage.Open(storage.Config{
		Endpoint:  "localhost:9000",
		Region:    "us-east-1",
		Bucket:    "detections",
		AccessKey: "minio",
		SecretKey: "minio123",
		URLExpiry: 15 * time.Minute,
	})
	require.NoError(t, err)

	raw, err := s.URL(context.Background(), "detections/2026/10/abc.jpg")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/detections/detections/2026/10/abc.jpg", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestOpen_InvalidEndpoint(t *testing.T) {
	t.Parallel()

	_, err := storage.Open(storage.Config{Endpoint: "http://bad host"})
	assert.Error(t, err)
}
