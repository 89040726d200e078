package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dab/internal/platform/config"
)

func TestNew_EmptyURLIsNotConfigured(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New(context.Background(), config.RedisConfig{URL: "://not-a-url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis URL")
}
