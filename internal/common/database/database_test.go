package database

import (
	"context"
	"testing"

	"image-collector/internal/common/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedis_PingAgainstMiniredis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))
	assert.NotNil(t, client.GetClient())
}

func TestNewRedis_EmptyAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewPostgres_OpensLazily(t *testing.T) {
	client, err := NewPostgres(config.PostgresConfig{
		Host: "localhost", Port: 5432, Database: "images", User: "app",
		MaxConnections: 4, MaxIdle: 1, SSLMode: "disable",
	})
	require.NoError(t, err)
	assert.NotNil(t, client.GetDB())
	assert.NoError(t, client.Close())
}
