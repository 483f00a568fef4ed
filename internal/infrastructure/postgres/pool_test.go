package postgres_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/emisor-fiscal/internal/infrastructure/postgres"
	"github.com/jhoicas/emisor-fiscal/pkg/config"
)

func TestPoolConfig_ParametrosDeSesion(t *testing.T) {
	pc, err := postgres.PoolConfig(config.DBConfig{
		Host: "db", Port: 5432, User: "app", Password: "secreto", DBName: "fiscal", SSLMode: "disable",
		MaxConns: 10, MinConns: 3,
		MaxConnLifetime:  45 * time.Minute,
		StatementTimeout: 5 * time.Second,
		ApplicationName:  "emisor-fiscal",
	})
	require.NoError(t, err)

	assert.Equal(t, int32(10), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, 45*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "5000", pc.ConnConfig.RuntimeParams["statement_timeout"])
	assert.Equal(t, "emisor-fiscal", pc.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, "fiscal", pc.ConnConfig.Database)
	assert.NotNil(t, pc.AfterConnect, "codec decimal")
}

func TestPoolConfig_ValoresPorDefecto(t *testing.T) {
	pc, err := postgres.PoolConfig(config.DBConfig{DatabaseURL: "postgres://app:pw@localhost:5432/fiscal?sslmode=disable", MinConns: 50})
	require.NoError(t, err)

	assert.Equal(t, int32(25), pc.MaxConns)
	assert.Equal(t, int32(25), pc.MinConns, "MinConns no supera MaxConns")
	_, ok := pc.ConnConfig.RuntimeParams["statement_timeout"]
	assert.False(t, ok)
}

func TestPoolConfig_DSNInvalido(t *testing.T) {
	_, err := postgres.PoolConfig(config.DBConfig{DatabaseURL: "postgres://[::1"})
	assert.Error(t, err)
}
