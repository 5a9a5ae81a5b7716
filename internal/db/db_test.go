package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smart-card-relay-go/internal/config"
)

func TestInitReportsUnreachableDatabase(t *testing.T) {
	_, err := Init(config.DatabaseConfig{
		Enabled: true,
		Host:    "127.0.0.1",
		Port:    1,
		User:    "relay",
		DBName:  "cards",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open audit database cards@127.0.0.1")
}
