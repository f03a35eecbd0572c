package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
server:
  port: 9090
database:
  driver: sqlite3
  path: /tmp/crowdfund.db
sale:
  contract: cf1
  lock_ttl: 3s
chain:
  genesis_height: 1000
  block_interval: 2s
keeper:
  enabled: true
  batch_limit: 25
rates:
  - name: tax
    recipient: treasury
    percent: "2.5"
address_book:
  strict: true
  entries:
    treasury: addr1treasury
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:/tmp/crowdfund.db?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", cfg.Database.GetDSN())
	assert.Equal(t, "cf1", cfg.Sale.Contract)
	assert.Equal(t, 3*time.Second, cfg.Sale.LockTTL.Duration)
	assert.Equal(t, uint64(1000), cfg.Chain.GenesisHeight)
	assert.Equal(t, 2*time.Second, cfg.Chain.BlockInterval.Duration)
	assert.True(t, cfg.Keeper.Enabled)
	assert.Equal(t, uint32(25), cfg.Keeper.BatchLimit)
	require.Len(t, cfg.Rates, 1)
	assert.Equal(t, "2.5", cfg.Rates[0].Percent)
	assert.True(t, cfg.AddressBook.Strict)
	assert.Equal(t, "addr1treasury", cfg.AddressBook.Entries["treasury"])
}

func TestLoadConfigJSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"database": {"driver": "postgres", "host": "db", "port": 5432, "user": "cf", "password": "file", "dbname": "crowdfund"},
		"redis": {"host": "cache", "port": 6379}
	}`)
	t.Setenv("CROWDFUND_DB_PASSWORD", "secret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "host=db port=5432 user=cf password=secret dbname=crowdfund sslmode=disable", cfg.Database.GetDSN())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, "crowdfund:messages", cfg.Redis.Stream)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Sale.LockTTL.Duration)
	assert.Equal(t, 3, cfg.Sale.RetryAttempts)
	assert.Equal(t, uint32(50), cfg.Keeper.BatchLimit)
	assert.Equal(t, 5, cfg.Dispatcher.MaxAttempts)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	path := writeFile(t, "bad.json", `{"sale": {"lock_ttl": "soon"}}`)
	_, err = LoadConfig(path)
	assert.Error(t, err)
}
