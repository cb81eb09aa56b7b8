package infra_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/ticket-ledger/generic"
	"github.com/warp/ticket-ledger/infra"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := infra.LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, uint64(100000), cfg.Ledger.TotalTickets)
	assert.True(t, cfg.Ledger.TicketPrice.Equal(generic.MustAmount("0.01")))

	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	assert.Equal(t, "1000bps", lc.FeePolicy.Describe())
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
database:
  path: /tmp/tickets-test.db
ledger:
  total_tickets: 500
  ticket_price: "0.25"
  fee:
    type: flat
    amount: "0.01"
audit:
  enabled: true
  interval: 10m
logging:
  level: debug
`)
	cfg, err := infra.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, uint64(500), cfg.Ledger.TotalTickets)
	assert.True(t, cfg.Ledger.TicketPrice.Equal(generic.MustAmount("0.25")))
	assert.Equal(t, 10*time.Minute, cfg.Audit.Interval)

	lc, err := cfg.LedgerConfig()
	require.NoError(t, err)
	assert.Equal(t, "flat:0.01", lc.FeePolicy.Describe())
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("TICKET_LEDGER_DB", ":memory:")
	t.Setenv("TICKET_LEDGER_PORT", "7000")
	t.Setenv("TICKET_LEDGER_LOG_LEVEL", "warn")

	cfg, err := infra.LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadConfig_Invalid(t *testing.T) {
	for name, body := range map[string]string{
		"zero tickets":   "ledger:\n  total_tickets: 0\n",
		"negative price": "ledger:\n  ticket_price: \"-1\"\n",
		"bad fee":        "ledger:\n  fee:\n    type: auction\n",
		"bad level":      "logging:\n  level: loud\n",
		"bad port":       "server:\n  port: 70000\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := infra.LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, infra.ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, infra.ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, infra.ParseLevel("whatever"))
}
