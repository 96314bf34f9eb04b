package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"saunafreunde/internal/schedule"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SAUNA_TEST_SECRET", "s3cret")

	path := writeFile(t, dir, "config.yaml", `
auth:
  jwt_secret: "${SAUNA_TEST_SECRET}"
database:
  path: `+filepath.Join(dir, "db", "club.db")+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout())
	assert.Equal(t, time.Minute, cfg.CacheTTL())
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, "0 3 * * *", cfg.Backup.Schedule)

	_, err = os.Stat(filepath.Join(dir, "db"))
	assert.NoError(t, err, "database directory is created")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing secret", func(c *Config) { c.Auth.JWTSecret = "" }, "jwt_secret"},
		{"sheets without credentials", func(c *Config) { c.Sheets.Enabled = true }, "credentials_file"},
		{"reminders without bot", func(c *Config) { c.Reminders.Enabled = true }, "bot_token"},
		{"audit without admin chat", func(c *Config) { c.Audit.Enabled = true }, "admin_chat_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.Auth.JWTSecret = "x"
			cfg.applyDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

const saunasYAML = `
timezone: Europe/Berlin
slot_duration_minutes: 15
slot_interval_minutes: 60
default_hours:
  tuesday:
    - { start: "14:00", end: "21:00" }
  Friday:
    - { start: "11:00", end: "21:00" }
saunas:
  - name: Finnische Sauna
  - name: Kelosauna
    hours:
      saturday:
        - { start: "11:00", end: "13:00" }
`

func TestLoadSaunasConfig(t *testing.T) {
	path := writeFile(t, t.TempDir(), "saunas.yaml", saunasYAML)

	cfg, err := LoadSaunasConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.ShortNoticeWindow())
	assert.Equal(t, 24*time.Hour, cfg.ShareCooldown())
	assert.Equal(t, schedule.UnmatchedDrop, cfg.UnmatchedPolicy())

	table, err := cfg.Table()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", table.Location.String())
	assert.Equal(t, time.Hour, table.SlotInterval)
	require.Len(t, table.Resources, 2)
	assert.Len(t, table.Resources[0].Hours[time.Tuesday], 1)
	assert.Len(t, table.Resources[0].Hours[time.Friday], 1, "weekday names are case-insensitive")
	assert.Len(t, table.Resources[1].Hours, 1, "own hours replace the defaults")

	cats, err := cfg.CategorySet()
	require.NoError(t, err)
	assert.Len(t, cats.List(), len(schedule.DefaultCategories))
}

func TestSaunasConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		errMsg string
	}{
		{"no saunas", "slot_duration_minutes: 15\n", "no saunas defined"},
		{"bad weekday", `
saunas:
  - name: A
    hours:
      funday: [{ start: "10:00", end: "11:00" }]
`, "unknown weekday 'funday'"},
		{"bad policy", `
unmatched_claims: keep
saunas: [{ name: A }]
`, "unmatched claims policy"},
		{"interval shorter than duration", `
slot_duration_minutes: 30
slot_interval_minutes: 15
saunas: [{ name: A }]
`, "slot_interval_minutes"},
		{"bad timezone", `
timezone: Mars/Olympus
saunas: [{ name: A }]
`, "timezone"},
		{"duplicate category", `
categories: [Birke, Birke]
saunas: [{ name: A }]
`, "duplicate"},
		{"overlapping windows", `
saunas:
  - name: A
    hours:
      monday:
        - { start: "10:00", end: "12:00" }
        - { start: "11:00", end: "13:00" }
`, "windows overlap"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "saunas.yaml", tt.yaml)
			_, err := LoadSaunasConfig(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestWatchSaunas(t *testing.T) {
	path := writeFile(t, t.TempDir(), "saunas.yaml", saunasYAML)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var seen []SaunasChange
	var rejected []error
	err := WatchSaunas(ctx, path, 10*time.Millisecond, func(c *SaunasConfig, change SaunasChange) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, change)
	}, func(err error) {
		mu.Lock()
		defer mu.Unlock()
		rejected = append(rejected, err)
	})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, seen, 1)
	assert.Equal(t, []string{"Finnische Sauna", "Kelosauna"}, seen[0].Added)
	mu.Unlock()

	edit := func(content string, mtime time.Time) {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	t.Run("invalid edit is rejected once", func(t *testing.T) {
		broken := saunasYAML + "  - name: Kelosauna\n"
		edit(broken, time.Now().Add(time.Minute))
		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(rejected) == 1
		}, 2*time.Second, 10*time.Millisecond)

		// same content with a new mtime
		edit(broken, time.Now().Add(2*time.Minute))
		time.Sleep(100 * time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Len(t, rejected, 1)
		assert.Contains(t, rejected[0].Error(), "resource[2]: duplicate name 'Kelosauna'")
		assert.Len(t, seen, 1)
	})

	t.Run("valid edit reports renamed saunas", func(t *testing.T) {
		renamed := strings.Replace(saunasYAML, "  - name: Finnische Sauna\n", "  - name: Bio-Sauna\n", 1)
		require.NotEqual(t, saunasYAML, renamed)
		// older mtime than the rejected edit
		edit(renamed, time.Now().Add(-time.Hour))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(seen) == 2
		}, 2*time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []string{"Bio-Sauna"}, seen[1].Added)
		assert.Equal(t, []string{"Finnische Sauna"}, seen[1].Removed)
	})
}
