package cli

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/pulsetrack/adapters/pgx"
	"github.com/lborres/pulsetrack/config"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	root := NewRootCommand()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"serve", "notifier", "migrate", "send", "test-message"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestMigrate_Print(t *testing.T) {
	out, err := runCommand(t, "migrate", "--print")

	require.NoError(t, err)
	assert.Equal(t, pgx.Schema(), out)
}

func TestCommands_ConfigErrors(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PULSETRACK_DATABASE_URL", "")
	t.Setenv("PULSETRACK_SECRET", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "serve needs a secret", args: []string{"serve"}, wantErr: "PULSETRACK_SECRET"},
		{name: "migrate needs a database", args: []string{"migrate"}, wantErr: "DATABASE_URL"},
		{name: "notifier needs brokers", args: []string{"notifier"}, wantErr: "KAFKA_BROKERS"},
		{name: "send needs brokers", args: []string{"send", "--user", "u1", "--title", "t", "--message", "m"}, wantErr: "KAFKA_BROKERS"},
		{name: "send needs flags", args: []string{"send"}, wantErr: "required flag"},
		{name: "test message needs twilio", args: []string{"test-message"}, wantErr: "account sid"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			_, err := runCommand(t, append([]string{"--config", ""}, test.args...)...)

			require.Error(t, err)
			assert.Contains(t, err.Error(), test.wantErr)
		})
	}
}

func TestNewLogger_Format(t *testing.T) {
	tests := []struct {
		name   string
		format string
		want   string
	}{
		{name: "json", format: "json", want: `"msg":"hello"`},
		{name: "text", format: "text", want: "msg=hello"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			log := newLogger(&buf, config.Config{LogLevel: slog.LevelInfo, LogFormat: test.format})

			log.Debug("hidden")
			log.Info("hello")

			assert.Contains(t, buf.String(), test.want)
			assert.NotContains(t, buf.String(), "hidden")
		})
	}
}

func TestAppConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Secret = strings.Repeat("s", 32)
	cfg.SessionMaxAge = time.Hour
	cfg.VAPIDKey = "vapid"
	d := &deps{}

	got := appConfig(cfg, d, nil, slog.Default())

	assert.Equal(t, cfg.Secret, got.Secret)
	assert.Equal(t, time.Hour, got.SessionConfig.MaxAge)
	assert.Equal(t, cfg.CacheTTL, got.CacheConfig.TTL)
	assert.Equal(t, "/api", got.BasePath)
	assert.Equal(t, "vapid", got.VAPIDKey)
	assert.Nil(t, got.Push, "no redis means no push provider")
	assert.Nil(t, got.Tokens)
}
