package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newthinker/marketlens/internal/config"
	"github.com/newthinker/marketlens/internal/core"
	"github.com/newthinker/marketlens/internal/metrics"
)

func TestBuildProviders_OnlyConfigured(t *testing.T) {
	cfg := config.ProvidersConfig{
		Polygon: config.ProviderConfig{APIKey: "pg"},
		Finnhub: config.ProviderConfig{APIKey: "fh", RequestsPerMinute: 60},
		Twitter: config.ProviderConfig{APIKey: "bearer"},
	}

	reg := buildProviders(cfg, zap.NewNop(), metrics.NewRegistry())

	assert.ElementsMatch(t,
		[]string{core.ProviderPolygon, core.ProviderFinnhub, core.ProviderTwitter},
		reg.Names())
}

func TestBuildCache_Backends(t *testing.T) {
	mr := miniredis.RunT(t)

	tests := []struct {
		name string
		cfg  config.CacheConfig
	}{
		{"memory", config.CacheConfig{Backend: "memory"}},
		{"localfs", config.CacheConfig{Backend: "localfs", Path: t.TempDir()}},
		{"redis", config.CacheConfig{Backend: "redis", Redis: config.RedisConfig{Addr: mr.Addr(), Namespace: "test"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := &runtime{log: zap.NewNop(), metrics: metrics.NewRegistry()}
			defer rt.Close()

			store, err := buildCache(context.Background(), rt, tt.cfg)
			require.NoError(t, err)
			require.NotNil(t, store)
		})
	}
}

func TestBuildCache_UnknownBackend(t *testing.T) {
	rt := &runtime{log: zap.NewNop(), metrics: metrics.NewRegistry()}
	_, err := buildCache(context.Background(), rt, config.CacheConfig{Backend: "tape"})
	assert.Error(t, err)
}

func TestBuildRouter_Webhook(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notifiers.Webhook.Enabled = true
	cfg.Notifiers.Webhook.URL = "http://127.0.0.1:9/hook"

	r, err := buildRouter(cfg, zap.NewNop(), metrics.NewRegistry())
	require.NoError(t, err)

	stats := r.GetStats()
	assert.Equal(t, cfg.Router.MinConfidence, stats.MinConfidence)
	assert.EqualValues(t, cfg.Router.CooldownHours*3600, stats.CooldownSeconds)
}

func TestBuildNarrator_Disabled(t *testing.T) {
	n, err := buildNarrator(config.LLMConfig{}, zap.NewNop(), nil)
	require.NoError(t, err)
	assert.Nil(t, n)
}

func runRoot(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = versionCmd.Flags().Set("json", "false")
	})

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := runRoot(t, "version")
	assert.True(t, strings.HasPrefix(out, "marketlens dev (unknown, built unknown) go"), out)
}

func TestVersionCommand_JSON(t *testing.T) {
	var info buildInfo
	require.NoError(t, json.Unmarshal([]byte(runRoot(t, "version", "--json")), &info))
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
}
