package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigMinimal(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "listenAddress: :8080\n"))
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, int64(64*1024), cfg.MaxFrameBytes)
	require.Equal(t, 10*time.Second, cfg.JoinTimeout())
	require.False(t, cfg.ManualTLS())
	require.False(t, cfg.AutomaticTLS())
}

func TestLoadConfigFull(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, `
listenAddress: :8443
allowedOrigins:
  - https://rook.example
idleTimeoutSeconds: 120
joinTimeoutSeconds: 5
maxFrameBytes: 32768
maxSessionMembers: 16
admissionJWTSecret: hunter2
redisAddress: localhost:6379
publicHostname: sync.rook.example
acmeCacheDir: /var/lib/rook/acme
`))
	require.NoError(t, err)
	require.Equal(t, 120*time.Second, cfg.IdleTimeout())
	require.Equal(t, 5*time.Second, cfg.JoinTimeout())
	require.Equal(t, int64(32768), cfg.MaxFrameBytes)
	require.Equal(t, 16, cfg.MaxSessionMembers)
	require.True(t, cfg.AutomaticTLS())
}

func TestValidateFailures(t *testing.T) {
	cases := map[string]string{
		"missing listen address": "idleTimeoutSeconds: 1\n",
		"negative idle timeout":  "listenAddress: :1\nidleTimeoutSeconds: -1\n",
		"negative join timeout":  "listenAddress: :1\njoinTimeoutSeconds: -1\n",
		"negative frame size":    "listenAddress: :1\nmaxFrameBytes: -1\n",
		"negative member limit":  "listenAddress: :1\nmaxSessionMembers: -1\n",
		"both tls modes":         "listenAddress: :1\ntlsCertFile: a\ntlsKeyFile: b\npublicHostname: x\n",
		"half manual tls":        "listenAddress: :1\ntlsCertFile: a\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
