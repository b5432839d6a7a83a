package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func validConfig() *Config {
	return &Config{
		bind:      "127.0.0.1",
		port:      8080,
		maxGuess:  100000,
		trueCount: 735,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"cert without key", func(c *Config) { c.tlsCert = "cert.pem" }, "--tls-key"},
		{"port too low", func(c *Config) { c.port = 0 }, "invalid port"},
		{"port too high", func(c *Config) { c.port = 70000 }, "invalid port"},
		{"max guess", func(c *Config) { c.maxGuess = 0 }, "invalid max guess"},
		{"true count", func(c *Config) { c.trueCount = -1 }, "invalid true count"},
		{"bins", func(c *Config) { c.bins = -3 }, "invalid bin count"},
		{"both passwords", func(c *Config) {
			c.hostPassword = "a"
			c.hostPasswordHash = "b"
		}, "only one of"},
		{"bad hash", func(c *Config) { c.hostPasswordHash = "not-a-hash" }, "--host-password-hash"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFlagsFallBackToEnvironment(t *testing.T) {
	t.Setenv("JARGUESS_TRUE_COUNT", "412")
	t.Setenv("JARGUESS_HOST_PASSWORD", "marbles")

	cfg := &Config{}
	_ = newCmd(cfg)

	assert.Equal(t, 412, cfg.trueCount)
	assert.Equal(t, "marbles", cfg.hostPassword)
	assert.Equal(t, 100000, cfg.maxGuess)
}

func TestHashPasswordCommand(t *testing.T) {
	cmd := newCmd(&Config{})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"hash-password", "marbles"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("marbles")))
}

func TestHashPasswordCommandReadsStdin(t *testing.T) {
	cmd := newCmd(&Config{})

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("from-stdin\n"))
	cmd.SetArgs([]string{"hash-password"})
	require.NoError(t, cmd.Execute())

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("from-stdin")))
}
