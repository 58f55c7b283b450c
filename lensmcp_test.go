package lensmcp_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	lensmcp "github.com/datalens/lensmcp"
	"github.com/rs/zerolog"
)

func engineTestLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	config := validConfig()
	config.Tunnel = lensmcp.TunnelConfig{
		Enabled:  true,
		Host:     "bastion",
		User:     "deploy",
		KeyPath:  "/home/deploy/.ssh/id_ed25519",
		Password: "hunter2",
	}

	_, err := lensmcp.New(context.Background(), config, engineTestLogger())
	if err == nil {
		t.Fatal("New = nil error, want config rejection")
	}
	var cfgErr *lensmcp.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New returned %T, want *ConfigError", err)
	}
	if !strings.Contains(err.Error(), "ambiguous SSH auth") {
		t.Fatalf("New error = %q", err.Error())
	}
}

func TestNewRejectsBadPoolLifetime(t *testing.T) {
	t.Parallel()
	config := validConfig()
	config.Pool.MaxConnLifetime = "banana"

	_, err := lensmcp.New(context.Background(), config, engineTestLogger())
	if err == nil {
		t.Fatal("New = nil error, want lifetime parse rejection")
	}
	var cfgErr *lensmcp.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("New returned %T, want *ConfigError", err)
	}
	if !strings.Contains(err.Error(), "max_conn_lifetime") {
		t.Fatalf("New error = %q", err.Error())
	}
}

func TestNewRejectsInvalidRuleRegexes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name   string
		mutate func(*lensmcp.Config)
	}{
		{"masking", func(c *lensmcp.Config) {
			c.Masking = []lensmcp.MaskRule{{Pattern: "[bad(", Replacement: "x"}}
		}},
		{"error_prompts", func(c *lensmcp.Config) {
			c.ErrorPrompts = []lensmcp.ErrorPromptRule{{Pattern: "[bad(", Message: "x"}}
		}},
		{"timeout_rules", func(c *lensmcp.Config) {
			c.Query.TimeoutRules = []lensmcp.TimeoutRule{{Pattern: "[bad(", TimeoutSeconds: 5}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			config := validConfig()
			tc.mutate(&config)
			_, err := lensmcp.New(context.Background(), config, engineTestLogger())
			if err == nil {
				t.Fatal("New = nil error, want regex rejection")
			}
			var cfgErr *lensmcp.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("New returned %T, want *ConfigError", err)
			}
		})
	}
}

func TestNewAndCloseWithoutTunnel(t *testing.T) {
	t.Parallel()
	// database/sql opens connections lazily, so engine construction needs no
	// live server.
	lens, err := lensmcp.New(context.Background(), validConfig(), engineTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := lens.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
