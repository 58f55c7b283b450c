package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	lensmcp "github.com/datalens/lensmcp"
)

// runCheck validates the configuration, then performs a live connectivity
// probe: engine startup (tunnel + pool), ping, and a SELECT 1 round trip.
// Any failed check makes the process exit non-zero.
func runCheck() error {
	config, err := loadServerConfig("check", os.Args[2:])
	if err != nil {
		return err
	}

	useColor := isTTY(os.Stderr.Fd())
	return check(os.Stderr, useColor, config)
}

func check(w io.Writer, useColor bool, config *lensmcp.ServerConfig) error {
	printBanner(w, useColor)
	fmt.Fprintf(w, "lensmcp %s\n\n", version)

	if !checkConfig(w, useColor, config) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'lensmcp check' again.")
		return fmt.Errorf("configuration checks failed")
	}

	fmt.Fprintln(w)
	if err := checkConnectivity(w, useColor, config); err != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Fix the issues above and run 'lensmcp check' again.")
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "All checks passed. The server is ready to run with 'lensmcp serve'.")
	return nil
}

// checkConfig validates the static configuration, printing one line per
// check. Returns true when every check passed.
func checkConfig(w io.Writer, useColor bool, config *lensmcp.ServerConfig) bool {
	allPassed := true

	// Validate applies defaults and catches driver, connection, tunnel auth
	// exclusivity, pool, and policy problems in one pass.
	cfg := config.Config
	if err := cfg.Validate(); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Configuration is valid: %v", err))
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("Configuration is valid (driver: %s, database: %s)", cfg.Driver, cfg.Connection.Database))
	}

	if config.Server.Transport == "http" && config.Server.Port <= 0 {
		printCheck(w, useColor, false, "server.port is > 0 (required for http transport)")
		allPassed = false
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("Transport configured (%s)", config.Server.Transport))
	}

	if config.Tunnel.Enabled {
		if config.Tunnel.KeyPath != "" {
			if _, err := os.Stat(config.Tunnel.KeyPath); err != nil {
				printCheck(w, useColor, false, fmt.Sprintf("SSH key readable (%s): %v", config.Tunnel.KeyPath, err))
				allPassed = false
			} else {
				printCheck(w, useColor, true, fmt.Sprintf("SSH key readable (%s)", config.Tunnel.KeyPath))
			}
		}
	}

	regexOK := true
	for i, rule := range config.ErrorPrompts {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("error_prompts[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	for i, rule := range config.Masking {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("masking[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	for i, rule := range config.Query.TimeoutRules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("timeout_rules[%d] regex compiles: %v", i, err))
			regexOK = false
			allPassed = false
		}
	}
	if regexOK {
		printCheck(w, useColor, true, "All regex patterns compile")
	}

	return allPassed
}

// checkConnectivity starts the engine for real (tunnel and pool included) and
// runs a probe query through the full pipeline.
func checkConnectivity(w io.Writer, useColor bool, config *lensmcp.ServerConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	resolveCredentials(config)
	logger := setupLogger(lensmcp.LoggingConfig{Level: "error"}, config.Server.Transport)

	lens, err := lensmcp.New(ctx, config.Config, logger)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Engine startup (tunnel + pool): %v", err))
		return fmt.Errorf("engine startup failed")
	}
	defer lens.Close(ctx)
	if config.Tunnel.Enabled {
		printCheck(w, useColor, true, "SSH tunnel established")
	}
	printCheck(w, useColor, true, "Connection pool opened")

	if err := lens.Ping(ctx); err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Database reachable: %v", err))
		return fmt.Errorf("database unreachable")
	}
	printCheck(w, useColor, true, "Database reachable")

	output := lens.Query(ctx, lensmcp.QueryInput{SQL: "SELECT 1"})
	if output.Error != "" {
		printCheck(w, useColor, false, fmt.Sprintf("Probe query (SELECT 1): %s", output.Error))
		return fmt.Errorf("probe query failed")
	}
	printCheck(w, useColor, true, "Probe query executed (SELECT 1)")

	return nil
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	if pass {
		if useColor {
			fmt.Fprintf(w, "  \033[32m✓\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✓ %s\n", msg)
		}
	} else {
		if useColor {
			fmt.Fprintf(w, "  \033[31m✗\033[0m %s\n", msg)
		} else {
			fmt.Fprintf(w, "  ✗ %s\n", msg)
		}
	}
}
