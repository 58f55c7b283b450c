package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	lensmcp "github.com/datalens/lensmcp"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func runServe() error {
	ctx := context.Background()

	// 1. Load ServerConfig (JSON file + flag/env overrides)
	serverConfig, err := loadServerConfig("serve", os.Args[2:])
	if err != nil {
		return err
	}

	if serverConfig.Server.Transport == "http" && serverConfig.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 for the http transport")
	}

	// 2. Setup logger. On the stdio transport stdout carries the MCP protocol
	// stream, so log output is forced away from it.
	logger := setupLogger(serverConfig.Logging, serverConfig.Server.Transport)

	// 3. Resolve credentials not present in config or environment
	resolveCredentials(serverConfig)

	// 4. Create the engine: tunnel first, then pool, then rule engines
	lens, err := lensmcp.New(ctx, serverConfig.Config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("startup failed")
		return err
	}
	defer lens.Close(ctx)

	// 5. Test database connection
	logger.Info().Msg("testing database connection")
	if err := lens.Ping(ctx); err != nil {
		logger.Error().Err(err).Msg("database connection test failed")
		return fmt.Errorf("database connection test failed: %w", err)
	}
	logger.Info().Msg("database connection test successful")

	// 6. Create MCP server with initialize lifecycle logging
	hooks := &server.Hooks{}
	hooks.AddAfterInitialize(func(ctx context.Context, id any, req *mcp.InitializeRequest, result *mcp.InitializeResult) {
		logger.Info().
			Str("client_name", req.Params.ClientInfo.Name).
			Str("client_version", req.Params.ClientInfo.Version).
			Msg("AI agent connected (MCP initialize)")
	})

	mcpServer := server.NewMCPServer("lensmcp", version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithHooks(hooks),
		server.WithToolHandlerMiddleware(lens.AuthzMiddleware()),
	)

	lensmcp.RegisterMCPTools(mcpServer, lens)
	lensmcp.RegisterMCPResources(mcpServer, lens)
	lensmcp.RegisterMCPPrompts(mcpServer, lens)

	if serverConfig.Server.Transport == "stdio" {
		logger.Info().Msg("starting lensmcp server on stdio")
		return server.ServeStdio(mcpServer)
	}
	return serveHTTP(ctx, serverConfig, mcpServer, lens, logger)
}

func serveHTTP(ctx context.Context, serverConfig *lensmcp.ServerConfig, mcpServer *server.MCPServer, lens *lensmcp.DataLens, logger zerolog.Logger) error {
	addr := fmt.Sprintf(":%d", serverConfig.Server.Port)
	mux := http.NewServeMux()

	// Health check endpoint (process liveness only, not DB connectivity)
	if serverConfig.Server.HealthCheckEnabled {
		if serverConfig.Server.HealthCheckPath == "" {
			return fmt.Errorf("health_check_path must be set when health_check_enabled is true")
		}
		mux.HandleFunc(serverConfig.Server.HealthCheckPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	httpSrv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	// Create StreamableHTTPServer with custom http.Server
	streamableServer := server.NewStreamableHTTPServer(mcpServer,
		server.WithEndpointPath("/mcp"),
		server.WithStateLess(true),
		server.WithStreamableHTTPServer(httpSrv),
	)

	// Manually register the MCP handler — Start() does NOT register
	// when a custom *http.Server is provided via WithStreamableHTTPServer.
	mux.Handle("/mcp", streamableServer)

	// Graceful shutdown: stop accepting requests, then drain the engine
	// (pool before tunnel).
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	errCh := make(chan error, 1)

	go func() {
		logger.Info().Int("port", serverConfig.Server.Port).Msg("starting lensmcp server")
		errCh <- streamableServer.Start(addr)
	}()

	return awaitServer(ctx, httpSrv, errCh, sigCh, logger)
}

// awaitServer blocks until the HTTP listener fails or a shutdown signal
// arrives. On signal it shuts the server down, then drains the listener's
// return value so a teardown-time error is surfaced rather than dropped.
func awaitServer(ctx context.Context, httpSrv *http.Server, errCh <-chan error, sigCh <-chan os.Signal, logger zerolog.Logger) error {
	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("http server shutdown error")
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// loadServerConfig builds the server configuration from a JSON config file
// overlaid with command-line flags and LENSMCP_* environment variables (e.g.
// --db-host / LENSMCP_DB_HOST). Flags win over environment, environment wins
// over file.
func loadServerConfig(command string, args []string) (*lensmcp.ServerConfig, error) {
	fs := ff.NewFlagSet("lensmcp " + command)
	configPath := fs.String('c', "config", "", "Path to JSON config file")
	driver := fs.StringLong("driver", "", "Database driver: mysql or postgres")
	dbHost := fs.StringLong("db-host", "", "Database host")
	dbPort := fs.IntLong("db-port", 0, "Database port")
	dbUser := fs.StringLong("db-user", "", "Database user")
	dbName := fs.StringLong("db-name", "", "Database name")
	transport := fs.StringLong("transport", "", "MCP transport: stdio or http")
	port := fs.IntLong("port", 0, "HTTP port (http transport only)")
	logLevel := fs.StringLong("log-level", "", "Log level: debug, info, warn, error")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("LENSMCP")); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		return nil, err
	}

	config := &lensmcp.ServerConfig{}

	path := *configPath
	explicit := path != ""
	if path == "" {
		path = os.Getenv("LENSMCP_CONFIG_PATH")
		explicit = path != ""
	}
	if path == "" {
		path = ".lensmcp/config.json"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case explicit:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if *driver != "" {
		config.Driver = *driver
	}
	if *dbHost != "" {
		config.Connection.Host = *dbHost
	}
	if *dbPort != 0 {
		config.Connection.Port = *dbPort
	}
	if *dbUser != "" {
		config.Connection.User = *dbUser
	}
	if *dbName != "" {
		config.Connection.Database = *dbName
	}
	if *transport != "" {
		config.Server.Transport = *transport
	}
	if *port != 0 {
		config.Server.Port = *port
	}
	if *logLevel != "" {
		config.Logging.Level = *logLevel
	}

	if config.Server.Transport == "" {
		config.Server.Transport = "stdio"
	}
	if config.Server.Transport != "stdio" && config.Server.Transport != "http" {
		return nil, fmt.Errorf("unsupported transport %q (stdio or http)", config.Server.Transport)
	}

	return config, nil
}

// resolveCredentials fills in the database and SSH passwords from the
// environment, falling back to an interactive prompt. Prompting requires a
// terminal and is never done on the stdio transport, where stdin belongs to
// the MCP client.
func resolveCredentials(config *lensmcp.ServerConfig) {
	if config.Connection.Password == "" {
		config.Connection.Password = os.Getenv("LENSMCP_DB_PASSWORD")
	}
	if config.Tunnel.Enabled && config.Tunnel.KeyPath == "" && config.Tunnel.Password == "" {
		config.Tunnel.Password = os.Getenv("LENSMCP_SSH_PASSWORD")
	}

	canPrompt := config.Server.Transport == "http" && isTTY(os.Stdin.Fd())
	if !canPrompt {
		return
	}
	if config.Connection.Password == "" {
		config.Connection.Password = promptPassword("Database password: ")
	}
	if config.Tunnel.Enabled && config.Tunnel.KeyPath == "" && config.Tunnel.Password == "" {
		config.Tunnel.Password = promptPassword("SSH password: ")
	}
}

func setupLogger(config lensmcp.LoggingConfig, transport string) zerolog.Logger {
	level := zerolog.InfoLevel
	switch strings.ToLower(config.Level) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output io.Writer = os.Stderr
	if config.Output == "stdout" && transport != "stdio" {
		output = os.Stdout
	} else if config.Output != "" && config.Output != "stderr" && config.Output != "stdout" {
		f, err := os.OpenFile(config.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err == nil {
			output = f
		}
	}

	if config.Format == "text" {
		output = zerolog.ConsoleWriter{Out: output}
	}

	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}

func promptPassword(prompt string) string {
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return ""
	}
	return string(password)
}
