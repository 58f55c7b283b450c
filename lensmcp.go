package lensmcp

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/datalens/lensmcp/internal/dialect"
	"github.com/datalens/lensmcp/internal/errprompt"
	"github.com/datalens/lensmcp/internal/mask"
	"github.com/datalens/lensmcp/internal/policy"
	"github.com/datalens/lensmcp/internal/timeout"
	"github.com/datalens/lensmcp/internal/tunnel"
)

// DataLens is the core engine behind the query, schema, and chart tools.
// All exported methods are safe for concurrent use from multiple goroutines.
//
// The engine owns all process-wide state — tunnel, connection pool, policy —
// with explicit init (New) and teardown (Close); there are no package-level
// singletons.
type DataLens struct {
	config  Config
	db      *sql.DB
	dialect dialect.Dialect
	tun     *tunnel.Tunnel

	// gate bounds concurrent operations at pool.max_conns so waiters fail
	// with ErrPoolExhausted instead of piling up inside database/sql.
	gate *semaphore.Weighted

	policy     *policy.Policy
	masker     *mask.Masker
	errPrompts *errprompt.Matcher
	timeouts   *timeout.Resolver
	logger     zerolog.Logger
}

// New validates config, establishes the SSH tunnel when enabled, opens the
// connection pool against the tunnel (or the direct endpoint), and wires the
// validator, policy, and rule engines.
//
// Error taxonomy: *ConfigError (bad configuration, nothing was opened),
// *TunnelError (SSH failure, fatal), *ConnectError (pool setup failure).
// All are startup-fatal for the CLI.
func New(ctx context.Context, config Config, logger zerolog.Logger) (*DataLens, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dia, err := dialect.ByName(config.Driver)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	conn := config.Connection
	var tun *tunnel.Tunnel
	if config.Tunnel.Enabled {
		tun, err = tunnel.Open(tunnel.Config{
			Host:          config.Tunnel.Host,
			Port:          config.Tunnel.Port,
			User:          config.Tunnel.User,
			KeyPath:       config.Tunnel.KeyPath,
			Password:      config.Tunnel.Password,
			LocalBindPort: config.Tunnel.LocalBindPort,
			RemoteHost:    conn.Host,
			RemotePort:    conn.Port,
		}, logger)
		if err != nil {
			return nil, &TunnelError{Err: err}
		}
		// The pool targets the loopback forward from here on; the real
		// remote address is never dialed directly.
		host, portStr, splitErr := net.SplitHostPort(tun.Addr())
		if splitErr != nil {
			tun.Close()
			return nil, &TunnelError{Err: splitErr}
		}
		conn.Host = host
		conn.Port, _ = strconv.Atoi(portStr)
	}

	db, err := openPool(dia, conn, config.Pool)
	if err != nil {
		if tun != nil {
			tun.Close()
		}
		return nil, err
	}

	lens, err := newLens(db, dia, tun, config, logger)
	if err != nil {
		db.Close()
		if tun != nil {
			tun.Close()
		}
		return nil, err
	}

	logger.Info().
		Str("driver", config.Driver).
		Str("database", config.Connection.Database).
		Bool("tunnel", config.Tunnel.Enabled).
		Int("max_conns", config.Pool.MaxConns).
		Msg("engine initialized")

	return lens, nil
}

func openPool(dia dialect.Dialect, conn ConnectionConfig, pool PoolConfig) (*sql.DB, error) {
	db, err := sql.Open(dia.DriverName(), dia.DSN(dialect.ConnSettings{
		Host:     conn.Host,
		Port:     conn.Port,
		User:     conn.User,
		Password: conn.Password,
		Database: conn.Database,
		SSLMode:  conn.SSLMode,
	}))
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	db.SetMaxOpenConns(pool.MaxConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	if pool.MaxConnLifetime != "" {
		d, err := time.ParseDuration(pool.MaxConnLifetime)
		if err != nil {
			db.Close()
			return nil, configErrorf("invalid pool.max_conn_lifetime %q: %v", pool.MaxConnLifetime, err)
		}
		db.SetConnMaxLifetime(d)
	}
	if pool.MaxConnIdleTime != "" {
		d, err := time.ParseDuration(pool.MaxConnIdleTime)
		if err != nil {
			db.Close()
			return nil, configErrorf("invalid pool.max_conn_idle_time %q: %v", pool.MaxConnIdleTime, err)
		}
		db.SetConnMaxIdleTime(d)
	}
	return db, nil
}

// newLens wires the engine around an existing pool. Config must already be
// validated. Separated from New so tests can drive the full pipeline with a
// stub database/sql driver.
func newLens(db *sql.DB, dia dialect.Dialect, tun *tunnel.Tunnel, config Config, logger zerolog.Logger) (*DataLens, error) {
	pol, err := policy.New(config.Policy)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	maskRules := make([]mask.Rule, len(config.Masking))
	for i, r := range config.Masking {
		maskRules[i] = mask.Rule{Pattern: r.Pattern, Replacement: r.Replacement}
	}
	masker, err := mask.NewMasker(maskRules)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	promptRules := make([]errprompt.Rule, len(config.ErrorPrompts))
	for i, r := range config.ErrorPrompts {
		promptRules[i] = errprompt.Rule{Pattern: r.Pattern, Message: r.Message}
	}
	matcher, err := errprompt.NewMatcher(promptRules)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	timeoutRules := make([]timeout.Rule, len(config.Query.TimeoutRules))
	for i, r := range config.Query.TimeoutRules {
		timeoutRules[i] = timeout.Rule{
			Pattern: r.Pattern,
			Timeout: time.Duration(r.TimeoutSeconds) * time.Second,
		}
	}
	timeouts, err := timeout.NewResolver(
		time.Duration(config.Query.DefaultTimeoutSeconds)*time.Second, timeoutRules)
	if err != nil {
		return nil, &ConfigError{Msg: err.Error()}
	}

	return &DataLens{
		config:     config,
		db:         db,
		dialect:    dia,
		tun:        tun,
		gate:       semaphore.NewWeighted(int64(config.Pool.MaxConns)),
		policy:     pol,
		masker:     masker,
		errPrompts: matcher,
		timeouts:   timeouts,
		logger:     logger,
	}, nil
}

// Ping verifies database connectivity through the pool (and the tunnel, when
// one is active).
func (d *DataLens) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return &ConnectError{Err: err}
	}
	return nil
}

// Close drains in-flight operations (bounded by pool.shutdown_grace_seconds),
// closes the connection pool, and only then closes the tunnel — the reverse
// of startup order, so live connections are never orphaned.
func (d *DataLens) Close(ctx context.Context) error {
	grace := time.Duration(d.config.Pool.ShutdownGraceSeconds) * time.Second
	drainCtx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()

	total := int64(d.config.Pool.MaxConns)
	if err := d.gate.Acquire(drainCtx, total); err != nil {
		d.logger.Warn().
			Dur("grace", grace).
			Msg("shutdown grace elapsed with operations still in flight")
	} else {
		d.gate.Release(total)
	}

	err := d.db.Close()
	if d.tun != nil {
		if terr := d.tun.Close(); err == nil {
			err = terr
		}
	}
	d.logger.Info().Msg("engine closed")
	return err
}

// acquireSlot claims one connection slot, blocking until a slot frees, the
// acquire timeout elapses (ErrPoolExhausted), or the caller's context is
// cancelled. Every successful acquire must be paired with d.gate.Release(1).
func (d *DataLens) acquireSlot(ctx context.Context) error {
	wait := time.Duration(d.config.Pool.AcquireTimeoutSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	if err := d.gate.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("cancelled while waiting for a connection slot: %w", ctx.Err())
		}
		return ErrPoolExhausted
	}
	return nil
}

// releaseConn returns a pinned connection to the pool. An unhealthy
// connection (execution error or cancellation mid-query: transaction state
// unknown) is poisoned first so the pool discards it instead of reusing it;
// a replacement is opened lazily on the next acquire.
func releaseConn(conn *sql.Conn, healthy bool) {
	if !healthy {
		conn.Raw(func(interface{}) error { return driver.ErrBadConn })
	}
	conn.Close()
}
