package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"homico/internal/config"
	"homico/internal/db"
	"homico/internal/engine"
	"homico/internal/migrate"
	"homico/internal/outbound"
)

// Options control how a workspace is opened.
type Options struct {
	Workspace string
	Logger    *slog.Logger
	// Async runs side effects on the outbound worker pool instead of
	// inline with the request.
	Async bool
}

// Runtime is an opened workspace: database, config and a wired engine.
type Runtime struct {
	Engine engine.Engine
	Config *config.Config
	Queue  *outbound.Queue
	Logger *slog.Logger
	conn   *sql.DB
}

// Open loads homico.yml, opens and migrates the workspace database and
// builds an engine whose sinks follow the outbound config.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.Workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	version, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Debug("workspace opened", "db", db.Path(opts.Workspace), "schema_version", version)

	e := engine.New(conn, cfg)
	e.Logger = logger
	e.Sinks = outbound.NewSinks(cfg.Outbound, logger)
	rt := &Runtime{Engine: e, Config: cfg, Logger: logger, conn: conn}
	if opts.Async {
		q := outbound.NewQueue(cfg.Outbound.Workers, cfg.Outbound.QueueSize, cfg.Outbound.Timeout(), logger)
		q.Start()
		rt.Queue = q
		rt.Engine.Effects = q
	}
	return rt, nil
}

// Close drains queued side effects, then closes the database.
func (r *Runtime) Close(ctx context.Context) error {
	var errs []error
	if r.Queue != nil {
		if err := r.Queue.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain outbound queue: %w", err))
		}
	}
	if err := r.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// NewLogger builds the CLI logger: text by default, JSON when format is
// "json".
func NewLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", level)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", format)
}
