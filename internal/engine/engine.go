package engine

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"homico/internal/config"
	"homico/internal/domain"
	"homico/internal/engine/auth"
	"homico/internal/events"
	"homico/internal/outbound"
	"homico/internal/repo"
)

// Engine coordinates hiring and the post-hire project lifecycle. Every
// state change runs in one transaction; side effects run after commit.
type Engine struct {
	DB      *sql.DB
	Repo    repo.Repo
	Events  events.Writer
	Config  *config.Config
	Trust   auth.TrustGate
	Sinks   outbound.Sinks
	Effects outbound.Runner
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	r := repo.Repo{DB: db}
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:     db,
		Repo:   r,
		Events: events.Writer{DB: db},
		Config: cfg,
		Trust:  auth.Service{Repo: r},
		Sinks:  outbound.LogSinks(nil),
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return domain.FormatTime(e.now())
}

func (e Engine) log() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return e.Logger
}

func (e Engine) config() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, evtType, jobID, entityKind, entityID, actorID string, payload events.EventPayload) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, evtType, jobID, entityKind, entityID, actorID, payload)
}

func newID() string {
	return uuid.NewString()
}
