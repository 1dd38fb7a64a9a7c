package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of *pgxpool.Pool used by PostgresSink.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS qrauth;
CREATE TABLE IF NOT EXISTS qrauth.audit_log (
	id          BIGSERIAL PRIMARY KEY,
	action      TEXT NOT NULL,
	session_id  TEXT,
	user_id     TEXT,
	reason      TEXT,
	ip          TEXT,
	user_agent  TEXT,
	meta        JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS audit_log_session_idx ON qrauth.audit_log (session_id);
`

const insertSQL = `
	INSERT INTO qrauth.audit_log (
		action, session_id, user_id, reason, ip, user_agent, meta, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)
`

// DefaultBuffer is the queue depth used when NewPostgresSink gets buffer <= 0.
const DefaultBuffer = 1024

// PostgresSink writes entries to qrauth.audit_log from a single background
// writer. Record only enqueues; a full queue drops the entry.
type PostgresSink struct {
	db    Execer
	log   *slog.Logger
	queue chan Entry

	dropped atomic.Int64
	written atomic.Int64
}

// NewPostgresSink constructs a sink. Call Run to start writing.
func NewPostgresSink(db Execer, log *slog.Logger, buffer int) *PostgresSink {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &PostgresSink{db: db, log: log, queue: make(chan Entry, buffer)}
}

// EnsureSchema creates the audit table when missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	_, err := db.Exec(ctx, schemaSQL)
	return err
}

func (s *PostgresSink) Record(_ context.Context, e Entry) {
	if strings.TrimSpace(e.Action) == "" {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	select {
	case s.queue <- e:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.log.Warn("audit.drop", "action", e.Action, "dropped_total", n)
		}
	}
}

// Run writes queued entries until ctx is done, then flushes what is left
// with a short grace period.
func (s *PostgresSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return nil
		case e := <-s.queue:
			s.insert(ctx, e)
		}
	}
}

func (s *PostgresSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for {
		select {
		case e := <-s.queue:
			s.insert(ctx, e)
		default:
			return
		}
	}
}

func (s *PostgresSink) insert(ctx context.Context, e Entry) {
	var metaVal *string
	if len(e.Meta) > 0 {
		if b, err := json.Marshal(e.Meta); err == nil {
			v := string(b)
			metaVal = &v
		}
	}

	_, err := s.db.Exec(ctx, insertSQL,
		e.Action, nilIfEmpty(e.SessionID), nilIfEmpty(e.UserID), nilIfEmpty(e.Reason),
		nilIfEmpty(e.IP), nilIfEmpty(e.UserAgent), metaVal, e.At,
	)
	if err != nil {
		s.log.Error("audit.insert.fail", "err", err, "action", e.Action)
		return
	}
	s.written.Add(1)
}

// Dropped returns the number of entries discarded on backpressure.
func (s *PostgresSink) Dropped() int64 { return s.dropped.Load() }

// Written returns the number of entries successfully inserted.
func (s *PostgresSink) Written() int64 { return s.written.Load() }

func nilIfEmpty(s string) any {
	v := strings.TrimSpace(s)
	if v == "" {
		return nil
	}
	return v
}
