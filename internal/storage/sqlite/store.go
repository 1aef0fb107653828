// Package sqlite is the durable event journal of the session engine. Each
// game's log is stored row per event and appended one transaction at a time.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/storage/sqlite/migrations"
	"github.com/mitchelldurbincs/MekEncounter/internal/storage/sqlitemigrate"
)

const defaultPageSize = 500

// GameSummary describes one stored game
type GameSummary struct {
	GameID    string    `json:"game_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	LastSeq   int       `json:"last_seq"`
}

// Store persists game event logs in SQLite
type Store struct {
	sqlDB    *sql.DB
	pageSize int
	logger   zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithPageSize sets how many events LoadEvents reads per query
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Open opens the database at path in WAL mode and applies the embedded migrations
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, "."); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{
		sqlDB:    sqlDB,
		pageSize: defaultPageSize,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With().Str("component", "SQLiteStore").Str("path", path).Logger()
	return s, nil
}

// Close closes the database handle
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// AppendEvents stores one transaction of a game's log. The events must
// continue the stored log without a gap; otherwise nothing is written and
// the error matches core.ErrSequence.
func (s *Store) AppendEvents(ctx context.Context, gameID string, evts []events.GameEvent) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if gameID == "" {
		return fmt.Errorf("game id is required")
	}
	if len(evts) == 0 {
		return nil
	}

	records := make([]events.Record, len(evts))
	for i, evt := range evts {
		if evt.GameID != "" && evt.GameID != gameID {
			return fmt.Errorf("event %d belongs to game %s, not %s", evt.Sequence, evt.GameID, gameID)
		}
		rec, err := events.Encode(evt)
		if err != nil {
			return err
		}
		records[i] = rec
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	lastSeq, err := lastSequence(ctx, tx, gameID)
	if err != nil {
		return err
	}
	for i, rec := range records {
		if want := lastSeq + 1 + i; rec.Sequence != want {
			return &core.SequenceError{Expected: want, Got: rec.Sequence}
		}
	}

	now := toNanos(records[len(records)-1].Timestamp)
	newLast := records[len(records)-1].Sequence
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO games (game_id, created_at, updated_at, last_seq)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (game_id) DO UPDATE SET
		   updated_at = excluded.updated_at,
		   last_seq   = excluded.last_seq`,
		gameID, toNanos(records[0].Timestamp), now, newLast,
	); err != nil {
		return fmt.Errorf("upsert game: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO events (game_id, seq, event_id, tx_id, event_type, turn, phase, timestamp, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx,
			gameID, rec.Sequence, rec.ID, rec.TxID, rec.Type, rec.Turn, rec.Phase,
			toNanos(rec.Timestamp), []byte(rec.Payload),
		); err != nil {
			if isConstraintError(err) {
				return &core.SequenceError{Expected: lastSeq + 1, Got: rec.Sequence}
			}
			return fmt.Errorf("append event %d: %w", rec.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug().
		Str("game_id", gameID).
		Int("first_seq", records[0].Sequence).
		Int("count", len(records)).
		Msg("Events appended")
	return nil
}

// TruncateEvents drops every event after sequence keep. keep 0 removes the game.
func (s *Store) TruncateEvents(ctx context.Context, gameID string, keep int) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if keep < 0 {
		return core.Validationf("cannot keep %d events", keep)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	lastSeq, err := lastSequence(ctx, tx, gameID)
	if err != nil {
		return err
	}
	if keep > lastSeq {
		return &core.SequenceError{Expected: lastSeq, Got: keep}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE game_id = ? AND seq > ?`, gameID, keep); err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	if keep == 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM games WHERE game_id = ?`, gameID)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE games SET last_seq = ? WHERE game_id = ?`, keep, gameID)
	}
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.Debug().
		Str("game_id", gameID).
		Int("keep", keep).
		Int("removed", lastSeq-keep).
		Msg("Events truncated")
	return nil
}

// ListEvents returns up to limit events of a game with a sequence after afterSeq
func (s *Store) ListEvents(ctx context.Context, gameID string, afterSeq, limit int) ([]events.GameEvent, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.pageSize
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT event_id, seq, tx_id, event_type, turn, phase, timestamp, payload_json
		   FROM events
		  WHERE game_id = ? AND seq > ?
		  ORDER BY seq
		  LIMIT ?`,
		gameID, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []events.GameEvent
	for rows.Next() {
		rec := events.Record{GameID: gameID}
		var ts int64
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Sequence, &rec.TxID, &rec.Type, &rec.Turn, &rec.Phase, &ts, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		rec.Timestamp = fromNanos(ts)
		rec.Payload = payload

		evt, err := events.Decode(rec)
		if err != nil {
			return nil, &core.ReplayCorruptionError{Sequence: rec.Sequence, Reason: "undecodable event", Err: err}
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// LoadEvents reads a game's whole log page by page
func (s *Store) LoadEvents(ctx context.Context, gameID string) ([]events.GameEvent, error) {
	var out []events.GameEvent
	after := 0
	for {
		page, err := s.ListEvents(ctx, gameID, after, s.pageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < s.pageSize {
			return out, nil
		}
		after = page[len(page)-1].Sequence
	}
}

// ListGames returns every stored game, most recently updated first
func (s *Store) ListGames(ctx context.Context) ([]GameSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT game_id, created_at, updated_at, last_seq
		   FROM games
		  ORDER BY updated_at DESC, game_id`)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	defer rows.Close()

	var out []GameSummary
	for rows.Next() {
		var g GameSummary
		var created, updated int64
		if err := rows.Scan(&g.GameID, &created, &updated, &g.LastSeq); err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		g.CreatedAt = fromNanos(created)
		g.UpdatedAt = fromNanos(updated)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate games: %w", err)
	}
	return out, nil
}

// Bind returns a session.Journal that writes through this store with ctx
func (s *Store) Bind(ctx context.Context) session.Journal {
	return boundJournal{ctx: ctx, store: s}
}

type boundJournal struct {
	ctx   context.Context
	store *Store
}

func (j boundJournal) AppendEvents(gameID string, evts []events.GameEvent) error {
	return j.store.AppendEvents(j.ctx, gameID, evts)
}

func (j boundJournal) TruncateEvents(gameID string, keep int) error {
	return j.store.TruncateEvents(j.ctx, gameID, keep)
}

func lastSequence(ctx context.Context, tx *sql.Tx, gameID string) (int, error) {
	var last int
	err := tx.QueryRowContext(ctx, `SELECT last_seq FROM games WHERE game_id = ?`, gameID).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read last sequence: %w", err)
	}
	return last, nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT ||
		code == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
