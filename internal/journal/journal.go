// Package journal keeps an append-only sqlite log of finished operations.
// It is written for diagnostics only and never read back into a scheduler.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/CZERTAINLY/sensord/internal/sched"
)

const DefaultBuffer = 256

var ErrNotFound = errors.New("not found")

// Journal is a sched.Observer. Records are queued by Observe and written by
// Run, so that the scheduler loop never waits for the disk.
type Journal struct {
	db      *sql.DB
	records chan sched.Record
}

// Open opens or creates the journal database at path. Use ":memory:" for a
// throwaway journal.
func Open(ctx context.Context, path string, buffer int) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// in-memory databases live per connection
	db.SetMaxOpenConns(1)

	_, err = db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			uuid TEXT NOT NULL UNIQUE,
			sensor INTEGER NOT NULL,
			monitor TEXT NOT NULL,
			last_state TEXT NOT NULL,
			success BOOLEAN NOT NULL,
			aborted BOOLEAN NOT NULL,
			submitted INTEGER NOT NULL,
			started INTEGER DEFAULT NULL,
			finished INTEGER NOT NULL
		)`,
	)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating journal table failed: %w", err)
	}

	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Journal{
		db:      db,
		records: make(chan sched.Record, buffer),
	}, nil
}

// Observe queues rec for Run. A full queue drops the record.
func (j *Journal) Observe(ctx context.Context, rec sched.Record) {
	select {
	case j.records <- rec:
	default:
		slog.WarnContext(ctx, "journal queue is full: dropping record", "id", rec.ID)
	}
}

// Run writes queued records until ctx is cancelled, then flushes what is
// already queued.
func (j *Journal) Run(ctx context.Context) error {
	wctx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return j.flush(wctx)
		case rec := <-j.records:
			if err := j.Insert(wctx, rec); err != nil {
				slog.ErrorContext(ctx, "writing journal record failed", "id", rec.ID, "error", err)
			}
		}
	}
}

func (j *Journal) flush(ctx context.Context) error {
	var errs []error
	for {
		select {
		case rec := <-j.records:
			if err := j.Insert(ctx, rec); err != nil {
				errs = append(errs, err)
			}
		default:
			return errors.Join(errs...)
		}
	}
}

func (j *Journal) Insert(ctx context.Context, rec sched.Record) error {
	var started sql.NullInt64
	if !rec.Started.IsZero() {
		started = sql.NullInt64{Int64: rec.Started.UnixNano(), Valid: true}
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO operations (uuid, sensor, monitor, last_state, success, aborted, submitted, started, finished)
		VALUES (?,?,?,?,?,?,?,?,?);`,
		rec.ID.String(),
		rec.SensorID,
		rec.Monitor,
		rec.LastState.String(),
		rec.Success,
		rec.Aborted,
		rec.Submitted.UnixNano(),
		started,
		rec.Finished.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("executing sql insert failed: %w", err)
	}
	return nil
}

const selectColumns = `SELECT uuid, sensor, monitor, last_state, success, aborted, submitted, started, finished FROM operations`

// Get returns the record of operation id or ErrNotFound.
func (j *Journal) Get(ctx context.Context, id uuid.UUID) (sched.Record, error) {
	row := j.db.QueryRowContext(ctx, selectColumns+` WHERE uuid=?`, id.String())
	rec, err := scan(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return sched.Record{}, ErrNotFound
	case err != nil:
		return sched.Record{}, fmt.Errorf("executing sql query failed: %w", err)
	}
	return rec, nil
}

// List returns up to limit newest records of a sensor, or of all sensors when
// sensorID is negative.
func (j *Journal) List(ctx context.Context, sensorID int, limit int) ([]sched.Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var (
		rows *sql.Rows
		err  error
	)
	if sensorID < 0 {
		rows, err = j.db.QueryContext(ctx, selectColumns+` ORDER BY id DESC LIMIT ?`, limit)
	} else {
		rows, err = j.db.QueryContext(ctx, selectColumns+` WHERE sensor=? ORDER BY id DESC LIMIT ?`, sensorID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("executing sql query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ret []sched.Record
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning journal row failed: %w", err)
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (sched.Record, error) {
	var (
		rec       sched.Record
		id        string
		state     string
		submitted int64
		started   sql.NullInt64
		finished  int64
	)
	err := s.Scan(&id, &rec.SensorID, &rec.Monitor, &state, &rec.Success, &rec.Aborted, &submitted, &started, &finished)
	if err != nil {
		return sched.Record{}, err
	}
	if rec.ID, err = uuid.Parse(id); err != nil {
		return sched.Record{}, err
	}
	if err := rec.LastState.UnmarshalText([]byte(state)); err != nil {
		return sched.Record{}, err
	}
	rec.Submitted = time.Unix(0, submitted).UTC()
	if started.Valid {
		rec.Started = time.Unix(0, started.Int64).UTC()
	}
	rec.Finished = time.Unix(0, finished).UTC()
	return rec, nil
}
