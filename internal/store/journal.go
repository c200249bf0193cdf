package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/dataspace/internal/bag"
	"github.com/roach88/dataspace/internal/ir"
)

// Trace event kinds.
const (
	KindActorStarted    = "actor_started"
	KindActorTerminated = "actor_terminated"
	KindPatch           = "patch"
	KindMessage         = "message"
)

// Journal records one run's trace events. It implements dataspace.Tracer.
//
// Tracer methods cannot return errors, so the first write failure is kept
// and later events are dropped; check Err after the run.
//
// Thread-safety: Journal is safe for concurrent use via internal mutex.
type Journal struct {
	store *Store
	runID string
	ctx   context.Context

	mu  sync.Mutex
	seq int64
	err error
}

// NewJournal starts journaling a run identified by runID.
func (s *Store) NewJournal(ctx context.Context, runID string) (*Journal, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, engine_version, ir_version)
		VALUES (?, ?, ?)
	`, runID, ir.EngineVersion, ir.IRVersion)
	if err != nil {
		return nil, fmt.Errorf("create run %s: %w", runID, err)
	}
	return &Journal{store: s, runID: runID, ctx: ctx}, nil
}

// RunID returns the journaled run's id.
func (j *Journal) RunID() string {
	return j.runID
}

// Err returns the first write failure, if any.
func (j *Journal) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Len returns the number of events written.
func (j *Journal) Len() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seq
}

// ActorStarted implements dataspace.Tracer.
func (j *Journal) ActorStarted(actor string) {
	j.write(KindActorStarted, actor, nil, "", nil)
}

// ActorTerminated implements dataspace.Tracer.
func (j *Journal) ActorTerminated(actor string, err error) {
	j.write(KindActorTerminated, actor, nil, "", err)
}

// Patch implements dataspace.Tracer.
func (j *Journal) Patch(actor string, v ir.IRValue, tr bag.Transition) {
	j.write(KindPatch, actor, v, tr.String(), nil)
}

// Message implements dataspace.Tracer.
func (j *Journal) Message(actor string, v ir.IRValue) {
	j.write(KindMessage, actor, v, "", nil)
}

func (j *Journal) write(kind, actor string, v ir.IRValue, transition string, failure error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.err != nil {
		return
	}

	var value, hash, tr, errText sql.NullString
	if v != nil {
		data, err := ir.MarshalCanonical(v)
		if err != nil {
			j.fail(fmt.Errorf("marshal %s value: %w", kind, err))
			return
		}
		value = sql.NullString{String: string(data), Valid: true}
		h, err := ir.ValueHash(v)
		if err != nil {
			j.fail(err)
			return
		}
		hash = sql.NullString{String: h, Valid: true}
	}
	if transition != "" {
		tr = sql.NullString{String: transition, Valid: true}
	}
	if failure != nil {
		errText = sql.NullString{String: failure.Error(), Valid: true}
	}

	seq := j.seq + 1
	_, err := j.store.db.ExecContext(j.ctx, `
		INSERT INTO trace_events
		(run_id, seq, kind, actor, value, value_hash, transition, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, j.runID, seq, kind, actor, value, hash, tr, errText)
	if err != nil {
		j.fail(fmt.Errorf("write trace event %d: %w", seq, err))
		return
	}
	j.seq = seq
}

func (j *Journal) fail(err error) {
	j.err = err
	slog.Error("trace journal write failed, dropping further events",
		"run", j.runID,
		"error", err,
	)
}
