package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/dataspace/internal/ir"
)

// TraceEvent is one journaled row.
type TraceEvent struct {
	RunID      string
	Seq        int64
	Kind       string
	Actor      string
	Value      ir.IRValue
	ValueHash  string
	Transition string
	Error      string
}

// String renders the event on one line in the same shape as an in-memory
// recorder, so journaled and recorded traces compare equal.
func (e TraceEvent) String() string {
	switch e.Kind {
	case KindPatch:
		return fmt.Sprintf("patch %s %s %s", e.Actor, e.Transition, ir.Key(e.Value))
	case KindMessage:
		return fmt.Sprintf("message %s %s", e.Actor, ir.Key(e.Value))
	case KindActorTerminated:
		if e.Error != "" {
			return fmt.Sprintf("terminated %s error=%q", e.Actor, e.Error)
		}
		return fmt.Sprintf("terminated %s", e.Actor)
	default:
		return fmt.Sprintf("started %s", e.Actor)
	}
}

// TraceFilter narrows ReadTrace. Empty fields match everything.
type TraceFilter struct {
	RunID string
	Kind  string
	Actor string
}

// Run describes one journaled run.
type Run struct {
	ID            string `json:"id"`
	EngineVersion string `json:"engine_version"`
	IRVersion     string `json:"ir_version"`
	Events        int64  `json:"events"`
}

// ReadTrace returns the events matching filter, ordered by run then seq.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadTrace(ctx context.Context, filter TraceFilter) ([]TraceEvent, error) {
	var where []string
	var args []any
	if filter.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor)
	}

	query := `
		SELECT run_id, seq, kind, actor, value, value_hash, transition, error
		FROM trace_events`
	if len(where) > 0 {
		query += "\n\t\tWHERE " + strings.Join(where, " AND ")
	}
	// Deterministic ordering: runs in creation order, then seq.
	query += "\n\t\tORDER BY (SELECT rowid FROM runs WHERE runs.id = run_id) ASC, seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	events := []TraceEvent{}
	for rows.Next() {
		e, err := scanTraceEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace events: %w", err)
	}
	return events, nil
}

func scanTraceEvent(rows *sql.Rows) (TraceEvent, error) {
	var e TraceEvent
	var value, hash, tr, errText sql.NullString
	if err := rows.Scan(&e.RunID, &e.Seq, &e.Kind, &e.Actor, &value, &hash, &tr, &errText); err != nil {
		return TraceEvent{}, fmt.Errorf("scan trace event: %w", err)
	}
	if value.Valid {
		v, err := ir.UnmarshalIRValue([]byte(value.String))
		if err != nil {
			return TraceEvent{}, fmt.Errorf("decode value of event %d: %w", e.Seq, err)
		}
		e.Value = v
	}
	e.ValueHash = hash.String
	e.Transition = tr.String
	e.Error = errText.String
	return e, nil
}

// ListRuns returns every journaled run in creation order.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.engine_version, r.ir_version, COUNT(t.seq)
		FROM runs r
		LEFT JOIN trace_events t ON t.run_id = r.id
		GROUP BY r.rowid
		ORDER BY r.rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.EngineVersion, &r.IRVersion, &r.Events); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
