package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// Transition is an observed change of a job's run state.
type Transition struct {
	ID         int64     `json:"id"`
	Label      string    `json:"label"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ObservedAt time.Time `json:"observedAt"`
}

// Action is a recorded lifecycle request.
type Action struct {
	ID             int64     `json:"id"`
	Label          string    `json:"label"`
	Action         string    `json:"action"`
	OK             bool      `json:"ok"`
	Skipped        bool      `json:"skipped"`
	DescriptorPath string    `json:"descriptorPath,omitempty"`
	Output         string    `json:"output,omitempty"`
	State          string    `json:"state"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

func (s *Store) InsertTransitions(ctx context.Context, transitions []Transition) error {
	if len(transitions) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO status_transitions (label, from_state, to_state, observed_at)
		 VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	for _, tr := range transitions {
		if _, err := stmt.ExecContext(ctx, tr.Label, tr.From, tr.To, formatTime(tr.ObservedAt)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) InsertAction(ctx context.Context, a Action) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO actions
		   (label, action, ok, skipped, descriptor_path, output, state, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Label, a.Action, boolToInt(a.OK), boolToInt(a.Skipped), a.DescriptorPath,
		a.Output, a.State, formatTime(a.StartedAt), formatTime(a.FinishedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListTransitions returns the newest transitions first. An empty label
// lists every job.
func (s *Store) ListTransitions(ctx context.Context, label string, limit int) ([]Transition, error) {
	query := "SELECT id, label, from_state, to_state, observed_at FROM status_transitions"
	args := []any{}
	if label = strings.TrimSpace(label); label != "" {
		query += " WHERE label = ?"
		args = append(args, label)
	}
	query += " ORDER BY observed_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Transition, 0)
	for rows.Next() {
		var tr Transition
		var observed string
		if err := rows.Scan(&tr.ID, &tr.Label, &tr.From, &tr.To, &observed); err != nil {
			return nil, err
		}
		tr.ObservedAt = parseTime(observed)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ListActions returns the newest actions first. An empty label lists every
// job.
func (s *Store) ListActions(ctx context.Context, label string, limit int) ([]Action, error) {
	query := `SELECT id, label, action, ok, skipped, descriptor_path, output, state, started_at, finished_at
		FROM actions`
	args := []any{}
	if label = strings.TrimSpace(label); label != "" {
		query += " WHERE label = ?"
		args = append(args, label)
	}
	query += " ORDER BY started_at DESC, id DESC LIMIT ?"
	args = append(args, clampLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := make([]Action, 0)
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAction(rows *sql.Rows) (Action, error) {
	var (
		a                 Action
		ok, skipped       int
		started, finished string
	)
	if err := rows.Scan(&a.ID, &a.Label, &a.Action, &ok, &skipped, &a.DescriptorPath,
		&a.Output, &a.State, &started, &finished); err != nil {
		return Action{}, err
	}
	a.OK = ok == 1
	a.Skipped = skipped == 1
	a.StartedAt = parseTime(started)
	a.FinishedAt = parseTime(finished)
	return a, nil
}
