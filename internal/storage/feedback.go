package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Improvement tasks ---

// CreateImprovementTask inserts a pending task unless one is already pending
// for the same conversation. It reports whether a row was written.
func (s *Store) CreateImprovementTask(ctx context.Context, t ImprovementTask) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO improvement_tasks (id, original_conversation_id, question, answer, status, created_at)
		VALUES (?, ?, ?, ?, 'pending', ?)`,
		t.ID, t.OriginalConversationID, t.Question, t.Answer, formatTime(t.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const taskColumns = `id, original_conversation_id, question, answer, status, created_at, resolved_at`

func scanTask(r rowScanner) (ImprovementTask, error) {
	var t ImprovementTask
	var createdAt string
	var resolvedAt sql.NullString
	if err := r.Scan(&t.ID, &t.OriginalConversationID, &t.Question, &t.Answer, &t.Status, &createdAt, &resolvedAt); err != nil {
		return ImprovementTask{}, err
	}
	var err error
	if t.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return ImprovementTask{}, err
	}
	if resolvedAt.Valid {
		if t.ResolvedAt, err = parseTime("resolved_at", resolvedAt.String); err != nil {
			return ImprovementTask{}, err
		}
	}
	return t, nil
}

func (s *Store) GetImprovementTask(ctx context.Context, id string) (ImprovementTask, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM improvement_tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ImprovementTask{}, ErrNotFound
	}
	return t, err
}

// ListImprovementTasks returns tasks oldest first. An empty status lists all.
func (s *Store) ListImprovementTasks(ctx context.Context, status string) ([]ImprovementTask, error) {
	query := `SELECT ` + taskColumns + ` FROM improvement_tasks`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImprovementTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ResolveImprovementTask marks a task resolved. Resolving an already
// resolved task is a no-op.
func (s *Store) ResolveImprovementTask(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE improvement_tasks SET status = 'resolved', resolved_at = COALESCE(resolved_at, ?)
		WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Reinforcements ---

// SaveReinforcement inserts r unless a reinforcement for the same
// conversation already exists. It reports whether a row was written.
func (s *Store) SaveReinforcement(ctx context.Context, r Reinforcement) (bool, error) {
	return insertReinforcement(ctx, s.db, r)
}

// SaveReinforcementWithJob is SaveReinforcement plus queueing job in the same
// transaction. The job is only queued when the row is new; if queueing fails
// the row is rolled back so a retry starts clean.
func (s *Store) SaveReinforcementWithJob(ctx context.Context, r Reinforcement, job Job) (bool, error) {
	var created bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = insertReinforcement(ctx, tx, r)
		if err != nil || !created {
			return err
		}
		return insertJob(ctx, tx, job)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

func insertReinforcement(ctx context.Context, ex execer, r Reinforcement) (bool, error) {
	res, err := ex.ExecContext(ctx, `
		INSERT INTO reinforcements (id, original_id, question, answer, category, weight, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(original_id) DO NOTHING`,
		r.ID, r.OriginalID, r.Question, r.Answer, r.Category, r.Weight, formatTime(r.CreatedAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const reinforcementColumns = `id, original_id, question, answer, category, weight, created_at`

func scanReinforcement(r rowScanner) (Reinforcement, error) {
	var rf Reinforcement
	var createdAt string
	if err := r.Scan(&rf.ID, &rf.OriginalID, &rf.Question, &rf.Answer, &rf.Category, &rf.Weight, &createdAt); err != nil {
		return Reinforcement{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Reinforcement{}, err
	}
	rf.CreatedAt = t
	return rf, nil
}

func (s *Store) GetReinforcementByOriginal(ctx context.Context, conversationID string) (Reinforcement, error) {
	rf, err := scanReinforcement(s.db.QueryRowContext(ctx,
		`SELECT `+reinforcementColumns+` FROM reinforcements WHERE original_id = ?`, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return Reinforcement{}, ErrNotFound
	}
	return rf, err
}

// ListReinforcements returns every reinforcement, oldest first.
func (s *Store) ListReinforcements(ctx context.Context) ([]Reinforcement, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reinforcementColumns+` FROM reinforcements ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing reinforcements: %w", err)
	}
	defer rows.Close()

	var out []Reinforcement
	for rows.Next() {
		rf, err := scanReinforcement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, rows.Err()
}
