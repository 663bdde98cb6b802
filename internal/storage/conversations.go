package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const conversationColumns = `id, created_at, question, answer, feedback, sources_json, confidence, category, path`

func (s *Store) SaveConversation(ctx context.Context, c Conversation) error {
	return insertConversation(ctx, s.db, c)
}

// SaveConversationWithJob stores c and queues job in one transaction, so a
// stored conversation always has its indexing job.
func (s *Store) SaveConversationWithJob(ctx context.Context, c Conversation, job Job) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertConversation(ctx, tx, c); err != nil {
			return err
		}
		return insertJob(ctx, tx, job)
	})
}

func insertConversation(ctx context.Context, ex execer, c Conversation) error {
	sources := c.SourcesJSON
	if sources == "" {
		sources = "[]"
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO conversations (`+conversationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, formatTime(c.CreatedAt), c.Question, c.Answer, c.Feedback,
		sources, c.Confidence, c.Category, c.Path,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(r rowScanner) (Conversation, error) {
	var c Conversation
	var createdAt string
	if err := r.Scan(&c.ID, &createdAt, &c.Question, &c.Answer, &c.Feedback,
		&c.SourcesJSON, &c.Confidence, &c.Category, &c.Path); err != nil {
		return Conversation{}, err
	}
	t, err := parseTime("created_at", createdAt)
	if err != nil {
		return Conversation{}, err
	}
	c.CreatedAt = t
	return c, nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

// SetFeedback overwrites the feedback field of a conversation.
func (s *Store) SetFeedback(ctx context.Context, id, feedback string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE conversations SET feedback = ? WHERE id = ?`, feedback, id)
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

// RecentConversations returns up to limit conversations, newest first.
func (s *Store) RecentConversations(ctx context.Context, limit int) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+conversationColumns+`
		FROM conversations ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ConversationQuestions streams every stored question to fn, oldest first.
func (s *Store) ConversationQuestions(ctx context.Context, fn func(question string)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT question FROM conversations ORDER BY created_at ASC`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return err
		}
		fn(q)
	}
	return rows.Err()
}

func (s *Store) ConversationStats(ctx context.Context) (ConversationStats, error) {
	var st ConversationStats
	var mean sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN feedback = 'positive' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN feedback = 'negative' THEN 1 ELSE 0 END), 0),
		       AVG(confidence)
		FROM conversations`).Scan(&st.Total, &st.Positive, &st.Negative, &mean)
	if err != nil {
		return ConversationStats{}, fmt.Errorf("aggregating conversations: %w", err)
	}
	st.MeanConfidence = mean.Float64
	return st, nil
}
