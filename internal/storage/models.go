package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Feedback values stored on a conversation.
const (
	FeedbackPositive = "positive"
	FeedbackNegative = "negative"
)

// Improvement task statuses.
const (
	TaskPending  = "pending"
	TaskResolved = "resolved"
)

type Conversation struct {
	ID          string
	CreatedAt   time.Time
	Question    string
	Answer      string
	Feedback    string // "", "positive" or "negative"
	SourcesJSON string // JSON array stored as text
	Confidence  float64
	Category    string
	Path        string
}

type ImprovementTask struct {
	ID                     string
	OriginalConversationID string
	Question               string
	Answer                 string
	Status                 string
	CreatedAt              time.Time
	ResolvedAt             time.Time
}

type Reinforcement struct {
	ID         string
	OriginalID string
	Question   string
	Answer     string
	Category   string
	Weight     float64
	CreatedAt  time.Time
}

// ConversationStats aggregates feedback over all stored conversations.
type ConversationStats struct {
	Total          int
	Positive       int
	Negative       int
	MeanConfidence float64
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
