package conversation

import (
	"errors"
	"time"
)

var (
	// ErrInvalidFeedback is returned for feedback other than positive or negative.
	ErrInvalidFeedback = errors.New("feedback must be \"positive\" or \"negative\"")

	// ErrPersistence wraps storage failures.
	ErrPersistence = errors.New("persistence failed")

	// ErrNotFound is returned when a conversation or task does not exist.
	ErrNotFound = errors.New("not found")
)

// ReinforcementWeight is the weight recorded on reinforcements.
const ReinforcementWeight = 1.5

type Feedback string

const (
	Positive Feedback = "positive"
	Negative Feedback = "negative"
)

// Source is a piece of context an answer was built from.
type Source struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Exchange is a question/answer pair to be recorded. An empty ID is
// generated at store time.
type Exchange struct {
	ID         string
	Question   string
	Answer     string
	Sources    []Source
	Confidence float64
	Category   string
	Path       string
}

type Metadata struct {
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
	Category   string   `json:"category,omitempty"`
	Path       string   `json:"path,omitempty"`
}

type Conversation struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Feedback  Feedback  `json:"feedback,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Metadata  Metadata  `json:"metadata"`
}

// FeedbackResult reports the side effect of a feedback submission. Created
// is false when an identical side effect already existed.
type FeedbackResult struct {
	ConversationID string   `json:"conversationId"`
	Feedback       Feedback `json:"feedback"`
	Created        bool     `json:"created"`
	RecordID       string   `json:"recordId,omitempty"`
}

type ImprovementTask struct {
	ID                     string    `json:"id"`
	OriginalConversationID string    `json:"originalConversationId"`
	Question               string    `json:"question"`
	Answer                 string    `json:"answer"`
	Status                 string    `json:"status"`
	CreatedAt              time.Time `json:"createdAt"`
	ResolvedAt             time.Time `json:"resolvedAt,omitzero"`
}

// SimilarConversation is a past exchange close to a query.
type SimilarConversation struct {
	ConversationID string    `json:"conversationId"`
	Question       string    `json:"question"`
	Answer         string    `json:"answer"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Metrics struct {
	TotalConversations  int            `json:"totalConversations"`
	PositiveFeedback    int            `json:"positiveFeedback"`
	NegativeFeedback    int            `json:"negativeFeedback"`
	AverageConfidence   float64        `json:"averageConfidence"`
	PendingImprovements int            `json:"pendingImprovements"`
	Topics              map[string]int `json:"topics"`
}
