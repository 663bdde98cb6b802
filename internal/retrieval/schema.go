package retrieval

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidMetadata is returned when metadata does not decode into a known
// record schema.
var ErrInvalidMetadata = errors.New("invalid record metadata")

// Metadata keys shared by all record types.
const (
	KeyType     = "type"
	KeyTitle    = "title"
	KeyContent  = "content"
	KeyCategory = "category"
	KeyTags     = "tags"
)

// Record types written by the conversation loop. Profile chunk types are
// listed in ChunkTypes.
const (
	TypeConversation  = "conversation"
	TypeReinforcement = "reinforcement"
)

// ChunkTypes are the record types produced from the profile corpus.
var ChunkTypes = map[string]bool{
	"personal":      true,
	"contact":       true,
	"compensation":  true,
	"experience":    true,
	"project":       true,
	"skills":        true,
	"education":     true,
	"career":        true,
	"certification": true,
	"learning":      true,
	"resume":        true,
}

// Metadata is a typed record schema.
type Metadata interface {
	RecordType() string
	Encode() map[string]string
}

// ChunkMetadata describes a profile chunk.
type ChunkMetadata struct {
	Title    string
	Type     string
	Content  string
	Category string
	Tags     []string
}

func (m ChunkMetadata) RecordType() string { return m.Type }

func (m ChunkMetadata) Encode() map[string]string {
	return map[string]string{
		KeyType:     m.Type,
		KeyTitle:    m.Title,
		KeyContent:  m.Content,
		KeyCategory: m.Category,
		KeyTags:     strings.Join(m.Tags, ","),
	}
}

// ConversationMetadata mirrors a stored exchange for similarity lookups.
type ConversationMetadata struct {
	ConversationID string
	Question       string
	Answer         string
	Category       string
	CreatedAt      time.Time
}

func (m ConversationMetadata) RecordType() string { return TypeConversation }

func (m ConversationMetadata) Encode() map[string]string {
	return map[string]string{
		KeyType:           TypeConversation,
		KeyTitle:          m.Question,
		KeyContent:        m.Answer,
		KeyCategory:       m.Category,
		"conversation_id": m.ConversationID,
		"created_at":      m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ReinforcementMetadata is a well-received answer fed back into the index.
type ReinforcementMetadata struct {
	OriginalID string
	Question   string
	Answer     string
	Category   string
	Weight     float64
}

func (m ReinforcementMetadata) RecordType() string { return TypeReinforcement }

func (m ReinforcementMetadata) Encode() map[string]string {
	return map[string]string{
		KeyType:       TypeReinforcement,
		KeyTitle:      m.Question,
		KeyContent:    "Q: " + m.Question + "\nA: " + m.Answer,
		KeyCategory:   m.Category,
		"original_id": m.OriginalID,
		"weight":      strconv.FormatFloat(m.Weight, 'f', -1, 64),
	}
}

// DecodeMetadata validates raw index metadata and returns its typed form.
func DecodeMetadata(raw map[string]string) (Metadata, error) {
	typ := raw[KeyType]
	switch {
	case typ == "":
		return nil, fmt.Errorf("%w: missing type", ErrInvalidMetadata)

	case typ == TypeConversation:
		id := raw["conversation_id"]
		if id == "" {
			return nil, fmt.Errorf("%w: conversation without conversation_id", ErrInvalidMetadata)
		}
		created, err := time.Parse(time.RFC3339, raw["created_at"])
		if err != nil {
			return nil, fmt.Errorf("%w: conversation created_at: %v", ErrInvalidMetadata, err)
		}
		return ConversationMetadata{
			ConversationID: id,
			Question:       raw[KeyTitle],
			Answer:         raw[KeyContent],
			Category:       raw[KeyCategory],
			CreatedAt:      created,
		}, nil

	case typ == TypeReinforcement:
		id := raw["original_id"]
		if id == "" {
			return nil, fmt.Errorf("%w: reinforcement without original_id", ErrInvalidMetadata)
		}
		w, err := strconv.ParseFloat(raw["weight"], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: reinforcement weight: %v", ErrInvalidMetadata, err)
		}
		q, a, _ := strings.Cut(strings.TrimPrefix(raw[KeyContent], "Q: "), "\nA: ")
		return ReinforcementMetadata{
			OriginalID: id,
			Question:   q,
			Answer:     a,
			Category:   raw[KeyCategory],
			Weight:     w,
		}, nil

	case ChunkTypes[typ]:
		var tags []string
		if t := raw[KeyTags]; t != "" {
			tags = strings.Split(t, ",")
		}
		return ChunkMetadata{
			Title:    raw[KeyTitle],
			Type:     typ,
			Content:  raw[KeyContent],
			Category: raw[KeyCategory],
			Tags:     tags,
		}, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidMetadata, typ)
}

// NewRecord builds an index record from typed metadata.
func NewRecord(id, text string, meta Metadata) Record {
	return Record{ID: id, Text: text, Metadata: meta.Encode()}
}

func validateRecords(records []Record) error {
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: empty record id", ErrInvalidMetadata)
		}
		if _, err := DecodeMetadata(r.Metadata); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}
