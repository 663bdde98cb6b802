package retrieval

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDecodeMetadata_Chunk(t *testing.T) {
	in := ChunkMetadata{
		Title:    "Frontend Skills",
		Type:     "skills",
		Content:  "React, Next.js, TypeScript",
		Category: "technical_skills",
		Tags:     []string{"frontend", "react"},
	}
	got, err := DecodeMetadata(in.Encode())
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestDecodeMetadata_Conversation(t *testing.T) {
	in := ConversationMetadata{
		ConversationID: "c-1",
		Question:       "What do you do?",
		Answer:         "I build web apps.",
		Category:       "experience",
		CreatedAt:      time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	got, err := DecodeMetadata(in.Encode())
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestDecodeMetadata_Reinforcement(t *testing.T) {
	in := ReinforcementMetadata{OriginalID: "c-2", Question: "Favourite stack?", Answer: "Go and Postgres.", Category: "technical_skills", Weight: 1.5}
	got, err := DecodeMetadata(in.Encode())
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestDecodeMetadata_Rejects(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]string
	}{
		{"nil", nil},
		{"missing type", map[string]string{KeyTitle: "x"}},
		{"unknown type", map[string]string{KeyType: "hobby"}},
		{"conversation without id", map[string]string{KeyType: TypeConversation, "created_at": "2025-01-01T00:00:00Z"}},
		{"conversation bad time", map[string]string{KeyType: TypeConversation, "conversation_id": "c", "created_at": "yesterday"}},
		{"reinforcement bad weight", map[string]string{KeyType: TypeReinforcement, "original_id": "c", "weight": "heavy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeMetadata(tt.raw); !errors.Is(err, ErrInvalidMetadata) {
				t.Errorf("err = %v, want ErrInvalidMetadata", err)
			}
		})
	}
}
