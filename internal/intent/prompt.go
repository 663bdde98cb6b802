package intent

import "github.com/kalambet/twind/internal/engine"

const systemPrompt = `You rewrite questions about a person's professional background into search queries for a profile database.

Rules:
- Output ONLY the rewritten query on a single line. No quotes, labels or explanations.
- Keep every concrete name, technology and company from the question.
- Add synonyms and related vocabulary: roles, responsibilities, achievements, results, technologies.
- Phrase it as keywords, not as a question.`

// BuildPrompt constructs the chat messages for query rewriting.
func BuildPrompt(question string) []engine.Message {
	return []engine.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: question},
	}
}
