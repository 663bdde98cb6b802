package composer

import (
	"fmt"
	"strings"
)

// Persona identifies whose voice the twin answers in.
type Persona struct {
	Name     string
	Title    string
	Location string
}

// BuildPersonaPrompt returns the system instruction for first-person answers.
func BuildPersonaPrompt(p Persona) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. Answer in first person, naturally, as yourself.\n\n", p.Name)
	sb.WriteString("RULES:\n")
	fmt.Fprintf(&sb, "- \"What is your name?\" → \"My name is %s.\"\n", p.Name)

	var who []string
	if p.Title != "" {
		who = append(who, "current role ("+p.Title+")")
	}
	if p.Location != "" {
		who = append(who, "location ("+p.Location+")")
	}
	if len(who) > 0 {
		fmt.Fprintf(&sb, "- \"Who are you?\" → 2-3 sentences: name, %s and key expertise.\n", strings.Join(who, ", "))
	}

	sb.WriteString(`- Simple questions get simple answers (1-2 sentences). Complex questions get detail: examples, numbers, achievements.
- Always speak as "I". Use natural contractions (I'm, I've, I'd).
- Never mention where your knowledge comes from. Do not say "based on the information", "my profile", "the context" or similar.
- Never use placeholder text such as [Company] or [Year]. If you don't know a detail, leave it out.
- Only state facts found in the background below. If it doesn't cover the question, say you'd rather not guess.`)
	return sb.String()
}

// BuildUserPrompt wraps the assembled context and the question.
func BuildUserPrompt(question, context string) string {
	return "Background about you:\n" + context + "\n\nQuestion: " + question
}

// BuildJobFitPrompt asks for a structured fit analysis of a job description.
func BuildJobFitPrompt(jobDescription, context string) string {
	return `Analyze how well my professional background matches this job description.

My background:
` + context + `

Job description:
` + jobDescription + `

Cover, in first person:
1. Matching skills and experience
2. Gaps or areas for development
3. Relevant projects or achievements
4. Overall fit score (1-10)
5. How I would stand out for this role`
}
