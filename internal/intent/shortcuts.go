package intent

import "regexp"

// Shortcut maps questions matching Pattern to a fixed retrieval query.
type Shortcut struct {
	Name    string
	Pattern *regexp.Regexp
	Query   string
}

// DefaultShortcuts is checked in order; the first match wins.
var DefaultShortcuts = []Shortcut{
	{
		Name:    "identity",
		Pattern: regexp.MustCompile(`(?i)\b(who are you|what('s| is) your name|introduce yourself|tell me about yourself)\b`),
		Query:   "personal information name professional title summary elevator pitch",
	},
	{
		Name:    "contact",
		Pattern: regexp.MustCompile(`(?i)\b(contact|e-?mail|phone number|linkedin|reach you|get in touch)\b`),
		Query:   "contact information email phone linkedin github portfolio",
	},
	{
		Name:    "compensation",
		Pattern: regexp.MustCompile(`(?i)\b(salary|compensation|pay expectations|hourly rate|day rate|relocat\w*|work rights|visa|open to remote)\b`),
		Query:   "salary expectations location preferences relocation remote work authorization",
	},
	{
		Name:    "location",
		Pattern: regexp.MustCompile(`(?i)\b(where (are|do) you (from|live|based)|your location|which city)\b`),
		Query:   "personal information location based in city country",
	},
	{
		Name:    "skills",
		Pattern: regexp.MustCompile(`(?i)\b(what are your (technical )?skills|your skill ?set|your tech stack|what technologies do you (use|know)|what (programming )?languages do you)\b`),
		Query:   "technical skills programming languages frameworks databases cloud devops tools",
	},
	{
		Name:    "experience",
		Pattern: regexp.MustCompile(`(?i)\b(work experience|work history|where have you worked|your (previous |past )?(jobs|roles|employers)|employment history)\b`),
		Query:   "work experience company title duration achievements responsibilities results",
	},
	{
		Name:    "projects",
		Pattern: regexp.MustCompile(`(?i)\b(your projects|what (have you|did you) (build|built)|portfolio|side projects)\b`),
		Query:   "projects portfolio description technologies impact built applications",
	},
	{
		Name:    "education",
		Pattern: regexp.MustCompile(`(?i)\b(education|degree|which university|where did you study|certifications?)\b`),
		Query:   "education degree university graduation certifications",
	},
}

func matchShortcut(table []Shortcut, question string) (string, bool) {
	for _, s := range table {
		if s.Pattern.MatchString(question) {
			return s.Query, true
		}
	}
	return "", false
}
