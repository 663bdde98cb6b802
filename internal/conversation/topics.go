package conversation

import (
	"regexp"
	"sort"
	"strings"
)

// TopicGeneral is assigned when no category matches.
const TopicGeneral = "general"

// TopicClassifier assigns one or more topic categories to a question.
type TopicClassifier interface {
	Classify(question string) []string
}

// KeywordClassifier matches whole words against per-category keyword lists.
type KeywordClassifier struct {
	categories []string
	keywords   map[string][]string
}

// DefaultTopicKeywords is the keyword table used by NewKeywordClassifier.
var DefaultTopicKeywords = map[string][]string{
	"technical_skills": {"skill", "skills", "technology", "technologies", "language", "languages", "framework", "frameworks", "stack", "programming", "tools", "database", "databases", "cloud"},
	"projects":         {"project", "projects", "built", "build", "portfolio", "app", "application", "applications"},
	"experience":       {"experience", "work", "worked", "job", "jobs", "company", "companies", "role", "roles", "career", "employer"},
	"education":        {"education", "degree", "university", "college", "study", "studied", "school", "certification", "certifications", "course"},
	"personal":         {"name", "who", "hobby", "hobbies", "live", "from", "yourself", "contact", "email", "salary"},
}

var wordRe = regexp.MustCompile(`[a-z0-9]+`)

// NewKeywordClassifier builds a classifier from keywords. A nil map selects
// DefaultTopicKeywords.
func NewKeywordClassifier(keywords map[string][]string) *KeywordClassifier {
	if keywords == nil {
		keywords = DefaultTopicKeywords
	}
	cats := make([]string, 0, len(keywords))
	for c := range keywords {
		cats = append(cats, c)
	}
	sort.Strings(cats)
	return &KeywordClassifier{categories: cats, keywords: keywords}
}

// Classify returns matching categories in sorted order, or TopicGeneral.
func (k *KeywordClassifier) Classify(question string) []string {
	words := make(map[string]bool)
	for _, w := range wordRe.FindAllString(strings.ToLower(question), -1) {
		words[w] = true
	}

	var out []string
	for _, cat := range k.categories {
		for _, kw := range k.keywords[cat] {
			if words[kw] {
				out = append(out, cat)
				break
			}
		}
	}
	if len(out) == 0 {
		return []string{TopicGeneral}
	}
	return out
}
