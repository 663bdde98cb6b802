// Package knowledge answers questions that need no retrieval: clock
// lookups, arithmetic, fixed biographical facts and term definitions.
package knowledge

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

// ShortCircuitThreshold is the confidence at or above which an Answer is
// served without consulting the semantic index.
const ShortCircuitThreshold = 0.9

// Answer sources.
const (
	SourceClock      = "clock"
	SourceCalculator = "calculator"
	SourceFacts      = "profile_facts"
	SourceGlossary   = "glossary"
	SourceWeather    = "weather_placeholder"
)

// Answer is a resolved reply.
type Answer struct {
	Text       string
	Source     string
	Confidence float64
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fact is a fixed reply triggered when every keyword group has at least one
// word present in the question.
type Fact struct {
	Name   string
	Groups [][]string
	Text   string
}

// LocationFact answers "where do you live/are you based" questions.
func LocationFact(location string) Fact {
	return Fact{
		Name:   "location",
		Groups: [][]string{{"where"}, {"live", "based", "located", "living"}},
		Text:   "I'm based in " + location + ".",
	}
}

// Options configures a Resolver. Zero values get defaults.
type Options struct {
	Clock    Clock
	Location *time.Location
	Facts    []Fact
	Glossary map[string]string
}

// Resolver tries its handlers in a fixed order and returns the first match.
type Resolver struct {
	clock    Clock
	loc      *time.Location
	facts    []Fact
	glossary *glossary
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	r := &Resolver{
		clock: opts.Clock,
		loc:   opts.Location,
		facts: opts.Facts,
	}
	if r.clock == nil {
		r.clock = realClock{}
	}
	if r.loc == nil {
		r.loc = time.Local
	}
	terms := opts.Glossary
	if terms == nil {
		terms = DefaultGlossary
	}
	r.glossary = newGlossary(terms)
	return r
}

// Resolve returns an answer and true when some handler recognises the
// question. Callers decide what to do with low-confidence answers.
func (r *Resolver) Resolve(question string) (Answer, bool) {
	q := strings.ToLower(strings.TrimSpace(question))
	if q == "" {
		return Answer{}, false
	}

	handlers := []func(string) (Answer, bool){
		r.resolveTime,
		resolveArithmetic,
		r.resolveFact,
		r.glossary.resolve,
		resolveWeather,
	}
	for _, h := range handlers {
		if a, ok := h(q); ok {
			return a, true
		}
	}
	return Answer{}, false
}

// timeRes only match questions that are about the clock as a whole, so
// "what time zone do you work in" still goes to retrieval.
var timeRes = []*regexp.Regexp{
	regexp.MustCompile(`\bwhat time is it\b`),
	regexp.MustCompile(`\bwhat(?:'s| is) (?:the )?(?:current )?(?:time|date)(?: (?:now|today|right now))?\s*[?.!]?$`),
	regexp.MustCompile(`\b(?:what(?:'s| is) )?today'?s date\s*[?.!]?$`),
	regexp.MustCompile(`\bwhat day is (?:it|today)\b`),
	regexp.MustCompile(`^(?:the )?current (?:time|date)\s*[?.!]?$`),
}

func (r *Resolver) resolveTime(q string) (Answer, bool) {
	if !matchesAny(q, timeRes) {
		return Answer{}, false
	}
	now := r.clock.Now().In(r.loc)
	return Answer{
		Text:       "It's " + now.Format("3:04 PM on Monday, 2 January 2006") + " (" + now.Format("MST") + ").",
		Source:     SourceClock,
		Confidence: 1.0,
	}, true
}

func (r *Resolver) resolveFact(q string) (Answer, bool) {
	words := wordSet(q)
	for _, f := range r.facts {
		if matchesGroups(words, f.Groups) {
			return Answer{Text: f.Text, Source: SourceFacts, Confidence: 1.0}, true
		}
	}
	return Answer{}, false
}

var weatherPhrases = []string{"weather", "forecast", "raining", "temperature outside", "is it sunny", "is it cold", "is it hot"}

func resolveWeather(q string) (Answer, bool) {
	if !containsAny(q, weatherPhrases) {
		return Answer{}, false
	}
	return Answer{
		Text:       "I don't have access to live weather data, so I can't tell you the current conditions.",
		Source:     SourceWeather,
		Confidence: 0.5,
	}, true
}

func matchesGroups(words map[string]bool, groups [][]string) bool {
	if len(groups) == 0 {
		return false
	}
	for _, g := range groups {
		found := false
		for _, w := range g {
			if words[w] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func wordSet(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		out[f] = true
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func matchesAny(s string, res []*regexp.Regexp) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
