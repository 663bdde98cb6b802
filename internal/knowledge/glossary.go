package knowledge

import (
	"regexp"
	"sort"
	"strings"
)

// DefaultGlossary holds short definitions for terms visitors commonly ask
// about when talking to the twin.
var DefaultGlossary = map[string]string{
	"rag":                            "RAG (retrieval-augmented generation) is a technique where a language model answers using documents retrieved from a search index instead of relying only on what it memorised during training.",
	"retrieval-augmented generation": "Retrieval-augmented generation is a technique where a language model answers using documents retrieved from a search index instead of relying only on what it memorised during training.",
	"mcp":                            "MCP (Model Context Protocol) is an open protocol that lets AI assistants call external tools and read resources through a standard interface.",
	"vector database":                "A vector database stores embeddings and finds the entries closest to a query embedding, which makes semantic search fast.",
	"embedding":                      "An embedding is a list of numbers that represents the meaning of a piece of text, so that similar texts end up close together.",
	"llm":                            "An LLM (large language model) is a neural network trained on large amounts of text to understand and generate language.",
	"digital twin":                   "A digital twin is a software representation of a real person or system. This one answers questions about my professional background.",
	"full-stack developer":           "A full-stack developer builds both the user-facing frontend and the server-side backend of an application.",
}

type glossaryEntry struct {
	re         *regexp.Regexp
	definition string
}

type glossary struct {
	entries []glossaryEntry
}

// newGlossary compiles one matcher per term, longest terms first so
// "retrieval-augmented generation" wins over shorter overlapping terms. A
// term only matches when it ends the question: "what is the MCP server you
// built" is about the profile, not the protocol.
func newGlossary(terms map[string]string) *glossary {
	defs := make(map[string]string, len(terms))
	keys := make([]string, 0, len(terms))
	for k, v := range terms {
		k = strings.ToLower(k)
		defs[k] = v
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	g := &glossary{}
	for _, k := range keys {
		re := regexp.MustCompile(`(?:what is|what's|what are|define|meaning of)\s+(?:an?\s+|the\s+)?` +
			regexp.QuoteMeta(k) + `s?(?:\s+(?:for me|please))?\s*[?.!]?$`)
		g.entries = append(g.entries, glossaryEntry{re: re, definition: defs[k]})
	}
	return g
}

func (g *glossary) resolve(q string) (Answer, bool) {
	for _, e := range g.entries {
		if e.re.MatchString(q) {
			return Answer{Text: e.definition, Source: SourceGlossary, Confidence: 0.95}, true
		}
	}
	return Answer{}, false
}
