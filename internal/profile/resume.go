package profile

import (
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// maxResumeChunkChars bounds résumé chunks to roughly 300 tokens.
const maxResumeChunkChars = 1200

// ReadResumePDF extracts plain text from a PDF file.
func ReadResumePDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf %s: %w", path, err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(text)
	if err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return string(b), nil
}

// ResumeChunks splits résumé text on blank lines and packs paragraphs into
// chunks of at most maxResumeChunkChars. Oversized paragraphs are split on
// word boundaries.
func ResumeChunks(text string) []Chunk {
	var paras []string
	for _, p := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p == "" {
			continue
		}
		paras = append(paras, splitWords(p, maxResumeChunkChars)...)
	}

	var chunks []Chunk
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		n := len(chunks)
		chunks = append(chunks, Chunk{
			ID:       fmt.Sprintf("resume-%d", n),
			Title:    fmt.Sprintf("Résumé (part %d)", n+1),
			Type:     "resume",
			Category: "resume",
			Content:  cur.String(),
			Tags:     []string{"resume"},
		})
		cur.Reset()
	}
	for _, p := range paras {
		if cur.Len() > 0 && cur.Len()+1+len(p) > maxResumeChunkChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}

func splitWords(s string, limit int) []string {
	if len(s) <= limit {
		return []string{s}
	}
	var out []string
	var cur strings.Builder
	for _, w := range strings.Fields(s) {
		if cur.Len() > 0 && cur.Len()+1+len(w) > limit {
			out = append(out, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}
