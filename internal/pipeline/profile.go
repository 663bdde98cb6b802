package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kalambet/twind/internal/answer"
	"github.com/kalambet/twind/internal/conversation"
)

const (
	jobFitTopK       = 5
	jobFitQueryChars = 200
)

// Section is a fixed slice of the profile served without generation.
type Section string

const (
	SectionSkills     Section = "skills"
	SectionExperience Section = "experience"
	SectionProjects   Section = "projects"
)

type sectionQuery struct {
	query      string
	topK       int
	recordType string
}

var sectionQueries = map[Section]sectionQuery{
	SectionSkills:     {"technical skills programming languages frameworks", 2, "skills"},
	SectionExperience: {"work experience employment history", 4, "experience"},
	SectionProjects:   {"projects portfolio applications built", 4, "project"},
}

// Lookup returns raw profile chunks for a section. For experience, focus
// narrows the query to a company.
func (p *Pipeline) Lookup(ctx context.Context, section Section, focus string) ([]conversation.Source, error) {
	sq, ok := sectionQueries[section]
	if !ok {
		return nil, fmt.Errorf("unknown profile section %q", section)
	}
	query := sq.query
	if focus = strings.TrimSpace(focus); focus != "" && section == SectionExperience {
		query = "work experience " + focus
	}

	matches, err := p.deps.Retriever.RetrieveByType(ctx, query, sq.topK, sq.recordType)
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Source, 0, len(matches))
	for _, m := range matches {
		if m.Content() == "" {
			continue
		}
		out = append(out, conversation.Source{Title: m.Title(), Content: m.Content(), Score: m.Score})
	}
	return out, nil
}

// JobFit is a structured fit analysis of a job description.
type JobFit struct {
	Analysis       string
	Sources        []conversation.Source
	Generated      bool
	ProcessingTime time.Duration
}

// AnalyzeJobFit retrieves the background most relevant to jobDescription
// and asks for a fit analysis. Generation failures yield ApologyAnswer.
func (p *Pipeline) AnalyzeJobFit(ctx context.Context, jobDescription string) (JobFit, error) {
	start := time.Now()
	jd := strings.TrimSpace(jobDescription)

	matches, err := p.deps.Retriever.Retrieve(ctx, "skills experience "+truncate(jd, jobFitQueryChars), jobFitTopK)
	if err != nil {
		return JobFit{}, err
	}
	c := p.deps.Assembler.Assemble(matches)

	fit := JobFit{Sources: make([]conversation.Source, len(c.Used))}
	for i, m := range c.Used {
		fit.Sources[i] = conversation.Source{Title: m.Title(), Content: m.Content(), Score: m.Score}
	}

	text, err := p.deps.Generator.AnalyzeJobFit(ctx, jd, c)
	switch {
	case err != nil:
		p.deps.Metrics.StageFailed("job_fit")
		p.logger.Warn("job fit generation failed", "kind", answer.KindOf(err), "error", err)
		fit.Analysis = answer.ApologyAnswer
	default:
		fit.Analysis = text
		fit.Generated = !c.Empty
	}
	fit.ProcessingTime = time.Since(start)
	return fit, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
