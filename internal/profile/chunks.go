package profile

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/twind/internal/retrieval"
)

// Chunk is one retrievable piece of the profile corpus.
type Chunk struct {
	ID       string
	Title    string
	Type     string
	Category string
	Content  string
	Tags     []string
}

// Record converts c to an index record. The embedded text is
// "<title>: <content>".
func (c Chunk) Record() retrieval.Record {
	return retrieval.NewRecord(c.ID, c.Title+": "+c.Content, retrieval.ChunkMetadata{
		Title:    c.Title,
		Type:     c.Type,
		Content:  c.Content,
		Category: c.Category,
		Tags:     c.Tags,
	})
}

func join(items []string) string { return strings.Join(items, ", ") }

func str(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
	}
	return fmt.Sprint(v)
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

// BuildChunks derives the corpus from a Twin document. Pass-through content
// chunks with an unknown type are skipped.
func BuildChunks(t Twin) []Chunk {
	var out []Chunk
	p := t.Personal

	if p.Name != "" || p.Summary != "" {
		out = append(out, Chunk{
			ID:       "personal-info",
			Title:    "Personal Information - " + firstNonEmpty(p.Name, "Profile"),
			Type:     "personal",
			Category: "identity",
			Content:  fmt.Sprintf("My name is %s. I am a %s based in %s. %s", p.Name, p.Title, p.Location, p.Summary),
			Tags:     []string{"personal", "identity", "name", strings.ToLower(p.Name)},
		})
	}

	if c := p.Contact; c != nil {
		out = append(out, Chunk{
			ID:       "contact-info",
			Title:    "Contact Information",
			Type:     "contact",
			Category: "contact",
			Content: fmt.Sprintf("Email: %s. Phone: %s. LinkedIn: %s. GitHub: %s. Portfolio: %s",
				c.Email, c.Phone, c.LinkedIn, c.GitHub, c.Portfolio),
			Tags: []string{"contact", "email", "phone", "linkedin", "github"},
		})
	}

	if s := t.SalaryLocation; s != nil {
		out = append(out, Chunk{
			ID:       "salary-location",
			Title:    "Salary and Location Preferences",
			Type:     "compensation",
			Category: "compensation",
			Content: fmt.Sprintf("Current Salary: %s. Mid-Level Expectations: %s. Senior Expectations: %s. Locations: %s. Relocation: %s. Remote Experience: %s. Work Authorization: %s.",
				s.CurrentSalary, s.SalaryExpectations.MidLevelRoles, s.SalaryExpectations.SeniorRoles,
				join(s.LocationPreferences), str(s.RelocationWilling), s.RemoteExperience, s.WorkAuthorization),
			Tags: []string{"salary", "location", "remote", "relocation"},
		})
	}

	for i, e := range t.Experience {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Company: %s. Title: %s. Duration: %s. Context: %s. ", e.Company, e.Title, e.Duration, e.CompanyContext)
		for j, a := range e.Achievements {
			fmt.Fprintf(&sb, "Achievement %d - Situation: %s. Task: %s. Action: %s. Result: %s. ", j+1, a.Situation, a.Task, a.Action, a.Result)
		}
		if len(e.TechnicalSkillsUsed) > 0 {
			fmt.Fprintf(&sb, "Skills: %s.", join(e.TechnicalSkillsUsed))
		}
		out = append(out, Chunk{
			ID:       fmt.Sprintf("experience-%d", i),
			Title:    e.Title + " at " + e.Company,
			Type:     "experience",
			Category: "work_experience",
			Content:  strings.TrimSpace(sb.String()),
			Tags:     []string{"experience", strings.ToLower(e.Company), strings.ToLower(e.Title)},
		})
	}

	for i, pr := range t.Projects {
		out = append(out, Chunk{
			ID:       fmt.Sprintf("project-%d", i),
			Title:    firstNonEmpty(pr.Name, "Project"),
			Type:     "project",
			Category: "projects",
			Content: fmt.Sprintf("Project: %s. Duration: %s. Description: %s. Technologies: %s. Impact: %s.",
				pr.Name, pr.Duration, pr.Description, join(pr.Technologies), pr.Impact),
			Tags: append([]string{"project"}, pr.Technologies...),
		})
	}

	out = append(out, skillChunks(t.Skills)...)

	if e := t.Education; e != nil {
		out = append(out, Chunk{
			ID:       "education",
			Title:    "Education",
			Type:     "education",
			Category: "education",
			Content: fmt.Sprintf("Degree: %s. University: %s. Graduation: %s. Location: %s.",
				e.Degree, e.University, str(e.GraduationYear), e.Location),
			Tags: []string{"education", "university", "degree"},
		})
	}

	if g := t.CareerGoals; g != nil {
		out = append(out, Chunk{
			ID:       "career-goals",
			Title:    "Career Goals",
			Type:     "career",
			Category: "career_goals",
			Content: fmt.Sprintf("Current Level: %s. Target: %s. Short Term: %s. Long Term: %s. Learning Focus: %s.",
				g.CurrentLevel, g.TargetSeniority, g.ShortTerm, g.LongTerm, join(g.LearningFocus)),
			Tags: []string{"career", "goals", "learning"},
		})
	}

	if pd := t.ProfessionalDevelopment; pd != nil {
		for _, c := range pd.Certifications {
			out = append(out, Chunk{
				ID:       "cert-" + slug(c.Name),
				Title:    "Certification: " + c.Name,
				Type:     "certification",
				Category: "professional_development",
				Content: fmt.Sprintf("Certification: %s. Issuer: %s. Year: %s. Skills: %s.",
					c.Name, c.Issuer, str(c.Year), join(c.Skills)),
				Tags: []string{"certification", strings.ToLower(c.Issuer)},
			})
		}
	}

	if ta := t.TechnologyAdaptation; ta != nil && len(ta.LearningTrackRecord.FastAdoptions) > 0 {
		out = append(out, Chunk{
			ID:       "tech-adaptation",
			Title:    "Technology Adaptation",
			Type:     "learning",
			Category: "learning_agility",
			Content: fmt.Sprintf("Fast Technology Adoptions: %s. Willingness: %s.",
				join(ta.LearningTrackRecord.FastAdoptions), ta.WillingnessStatement),
			Tags: []string{"learning", "adaptation", "fast learner"},
		})
	}

	for _, cc := range t.ContentChunks {
		if cc.ID == "" || !retrieval.ChunkTypes[cc.Type] {
			slog.Warn("skipping content chunk", "id", cc.ID, "type", cc.Type)
			continue
		}
		out = append(out, Chunk{
			ID:       cc.ID,
			Title:    cc.Title,
			Type:     cc.Type,
			Category: cc.Metadata.Category,
			Content:  cc.Content,
			Tags:     cc.Metadata.Tags,
		})
	}

	return out
}

func skillChunks(s Skills) []Chunk {
	var out []Chunk
	if f := s.Frontend; f != nil {
		out = append(out, Chunk{
			ID: "skills-frontend", Title: "Frontend Skills", Type: "skills", Category: "technical_skills",
			Content: fmt.Sprintf("Primary Frontend Expertise: %s. UI Frameworks: %s. State Management: %s.",
				join(f.PrimaryExpertise), join(f.UIFrameworks), join(f.StateManagement)),
			Tags: []string{"frontend", "react", "nextjs", "typescript"},
		})
	}
	if b := s.Backend; b != nil {
		out = append(out, Chunk{
			ID: "skills-backend", Title: "Backend Skills", Type: "skills", Category: "technical_skills",
			Content: fmt.Sprintf("Backend Skills: %s. APIs: %s.", join(b.Primary), join(b.APIs)),
			Tags:    []string{"backend", "nodejs", "python", "api"},
		})
	}
	if d := s.Databases; d != nil {
		out = append(out, Chunk{
			ID: "skills-databases", Title: "Database Skills", Type: "skills", Category: "technical_skills",
			Content: fmt.Sprintf("Database Experience: %s. Familiar With: %s. ORM Tools: %s.",
				join(d.ProductionExperience), join(d.FamiliarWith), join(d.ORMTools)),
			Tags: []string{"database", "postgresql", "mongodb", "sql"},
		})
	}
	if c := s.CloudDevOps; c != nil {
		out = append(out, Chunk{
			ID: "skills-cloud-devops", Title: "Cloud and DevOps Skills", Type: "skills", Category: "technical_skills",
			Content: fmt.Sprintf("AWS Services: %s. Platforms: %s. CI/CD: %s.", join(c.AWS), join(c.Platforms), join(c.CICD)),
			Tags:    []string{"cloud", "aws", "devops", "cicd"},
		})
	}
	if len(s.SoftSkills) > 0 {
		out = append(out, Chunk{
			ID: "skills-soft", Title: "Soft Skills", Type: "skills", Category: "soft_skills",
			Content: "Soft Skills: " + join(s.SoftSkills),
			Tags:    []string{"soft skills", "agile", "collaboration", "leadership"},
		})
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
