package profile

// Twin is the structured profile document the corpus is built from.
type Twin struct {
	Personal                Personal                 `json:"personal"`
	SalaryLocation          *SalaryLocation          `json:"salary_location,omitempty"`
	Experience              []Experience             `json:"experience"`
	Projects                []Project                `json:"projects_portfolio"`
	Skills                  Skills                   `json:"skills"`
	Education               *Education               `json:"education,omitempty"`
	CareerGoals             *CareerGoals             `json:"career_goals,omitempty"`
	ProfessionalDevelopment *ProfessionalDevelopment `json:"professional_development,omitempty"`
	TechnologyAdaptation    *TechnologyAdaptation    `json:"technology_adaptation,omitempty"`
	ContentChunks           []ContentChunk           `json:"content_chunks"`
}

type Personal struct {
	Name          string   `json:"name"`
	Title         string   `json:"title"`
	Location      string   `json:"location"`
	Summary       string   `json:"summary"`
	ElevatorPitch string   `json:"elevator_pitch"`
	Contact       *Contact `json:"contact,omitempty"`
}

type Contact struct {
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	LinkedIn  string `json:"linkedin"`
	GitHub    string `json:"github"`
	Portfolio string `json:"portfolio"`
}

type SalaryLocation struct {
	CurrentSalary       string             `json:"current_salary"`
	SalaryExpectations  SalaryExpectations `json:"salary_expectations"`
	LocationPreferences []string           `json:"location_preferences"`
	RelocationWilling   any                `json:"relocation_willing"`
	RemoteExperience    string             `json:"remote_experience"`
	WorkAuthorization   string             `json:"work_authorization"`
}

type SalaryExpectations struct {
	MidLevelRoles string `json:"mid_level_roles"`
	SeniorRoles   string `json:"senior_roles"`
}

type Experience struct {
	Company             string        `json:"company"`
	Title               string        `json:"title"`
	Duration            string        `json:"duration"`
	CompanyContext      string        `json:"company_context"`
	Achievements        []Achievement `json:"achievements_star"`
	TechnicalSkillsUsed []string      `json:"technical_skills_used"`
}

// Achievement is a STAR-format accomplishment.
type Achievement struct {
	Situation string `json:"situation"`
	Task      string `json:"task"`
	Action    string `json:"action"`
	Result    string `json:"result"`
}

type Project struct {
	Name         string   `json:"name"`
	Duration     string   `json:"duration"`
	Description  string   `json:"description"`
	Technologies []string `json:"technologies"`
	Impact       string   `json:"impact"`
}

type Skills struct {
	Frontend    *FrontendSkills `json:"frontend,omitempty"`
	Backend     *BackendSkills  `json:"backend,omitempty"`
	Databases   *DatabaseSkills `json:"databases,omitempty"`
	CloudDevOps *CloudSkills    `json:"cloud_devops,omitempty"`
	SoftSkills  []string        `json:"soft_skills"`
}

type FrontendSkills struct {
	PrimaryExpertise []string `json:"primary_expertise"`
	UIFrameworks     []string `json:"ui_frameworks"`
	StateManagement  []string `json:"state_management"`
}

type BackendSkills struct {
	Primary []string `json:"primary"`
	APIs    []string `json:"apis"`
}

type DatabaseSkills struct {
	ProductionExperience []string `json:"production_experience"`
	FamiliarWith         []string `json:"familiar_with"`
	ORMTools             []string `json:"orm_tools"`
}

type CloudSkills struct {
	AWS       []string `json:"aws"`
	Platforms []string `json:"platforms"`
	CICD      []string `json:"cicd"`
}

type Education struct {
	Degree         string `json:"degree"`
	University     string `json:"university"`
	GraduationYear any    `json:"graduation_year"`
	Location       string `json:"location"`
}

type CareerGoals struct {
	CurrentLevel    string   `json:"current_level"`
	TargetSeniority string   `json:"target_seniority"`
	ShortTerm       string   `json:"short_term"`
	LongTerm        string   `json:"long_term"`
	LearningFocus   []string `json:"learning_focus"`
}

type ProfessionalDevelopment struct {
	Certifications []Certification `json:"certifications"`
}

type Certification struct {
	Name   string   `json:"name"`
	Issuer string   `json:"issuer"`
	Year   any      `json:"year"`
	Skills []string `json:"skills"`
}

type TechnologyAdaptation struct {
	LearningTrackRecord  LearningTrackRecord `json:"learning_track_record"`
	WillingnessStatement string              `json:"willingness_statement"`
}

type LearningTrackRecord struct {
	FastAdoptions []string `json:"fast_adoptions"`
}

// ContentChunk is a pre-written chunk passed through unchanged.
type ContentChunk struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
	Content  string `json:"content"`
	Metadata struct {
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
	} `json:"metadata"`
}
