package store

import "time"

// PlanMetadata is the cheap freshness lookup for one plan
type PlanMetadata struct {
	InternalID int64
	DMPID      string
	Modified   time.Time
	Visibility string
}

type PlanRow struct {
	ID          int64
	DMPID       string
	Title       string
	Description string
	Language    string
	Visibility  string
	Status      string
	Registered  *time.Time
	Created     time.Time
	Modified    time.Time
	ProjectID   *int64
	TemplateID  *int64
}

type ProjectRow struct {
	ID        int64
	Title     string
	Abstract  string
	StartDate string
	EndDate   string
}

type FundingRow struct {
	ID                int64
	FunderName        string
	FunderURI         string
	Status            string
	GrantID           string
	ProjectNumber     string
	OpportunityNumber string
}

// MemberRow is a plan member joined with its project member and affiliation
type MemberRow struct {
	ID               int64
	GivenName        string
	Surname          string
	Email            string
	ORCID            string
	AffiliationURI   string
	AffiliationName  string
	Roles            []string
	IsPrimaryContact bool
}

type TemplateRow struct {
	ID          int64
	Name        string
	Description string
	Version     string
}

type SectionRow struct {
	ID           int64
	Name         string
	Introduction string
	DisplayOrder int
}

type QuestionRow struct {
	ID           int64
	SectionID    int64
	Text         string
	DisplayOrder int
}

type AnswerRow struct {
	ID         int64
	QuestionID int64
	JSON       []byte
}

type ResearchOutputRow struct {
	ID              int64
	Title           string
	OutputType      string
	Description     string
	PersonalData    string
	SensitiveData   string
	ReleaseDate     string
	RepositoryTitle string
	RepositoryURL   string
	LicenseRef      string
	DataAccess      string
	ByteSize        int64
}

type RelatedWorkRow struct {
	ID             int64
	WorkType       string
	Descriptor     string
	IdentifierType string
	Identifier     string
	Citation       string
}

// PlanDetail is one consistent relational snapshot of a plan. Slices are
// in display order, then id.
type PlanDetail struct {
	Plan            *PlanRow
	Project         *ProjectRow
	Fundings        []FundingRow
	Members         []MemberRow
	Template        *TemplateRow
	Sections        []SectionRow
	Questions       []QuestionRow
	Answers         []AnswerRow
	ResearchOutputs []ResearchOutputRow
	RelatedWorks    []RelatedWorkRow
}
