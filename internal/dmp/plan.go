// Package dmp holds the canonical data management plan document that every
// renderer reads and the denormalized cache stores.
package dmp

import (
	"encoding/json"
	"time"
)

// Privacy values carried on Plan.Privacy
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

// Identifier is a typed persistent identifier (DOI, ORCID, ROR, URL, ...)
type Identifier struct {
	Identifier string `json:"identifier"`
	Type       string `json:"type"`
}

// Affiliation is an organization reference. AffiliationID is always
// serialized, even when empty, because permission checks read it.
type Affiliation struct {
	Name          string     `json:"name"`
	AffiliationID Identifier `json:"affiliation_id"`
}

// Contact is the plan's primary contact person
type Contact struct {
	Name        string      `json:"name"`
	Mbox        string      `json:"mbox,omitempty"`
	ContactID   Identifier  `json:"contact_id"`
	Affiliation Affiliation `json:"dmproadmap_affiliation"`
}

// Contributor is a person credited on the plan
type Contributor struct {
	Name          string      `json:"name"`
	Mbox          string      `json:"mbox,omitempty"`
	Role          []string    `json:"role,omitempty"`
	ContributorID Identifier  `json:"contributor_id"`
	Affiliation   Affiliation `json:"dmproadmap_affiliation"`
}

type Funding struct {
	Name              string      `json:"name"`
	FunderID          Identifier  `json:"funder_id"`
	FundingStatus     string      `json:"funding_status,omitempty"`
	GrantID           *Identifier `json:"grant_id,omitempty"`
	ProjectNumber     string      `json:"dmproadmap_project_number,omitempty"`
	OpportunityNumber string      `json:"dmproadmap_opportunity_number,omitempty"`
}

type Project struct {
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       string    `json:"start,omitempty"`
	End         string    `json:"end,omitempty"`
	Funding     []Funding `json:"funding,omitempty"`
}

type Host struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

type License struct {
	LicenseRef string `json:"license_ref"`
	StartDate  string `json:"start_date,omitempty"`
}

type Distribution struct {
	Title      string    `json:"title"`
	ByteSize   int64     `json:"byte_size,omitempty"`
	DataAccess string    `json:"data_access,omitempty"`
	Host       *Host     `json:"host,omitempty"`
	License    []License `json:"license,omitempty"`
}

// Dataset is a research output the plan describes
type Dataset struct {
	Title         string         `json:"title"`
	Type          string         `json:"type,omitempty"`
	Description   string         `json:"description,omitempty"`
	PersonalData  string         `json:"personal_data,omitempty"`
	SensitiveData string         `json:"sensitive_data,omitempty"`
	Issued        string         `json:"issued,omitempty"`
	Distribution  []Distribution `json:"distribution,omitempty"`
}

// RelatedIdentifier is a work related to the plan (paper, dataset, software, ...)
type RelatedIdentifier struct {
	Descriptor string `json:"descriptor"`
	WorkType   string `json:"work_type"`
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
	Citation   string `json:"citation,omitempty"`
}

// Answer is a question's polymorphic answer payload. JSON holds the raw
// `{"type": ..., "answer": ...}` object; interpretation is left to the
// answer package so a malformed payload never breaks decoding of the plan.
type Answer struct {
	ID   int64           `json:"answer_id,omitempty"`
	JSON json.RawMessage `json:"json"`
}

// Question is one narrative question. A nil Answer means unanswered.
type Question struct {
	ID     int64   `json:"question_id"`
	Text   string  `json:"question_text"`
	Order  int     `json:"question_order"`
	Answer *Answer `json:"answer,omitempty"`
}

type Section struct {
	ID          int64      `json:"section_id"`
	Title       string     `json:"section_title"`
	Description string     `json:"section_description,omitempty"`
	Order       int        `json:"section_order"`
	Questions   []Question `json:"question"`
}

// Narrative is the template instance; Sections are in display order.
type Narrative struct {
	TemplateID          int64     `json:"template_id"`
	TemplateTitle       string    `json:"template_title"`
	TemplateVersion     string    `json:"template_version,omitempty"`
	TemplateDescription string    `json:"template_description,omitempty"`
	Sections            []Section `json:"section"`
}

// Plan is the canonical data management plan document
type Plan struct {
	DMPID              Identifier          `json:"dmp_id"`
	Title              string              `json:"title"`
	Description        string              `json:"description,omitempty"`
	Language           string              `json:"language,omitempty"`
	Created            string              `json:"created"`
	Modified           string              `json:"modified"`
	Registered         string              `json:"registered,omitempty"`
	Privacy            string              `json:"privacy"`
	Status             string              `json:"status,omitempty"`
	Contact            Contact             `json:"contact"`
	Contributors       []Contributor       `json:"contributor,omitempty"`
	Projects           []Project           `json:"project,omitempty"`
	Datasets           []Dataset           `json:"dataset,omitempty"`
	Narrative          *Narrative          `json:"narrative,omitempty"`
	RelatedIdentifiers []RelatedIdentifier `json:"dmproadmap_related_identifiers,omitempty"`
}

// TimestampLayout is the single representation used for created/modified
// so the cache and the relational store compare equal as strings.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimestampLayout)
}

// IsPublic reports whether the plan is visible to anonymous callers
func (p *Plan) IsPublic() bool {
	return p != nil && p.Privacy == PrivacyPublic
}

// AffiliationIDs returns the contact's and every contributor's affiliation
// identifier, skipping empty ones.
func (p *Plan) AffiliationIDs() []string {
	if p == nil {
		return nil
	}
	ids := make([]string, 0, len(p.Contributors)+1)
	if id := p.Contact.Affiliation.AffiliationID.Identifier; id != "" {
		ids = append(ids, id)
	}
	for _, c := range p.Contributors {
		if id := c.Affiliation.AffiliationID.Identifier; id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Sections returns the narrative sections, or nil when there is no narrative
func (p *Plan) Sections() []Section {
	if p == nil || p.Narrative == nil {
		return nil
	}
	return p.Narrative.Sections
}
