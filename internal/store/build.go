package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// ErrIncompleteRecord means the snapshot lacks data every plan must carry
var ErrIncompleteRecord = errors.New("plan record incomplete")

const orcidBase = "https://orcid.org/"

// BuildPlan turns a relational snapshot into the canonical plan. It fails
// with ErrIncompleteRecord rather than returning a partial document.
func BuildPlan(detail PlanDetail) (*dmp.Plan, error) {
	row := detail.Plan
	if row == nil {
		return nil, fmt.Errorf("%w: missing plan row", ErrIncompleteRecord)
	}
	if len(detail.Members) == 0 {
		return nil, fmt.Errorf("%w: plan has no members to act as contact", ErrIncompleteRecord)
	}

	plan := &dmp.Plan{
		DMPID:       dmp.Identifier{Identifier: row.DMPID, Type: "doi"},
		Title:       row.Title,
		Description: row.Description,
		Language:    row.Language,
		Created:     dmp.FormatTimestamp(row.Created),
		Modified:    dmp.FormatTimestamp(row.Modified),
		Privacy:     privacy(row.Visibility),
		Status:      strings.ToLower(row.Status),
	}
	if row.Registered != nil {
		plan.Registered = dmp.FormatTimestamp(*row.Registered)
	}

	contact := detail.Members[0]
	for _, m := range detail.Members {
		if m.IsPrimaryContact {
			contact = m
			break
		}
	}
	plan.Contact = dmp.Contact{
		Name:        memberName(contact),
		Mbox:        contact.Email,
		ContactID:   memberIdentifier(contact),
		Affiliation: memberAffiliation(contact),
	}
	for _, m := range detail.Members {
		plan.Contributors = append(plan.Contributors, dmp.Contributor{
			Name:          memberName(m),
			Mbox:          m.Email,
			Role:          m.Roles,
			ContributorID: memberIdentifier(m),
			Affiliation:   memberAffiliation(m),
		})
	}

	if p := detail.Project; p != nil {
		project := dmp.Project{
			Title:       p.Title,
			Description: p.Abstract,
			Start:       p.StartDate,
			End:         p.EndDate,
		}
		for _, f := range detail.Fundings {
			funding := dmp.Funding{
				Name:              f.FunderName,
				FunderID:          dmp.Identifier{Identifier: f.FunderURI, Type: identifierType(f.FunderURI)},
				FundingStatus:     strings.ToLower(f.Status),
				ProjectNumber:     f.ProjectNumber,
				OpportunityNumber: f.OpportunityNumber,
			}
			if f.GrantID != "" {
				funding.GrantID = &dmp.Identifier{Identifier: f.GrantID, Type: identifierType(f.GrantID)}
			}
			project.Funding = append(project.Funding, funding)
		}
		plan.Projects = []dmp.Project{project}
	}

	if t := detail.Template; t != nil {
		plan.Narrative = buildNarrative(*t, detail.Sections, detail.Questions, detail.Answers)
	}

	for _, ro := range detail.ResearchOutputs {
		dataset := dmp.Dataset{
			Title:         ro.Title,
			Type:          ro.OutputType,
			Description:   ro.Description,
			PersonalData:  ro.PersonalData,
			SensitiveData: ro.SensitiveData,
			Issued:        ro.ReleaseDate,
		}
		if ro.RepositoryTitle != "" || ro.LicenseRef != "" || ro.DataAccess != "" || ro.ByteSize > 0 {
			dist := dmp.Distribution{Title: ro.Title, ByteSize: ro.ByteSize, DataAccess: ro.DataAccess}
			if ro.RepositoryTitle != "" {
				dist.Host = &dmp.Host{Title: ro.RepositoryTitle, URL: ro.RepositoryURL}
			}
			if ro.LicenseRef != "" {
				dist.License = []dmp.License{{LicenseRef: ro.LicenseRef, StartDate: ro.ReleaseDate}}
			}
			dataset.Distribution = []dmp.Distribution{dist}
		}
		plan.Datasets = append(plan.Datasets, dataset)
	}

	for _, w := range detail.RelatedWorks {
		plan.RelatedIdentifiers = append(plan.RelatedIdentifiers, dmp.RelatedIdentifier{
			Descriptor: w.Descriptor,
			WorkType:   w.WorkType,
			Type:       strings.ToLower(w.IdentifierType),
			Identifier: w.Identifier,
			Citation:   w.Citation,
		})
	}
	return plan, nil
}

func buildNarrative(t TemplateRow, sections []SectionRow, questions []QuestionRow, answers []AnswerRow) *dmp.Narrative {
	answerByQuestion := make(map[int64]AnswerRow, len(answers))
	for _, a := range answers {
		// latest answer row wins
		answerByQuestion[a.QuestionID] = a
	}
	questionsBySection := make(map[int64][]QuestionRow)
	for _, q := range questions {
		questionsBySection[q.SectionID] = append(questionsBySection[q.SectionID], q)
	}

	ordered := append([]SectionRow(nil), sections...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].DisplayOrder < ordered[j].DisplayOrder })

	narrative := &dmp.Narrative{
		TemplateID:          t.ID,
		TemplateTitle:       t.Name,
		TemplateVersion:     t.Version,
		TemplateDescription: t.Description,
		Sections:            make([]dmp.Section, 0, len(ordered)),
	}
	for _, s := range ordered {
		qs := questionsBySection[s.ID]
		sort.SliceStable(qs, func(i, j int) bool { return qs[i].DisplayOrder < qs[j].DisplayOrder })

		section := dmp.Section{
			ID:          s.ID,
			Title:       s.Name,
			Description: s.Introduction,
			Order:       s.DisplayOrder,
			Questions:   make([]dmp.Question, 0, len(qs)),
		}
		for _, q := range qs {
			question := dmp.Question{ID: q.ID, Text: q.Text, Order: q.DisplayOrder}
			if a, ok := answerByQuestion[q.ID]; ok {
				question.Answer = &dmp.Answer{ID: a.ID, JSON: json.RawMessage(a.JSON)}
			}
			section.Questions = append(section.Questions, question)
		}
		narrative.Sections = append(narrative.Sections, section)
	}
	return narrative
}

func privacy(visibility string) string {
	if strings.EqualFold(strings.TrimSpace(visibility), dmp.PrivacyPublic) {
		return dmp.PrivacyPublic
	}
	return dmp.PrivacyPrivate
}

func memberName(m MemberRow) string {
	return strings.TrimSpace(strings.TrimSpace(m.GivenName) + " " + strings.TrimSpace(m.Surname))
}

// memberIdentifier prefers the ORCID, then the email address
func memberIdentifier(m MemberRow) dmp.Identifier {
	if orcid := strings.TrimSpace(m.ORCID); orcid != "" {
		if !strings.HasPrefix(orcid, "http") {
			orcid = orcidBase + orcid
		}
		return dmp.Identifier{Identifier: orcid, Type: "orcid"}
	}
	if m.Email != "" {
		return dmp.Identifier{Identifier: m.Email, Type: "other"}
	}
	return dmp.Identifier{}
}

func memberAffiliation(m MemberRow) dmp.Affiliation {
	return dmp.Affiliation{
		Name:          m.AffiliationName,
		AffiliationID: dmp.Identifier{Identifier: m.AffiliationURI, Type: identifierType(m.AffiliationURI)},
	}
}

func identifierType(id string) string {
	lower := strings.ToLower(id)
	switch {
	case id == "":
		return ""
	case strings.Contains(lower, "ror.org/"):
		return "ror"
	case strings.Contains(lower, "doi.org/"):
		return "doi"
	case strings.Contains(lower, "orcid.org/"):
		return "orcid"
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return "url"
	default:
		return "other"
	}
}
