package export

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/answer"
	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

const (
	notAnswered = "Not answered"

	publicPlanNotice = "The above plan creator(s) have agreed that others may use as much of the text of this plan as they would like in their own plans, and customize it as necessary. You do not need to credit the creator(s) as the source of the language used, but using any of the plan's text does not imply that the creator(s) endorse, or have any relationship to, your project or proposal."

	privatePlanNotice = "This document was generated by DMP Tool (https://dmptool.org). The plan creator(s) have not agreed to share the text of this plan for reuse by others."
)

// RenderHTML walks the plan once and returns a complete HTML document. It
// never fails: absent optional data renders empty.
func RenderHTML(display DisplayOptions, page PageOptions, plan *dmp.Plan) string {
	if plan == nil {
		plan = &dmp.Plan{}
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"")
	b.WriteString(esc(documentLanguage(plan)))
	b.WriteString("\">\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(esc(plan.Title))
	b.WriteString("</title>\n<style>\n")
	b.WriteString(stylesheet(page))
	b.WriteString("</style>\n</head>\n<body>\n")

	if display.IncludeCoverPage {
		writeCoverPage(&b, plan)
	}
	writeNarrative(&b, display, plan)
	if display.IncludeResearchOutputs && len(plan.Datasets) > 0 {
		writeResearchOutputs(&b, plan.Datasets)
	}
	if display.IncludeRelatedWorks && len(plan.RelatedIdentifiers) > 0 {
		writeRelatedWorks(&b, plan.RelatedIdentifiers)
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func esc(s string) string {
	return html.EscapeString(s)
}

func documentLanguage(plan *dmp.Plan) string {
	lang := strings.TrimSpace(plan.Language)
	if lang == "" {
		return "en"
	}
	if tag, err := language.Parse(lang); err == nil {
		return tag.String()
	}
	return "en"
}

func stylesheet(page PageOptions) string {
	family := page.FontFamily
	if !fontFamilyPattern.MatchString(family) {
		family = DefaultFontFamily
	}
	fontSize := page.FontSize
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	lineHeight := page.LineHeight
	if lineHeight <= 0 {
		lineHeight = DefaultLineHeight
	}
	return fmt.Sprintf(`@page { size: letter; margin: %dpx %dpx %dpx %dpx; }
body { font-family: %s; font-size: %dpt; line-height: %d%%; }
h1 { font-size: 1.6em; }
h2 { font-size: 1.3em; border-bottom: 1px solid #999; }
h3 { font-size: 1.1em; }
.cover-page { page-break-after: always; }
.cover-page dt { font-weight: bold; }
.question { margin-bottom: 1em; }
.question-text { font-weight: bold; }
.not-answered, .unrenderable { font-style: italic; color: #555; }
table.answer-table { border-collapse: collapse; }
table.answer-table th, table.answer-table td { border: 1px solid #999; padding: 2px 6px; }
.appendix { page-break-before: always; }
`, page.MarginTop, page.MarginRight, page.MarginBottom, page.MarginLeft, family, fontSize, lineHeight)
}

func writeCoverPage(b *strings.Builder, plan *dmp.Plan) {
	b.WriteString("<div class=\"cover-page\">\n<h1>")
	b.WriteString(esc(plan.Title))
	b.WriteString("</h1>\n<dl>\n")

	writeTerm(b, "Creator", contactDisplay(plan.Contact))
	writeTerm(b, "Affiliation", esc(plan.Contact.Affiliation.Name))
	writeTerm(b, "Funder", esc(strings.Join(funderNames(plan), ", ")))

	start, end := plan.ProjectDates()
	writeTerm(b, "Project start", esc(start))
	writeTerm(b, "Project end", esc(end))

	if n := plan.Narrative; n != nil {
		template := n.TemplateTitle
		if n.TemplateVersion != "" {
			template += " (version " + n.TemplateVersion + ")"
		}
		writeTerm(b, "Template", esc(template))
	}
	if plan.Registered != "" {
		writeTerm(b, "DMP ID", identifierLink(plan.DMPID.Identifier))
		writeTerm(b, "Registered", esc(dmp.FormatDisplayDate(plan.Registered)))
	}
	writeTerm(b, "Last modified", esc(dmp.FormatDisplayDate(plan.Modified)))
	b.WriteString("</dl>\n")

	if plan.Description != "" {
		b.WriteString("<div class=\"plan-description\">")
		b.WriteString(answer.SanitizeHTML(plan.Description))
		b.WriteString("</div>\n")
	}

	b.WriteString("<p class=\"notice\">")
	if plan.IsPublic() {
		b.WriteString(esc(publicPlanNotice))
	} else {
		b.WriteString(esc(privatePlanNotice))
	}
	b.WriteString("</p>\n</div>\n")
}

// writeTerm emits one cover page row; value is already escaped
func writeTerm(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	b.WriteString("<dt>")
	b.WriteString(esc(label))
	b.WriteString("</dt><dd>")
	b.WriteString(value)
	b.WriteString("</dd>\n")
}

// contactDisplay shows an ORCID with a label and link. Other identifier
// types are left off.
func contactDisplay(c dmp.Contact) string {
	name := esc(c.Name)
	if !strings.EqualFold(c.ContactID.Type, "orcid") || c.ContactID.Identifier == "" {
		return name
	}
	orcid := "ORCID: " + identifierLink(orcidURL(c.ContactID.Identifier))
	if name == "" {
		return orcid
	}
	return name + " - " + orcid
}

func orcidURL(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
		return id
	}
	return "https://orcid.org/" + id
}

func identifierLink(id string) string {
	if id == "" {
		return ""
	}
	lower := strings.ToLower(id)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return `<a href="` + esc(id) + `">` + esc(id) + `</a>`
	}
	return esc(id)
}

func funderNames(plan *dmp.Plan) []string {
	seen := map[string]bool{}
	var names []string
	for _, project := range plan.Projects {
		for _, funding := range project.Funding {
			name := strings.TrimSpace(funding.Name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

func writeNarrative(b *strings.Builder, display DisplayOptions, plan *dmp.Plan) {
	b.WriteString("<div class=\"narrative\">\n")
	for _, section := range plan.Sections() {
		b.WriteString("<div class=\"section\">\n")
		if display.IncludeSectionHeadings {
			b.WriteString("<h2>")
			b.WriteString(esc(section.Title))
			b.WriteString("</h2>\n")
			if section.Description != "" {
				b.WriteString("<div class=\"section-description\">")
				b.WriteString(answer.SanitizeHTML(section.Description))
				b.WriteString("</div>\n")
			}
		}
		for _, q := range section.Questions {
			b.WriteString(questionAnswerForDisplay(q.Text, answer.Resolve(q.Answer), display.IncludeQuestionText, display.IncludeUnansweredQuestions))
		}
		b.WriteString("</div>\n")
	}
	b.WriteString("</div>\n")
}

// questionAnswerForDisplay renders one question. An unanswered question is
// dropped entirely unless includeUnanswered is set, in which case the answer
// slot holds a "Not answered" placeholder.
func questionAnswerForDisplay(text string, value answer.Value, includeQuestionText, includeUnanswered bool) string {
	answered := answer.IsAnswered(value)
	if !answered && !includeUnanswered {
		return ""
	}

	var b strings.Builder
	b.WriteString("<div class=\"question\">\n")
	if includeQuestionText {
		b.WriteString("<div class=\"question-text\">")
		b.WriteString(answer.SanitizeHTML(text))
		b.WriteString("</div>\n")
	}
	b.WriteString("<div class=\"answer\">")
	if answered {
		b.WriteString(answer.HTML(value))
	} else {
		b.WriteString("<p class=\"not-answered\">")
		b.WriteString(notAnswered)
		b.WriteString("</p>")
	}
	b.WriteString("</div>\n</div>\n")
	return b.String()
}

func writeResearchOutputs(b *strings.Builder, datasets []dmp.Dataset) {
	b.WriteString("<div class=\"appendix research-outputs\">\n<h2>Planned Research Outputs</h2>\n")
	for _, ds := range datasets {
		b.WriteString("<div class=\"research-output\">\n<h3>")
		if ds.Type != "" {
			b.WriteString(esc(humanize(ds.Type)))
			b.WriteString(": ")
		}
		b.WriteString("&#34;")
		b.WriteString(esc(ds.Title))
		b.WriteString("&#34;</h3>\n")
		if ds.Description != "" {
			b.WriteString(answer.SanitizeHTML(ds.Description))
			b.WriteString("\n")
		}

		b.WriteString("<dl>\n")
		writeTerm(b, "Personal information", esc(ds.PersonalData))
		writeTerm(b, "Sensitive data", esc(ds.SensitiveData))
		writeTerm(b, "Anticipated release date", esc(dmp.FormatDisplayDate(ds.Issued)))
		var repositories, licenses, access []string
		for _, dist := range ds.Distribution {
			if dist.Host != nil && dist.Host.Title != "" {
				repositories = append(repositories, dist.Host.Title)
			}
			for _, l := range dist.License {
				if l.LicenseRef != "" {
					licenses = append(licenses, l.LicenseRef)
				}
			}
			if dist.DataAccess != "" {
				access = append(access, dist.DataAccess)
			}
		}
		writeTerm(b, "Repositories", esc(strings.Join(repositories, ", ")))
		writeTerm(b, "Access level", esc(strings.Join(access, ", ")))
		writeTerm(b, "License", esc(strings.Join(licenses, ", ")))
		b.WriteString("</dl>\n</div>\n")
	}
	b.WriteString("</div>\n")
}

type workGroup struct {
	workType string
	works    []dmp.RelatedIdentifier
}

// groupRelatedWorks groups by work type, keeping types in first-seen order
func groupRelatedWorks(works []dmp.RelatedIdentifier) []workGroup {
	index := map[string]int{}
	var groups []workGroup
	for _, w := range works {
		key := strings.TrimSpace(w.WorkType)
		if key == "" {
			key = "other"
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, workGroup{workType: key})
		}
		groups[i].works = append(groups[i].works, w)
	}
	return groups
}

func writeRelatedWorks(b *strings.Builder, works []dmp.RelatedIdentifier) {
	b.WriteString("<div class=\"appendix related-works\">\n<h2>Related Works</h2>\n")
	for _, group := range groupRelatedWorks(works) {
		b.WriteString("<h3>")
		b.WriteString(esc(workTypeLabel(group.workType, len(group.works))))
		b.WriteString("</h3>\n<ul>\n")
		for _, w := range group.works {
			b.WriteString("<li>")
			if w.Citation != "" {
				b.WriteString(esc(w.Citation))
				b.WriteString(" ")
			}
			b.WriteString(identifierLink(w.Identifier))
			b.WriteString("</li>\n")
		}
		b.WriteString("</ul>\n")
	}
	b.WriteString("</div>\n")
}

// workTypeLabel humanizes a work type and pluralizes it unless the group has
// exactly one item.
func workTypeLabel(workType string, count int) string {
	label := humanize(workType)
	if count == 1 {
		return label
	}
	return pluralize(label)
}

// humanize turns "output_management_plan" into "Output management plan"
func humanize(s string) string {
	words := strings.Fields(strings.ReplaceAll(strings.TrimSpace(s), "_", " "))
	if len(words) == 0 {
		return ""
	}
	// a Caser keeps state, so one per call
	words[0] = cases.Title(language.English).String(words[0])
	for i := 1; i < len(words); i++ {
		words[i] = strings.ToLower(words[i])
	}
	return strings.Join(words, " ")
}

var uncountable = map[string]bool{
	"data":      true,
	"software":  true,
	"metadata":  true,
	"equipment": true,
	"other":     true,
}

func pluralize(label string) string {
	if label == "" {
		return label
	}
	head, last := "", label
	if i := strings.LastIndexByte(label, ' '); i >= 0 {
		head, last = label[:i+1], label[i+1:]
	}
	lower := strings.ToLower(last)
	switch {
	case uncountable[lower]:
		return label
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return head + last + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return head + last[:len(last)-1] + "ies"
	default:
		return head + last + "s"
	}
}
