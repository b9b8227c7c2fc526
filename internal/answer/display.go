package answer

import (
	"html"
	"strings"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// IsAnswered reports whether a value should count as a response. A nil value
// (absent answer) is never answered.
func IsAnswered(v Value) bool {
	switch a := v.(type) {
	case nil:
		return false
	case Text:
		return hasText(a.Text)
	case TextArea:
		return hasText(a.HTML)
	case Date:
		return hasText(a.Date)
	case URL:
		return hasText(a.URL)
	case Email:
		return hasText(a.Address)
	case DateRange:
		return hasText(a.Start) || hasText(a.End)
	case Number:
		return a.Value != nil
	case NumberRange:
		return a.Start != nil || a.End != nil
	case Currency:
		return a.Amount != nil
	case Boolean:
		return true
	case CheckBoxes:
		return len(a.Selected) > 0
	case MultiSelect:
		return len(a.Selected) > 0
	case Affiliation:
		return hasText(a.ID) || hasText(a.Name)
	case Table:
		for _, row := range a.Rows {
			for _, cell := range row {
				if IsAnswered(cell) {
					return true
				}
			}
		}
		return false
	case Invalid:
		return true
	default:
		return false
	}
}

// HTML renders a value as an HTML fragment
func HTML(v Value) string {
	switch a := v.(type) {
	case nil:
		return ""
	case Text:
		return html.EscapeString(strings.TrimSpace(a.Text))
	case TextArea:
		return sanitizeRichText(a.HTML)
	case Date:
		return html.EscapeString(dmp.FormatDisplayDate(a.Date))
	case DateRange:
		return html.EscapeString(formatDateRange(a))
	case Number:
		return html.EscapeString(formatOptionalNumber(a.Value))
	case NumberRange:
		return html.EscapeString(formatNumberRange(a))
	case Currency:
		return html.EscapeString(formatCurrency(a))
	case Boolean:
		return yesNo(a.Value)
	case URL:
		return link(strings.TrimSpace(a.URL), strings.TrimSpace(a.URL))
	case Email:
		address := strings.TrimSpace(a.Address)
		if address == "" {
			return ""
		}
		return `<a href="mailto:` + html.EscapeString(address) + `">` + html.EscapeString(address) + `</a>`
	case CheckBoxes:
		return htmlList(a.Selected)
	case MultiSelect:
		return htmlList(a.Selected)
	case Affiliation:
		name := strings.TrimSpace(a.Name)
		if name == "" {
			name = strings.TrimSpace(a.ID)
		}
		return link(strings.TrimSpace(a.ID), name)
	case Table:
		return htmlTable(a)
	case Invalid:
		return `<span class="unrenderable">` + UnableToRender + `</span>`
	default:
		return ""
	}
}

// Scalar renders a value as a single plain string for tabular output.
// Tables are kept whole as their compact JSON payload.
func Scalar(v Value) string {
	switch a := v.(type) {
	case nil:
		return ""
	case Text:
		return strings.TrimSpace(a.Text)
	case TextArea:
		return plainText(a.HTML)
	case Date:
		return dmp.FormatDisplayDate(a.Date)
	case DateRange:
		return formatDateRange(a)
	case Number:
		return formatOptionalNumber(a.Value)
	case NumberRange:
		return formatNumberRange(a)
	case Currency:
		return formatCurrency(a)
	case Boolean:
		return yesNo(a.Value)
	case URL:
		return strings.TrimSpace(a.URL)
	case Email:
		return strings.TrimSpace(a.Address)
	case CheckBoxes:
		return strings.Join(a.Selected, "; ")
	case MultiSelect:
		return strings.Join(a.Selected, "; ")
	case Affiliation:
		if name := strings.TrimSpace(a.Name); name != "" {
			return name
		}
		return strings.TrimSpace(a.ID)
	case Table:
		return string(a.Raw)
	case Invalid:
		return UnableToRender
	default:
		return ""
	}
}

func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatDateRange(r DateRange) string {
	start := dmp.FormatDisplayDate(r.Start)
	end := dmp.FormatDisplayDate(r.End)
	switch {
	case start != "" && end != "":
		return start + " to " + end
	case start != "":
		return "From " + start
	case end != "":
		return "Until " + end
	default:
		return ""
	}
}

func formatNumberRange(r NumberRange) string {
	start := formatOptionalNumber(r.Start)
	end := formatOptionalNumber(r.End)
	switch {
	case start != "" && end != "":
		return start + " to " + end
	case start != "":
		return "From " + start
	case end != "":
		return "Up to " + end
	default:
		return ""
	}
}

func link(href, label string) string {
	if label == "" {
		return ""
	}
	lower := strings.ToLower(href)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return html.EscapeString(label)
	}
	return `<a href="` + html.EscapeString(href) + `">` + html.EscapeString(label) + `</a>`
}

func htmlList(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<ul>")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(item))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return b.String()
}

func htmlTable(t Table) string {
	var b strings.Builder
	b.WriteString(`<table class="answer-table">`)
	if len(t.Headings) > 0 {
		b.WriteString("<thead><tr>")
		for _, heading := range t.Headings {
			b.WriteString("<th>")
			b.WriteString(html.EscapeString(heading))
			b.WriteString("</th>")
		}
		b.WriteString("</tr></thead>")
	}
	b.WriteString("<tbody>")
	for _, row := range t.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>")
			b.WriteString(HTML(cell))
			b.WriteString("</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")
	return b.String()
}
