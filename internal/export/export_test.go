package export

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

func rawAnswer(payload string) *dmp.Answer {
	return &dmp.Answer{JSON: json.RawMessage(payload)}
}

func samplePlan() *dmp.Plan {
	return &dmp.Plan{
		DMPID:      dmp.Identifier{Identifier: "https://doi.org/10.48321/D1ABC", Type: "doi"},
		Title:      "Coastal Survey Plan",
		Created:    "2024-01-02T03:04:05.000Z",
		Modified:   "2024-05-06T07:08:09.123Z",
		Registered: "2024-05-07T00:00:00.000Z",
		Privacy:    dmp.PrivacyPublic,
		Contact: dmp.Contact{
			Name:      "Jane Researcher",
			Mbox:      "jane@example.edu",
			ContactID: dmp.Identifier{Identifier: "0000-0002-1825-0097", Type: "orcid"},
			Affiliation: dmp.Affiliation{
				Name:          "UC Davis",
				AffiliationID: dmp.Identifier{Identifier: "https://ror.org/05rrcem69", Type: "ror"},
			},
		},
		Projects: []dmp.Project{
			{Title: "Survey", Start: "2021-03-01", End: "2023-12-31", Funding: []dmp.Funding{{Name: "National Science Foundation"}}},
			{Title: "Follow up", Start: "2020-06-15", End: "2024-12-31"},
		},
		Narrative: &dmp.Narrative{
			TemplateTitle:   "NSF-BIO",
			TemplateVersion: "v2",
			Sections: []dmp.Section{
				{
					Title: "Data Collection",
					Order: 1,
					Questions: []dmp.Question{
						{Text: "<p>What data will you collect?</p>", Order: 1, Answer: rawAnswer(`{"type":"textArea","answer":"<p>Sonar &amp; imagery</p>"}`)},
						{Text: "When?", Order: 2, Answer: rawAnswer(`{"type":"dateRange","answer":{"start":"2020-01-02","end":"2020-12-31"}}`)},
						{Text: "Unanswered question", Order: 3},
					},
				},
				{
					Title: "Sharing",
					Order: 2,
					Questions: []dmp.Question{
						{Text: "Sizes", Order: 1, Answer: rawAnswer(`{"type":"table","columnHeadings":["Name","GB"],"answer":[{"cells":[{"type":"text","answer":"Sonar"},{"type":"number","answer":12}]}]}`)},
					},
				},
			},
		},
		Datasets: []dmp.Dataset{{Title: "Sonar scans", Type: "dataset", Issued: "2025-01-01"}},
		RelatedIdentifiers: []dmp.RelatedIdentifier{
			{Descriptor: "references", WorkType: "article", Type: "doi", Identifier: "https://doi.org/10.1/a"},
			{Descriptor: "references", WorkType: "output_management_plan", Type: "doi", Identifier: "https://doi.org/10.1/b"},
			{Descriptor: "references", WorkType: "article", Type: "doi", Identifier: "https://doi.org/10.1/c"},
		},
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello world", "hello%20world"},
		{"test+sign", "test%2Bsign"},
		{"special<>", "special%3C%3E"},
		{"normal-text.txt", "normal-text.txt"},
		{"é", "%C3%A9"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := percentEncodeForDataURL(tt.input)
			if result != tt.expected {
				t.Errorf("percentEncodeForDataURL(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		accept  string
		want    Format
		wantErr bool
	}{
		{"", FormatHTML, false},
		{"*/*", FormatHTML, false},
		{"text/*", FormatHTML, false},
		{"text/html", FormatHTML, false},
		{"application/json", FormatJSON, false},
		{"text/csv", FormatCSV, false},
		{"text/plain", FormatText, false},
		{"application/pdf", FormatPDF, false},
		{"application/vnd.openxmlformats-officedocument.wordprocessingml.document", FormatDOCX, false},
		{"image/png, application/pdf;q=0.5", FormatPDF, false},
		{"text/html;q=0.2, application/json;q=0.9", FormatJSON, false},
		{"application/json;q=0, text/csv", FormatCSV, false},
		{"text/html;q=0, */*", FormatJSON, false},
		{"TEXT/CSV", FormatCSV, false},
		{"application/json;q=0", "", true},
		{"image/png", "", true},
		{"application/xml;q=1, image/*", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			got, err := Negotiate(tt.accept)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("Negotiate(%q) err = %v, want ErrUnsupportedFormat", tt.accept, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Negotiate(%q) = %q, %v; want %q", tt.accept, got, err, tt.want)
			}
		})
	}
}

func TestFormatFromExtension(t *testing.T) {
	for _, ext := range []string{"csv", "docx", "json", "pdf", "txt", "PDF"} {
		if _, err := FormatFromExtension(ext); err != nil {
			t.Errorf("FormatFromExtension(%q) err = %v", ext, err)
		}
	}
	for _, ext := range []string{"html", "xml", ""} {
		if _, err := FormatFromExtension(ext); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("FormatFromExtension(%q) err = %v, want ErrUnsupportedFormat", ext, err)
		}
	}
}

func TestParseOptions(t *testing.T) {
	defaults := ParseOptions(url.Values{})
	if defaults != DefaultOptions() {
		t.Fatalf("empty query = %+v, want defaults", defaults)
	}

	q := url.Values{}
	q.Set("includeCoverPage", "no")
	q.Set("includeSectionHeadings", "0")
	q.Set("includeQuestionText", "FALSE")
	q.Set("includeUnansweredQuestions", "maybe")
	q.Set("includeRelatedWorks", "yes")
	q.Set("fontFamily", "Arial, sans-serif")
	q.Set("fontSize", "30")
	q.Set("lineHeight", "150")
	q.Set("marginTop", "-5")
	q.Set("marginLeft", "abc")
	opts := ParseOptions(q)

	d := opts.Display
	if d.IncludeCoverPage || d.IncludeSectionHeadings || d.IncludeQuestionText {
		t.Errorf("false-y toggles not applied: %+v", d)
	}
	if !d.IncludeUnansweredQuestions || !d.IncludeRelatedWorks || !d.IncludeResearchOutputs {
		t.Errorf("unrecognized or true toggles should be true: %+v", d)
	}
	p := opts.Page
	if p.FontFamily != "Arial, sans-serif" || p.FontSize != maxFontSize || p.LineHeight != 150 {
		t.Errorf("page options = %+v", p)
	}
	if p.MarginTop != 0 || p.MarginLeft != 96 {
		t.Errorf("margins = %+v", p)
	}

	hostile := url.Values{"fontFamily": {"x; } body { color: red"}}
	if got := ParseOptions(hostile).Page.FontFamily; got != DefaultFontFamily {
		t.Errorf("unsafe font family accepted: %q", got)
	}
}

func TestRenderHTMLCoverPage(t *testing.T) {
	plan := samplePlan()
	out := RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), plan)

	for _, want := range []string{
		`<h1>Coastal Survey Plan</h1>`,
		`Jane Researcher - ORCID: <a href="https://orcid.org/0000-0002-1825-0097">`,
		`UC Davis`,
		`National Science Foundation`,
		`June 15, 2020`,
		`December 31, 2024`,
		`NSF-BIO (version v2)`,
		`<a href="https://doi.org/10.48321/D1ABC">`,
		esc(publicPlanNotice),
	} {
		if !strings.Contains(out, want) {
			t.Errorf("cover page missing %q", want)
		}
	}
	if strings.Contains(out, esc(privatePlanNotice)) {
		t.Error("public plan must not carry the private notice")
	}

	plan.Privacy = dmp.PrivacyPrivate
	plan.Registered = ""
	plan.Contact.ContactID = dmp.Identifier{Identifier: "jane@example.edu", Type: "other"}
	out = RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), plan)
	if !strings.Contains(out, esc(privatePlanNotice)) || strings.Contains(out, esc(publicPlanNotice)) {
		t.Error("private plan must carry only the private notice")
	}
	if strings.Contains(out, "DMP ID") {
		t.Error("unregistered plan must not show its DMP ID")
	}
	if strings.Contains(out, "ORCID") {
		t.Error("non-ORCID identifier should not be labelled")
	}

	display := DefaultDisplayOptions()
	display.IncludeCoverPage = false
	if out := RenderHTML(display, DefaultPageOptions(), plan); strings.Contains(out, "cover-page\">") {
		t.Error("cover page rendered while disabled")
	}
}

func TestRenderHTMLMissingData(t *testing.T) {
	out := RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), &dmp.Plan{})
	if !strings.Contains(out, "<body>") || !strings.Contains(out, esc(privatePlanNotice)) {
		t.Fatalf("empty plan should still render a document: %s", out)
	}
	if out := RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), nil); !strings.HasPrefix(out, "<!DOCTYPE html>") {
		t.Fatal("nil plan should render an empty document")
	}
}

func TestRenderHTMLStylesheet(t *testing.T) {
	page := PageOptions{FontFamily: "Georgia, serif", FontSize: 12, LineHeight: 150, MarginTop: 10, MarginRight: 20, MarginBottom: 30, MarginLeft: 40}
	out := RenderHTML(DefaultDisplayOptions(), page, samplePlan())
	for _, want := range []string{"margin: 10px 20px 30px 40px", "font-family: Georgia, serif", "font-size: 12pt", "line-height: 150%"} {
		if !strings.Contains(out, want) {
			t.Errorf("stylesheet missing %q", want)
		}
	}

	page.FontFamily = "</style><script>"
	if out := RenderHTML(DefaultDisplayOptions(), page, samplePlan()); strings.Contains(out, "<script>") {
		t.Error("font family escaped the stylesheet")
	}

	// presentation only: body markup is unchanged by page options
	body := func(s string) string { return s[strings.Index(s, "<body>"):] }
	a := RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), samplePlan())
	b := RenderHTML(DefaultDisplayOptions(), page, samplePlan())
	if body(a) != body(b) {
		t.Error("page options changed document structure")
	}
}

func TestRenderHTMLNarrativeToggles(t *testing.T) {
	plan := samplePlan()

	display := DefaultDisplayOptions()
	out := RenderHTML(display, DefaultPageOptions(), plan)
	for _, want := range []string{"<h2>Data Collection</h2>", "What data will you collect?", "Unanswered question", notAnswered, "January 2, 2020 to December 31, 2020"} {
		if !strings.Contains(out, want) {
			t.Errorf("narrative missing %q", want)
		}
	}
	if strings.Index(out, "Data Collection") > strings.Index(out, "Sharing") {
		t.Error("sections out of order")
	}

	display.IncludeUnansweredQuestions = false
	display.IncludeQuestionText = false
	display.IncludeSectionHeadings = false
	out = RenderHTML(display, DefaultPageOptions(), plan)
	for _, absent := range []string{"Unanswered question", notAnswered, "What data will you collect?", "<h2>Data Collection</h2>"} {
		if strings.Contains(out, absent) {
			t.Errorf("narrative should omit %q", absent)
		}
	}
}

func TestQuestionAnswerForDisplay(t *testing.T) {
	if got := questionAnswerForDisplay("Q?", nil, true, false); got != "" {
		t.Errorf("unanswered and excluded = %q, want empty", got)
	}
	got := questionAnswerForDisplay("Q?", nil, true, true)
	if !strings.Contains(got, notAnswered) || !strings.Contains(got, "Q?") {
		t.Errorf("unanswered and included = %q", got)
	}
	got = questionAnswerForDisplay("Q?", nil, false, true)
	if strings.Contains(got, "Q?") {
		t.Errorf("question text should be hidden: %q", got)
	}
}

func TestRenderHTMLAppendices(t *testing.T) {
	plan := samplePlan()
	display := DefaultDisplayOptions()

	out := RenderHTML(display, DefaultPageOptions(), plan)
	articles := strings.Index(out, "<h3>Articles</h3>")
	omp := strings.Index(out, "<h3>Output management plan</h3>")
	if articles < 0 || omp < 0 {
		t.Fatalf("related work groups missing:\n%s", out)
	}
	if articles > omp {
		t.Error("groups should keep first-seen order")
	}
	if !strings.Contains(out, "Planned Research Outputs") || !strings.Contains(out, "Sonar scans") {
		t.Error("research outputs missing")
	}

	display.IncludeRelatedWorks = false
	display.IncludeResearchOutputs = false
	out = RenderHTML(display, DefaultPageOptions(), plan)
	if strings.Contains(out, "Related Works") || strings.Contains(out, "Planned Research Outputs") {
		t.Error("appendices rendered while disabled")
	}
	if strings.Contains(out, "appendix") && strings.Contains(out, "<div class=\"appendix") {
		t.Error("appendix container rendered while disabled")
	}
}

func TestWorkTypeLabel(t *testing.T) {
	tests := []struct {
		workType string
		count    int
		want     string
	}{
		{"article", 1, "Article"},
		{"article", 3, "Articles"},
		{"output_management_plan", 2, "Output management plans"},
		{"software", 2, "Software"},
		{"data_paper", 1, "Data paper"},
		{"dataset", 4, "Datasets"},
		{"preprint_repository", 2, "Preprint repositories"},
	}
	for _, tt := range tests {
		if got := workTypeLabel(tt.workType, tt.count); got != tt.want {
			t.Errorf("workTypeLabel(%q, %d) = %q, want %q", tt.workType, tt.count, got, tt.want)
		}
	}
}

func readCSV(t *testing.T, data []byte) [][]string {
	t.Helper()
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestRenderCSV(t *testing.T) {
	empty, err := RenderCSV(DefaultDisplayOptions(), &dmp.Plan{})
	if err != nil {
		t.Fatalf("RenderCSV() error = %v", err)
	}
	if string(empty) != "Section,Question,Answer\n" {
		t.Errorf("empty narrative = %q, want header only", empty)
	}

	answerOnly := DisplayOptions{}
	empty, _ = RenderCSV(answerOnly, &dmp.Plan{})
	if string(empty) != "Answer\n" {
		t.Errorf("answer-only header = %q", empty)
	}

	data, err := RenderCSV(DefaultDisplayOptions(), samplePlan())
	if err != nil {
		t.Fatalf("RenderCSV() error = %v", err)
	}
	rows := readCSV(t, data)
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want header + 4: %v", len(rows), rows)
	}
	if got := rows[1]; got[0] != "Data Collection" || got[1] != "What data will you collect?" || got[2] != "Sonar & imagery" {
		t.Errorf("row 1 = %q", got)
	}
	if got := rows[2][2]; got != "January 2, 2020 to December 31, 2020" {
		t.Errorf("date range cell = %q", got)
	}
	if got := rows[3][2]; got != "" {
		t.Errorf("unanswered cell = %q, want empty", got)
	}
	var table map[string]any
	if err := json.Unmarshal([]byte(rows[4][2]), &table); err != nil || table["type"] != "table" {
		t.Errorf("table cell should hold its JSON payload: %q", rows[4][2])
	}

	display := DefaultDisplayOptions()
	display.IncludeUnansweredQuestions = false
	display.IncludeSectionHeadings = false
	data, _ = RenderCSV(display, samplePlan())
	rows = readCSV(t, data)
	if len(rows) != 4 || len(rows[0]) != 2 || rows[0][0] != "Question" {
		t.Errorf("filtered csv = %v", rows)
	}
}

func TestRenderText(t *testing.T) {
	out := RenderText(RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), samplePlan()))
	if strings.ContainsAny(out, "<>") {
		t.Errorf("text output contains markup:\n%s", out)
	}
	if strings.Contains(out, "font-family") || strings.Contains(out, "@page") {
		t.Error("style content leaked into text output")
	}
	for _, want := range []string{"Coastal Survey Plan", "Sonar & imagery", "January 2, 2020 to December 31, 2020", "Not answered"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q", want)
		}
	}
	if strings.Contains(out, "\n\n\n") {
		t.Error("blank line runs should collapse")
	}

	if got := RenderText("<p>one   two</p><p>three &amp; <b>four</b></p>"); got != "one two\n\nthree & four\n" {
		t.Errorf("RenderText() = %q", got)
	}
}

func TestRenderTextEscapedBrackets(t *testing.T) {
	plan := samplePlan()
	plan.Title = "Plan <script>x</script> a<b"
	plan.Narrative.Sections[0].Questions[0].Answer = rawAnswer(`{"type":"text","answer":"depth > 5m <i>and</i> 1<2"}`)

	out := RenderText(RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), plan))
	if strings.ContainsAny(out, "<>") {
		t.Fatalf("text output contains angle brackets:\n%s", out)
	}
	for _, want := range []string{"Plan \u2039script\u203ax\u2039/script\u203a a\u2039b", "depth \u203a 5m"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output missing %q:\n%s", want, out)
		}
	}

	if got := RenderText("<p>a &lt;b&gt; c</p>"); got != "a \u2039b\u203a c\n" {
		t.Errorf("RenderText() = %q", got)
	}
}

func readZip(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("open docx: %v", err)
	}
	parts := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		parts[f.Name] = string(body)
	}
	return parts
}

func TestRenderDOCX(t *testing.T) {
	plan := samplePlan()
	page := DefaultPageOptions()
	page.FontSize = 12
	document := RenderHTML(DefaultDisplayOptions(), page, plan)
	modified, _ := dmp.ParseDate(plan.Modified)

	data, err := RenderDOCX(document, page, plan.Title, modified)
	if err != nil {
		t.Fatalf("RenderDOCX() error = %v", err)
	}
	parts := readZip(t, data)
	for _, name := range []string{"[Content_Types].xml", "_rels/.rels", "word/document.xml", "word/styles.xml", "word/footer1.xml", "word/_rels/document.xml.rels", "docProps/core.xml"} {
		if _, ok := parts[name]; !ok {
			t.Errorf("docx missing part %s", name)
		}
	}

	doc := parts["word/document.xml"]
	for _, want := range []string{
		`<w:pgSz w:w="12240" w:h="15840"/>`,
		`w:top="1140" w:right="1440" w:bottom="1140" w:left="1440"`,
		`<w:pStyle w:val="Heading1"/>`,
		`Coastal Survey Plan`,
		`Sonar &amp; imagery`,
		`<w:tbl>`,
		`<w:footerReference w:type="default" r:id="rId2"/>`,
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("document.xml missing %q", want)
		}
	}
	styles := parts["word/styles.xml"]
	for _, want := range []string{`w:ascii="Tinos"`, `<w:sz w:val="24"/>`, `w:line="288"`} {
		if !strings.Contains(styles, want) {
			t.Errorf("styles.xml missing %q", want)
		}
	}
	if !strings.Contains(parts["word/footer1.xml"], " PAGE ") {
		t.Error("footer has no page number field")
	}

	again, err := RenderDOCX(document, page, plan.Title, modified)
	if err != nil || !bytes.Equal(data, again) {
		t.Error("identical input should produce identical bytes")
	}
}

func TestRenderDOCXLists(t *testing.T) {
	data, err := RenderDOCX(`<ul><li>first</li><li>second<ol><li>nested</li></ol></li></ul>`, DefaultPageOptions(), "Lists", time.Time{})
	if err != nil {
		t.Fatalf("RenderDOCX() error = %v", err)
	}
	doc := readZip(t, data)["word/document.xml"]
	for _, want := range []string{"•\t", "first", "1.\t", "nested", `w:left="1440"`} {
		if !strings.Contains(doc, want) {
			t.Errorf("list markup missing %q", want)
		}
	}
}

type fakePDF struct {
	calls int
	err   error
}

func (f *fakePDF) Convert(ctx context.Context, html string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF-1.7 " + html[:15]), nil
}

type memoryArchive struct {
	objects map[string][]byte
	getErr  error
	puts    int
}

func (m *memoryArchive) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	data, ok := m.objects[key]
	return data, ok, nil
}

func (m *memoryArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	m.puts++
	return nil
}

func TestServiceRenderAllFormats(t *testing.T) {
	svc := NewService(&fakePDF{}, nil, zerolog.Nop())
	plan := samplePlan()
	for _, format := range []Format{FormatHTML, FormatCSV, FormatDOCX, FormatJSON, FormatPDF, FormatText} {
		t.Run(string(format), func(t *testing.T) {
			result, err := svc.Render(context.Background(), plan, format, DefaultOptions())
			if err != nil {
				t.Fatalf("Render(%s) error = %v", format, err)
			}
			if len(result.Data) == 0 {
				t.Fatal("empty output")
			}
			if !strings.HasPrefix(result.MimeType, format.MediaType()) {
				t.Errorf("MimeType = %q", result.MimeType)
			}
			wantAttachment := format == FormatPDF || format == FormatDOCX
			if result.Attachment != wantAttachment {
				t.Errorf("Attachment = %v, want %v", result.Attachment, wantAttachment)
			}
			if result.Filename != "Coastal-Survey-Plan."+string(format) {
				t.Errorf("Filename = %q", result.Filename)
			}
		})
	}

	result, _ := svc.Render(context.Background(), plan, FormatJSON, DefaultOptions())
	var decoded dmp.Plan
	if err := json.Unmarshal(result.Data, &decoded); err != nil || decoded.Modified != plan.Modified {
		t.Errorf("json output is not the canonical model: %v", err)
	}

	if _, err := svc.Render(context.Background(), plan, Format("xml"), DefaultOptions()); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("unknown format err = %v", err)
	}
}

func TestServiceRenderPDFFailure(t *testing.T) {
	svc := NewService(&fakePDF{err: errors.New("browser crashed")}, nil, zerolog.Nop())
	_, err := svc.Render(context.Background(), samplePlan(), FormatPDF, DefaultOptions())
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("err = %v, want ErrRenderFailed", err)
	}

	svc = NewService(&fakePDF{err: ErrPDFDependencyMissing}, nil, zerolog.Nop())
	_, err = svc.Render(context.Background(), samplePlan(), FormatPDF, DefaultOptions())
	if !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("err = %v, want ErrPDFDependencyMissing", err)
	}
}

func TestServiceRenditionArchive(t *testing.T) {
	pdf := &fakePDF{}
	archive := &memoryArchive{objects: map[string][]byte{}}
	svc := NewService(pdf, archive, zerolog.Nop())
	plan := samplePlan()

	first, err := svc.Render(context.Background(), plan, FormatPDF, DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := svc.Render(context.Background(), plan, FormatPDF, DefaultOptions())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if pdf.calls != 1 || archive.puts != 1 {
		t.Errorf("pdf calls = %d, puts = %d; want 1, 1", pdf.calls, archive.puts)
	}
	if !bytes.Equal(first.Data, second.Data) {
		t.Error("archived rendition differs")
	}

	plan.Modified = "2024-06-01T00:00:00.000Z"
	if _, err := svc.Render(context.Background(), plan, FormatPDF, DefaultOptions()); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if pdf.calls != 2 {
		t.Error("a new plan version must not reuse the old rendition")
	}

	archive.getErr = errors.New("bucket offline")
	if _, err := svc.Render(context.Background(), plan, FormatDOCX, DefaultOptions()); err != nil {
		t.Fatalf("archive failure should not fail the render: %v", err)
	}
}

func TestArchiveKey(t *testing.T) {
	plan := samplePlan()
	a := archiveKey(plan, FormatPDF, DefaultOptions())
	if a != archiveKey(plan, FormatPDF, DefaultOptions()) {
		t.Fatal("archive key is not stable")
	}
	opts := DefaultOptions()
	opts.Page.FontSize = 9
	if a == archiveKey(plan, FormatPDF, opts) || a == archiveKey(plan, FormatDOCX, DefaultOptions()) {
		t.Fatal("archive key ignores options or format")
	}
	if !strings.HasPrefix(a, "renditions/") || !strings.HasSuffix(a, ".pdf") {
		t.Errorf("archive key = %q", a)
	}
}

func TestPDFConverter(t *testing.T) {
	converter := NewPDFConverter("", 30*time.Second)
	if _, err := converter.browserPath(); err != nil {
		t.Skip("chromium not installed")
	}
	data, err := converter.Convert(context.Background(), RenderHTML(DefaultDisplayOptions(), DefaultPageOptions(), samplePlan()))
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output is not a PDF: %q", data[:8])
	}
}

func TestPDFConverterMissingBinary(t *testing.T) {
	converter := NewPDFConverter("definitely-not-a-browser-binary", time.Second)
	if _, err := converter.Convert(context.Background(), "<p>x</p>"); !errors.Is(err, ErrPDFDependencyMissing) {
		t.Fatalf("err = %v, want ErrPDFDependencyMissing", err)
	}
}
