package export

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	twipsPerPixel   = 15
	pageWidthTwips  = 12240
	pageHeightTwips = 15840
	listIndentTwips = 720
	hangingTwips    = 360
	linkColor       = "0563C1"
)

// zip cannot represent times before 1980
var zipEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// RenderDOCX converts a rendered document into a WordprocessingML package.
// Every zip entry carries modified as its timestamp so identical input
// produces identical bytes.
func RenderDOCX(document string, page PageOptions, title string, modified time.Time) ([]byte, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	b := &docxBuilder{}
	if body := findElement(root, atom.Body); body != nil {
		b.blocks(body)
	} else {
		b.blocks(root)
	}
	b.flush("")

	if modified.Before(zipEpoch) {
		modified = zipEpoch
	}
	modified = modified.UTC()

	parts := []struct {
		name    string
		content string
	}{
		{"[Content_Types].xml", contentTypesXML},
		{"_rels/.rels", packageRelsXML},
		{"docProps/core.xml", corePropertiesXML(title, modified)},
		{"word/_rels/document.xml.rels", documentRelsXML},
		{"word/document.xml", documentXML(b.body.String(), page)},
		{"word/styles.xml", stylesXML(page)},
		{"word/footer1.xml", footerXML},
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, part := range parts {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     part.name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", part.name, err)
		}
		if _, err := w.Write([]byte(part.content)); err != nil {
			return nil, fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close docx: %w", err)
	}
	return buf.Bytes(), nil
}

type runStyle struct {
	bold      bool
	italic    bool
	underline bool
	link      bool
}

// docxBuilder accumulates body XML. Runs collect until flush closes the
// current paragraph.
type docxBuilder struct {
	body bytes.Buffer
	runs []string
	base runStyle
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func (b *docxBuilder) blocks(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.text(c.Data, b.base)
		case html.ElementNode:
			b.element(c)
		}
	}
}

func (b *docxBuilder) element(n *html.Node) {
	switch n.DataAtom {
	case atom.Head, atom.Style, atom.Script, atom.Title:
	case atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
		b.flush("")
		b.inlines(n, b.base)
		b.flush(`<w:pStyle w:val="` + headingStyle(n.DataAtom) + `"/>`)
	case atom.P:
		b.flush("")
		b.inlines(n, b.base)
		b.flush("")
	case atom.Ul, atom.Ol:
		b.flush("")
		b.list(n, n.DataAtom == atom.Ol, 0)
	case atom.Table:
		b.flush("")
		b.table(n)
	case atom.Br:
		b.lineBreak()
	case atom.Dt:
		b.flush("")
		b.inlines(n, runStyle{bold: true})
		b.flush(`<w:keepNext/>`)
	default:
		if inlineElements[n.DataAtom] {
			b.inline(n, b.base)
			return
		}
		b.flush("")
		b.blocks(n)
		b.flush("")
	}
}

func headingStyle(a atom.Atom) string {
	switch a {
	case atom.H1:
		return "Heading1"
	case atom.H2:
		return "Heading2"
	default:
		return "Heading3"
	}
}

func (b *docxBuilder) inlines(n *html.Node, style runStyle) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			b.text(c.Data, style)
		case html.ElementNode:
			b.inline(c, style)
		}
	}
}

func (b *docxBuilder) inline(n *html.Node, style runStyle) {
	switch n.DataAtom {
	case atom.Style, atom.Script:
		return
	case atom.Br:
		b.lineBreak()
		return
	case atom.Strong, atom.B:
		style.bold = true
	case atom.Em, atom.I, atom.Cite:
		style.italic = true
	case atom.U:
		style.underline = true
	case atom.A:
		style.link = true
	}
	b.inlines(n, style)
}

func (b *docxBuilder) text(s string, style runStyle) {
	s = collapseSpace(s)
	if s == "" || (len(b.runs) == 0 && strings.TrimSpace(s) == "") {
		return
	}
	if len(b.runs) == 0 {
		s = strings.TrimLeft(s, " ")
	}

	var r strings.Builder
	r.WriteString("<w:r>")
	if style != (runStyle{}) {
		r.WriteString("<w:rPr>")
		if style.bold {
			r.WriteString("<w:b/>")
		}
		if style.italic {
			r.WriteString("<w:i/>")
		}
		if style.link {
			r.WriteString(`<w:color w:val="` + linkColor + `"/>`)
		}
		if style.underline || style.link {
			r.WriteString(`<w:u w:val="single"/>`)
		}
		r.WriteString("</w:rPr>")
	}
	r.WriteString(`<w:t xml:space="preserve">`)
	r.WriteString(xmlEscape(s))
	r.WriteString("</w:t></w:r>")
	b.runs = append(b.runs, r.String())
}

func (b *docxBuilder) lineBreak() {
	b.runs = append(b.runs, "<w:r><w:br/></w:r>")
}

// flush closes the pending paragraph, if any, with the given paragraph
// properties
func (b *docxBuilder) flush(pPr string) {
	if len(b.runs) == 0 {
		return
	}
	b.body.WriteString("<w:p>")
	if pPr != "" {
		b.body.WriteString("<w:pPr>")
		b.body.WriteString(pPr)
		b.body.WriteString("</w:pPr>")
	}
	for _, r := range b.runs {
		b.body.WriteString(r)
	}
	b.body.WriteString("</w:p>")
	b.runs = b.runs[:0]
}

func (b *docxBuilder) list(n *html.Node, ordered bool, depth int) {
	indent := fmt.Sprintf(`<w:pStyle w:val="ListParagraph"/><w:ind w:left="%d" w:hanging="%d"/>`,
		listIndentTwips*(depth+1), hangingTwips)
	item := 0
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		item++
		marker := "•\t"
		if ordered {
			marker = strconv.Itoa(item) + ".\t"
		}
		b.runs = append(b.runs, `<w:r><w:t xml:space="preserve">`+marker+`</w:t></w:r>`)
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			switch {
			case c.Type == html.TextNode:
				b.text(c.Data, b.base)
			case c.Type != html.ElementNode:
			case c.DataAtom == atom.Ul || c.DataAtom == atom.Ol:
				b.flush(indent)
				b.list(c, c.DataAtom == atom.Ol, depth+1)
			case c.DataAtom == atom.P || c.DataAtom == atom.Div:
				b.inlines(c, b.base)
			default:
				b.inline(c, b.base)
			}
		}
		b.flush(indent)
	}
}

func (b *docxBuilder) table(n *html.Node) {
	var rows [][]*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.DataAtom {
			case atom.Thead, atom.Tbody, atom.Tfoot:
				collect(c)
			case atom.Tr:
				var cells []*html.Node
				for cell := c.FirstChild; cell != nil; cell = cell.NextSibling {
					if cell.Type == html.ElementNode && (cell.DataAtom == atom.Td || cell.DataAtom == atom.Th) {
						cells = append(cells, cell)
					}
				}
				rows = append(rows, cells)
			}
		}
	}
	collect(n)

	columns := 0
	for _, row := range rows {
		if len(row) > columns {
			columns = len(row)
		}
	}
	if columns == 0 {
		return
	}

	b.body.WriteString(`<w:tbl><w:tblPr><w:tblW w:w="0" w:type="auto"/><w:tblBorders>`)
	for _, edge := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		b.body.WriteString(`<w:` + edge + ` w:val="single" w:sz="4" w:space="0" w:color="999999"/>`)
	}
	b.body.WriteString(`</w:tblBorders></w:tblPr><w:tblGrid>`)
	for i := 0; i < columns; i++ {
		b.body.WriteString(`<w:gridCol/>`)
	}
	b.body.WriteString(`</w:tblGrid>`)

	for _, row := range rows {
		b.body.WriteString("<w:tr>")
		for i := 0; i < columns; i++ {
			b.body.WriteString(`<w:tc><w:tcPr><w:tcW w:w="0" w:type="auto"/></w:tcPr>`)
			cell := &docxBuilder{base: b.base}
			if i < len(row) {
				if row[i].DataAtom == atom.Th {
					cell.base.bold = true
				}
				cell.blocks(row[i])
				cell.flush("")
			}
			content := cell.body.String()
			// a cell must end with a paragraph
			if content == "" || strings.HasSuffix(content, "</w:tbl>") {
				content += "<w:p/>"
			}
			b.body.WriteString(content)
			b.body.WriteString("</w:tc>")
		}
		b.body.WriteString("</w:tr>")
	}
	b.body.WriteString("</w:tbl>")
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

// primaryFont picks the first family of a CSS font list
func primaryFont(family string) string {
	if !fontFamilyPattern.MatchString(family) {
		family = DefaultFontFamily
	}
	first, _, _ := strings.Cut(family, ",")
	first = strings.Trim(strings.TrimSpace(first), `"'`)
	switch strings.ToLower(first) {
	case "", "serif":
		return "Times New Roman"
	case "sans-serif":
		return "Arial"
	case "monospace":
		return "Courier New"
	}
	return first
}

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`

const xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"

func documentXML(body string, page PageOptions) string {
	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<w:document ` + wordNS + `><w:body>`)
	b.WriteString(body)
	fmt.Fprintf(&b, `<w:sectPr><w:footerReference w:type="default" r:id="rId2"/><w:pgSz w:w="%d" w:h="%d"/><w:pgMar w:top="%d" w:right="%d" w:bottom="%d" w:left="%d" w:header="720" w:footer="720" w:gutter="0"/></w:sectPr>`,
		pageWidthTwips, pageHeightTwips,
		page.MarginTop*twipsPerPixel, page.MarginRight*twipsPerPixel,
		page.MarginBottom*twipsPerPixel, page.MarginLeft*twipsPerPixel)
	b.WriteString(`</w:body></w:document>`)
	return b.String()
}

func stylesXML(page PageOptions) string {
	fontSize := page.FontSize
	if fontSize <= 0 {
		fontSize = DefaultFontSize
	}
	lineHeight := page.LineHeight
	if lineHeight <= 0 {
		lineHeight = DefaultLineHeight
	}
	font := xmlEscape(primaryFont(page.FontFamily))
	halfPoints := fontSize * 2
	line := lineHeight * 240 / 100

	var b strings.Builder
	b.WriteString(xmlHeader)
	b.WriteString(`<w:styles ` + wordNS + `>`)
	fmt.Fprintf(&b, `<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="%s" w:hAnsi="%s" w:cs="%s" w:eastAsia="%s"/><w:sz w:val="%d"/><w:szCs w:val="%d"/></w:rPr></w:rPrDefault><w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="%d" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>`,
		font, font, font, font, halfPoints, halfPoints, line)
	b.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>`)
	for level, scale := range []int{16, 13, 11} {
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Heading%[1]d"><w:name w:val="heading %[1]d"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/><w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="%[2]d"/></w:pPr><w:rPr><w:b/><w:sz w:val="%[3]d"/><w:szCs w:val="%[3]d"/></w:rPr></w:style>`,
			level+1, level, halfPoints*scale/10)
	}
	b.WriteString(`<w:style w:type="paragraph" w:styleId="ListParagraph"><w:name w:val="List Paragraph"/><w:basedOn w:val="Normal"/><w:qFormat/><w:pPr><w:spacing w:after="0"/></w:pPr></w:style>`)
	b.WriteString(`<w:style w:type="paragraph" w:styleId="Footer"><w:name w:val="footer"/><w:basedOn w:val="Normal"/></w:style>`)
	b.WriteString(`</w:styles>`)
	return b.String()
}

func corePropertiesXML(title string, modified time.Time) string {
	stamp := modified.Format(time.RFC3339)
	return xmlHeader + `<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">` +
		`<dc:title>` + xmlEscape(title) + `</dc:title>` +
		`<dcterms:created xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:created>` +
		`<dcterms:modified xsi:type="dcterms:W3CDTF">` + stamp + `</dcterms:modified>` +
		`</cp:coreProperties>`
}

const contentTypesXML = xmlHeader + `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>` +
	`<Default Extension="xml" ContentType="application/xml"/>` +
	`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>` +
	`<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>` +
	`<Override PartName="/word/footer1.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.footer+xml"/>` +
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>` +
	`</Types>`

const packageRelsXML = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`</Relationships>`

const documentRelsXML = xmlHeader + `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/footer" Target="footer1.xml"/>` +
	`</Relationships>`

const footerXML = xmlHeader + `<w:ftr ` + wordNS + `><w:p><w:pPr><w:pStyle w:val="Footer"/><w:jc w:val="center"/></w:pPr>` +
	`<w:r><w:fldChar w:fldCharType="begin"/></w:r>` +
	`<w:r><w:instrText xml:space="preserve"> PAGE </w:instrText></w:r>` +
	`<w:r><w:fldChar w:fldCharType="separate"/></w:r>` +
	`<w:r><w:t>1</w:t></w:r>` +
	`<w:r><w:fldChar w:fldCharType="end"/></w:r>` +
	`</w:p></w:ftr>`
