package answer

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var droppedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Form:     true,
	atom.Input:    true,
	atom.Button:   true,
	atom.Link:     true,
	atom.Meta:     true,
	atom.Base:     true,
	atom.Frame:    true,
	atom.Frameset: true,
}

// SanitizeHTML scrubs a rich text fragment from the template or an answer
func SanitizeHTML(fragment string) string {
	return sanitizeRichText(fragment)
}

// PlainText returns the readable text of a rich text fragment
func PlainText(fragment string) string {
	return plainText(fragment)
}

// sanitizeRichText keeps the markup of a rich text answer but drops active
// content: scripts, embeds, event handler attributes and javascript: URLs.
func sanitizeRichText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return html.EscapeString(fragment)
	}

	var b strings.Builder
	for _, node := range nodes {
		if !cleanNode(node) {
			continue
		}
		if err := html.Render(&b, node); err != nil {
			return html.EscapeString(fragment)
		}
	}
	return b.String()
}

// cleanNode scrubs n in place and reports whether n itself should be kept
func cleanNode(n *html.Node) bool {
	switch n.Type {
	case html.CommentNode, html.DoctypeNode:
		return false
	case html.ElementNode:
		if droppedElements[n.DataAtom] {
			return false
		}
		attrs := n.Attr[:0]
		for _, attr := range n.Attr {
			key := strings.ToLower(attr.Key)
			if strings.HasPrefix(key, "on") {
				continue
			}
			if (key == "href" || key == "src") && unsafeURL(attr.Val) {
				continue
			}
			attrs = append(attrs, attr)
		}
		n.Attr = attrs
	}

	for child := n.FirstChild; child != nil; {
		next := child.NextSibling
		if !cleanNode(child) {
			n.RemoveChild(child)
		}
		child = next
	}
	return true
}

func unsafeURL(value string) bool {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.Join(strings.Fields(v), "")
	return strings.HasPrefix(v, "javascript:") || strings.HasPrefix(v, "vbscript:") || strings.HasPrefix(v, "data:")
}

// plainText flattens a rich text fragment to its text content
func plainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); a == atom.Script || a == atom.Style {
				skip++
			}
			b.WriteByte(' ')
		case html.EndTagToken:
			name, _ := z.TagName()
			if a := atom.Lookup(name); (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.SelfClosingTagToken:
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		}
	}
}
