package export

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// DisplayOptions toggles the optional parts of a rendered plan
type DisplayOptions struct {
	IncludeCoverPage           bool `json:"includeCoverPage"`
	IncludeSectionHeadings     bool `json:"includeSectionHeadings"`
	IncludeQuestionText        bool `json:"includeQuestionText"`
	IncludeUnansweredQuestions bool `json:"includeUnansweredQuestions"`
	IncludeResearchOutputs     bool `json:"includeResearchOutputs"`
	IncludeRelatedWorks        bool `json:"includeRelatedWorks"`
}

// PageOptions are presentation parameters only. Margins are CSS pixels,
// FontSize is points and LineHeight a percentage.
type PageOptions struct {
	FontFamily   string `json:"fontFamily"`
	FontSize     int    `json:"fontSize"`
	LineHeight   int    `json:"lineHeight"`
	MarginTop    int    `json:"marginTop"`
	MarginRight  int    `json:"marginRight"`
	MarginBottom int    `json:"marginBottom"`
	MarginLeft   int    `json:"marginLeft"`
}

// Options is everything a render needs besides the plan. It is passed by
// value and never modified during a render.
type Options struct {
	Display DisplayOptions `json:"display"`
	Page    PageOptions    `json:"page"`
}

const (
	DefaultFontFamily = "Tinos, serif"
	DefaultFontSize   = 11
	DefaultLineHeight = 120
	minFontSize       = 8
	maxFontSize       = 14
	minLineHeight     = 100
	maxLineHeight     = 300
	maxMargin         = 300
)

var fontFamilyPattern = regexp.MustCompile(`^[A-Za-z0-9 ,'"-]{1,100}$`)

func DefaultDisplayOptions() DisplayOptions {
	return DisplayOptions{
		IncludeCoverPage:           true,
		IncludeSectionHeadings:     true,
		IncludeQuestionText:        true,
		IncludeUnansweredQuestions: true,
		IncludeResearchOutputs:     true,
		IncludeRelatedWorks:        true,
	}
}

func DefaultPageOptions() PageOptions {
	return PageOptions{
		FontFamily:   DefaultFontFamily,
		FontSize:     DefaultFontSize,
		LineHeight:   DefaultLineHeight,
		MarginTop:    76,
		MarginRight:  96,
		MarginBottom: 76,
		MarginLeft:   96,
	}
}

func DefaultOptions() Options {
	return Options{Display: DefaultDisplayOptions(), Page: DefaultPageOptions()}
}

// ParseOptions reads display and page options from query parameters.
// Missing or unrecognized values fall back to the defaults.
func ParseOptions(q url.Values) Options {
	opts := DefaultOptions()
	d := &opts.Display
	d.IncludeCoverPage = parseBool(q.Get("includeCoverPage"), d.IncludeCoverPage)
	d.IncludeSectionHeadings = parseBool(q.Get("includeSectionHeadings"), d.IncludeSectionHeadings)
	d.IncludeQuestionText = parseBool(q.Get("includeQuestionText"), d.IncludeQuestionText)
	d.IncludeUnansweredQuestions = parseBool(q.Get("includeUnansweredQuestions"), d.IncludeUnansweredQuestions)
	d.IncludeResearchOutputs = parseBool(q.Get("includeResearchOutputs"), d.IncludeResearchOutputs)
	d.IncludeRelatedWorks = parseBool(q.Get("includeRelatedWorks"), d.IncludeRelatedWorks)

	p := &opts.Page
	if family := strings.TrimSpace(q.Get("fontFamily")); fontFamilyPattern.MatchString(family) {
		p.FontFamily = family
	}
	p.FontSize = parseInt(q.Get("fontSize"), p.FontSize, minFontSize, maxFontSize)
	p.LineHeight = parseInt(q.Get("lineHeight"), p.LineHeight, minLineHeight, maxLineHeight)
	p.MarginTop = parseInt(q.Get("marginTop"), p.MarginTop, 0, maxMargin)
	p.MarginRight = parseInt(q.Get("marginRight"), p.MarginRight, 0, maxMargin)
	p.MarginBottom = parseInt(q.Get("marginBottom"), p.MarginBottom, 0, maxMargin)
	p.MarginLeft = parseInt(q.Get("marginLeft"), p.MarginLeft, 0, maxMargin)
	return opts
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	default:
		return fallback
	}
}

func parseInt(raw string, fallback, min, max int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
