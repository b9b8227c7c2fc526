// Package answer interprets a question's polymorphic answer payload.
//
// The set of answer kinds is closed. Parse turns a raw payload into one of the
// Value variants below and every output format dispatches over that set with a
// single type switch (IsAnswered, HTML, Scalar). A payload whose shape does not
// match its declared type becomes Invalid instead of failing the document.
package answer

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/CDLUC3/dmptool-narrative-generator/internal/dmp"
)

// Kind is the declared type tag of an answer payload
type Kind string

const (
	KindText        Kind = "text"
	KindTextArea    Kind = "textArea"
	KindDate        Kind = "date"
	KindDateRange   Kind = "dateRange"
	KindNumber      Kind = "number"
	KindNumberRange Kind = "numberRange"
	KindCurrency    Kind = "currency"
	KindBoolean     Kind = "boolean"
	KindURL         Kind = "url"
	KindEmail       Kind = "email"
	KindCheckBoxes  Kind = "checkBoxes"
	KindMultiselect Kind = "multiselectBox"
	KindAffiliation Kind = "affiliationSearch"
	KindTable       Kind = "table"
)

// UnableToRender is shown in place of an answer whose payload is invalid
const UnableToRender = "Unable to render this answer"

// Value is a resolved answer. Only the types in this package implement it.
type Value interface {
	Kind() Kind
	isValue()
}

type Text struct{ Text string }

type TextArea struct{ HTML string }

type Date struct{ Date string }

type DateRange struct{ Start, End string }

type Number struct{ Value *float64 }

type NumberRange struct{ Start, End *float64 }

type Currency struct {
	Amount       *float64
	Denomination string
}

type Boolean struct{ Value bool }

type URL struct{ URL string }

type Email struct{ Address string }

type CheckBoxes struct{ Selected []string }

type MultiSelect struct{ Selected []string }

type Affiliation struct{ ID, Name string }

// Table is a grid of nested answers. Raw keeps the compact payload for CSV.
type Table struct {
	Headings []string
	Rows     [][]Value
	Raw      json.RawMessage
}

// Invalid marks an unknown tag or a payload that does not fit its tag
type Invalid struct {
	Tag    string
	Reason string
}

func (Text) Kind() Kind        { return KindText }
func (TextArea) Kind() Kind    { return KindTextArea }
func (Date) Kind() Kind        { return KindDate }
func (DateRange) Kind() Kind   { return KindDateRange }
func (Number) Kind() Kind      { return KindNumber }
func (NumberRange) Kind() Kind { return KindNumberRange }
func (Currency) Kind() Kind    { return KindCurrency }
func (Boolean) Kind() Kind     { return KindBoolean }
func (URL) Kind() Kind         { return KindURL }
func (Email) Kind() Kind       { return KindEmail }
func (CheckBoxes) Kind() Kind  { return KindCheckBoxes }
func (MultiSelect) Kind() Kind { return KindMultiselect }
func (Affiliation) Kind() Kind { return KindAffiliation }
func (Table) Kind() Kind       { return KindTable }
func (i Invalid) Kind() Kind   { return Kind(i.Tag) }

func (Text) isValue()        {}
func (TextArea) isValue()    {}
func (Date) isValue()        {}
func (DateRange) isValue()   {}
func (Number) isValue()      {}
func (NumberRange) isValue() {}
func (Currency) isValue()    {}
func (Boolean) isValue()     {}
func (URL) isValue()         {}
func (Email) isValue()       {}
func (CheckBoxes) isValue()  {}
func (MultiSelect) isValue() {}
func (Affiliation) isValue() {}
func (Table) isValue()       {}
func (Invalid) isValue()     {}

type envelope struct {
	Type           string          `json:"type"`
	Answer         json.RawMessage `json:"answer"`
	ColumnHeadings json.RawMessage `json:"columnHeadings"`
	Meta           struct {
		Denomination string `json:"denomination"`
	} `json:"meta"`
}

type rangeStrings struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type rangeNumbers struct {
	Start *float64 `json:"start"`
	End   *float64 `json:"end"`
}

type affiliationPayload struct {
	AffiliationID   string `json:"affiliationId"`
	AffiliationName string `json:"affiliationName"`
}

type tableRow struct {
	Cells []json.RawMessage `json:"cells"`
}

// Resolve interprets a plan answer. It returns nil for an absent answer.
func Resolve(a *dmp.Answer) Value {
	if a == nil {
		return nil
	}
	return Parse(a.JSON)
}

// Parse interprets a raw payload. It never fails: problems yield Invalid.
func Parse(raw json.RawMessage) Value {
	if isNull(raw) {
		return Invalid{Reason: "empty payload"}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Invalid{Reason: fmt.Sprintf("decode payload: %v", err)}
	}

	kind := Kind(env.Type)
	invalid := func(err error) Value {
		return Invalid{Tag: env.Type, Reason: err.Error()}
	}

	switch kind {
	case KindText, KindTextArea, KindDate, KindURL, KindEmail:
		var s string
		if err := decodeOptional(env.Answer, &s); err != nil {
			return invalid(err)
		}
		switch kind {
		case KindText:
			return Text{Text: s}
		case KindTextArea:
			return TextArea{HTML: s}
		case KindDate:
			return Date{Date: s}
		case KindURL:
			return URL{URL: s}
		default:
			return Email{Address: s}
		}
	case KindDateRange:
		var r rangeStrings
		if err := decodeOptional(env.Answer, &r); err != nil {
			return invalid(err)
		}
		return DateRange{Start: r.Start, End: r.End}
	case KindNumber:
		var n *float64
		if err := decodeOptional(env.Answer, &n); err != nil {
			return invalid(err)
		}
		return Number{Value: n}
	case KindNumberRange:
		var r rangeNumbers
		if err := decodeOptional(env.Answer, &r); err != nil {
			return invalid(err)
		}
		return NumberRange{Start: r.Start, End: r.End}
	case KindCurrency:
		var n *float64
		if err := decodeOptional(env.Answer, &n); err != nil {
			return invalid(err)
		}
		denomination := env.Meta.Denomination
		if denomination == "" {
			denomination = "USD"
		}
		if _, err := parseCurrency(denomination); err != nil {
			return invalid(err)
		}
		return Currency{Amount: n, Denomination: denomination}
	case KindBoolean:
		var b bool
		if err := decodeOptional(env.Answer, &b); err != nil {
			return invalid(err)
		}
		return Boolean{Value: b}
	case KindCheckBoxes, KindMultiselect:
		var items []string
		if err := decodeOptional(env.Answer, &items); err != nil {
			return invalid(err)
		}
		if kind == KindCheckBoxes {
			return CheckBoxes{Selected: items}
		}
		return MultiSelect{Selected: items}
	case KindAffiliation:
		var a affiliationPayload
		if err := decodeOptional(env.Answer, &a); err != nil {
			return invalid(err)
		}
		return Affiliation{ID: a.AffiliationID, Name: a.AffiliationName}
	case KindTable:
		return parseTable(env, raw)
	default:
		return Invalid{Tag: env.Type, Reason: fmt.Sprintf("unknown answer type %q", env.Type)}
	}
}

func parseTable(env envelope, raw json.RawMessage) Value {
	var headings []string
	if err := decodeOptional(env.ColumnHeadings, &headings); err != nil {
		return Invalid{Tag: env.Type, Reason: fmt.Sprintf("column headings: %v", err)}
	}
	var rows []tableRow
	if err := decodeOptional(env.Answer, &rows); err != nil {
		return Invalid{Tag: env.Type, Reason: err.Error()}
	}
	table := Table{Headings: headings, Rows: make([][]Value, 0, len(rows))}
	for _, row := range rows {
		cells := make([]Value, 0, len(row.Cells))
		for _, cell := range row.Cells {
			cells = append(cells, Parse(cell))
		}
		table.Rows = append(table.Rows, cells)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err == nil {
		table.Raw = compact.Bytes()
	} else {
		table.Raw = raw
	}
	return table
}

// decodeOptional leaves target at its zero value when the field is missing
// or null, and otherwise requires the JSON shape to match target exactly.
func decodeOptional(raw json.RawMessage, target any) error {
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("payload does not match answer type: %w", err)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
