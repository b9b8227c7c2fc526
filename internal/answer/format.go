package answer

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

func formatOptionalNumber(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}

// formatNumber groups digits the en-US way: 1234567 -> "1,234,567"
func formatNumber(v float64) string {
	p := message.NewPrinter(language.AmericanEnglish)
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return p.Sprintf("%d", int64(v))
	}
	return p.Sprint(number.Decimal(v, number.MaxFractionDigits(6)))
}

func parseCurrency(code string) (currency.Unit, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return currency.Unit{}, fmt.Errorf("unknown currency %q", code)
	}
	return unit, nil
}

func formatCurrency(c Currency) string {
	if c.Amount == nil {
		return ""
	}
	p := message.NewPrinter(language.AmericanEnglish)
	amount := p.Sprint(number.Decimal(*c.Amount, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	unit, err := parseCurrency(c.Denomination)
	if err != nil || unit == currency.USD {
		return "$" + amount
	}
	return amount + " " + unit.String()
}
