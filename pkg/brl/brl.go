// Package brl formats money and dates the way Brazilian users read them.
package brl

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var months = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

// Format renders d as "R$ 1.234,56". Negative values get a leading minus.
func Format(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	intPart, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + frac
}

// Date renders t as DD/MM/YYYY.
func Date(t time.Time) string {
	return t.Format("02/01/2006")
}

// MonthYear renders t as "março de 2025".
func MonthYear(t time.Time) string {
	return months[t.Month()-1] + " de " + t.Format("2006")
}
