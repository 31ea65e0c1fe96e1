// Package currency converts amounts between currencies using a single
// snapshot rate table. Every function is pure.
package currency

import (
	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// ToBase converts amount from the given currency into settings.Base.
//
// When from is the base currency the input is returned unchanged. When either
// rate is missing or zero the input is also returned unchanged; use
// CanConvert to tell the two cases apart.
func ToBase(amount decimal.Decimal, from core.Currency, settings core.CurrencySettings) decimal.Decimal {
	return Convert(amount, from, settings.Base, settings)
}

// Convert converts amount between two currencies of the rate table.
func Convert(amount decimal.Decimal, from, to core.Currency, settings core.CurrencySettings) decimal.Decimal {
	if from == to {
		return amount
	}
	fromRate, toRate, ok := rates(from, to, settings)
	if !ok {
		return amount
	}
	// One division keeps integer rate conversions exact.
	return amount.Mul(fromRate).Div(toRate)
}

// CanConvert reports whether ToBase performs a real conversion for from.
func CanConvert(from core.Currency, settings core.CurrencySettings) bool {
	if from == settings.Base {
		return true
	}
	_, _, ok := rates(from, settings.Base, settings)
	return ok
}

// RateOf returns how many units of code one unit of the base currency buys,
// e.g. 1 TRY = 0.0333 USD. The second result is false when a rate is unusable.
func RateOf(code core.Currency, settings core.CurrencySettings) (decimal.Decimal, bool) {
	if code == settings.Base {
		return decimal.NewFromInt(1), true
	}
	codeRate, baseRate, ok := rates(code, settings.Base, settings)
	if !ok {
		return decimal.Zero, false
	}
	return baseRate.Div(codeRate), true
}

// SameCurrency reports whether two amounts can move between accounts without
// conversion.
func SameCurrency(a, b core.Currency) bool {
	return a == b
}

// Format rounds amount to the currency's minor unit and renders it with the
// currency's symbol. It belongs at display boundaries only.
func Format(amount decimal.Decimal, code core.Currency) string {
	cur := money.GetCurrency(string(code))
	if cur == nil {
		return amount.StringFixed(2) + " " + string(code)
	}
	minor := amount.Round(int32(cur.Fraction)).Shift(int32(cur.Fraction)).IntPart()
	return cur.Formatter().Format(minor)
}

// Round rounds amount to the currency's minor unit (two digits when unknown).
func Round(amount decimal.Decimal, code core.Currency) decimal.Decimal {
	if cur := money.GetCurrency(string(code)); cur != nil {
		return amount.Round(int32(cur.Fraction))
	}
	return amount.Round(2)
}

func rates(from, to core.Currency, settings core.CurrencySettings) (decimal.Decimal, decimal.Decimal, bool) {
	fromRate, ok := settings.Rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	toRate, ok := settings.Rates[to]
	if !ok || toRate.IsZero() {
		return decimal.Zero, decimal.Zero, false
	}
	return fromRate, toRate, true
}
