// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// JSON bodies checked against validator tags, and the period/month query
// parameters shared by the listing and report endpoints.

package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// strictJSON rejects unknown fields and trailing data.
var strictJSON = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	DisallowUnknownFields:  true,
}.Froze()

const (
	// MaxBodyBytes caps every request body.
	MaxBodyBytes = 1 << 20

	DefaultTrendMonths = 6
	MaxTrendMonths     = 60
)

// PeriodParams holds the report window requested by the client.
type PeriodParams struct {
	Period core.Period
	Anchor time.Time
}

// newValidator reports field errors by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON reads a single JSON object into a T and validates it. Every
// failure wraps core.ErrInvalidInput.
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, v *validator.Validate) (T, error) {
	var out T
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return out, fmt.Errorf("%w: read request body: %v", core.ErrInvalidInput, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return out, fmt.Errorf("%w: request body is empty", core.ErrInvalidInput)
	}
	if err := strictJSON.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidInput, err)
	}
	if err := v.Struct(out); err != nil {
		return out, validationError(err)
	}
	return out, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", core.ErrInvalidInput, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s is %s", fe.Field(), fe.Tag()))
		}
	}
	return fmt.Errorf("%w: %s", core.ErrInvalidInput, strings.Join(msgs, "; "))
}

// ParsePeriodParams reads ?period= and the month anchor. The anchor comes
// from ?month=YYYY-MM, or ?year= (keeping now's month), or defaults to now.
func ParsePeriodParams(query url.Values, now time.Time) (PeriodParams, error) {
	period, err := core.ParsePeriod(query.Get("period"))
	if err != nil {
		return PeriodParams{}, err
	}
	params := PeriodParams{Period: period, Anchor: now}

	if v := strings.TrimSpace(query.Get("month")); v != "" {
		m, err := time.ParseInLocation("2006-01", v, now.Location())
		if err != nil {
			return PeriodParams{}, fmt.Errorf("%w: month must look like YYYY-MM, got %q", core.ErrInvalidInput, v)
		}
		params.Anchor = m
		return params, nil
	}
	if v := strings.TrimSpace(query.Get("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1 || y > 9999 {
			return PeriodParams{}, fmt.Errorf("%w: invalid year %q", core.ErrInvalidInput, v)
		}
		params.Anchor = time.Date(y, now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	return params, nil
}

// ParseKind reads ?kind=, defaulting to withdraw.
func ParseKind(query url.Values, fallback core.Kind) (core.Kind, error) {
	v := strings.ToLower(strings.TrimSpace(query.Get("kind")))
	if v == "" {
		return fallback, nil
	}
	k := core.Kind(v)
	if !k.Valid() {
		return "", fmt.Errorf("%w: unknown transaction kind %q", core.ErrInvalidInput, v)
	}
	return k, nil
}

// ParseMonths reads ?months= for the trend report.
func ParseMonths(query url.Values) (int, error) {
	v := strings.TrimSpace(query.Get("months"))
	if v == "" {
		return DefaultTrendMonths, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > MaxTrendMonths {
		return 0, fmt.Errorf("%w: months must be between 1 and %d", core.ErrInvalidInput, MaxTrendMonths)
	}
	return n, nil
}

// ParseRates converts a code -> decimal string table.
func ParseRates(in map[string]string) (map[core.Currency]decimal.Decimal, error) {
	out := make(map[core.Currency]decimal.Decimal, len(in))
	for code, raw := range in {
		rate, err := core.ParseAmount(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s must be a positive decimal", core.ErrInvalidInput, code)
		}
		out[core.Currency(strings.ToUpper(strings.TrimSpace(code)))] = rate
	}
	return out, nil
}
