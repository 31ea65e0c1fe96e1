package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"ledger/internal/core"
)

func TestParsePeriodParams(t *testing.T) {
	now := time.Date(2025, time.May, 20, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		query      string
		wantPeriod core.Period
		wantAnchor time.Time
		wantErr    bool
	}{
		{"defaults", "", core.PeriodMonth, now, false},
		{"explicit month", "period=month&month=2024-02", core.PeriodMonth, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), false},
		{"year keeps current month", "period=year&year=2023", core.PeriodYear, time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC), false},
		{"all", "period=all", core.PeriodAll, now, false},
		{"month wins over year", "month=2022-11&year=2020", core.PeriodMonth, time.Date(2022, 11, 1, 0, 0, 0, 0, time.UTC), false},
		{"unknown period", "period=weekly", "", time.Time{}, true},
		{"bad month", "month=2024-13", "", time.Time{}, true},
		{"bad year", "year=20x4", "", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, _ := url.ParseQuery(tt.query)
			got, err := ParsePeriodParams(q, now)
			if tt.wantErr {
				if !errors.Is(err, core.ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Period != tt.wantPeriod {
				t.Errorf("Period = %v, want %v", got.Period, tt.wantPeriod)
			}
			if !got.Anchor.Equal(tt.wantAnchor) {
				t.Errorf("Anchor = %v, want %v", got.Anchor, tt.wantAnchor)
			}
		})
	}
}

func TestParseMonthsAndKind(t *testing.T) {
	for query, want := range map[string]int{"": DefaultTrendMonths, "months=1": 1, "months=60": 60} {
		q, _ := url.ParseQuery(query)
		got, err := ParseMonths(q)
		if err != nil || got != want {
			t.Errorf("ParseMonths(%q) = %d, %v; want %d", query, got, err, want)
		}
	}
	for _, query := range []string{"months=0", "months=61", "months=six"} {
		q, _ := url.ParseQuery(query)
		if _, err := ParseMonths(q); !errors.Is(err, core.ErrInvalidInput) {
			t.Errorf("ParseMonths(%q) expected ErrInvalidInput, got %v", query, err)
		}
	}

	q, _ := url.ParseQuery("kind=DEPOSIT")
	if k, err := ParseKind(q, core.Withdraw); err != nil || k != core.Deposit {
		t.Errorf("ParseKind = %v, %v", k, err)
	}
	if k, _ := ParseKind(url.Values{}, core.Withdraw); k != core.Withdraw {
		t.Errorf("ParseKind fallback = %v", k)
	}
}

func TestDecodeJSON(t *testing.T) {
	v := newValidator()
	decode := func(body string) (TransferRequest, error) {
		r := httptest.NewRequest(http.MethodPost, "/api/transfers", strings.NewReader(body))
		return DecodeJSON[TransferRequest](httptest.NewRecorder(), r, v)
	}

	req, err := decode(`{"from_account_id":"a","to_account_id":"b","amount":"12.50"}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Amount != "12.50" {
		t.Errorf("Amount = %q", req.Amount)
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing field uses json name", `{"from_account_id":"a","amount":"1"}`, "to_account_id is required"},
		{"unknown field", `{"from_account_id":"a","to_account_id":"b","amount":"1","x":1}`, "malformed JSON body"},
		{"two objects", `{"from_account_id":"a","to_account_id":"b","amount":"1"}{}`, "malformed JSON body"},
		{"empty", ``, "request body is empty"},
		{"too long note", `{"from_account_id":"a","to_account_id":"b","amount":"1","note":"` + strings.Repeat("n", 501) + `"}`, "note must satisfy max=500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.body)
			if !errors.Is(err, core.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestParseRates(t *testing.T) {
	rates, err := ParseRates(map[string]string{" usd ": "30,5", "TRY": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rates[core.USD].String(); got != "30.5" {
		t.Errorf("USD rate = %s, want 30.5", got)
	}
	if _, err := ParseRates(map[string]string{"EUR": "-1"}); !errors.Is(err, core.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}
