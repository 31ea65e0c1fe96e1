package core

import (
	"fmt"
	"strings"
)

// Report periods.
const (
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
	PeriodAll   Period = "all"
)

// Budget periods.
const (
	Monthly BudgetPeriod = "monthly"
	Yearly  BudgetPeriod = "yearly"
)

type (
	Period       string
	BudgetPeriod string
)

func ParsePeriod(s string) (Period, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "month", "monthly", "":
		return PeriodMonth, nil
	case "year", "yearly":
		return PeriodYear, nil
	case "all":
		return PeriodAll, nil
	default:
		return PeriodMonth, fmt.Errorf("%w: unknown period %q", ErrInvalidInput, s)
	}
}

func (p Period) Valid() bool {
	return p == PeriodMonth || p == PeriodYear || p == PeriodAll
}

func (p BudgetPeriod) Valid() bool {
	return p == Monthly || p == Yearly
}

// Window returns the report period a budget period is evaluated over.
func (p BudgetPeriod) Window() Period {
	if p == Yearly {
		return PeriodYear
	}
	return PeriodMonth
}
