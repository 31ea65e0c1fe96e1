package ledger

import (
	"fmt"
	"strings"

	"ledger/internal/core"
)

// FloorPolicy lists the account types whose balance may not go below zero on
// a withdrawal. The zero value allows overdraft everywhere. Transfers always
// enforce the floor on the source account.
type FloorPolicy struct {
	types map[core.AccountType]struct{}
}

func NewFloorPolicy(types ...core.AccountType) FloorPolicy {
	p := FloorPolicy{types: map[core.AccountType]struct{}{}}
	for _, t := range types {
		p.types[t] = struct{}{}
	}
	return p
}

// ParseFloorPolicy reads a comma separated list such as "cash,savings".
func ParseFloorPolicy(s string) (FloorPolicy, error) {
	var types []core.AccountType
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		t := core.AccountType(part)
		if !t.Valid() {
			return FloorPolicy{}, fmt.Errorf("%w: unknown account type %q", core.ErrInvalidInput, part)
		}
		types = append(types, t)
	}
	return NewFloorPolicy(types...), nil
}

func (p FloorPolicy) Applies(t core.AccountType) bool {
	_, ok := p.types[t]
	return ok
}
