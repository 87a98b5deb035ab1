package workflow

import (
	"fmt"

	"github.com/garyjia/medical-claims/internal/domain/entity"
)

type edge struct {
	from entity.ClaimStatus
	to   entity.ClaimStatus
}

// Table is an immutable set of transition rules keyed by (from, to)
type Table struct {
	rules []Rule
	index map[edge]int
}

// NewTable validates the rules and builds a lookup table
func NewTable(rules ...Rule) (*Table, error) {
	t := &Table{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[edge]int, len(rules)),
	}

	for _, r := range rules {
		if !r.From.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, r.From)
		}
		if !r.To.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, r.To)
		}
		if len(r.RequiredRoles) == 0 {
			return nil, fmt.Errorf("%w: %s -> %s", ErrNoRoles, r.From, r.To)
		}

		key := edge{from: r.From, to: r.To}
		if _, exists := t.index[key]; exists {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateRule, r.From, r.To)
		}

		roles := make([]string, len(r.RequiredRoles))
		copy(roles, r.RequiredRoles)
		r.RequiredRoles = roles

		t.index[key] = len(t.rules)
		t.rules = append(t.rules, r)
	}

	return t, nil
}

// Lookup returns the rule for the exact (from, to) pair
func (t *Table) Lookup(from, to entity.ClaimStatus) (Rule, bool) {
	i, ok := t.index[edge{from: from, to: to}]
	if !ok {
		return Rule{}, false
	}
	return t.rules[i], true
}

// Targets returns the statuses reachable from the given status, in rule order
func (t *Table) Targets(from entity.ClaimStatus) []entity.ClaimStatus {
	var targets []entity.ClaimStatus
	for _, r := range t.rules {
		if r.From == from {
			targets = append(targets, r.To)
		}
	}
	return targets
}

// PermittedTargets returns the reachable statuses the caller's roles allow
func (t *Table) PermittedTargets(from entity.ClaimStatus, roles []string) []entity.ClaimStatus {
	var targets []entity.ClaimStatus
	for _, r := range t.rules {
		if r.From == from && r.Permits(roles) {
			targets = append(targets, r.To)
		}
	}
	return targets
}

// Rules returns a copy of all rules
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}
