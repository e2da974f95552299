package tenant

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DefaultOrgField is the struct field holding the owning organization of a record.
const DefaultOrgField = "OrgID"

// ScopeConfig describes how one collection is scoped. It is built once at startup and
// never mutated afterwards.
type ScopeConfig struct {
	// OrgField names the organization field (struct field, column or bson key).
	OrgField string
	// ExemptRoles bypass automatic scoping entirely.
	ExemptRoles []string
	// ParseOrgID converts the org id held in the request scope into the value stored in
	// OrgField. A nil ParseOrgID selects a default based on the field type.
	ParseOrgID func(raw string) (any, error)
}

// IsExempt reports whether role bypasses scoping.
func (c ScopeConfig) IsExempt(role string) bool {
	role = strings.TrimSpace(role)
	if role == "" {
		return false
	}
	for _, exempt := range c.ExemptRoles {
		if strings.EqualFold(exempt, role) {
			return true
		}
	}
	return false
}

// Decision is the outcome of evaluating whether an operation gets an org filter.
type Decision int

const (
	DecisionScope Decision = iota
	DecisionNoContext
	DecisionSkipOperation
	DecisionSkipContext
	DecisionExemptRole
	DecisionNoOrg
	DecisionInvalidOrg
	DecisionExplicit
)

func (d Decision) String() string {
	switch d {
	case DecisionScope:
		return "scoped"
	case DecisionNoContext:
		return "no_context"
	case DecisionSkipOperation:
		return "skip_operation"
	case DecisionSkipContext:
		return "skip_context"
	case DecisionExemptRole:
		return "exempt_role"
	case DecisionNoOrg:
		return "no_org"
	case DecisionInvalidOrg:
		return "invalid_org"
	case DecisionExplicit:
		return "explicit"
	default:
		return "unknown"
	}
}

// Decide evaluates the scoping rules in order: no active scope, per-operation skip,
// scope-wide skip, exempt role, missing org. Any of them disables filtering; the
// missing-scope case fails open on purpose so startup code and public endpoints work.
func Decide(ctx context.Context, cfg ScopeConfig, skipOperation bool) (Context, Decision) {
	tc, ok := Get(ctx)
	switch {
	case !ok:
		return tc, DecisionNoContext
	case skipOperation:
		return tc, DecisionSkipOperation
	case tc.SkipTenant:
		return tc, DecisionSkipContext
	case cfg.IsExempt(tc.Role):
		return tc, DecisionExemptRole
	case strings.TrimSpace(tc.OrgID) == "":
		return tc, DecisionNoOrg
	}
	return tc, DecisionScope
}

// ShouldScope reports whether an org filter must be applied.
func ShouldScope(ctx context.Context, cfg ScopeConfig, skipOperation bool) bool {
	_, d := Decide(ctx, cfg, skipOperation)
	return d == DecisionScope
}

// NormalizeOrgID returns the canonical form of an organization id.
func NormalizeOrgID(raw string) (string, error) {
	id, err := ParseOrgUUID(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ParseOrgUUID parses an organization id.
func ParseOrgUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("tenant: empty org id")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("tenant: malformed org id %q: %w", raw, err)
	}
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("tenant: nil org id")
	}
	return id, nil
}
