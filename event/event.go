package event

import (
	"encoding/json"
	"time"

	"github.com/xraph/grantrelay/id"
)

// Operation is the policy change a record asks for.
type Operation string

const (
	// OpApplyGrant ensures the principal exists and holds Role in Tenant.
	OpApplyGrant Operation = "apply-grant"

	// OpRetractGrant removes the principal from the policy backend.
	OpRetractGrant Operation = "retract-grant"

	// OpIgnore is accepted and acknowledged without touching the backend.
	OpIgnore Operation = "ignore"
)

// Valid reports whether op is one of the known operations.
func (op Operation) Valid() bool {
	switch op {
	case OpApplyGrant, OpRetractGrant, OpIgnore:
		return true
	}
	return false
}

// OperationForAction maps an upstream membership action to an operation.
// The second return value is false when the action is not recognised, in
// which case the operation is OpIgnore.
func OperationForAction(action string) (Operation, bool) {
	switch action {
	case "member_added", "added":
		return OpApplyGrant, true
	case "member_removed", "removed":
		return OpRetractGrant, true
	case "member_invited", "invited":
		return OpIgnore, true
	default:
		return OpIgnore, false
	}
}

// Record is one inbound membership change, stored until it has been
// delivered. Records are never updated in place.
type Record struct {
	// ID is the unique TypeID assigned at intake.
	ID id.ID `json:"id"`

	// Operation is the policy change to apply.
	Operation Operation `json:"operation"`

	// Principal is the external login used as the policy user key.
	Principal string `json:"principal"`

	// Role is the role to grant. Only used by OpApplyGrant.
	Role string `json:"role,omitempty"`

	// Tenant is the policy backend partition.
	Tenant string `json:"tenant"`

	// Action is the upstream action verbatim.
	Action string `json:"action"`

	// RawPayload is the original inbound body.
	RawPayload json.RawMessage `json:"raw_payload,omitempty"`

	// ReceivedAt is the time of first intake. Retention is measured from it.
	ReceivedAt time.Time `json:"received_at"`
}

// ExpiresAt returns the time at which a store with the given TTL drops r.
func (r *Record) ExpiresAt(ttl time.Duration) time.Time {
	return r.ReceivedAt.Add(ttl)
}
