package delivery

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/grantrelay/event"
)

// ErrInvalidRecord marks a record that can never be delivered.
var ErrInvalidRecord = errors.New("grantrelay: invalid record")

// Outcome is the typed result of one delivery attempt.
type Outcome int

const (
	// Delivered means the backend reflects the record; the record is deleted.
	Delivered Outcome = iota

	// Retry means the backend could not be reached or refused the call;
	// the record stays pending for the next sweep.
	Retry

	// Discard means the record is structurally invalid; it is deleted
	// without delivery.
	Discard
)

// String returns the lowercase outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Retry:
		return "retry"
	case Discard:
		return "discard"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result holds the outcome of a single delivery attempt.
type Result struct {
	Outcome Outcome
	Err     error
}

func delivered() Result { return Result{Outcome: Delivered} }

func retry(err error) Result { return Result{Outcome: Retry, Err: err} }

func discard(format string, args ...any) Result {
	return Result{Outcome: Discard, Err: fmt.Errorf("%w: "+format, append([]any{ErrInvalidRecord}, args...)...)}
}

// Deliverer translates a record into policy backend calls.
type Deliverer struct {
	backend Backend
}

// NewDeliverer creates a deliverer over backend.
func NewDeliverer(backend Backend) *Deliverer {
	return &Deliverer{backend: backend}
}

// Deliver performs the backend calls for rec and classifies the result.
//
// Decision matrix:
//   - ignore → Delivered, no backend call
//   - missing principal, missing role on apply, unknown operation → Discard
//   - ErrAlreadyExists / ErrAlreadyAbsent from the backend → treated as success
//   - any other backend error → Retry
func (d *Deliverer) Deliver(ctx context.Context, rec *event.Record) Result {
	switch rec.Operation {
	case event.OpIgnore:
		return delivered()

	case event.OpApplyGrant:
		if rec.Principal == "" {
			return discard("principal is required")
		}
		if rec.Role == "" {
			return discard("role is required for %s", rec.Operation)
		}
		if err := d.backend.CreatePrincipal(ctx, rec.Principal); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return retry(fmt.Errorf("create principal %q: %w", rec.Principal, err))
		}
		if err := d.backend.AssignRole(ctx, rec.Principal, rec.Role, rec.Tenant); err != nil && !errors.Is(err, ErrAlreadyExists) {
			return retry(fmt.Errorf("assign role %q to %q: %w", rec.Role, rec.Principal, err))
		}
		return delivered()

	case event.OpRetractGrant:
		if rec.Principal == "" {
			return discard("principal is required")
		}
		if err := d.backend.RemovePrincipal(ctx, rec.Principal); err != nil && !errors.Is(err, ErrAlreadyAbsent) {
			return retry(fmt.Errorf("remove principal %q: %w", rec.Principal, err))
		}
		return delivered()

	default:
		return discard("unknown operation %q", rec.Operation)
	}
}
