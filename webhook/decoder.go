// Package webhook turns inbound organization-membership webhook bodies into
// event records.
//
// Only the presence of a non-empty "action" is checked before a record is
// built. Everything else is extracted leniently: a payload with a missing
// login or role still becomes a record, and delivery discards it later.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/xraph/grantrelay/event"
)

// ErrInvalidPayload is returned for bodies that are not JSON objects with a
// non-empty string "action".
var ErrInvalidPayload = errors.New("grantrelay: invalid webhook payload")

const schemaURL = "grantrelay://schema/membership-webhook.json"

// payloadSchema is the boundary contract. Membership fields are deliberately
// not required.
var payloadSchema = map[string]any{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type":    "object",
	"properties": map[string]any{
		"action": map[string]any{"type": "string", "minLength": 1},
	},
	"required": []any{"action"},
}

type payload struct {
	Action     string `json:"action"`
	Membership struct {
		Role string `json:"role"`
		User struct {
			Login string `json:"login"`
		} `json:"user"`
	} `json:"membership"`
}

// Decoder validates and maps webhook bodies.
type Decoder struct {
	schema *jsonschema.Schema
	tenant string
	logger *slog.Logger
}

// NewDecoder compiles the payload schema. Records are stamped with tenant.
func NewDecoder(tenant string, logger *slog.Logger) (*Decoder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, payloadSchema); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Decoder{schema: compiled, tenant: tenant, logger: logger}, nil
}

// Decode validates body and maps it to a record. ID and ReceivedAt are left
// for the intake path to assign.
func (d *Decoder) Decode(body []byte) (*event.Record, error) {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := d.schema.Validate(inst); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	action, _ := inst.(map[string]any)["action"].(string)

	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		// Membership has an unexpected shape; keep the action so the
		// record is still persisted.
		d.logger.Warn("webhook membership fields unreadable", "action", action, "error", err)
		p = payload{Action: action}
	}

	op, known := event.OperationForAction(action)
	if !known {
		d.logger.Warn("unrecognized membership action, ignoring", "action", action)
	}

	raw := make(json.RawMessage, len(body))
	copy(raw, body)

	rec := &event.Record{
		Operation:  op,
		Principal:  p.Membership.User.Login,
		Tenant:     d.tenant,
		Action:     action,
		RawPayload: raw,
	}
	if op == event.OpApplyGrant {
		rec.Role = p.Membership.Role
	}
	return rec, nil
}
