package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/signature"
)

type intakeResponse struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// receiveMembership accepts an organization-membership webhook.
//
// Status codes:
//   - 200 delivered or discarded (non-retryable, nothing to retry)
//   - 202 persisted, delivery failed; the sweeper retries it
//   - 400 body is not JSON or has no action; nothing persisted
//   - 401 signature mismatch; nothing persisted
//   - 500 record could not be persisted
func (h *Handler) receiveMembership(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	if h.config.WebhookSecret != "" {
		if err := signature.Check(body, h.config.WebhookSecret, r.Header.Get(signature.Header)); err != nil {
			h.recordIntake("unauthorized")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
	}

	rec, err := h.decoder.Decode(body)
	if err != nil {
		h.recordIntake("rejected")
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.relay.Intake(ctx, rec)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "event could not be recorded")
		return
	}

	resp := intakeResponse{ID: res.ID.String()}
	if res.DeliveryErr != nil {
		resp.Error = res.DeliveryErr.Error()
	}

	switch res.Outcome {
	case delivery.Delivered:
		resp.Status = "delivered"
		writeJSON(w, http.StatusOK, resp)
	case delivery.Discard:
		resp.Status = "discarded"
		writeJSON(w, http.StatusOK, resp)
	default:
		resp.Status = "pending"
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func (h *Handler) recordIntake(status string) {
	if h.config.Metrics != nil {
		h.config.Metrics.RecordIntake(status)
	}
}
