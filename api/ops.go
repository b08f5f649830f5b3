package api

import (
	"errors"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/grantrelay"
	"github.com/xraph/grantrelay/delivery"
	"github.com/xraph/grantrelay/dlq"
	"github.com/xraph/grantrelay/event"
	"github.com/xraph/grantrelay/id"
)

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.relay.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// listPending returns pending records, oldest first.
func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	recs, err := h.relay.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].ReceivedAt.Before(recs[j].ReceivedAt)
	})
	if limit := queryInt(r, "limit", 0); limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []*event.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) getPending(w http.ResponseWriter, r *http.Request) {
	recID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}
	rec, err := h.relay.Record(r.Context(), recID)
	if errors.Is(err, grantrelay.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type sweepResponse struct {
	delivery.SweepStats
	DurationMs int64 `json:"duration_ms"`
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	stats, err := h.relay.Sweep(r.Context())
	if errors.Is(err, grantrelay.ErrSweepInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sweepResponse{SweepStats: stats, DurationMs: stats.Duration.Milliseconds()})
}

func (h *Handler) listDiscarded(w http.ResponseWriter, r *http.Request) {
	entries, err := h.relay.DLQ().List(r.Context(), dlq.ListOpts{
		Offset: queryInt(r, "offset", 0),
		Limit:  queryInt(r, "limit", 50),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []*dlq.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) getDiscarded(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseDiscardID(chi.URLParam(r, "entryID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid entry id")
		return
	}
	entry, err := h.relay.DLQ().Get(r.Context(), entryID)
	if errors.Is(err, dlq.ErrEntryNotFound) {
		writeError(w, http.StatusNotFound, "entry not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

type statsResponse struct {
	Pending   int  `json:"pending"`
	Discarded int  `json:"discarded"`
	Ready     bool `json:"ready"`
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	recs, err := h.relay.Pending(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entries, err := h.relay.DLQ().List(ctx, dlq.ListOpts{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, statsResponse{
		Pending:   len(recs),
		Discarded: len(entries),
		Ready:     h.relay.Ready(),
	})
}
