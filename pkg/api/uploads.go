// This file contains the management API request handlers.
//
// All endpoints are read-only views over the upload governor; uploads are
// driven by the peer protocol, not the management surface.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/droserasprout/slskd/pkg/upload"
)

// UploadsHandler serves queue and group state from the governor.
type UploadsHandler struct {
	governor *upload.Governor
}

// NewUploadsHandler creates a handler backed by the given governor.
func NewUploadsHandler(governor *upload.Governor) *UploadsHandler {
	return &UploadsHandler{governor: governor}
}

// uploadView is the JSON shape of one tracked upload.
type uploadView struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Filename   string     `json:"filename"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	ReadyAt    *time.Time `json:"ready_at,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	Group      string     `json:"group,omitempty"`
}

// groupView is the JSON shape of one scheduling group.
type groupView struct {
	Name      string `json:"name"`
	Priority  int    `json:"priority"`
	Slots     int    `json:"slots"`
	UsedSlots int    `json:"used_slots"`
	Strategy  string `json:"strategy"`
}

// List handles GET /api/v0/uploads - a snapshot of all tracked uploads in
// per-user enqueue order.
func (h *UploadsHandler) List(w http.ResponseWriter, r *http.Request) {
	snapshot := h.governor.Snapshot()

	views := make([]uploadView, 0, len(snapshot))
	for _, u := range snapshot {
		v := uploadView{
			ID:         u.ID.String(),
			Username:   u.Username,
			Filename:   u.Filename,
			EnqueuedAt: u.EnqueuedAt,
			Group:      u.PinnedGroup,
		}
		if !u.ReadyAt.IsZero() {
			t := u.ReadyAt
			v.ReadyAt = &t
		}
		if !u.StartedAt.IsZero() {
			t := u.StartedAt
			v.StartedAt = &t
		}
		views = append(views, v)
	}

	JSON(w, http.StatusOK, OKResponse(map[string]interface{}{
		"uploads": views,
		"count":   len(views),
	}))
}

// Position handles GET /api/v0/uploads/{username}/position.
//
// Without a query parameter it returns the user-level estimate and whether
// the user's group currently has a free slot. With ?file=<filename> it
// returns the 0-based position of that specific upload, or 404 if the
// upload is not queued.
func (h *UploadsHandler) Position(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	if filename := r.URL.Query().Get("file"); filename != "" {
		position, err := h.governor.EstimatePositionOf(username, filename)
		if err != nil {
			if errors.Is(err, upload.ErrNotEnqueued) {
				JSON(w, http.StatusNotFound, ErrorResponse("upload not enqueued"))
				return
			}
			JSON(w, http.StatusInternalServerError, ErrorResponse("failed to estimate position"))
			return
		}

		JSON(w, http.StatusOK, OKResponse(map[string]interface{}{
			"username": username,
			"filename": filename,
			"position": position,
		}))
		return
	}

	JSON(w, http.StatusOK, OKResponse(map[string]interface{}{
		"username":       username,
		"position":       h.governor.EstimatePosition(username),
		"slot_available": h.governor.IsSlotAvailable(username),
	}))
}

// Groups handles GET /api/v0/groups - the current group table with live
// slot usage, in dispatch order.
func (h *UploadsHandler) Groups(w http.ResponseWriter, r *http.Request) {
	groups := h.governor.Groups()

	views := make([]groupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, groupView{
			Name:      g.Name,
			Priority:  g.Priority,
			Slots:     g.Slots,
			UsedSlots: g.UsedSlots,
			Strategy:  g.Strategy.String(),
		})
	}

	JSON(w, http.StatusOK, OKResponse(map[string]interface{}{
		"groups": views,
	}))
}
