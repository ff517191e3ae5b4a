package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"pricewatch/models"
	"pricewatch/scheduler"
	"pricewatch/services"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// PushRegistry stores web push subscriptions
type PushRegistry interface {
	Subscribe(sub webpush.Subscription) error
}

type Handlers struct {
	fetcher     scheduler.Fetcher
	portfolio   *services.Portfolio
	taskManager *scheduler.TaskManager
	push        PushRegistry
	maxBody     int64
	logger      *zap.Logger
}

func NewHandlers(fetcher scheduler.Fetcher, portfolio *services.Portfolio, taskManager *scheduler.TaskManager, push PushRegistry, maxBody int64, logger *zap.Logger) *Handlers {
	return &Handlers{
		fetcher:     fetcher,
		portfolio:   portfolio,
		taskManager: taskManager,
		push:        push,
		maxBody:     maxBody,
		logger:      logger,
	}
}

// RegisterRoutes mounts the v1 API on r
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()

	apiV1.HandleFunc("/preview", h.Preview).Methods("POST")

	apiV1.HandleFunc("/items", h.TrackItem).Methods("POST")
	apiV1.HandleFunc("/items", h.ListItems).Methods("GET")
	apiV1.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	apiV1.HandleFunc("/items/{id}", h.UpdateItem).Methods("PATCH")
	apiV1.HandleFunc("/items/{id}", h.DeleteItem).Methods("DELETE")
	apiV1.HandleFunc("/items/{id}/refresh", h.RefreshItem).Methods("POST")
	apiV1.HandleFunc("/refresh", h.RefreshAll).Methods("POST")

	// stats must be matched before {taskId}
	apiV1.HandleFunc("/tasks/stats", h.GetTaskStats).Methods("GET")
	apiV1.HandleFunc("/tasks/{taskId}", h.GetTaskStatus).Methods("GET")
	apiV1.HandleFunc("/tasks/{taskId}", h.CancelTask).Methods("DELETE")

	apiV1.HandleFunc("/push/subscriptions", h.Subscribe).Methods("POST")
}

// HealthCheck reports liveness
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   "pricewatch",
		"status":    "healthy",
		"timestamp": time.Now(),
		"items":     len(h.portfolio.Snapshot()),
	})
}

type previewRequest struct {
	URL string `json:"url"`
}

type trackRequest struct {
	URL         string   `json:"url"`
	TargetPrice *float64 `json:"target_price,omitempty"`
}

type updateRequest struct {
	TargetPrice  *float64 `json:"target_price,omitempty"`
	ClearTarget  bool     `json:"clear_target,omitempty"`
	IsMonitoring *bool    `json:"is_monitoring,omitempty"`
}

// Preview fetches a page without tracking it
func (h *Handlers) Preview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !h.decode(w, r, &req) {
		return
	}

	rec, err := h.fetcher.FetchOne(r.Context(), req.URL)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// TrackItem fetches a page and starts tracking it
func (h *Handlers) TrackItem(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.TargetPrice != nil && *req.TargetPrice < 0 {
		writeError(w, http.StatusBadRequest, "target_price must not be negative")
		return
	}

	// fail fast before spending a page load on a known URL
	if err := models.Register(req.URL, h.portfolio.Snapshot()); err != nil {
		h.writeFailure(w, err)
		return
	}

	rec, err := h.fetcher.FetchOne(r.Context(), req.URL)
	if err != nil {
		h.writeFailure(w, err)
		return
	}

	item, err := h.portfolio.Track(r.Context(), req.URL, rec, req.TargetPrice)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, &item)
}

// ListItems returns every tracked item
func (h *Handlers) ListItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.portfolio.Snapshot())
}

// GetItem returns one item with its history and derived metrics
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.portfolio.Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &item)
}

// UpdateItem changes the target price or the monitoring flag
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req updateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TargetPrice != nil && *req.TargetPrice < 0 {
		writeError(w, http.StatusBadRequest, "target_price must not be negative")
		return
	}

	item, err := h.portfolio.Get(id)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	if req.TargetPrice != nil || req.ClearTarget {
		if item, err = h.portfolio.SetTarget(r.Context(), id, req.TargetPrice); err != nil {
			h.writeFailure(w, err)
			return
		}
	}
	if req.IsMonitoring != nil {
		if item, err = h.portfolio.SetMonitoring(r.Context(), id, *req.IsMonitoring); err != nil {
			h.writeFailure(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, &item)
}

// DeleteItem stops tracking an item
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.portfolio.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshItem starts a background refresh of one item
func (h *Handlers) RefreshItem(w http.ResponseWriter, r *http.Request) {
	h.submit(w, []string{mux.Vars(r)["id"]})
}

// RefreshAll starts a background refresh of every item
func (h *Handlers) RefreshAll(w http.ResponseWriter, r *http.Request) {
	h.submit(w, nil)
}

func (h *Handlers) submit(w http.ResponseWriter, ids []string) {
	task, err := h.taskManager.Submit(ids)
	if err != nil {
		h.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, task.Snapshot())
}

// GetTaskStatus returns the progress of a refresh task
func (h *Handlers) GetTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, exists := h.taskManager.GetTask(mux.Vars(r)["taskId"])
	if !exists {
		writeError(w, http.StatusNotFound, "Task not found")
		return
	}
	writeJSON(w, http.StatusOK, task.Snapshot())
}

// CancelTask asks a refresh task to stop after its current item
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	if err := h.taskManager.Cancel(mux.Vars(r)["taskId"]); err != nil {
		h.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// GetTaskStats returns task manager statistics
func (h *Handlers) GetTaskStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.taskManager.GetStats())
}

// Subscribe stores a browser push subscription
func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	if h.push == nil {
		writeError(w, http.StatusNotImplemented, "Push notifications are not configured")
		return
	}
	var sub webpush.Subscription
	if !h.decode(w, r, &sub) {
		return
	}
	if err := h.push.Subscribe(sub); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if h.maxBody > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeFailure maps domain errors onto HTTP statuses
func (h *Handlers) writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"kind":  string(models.KindOf(err)),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrDuplicateProduct):
		return http.StatusConflict
	case errors.Is(err, models.ErrItemNotFound), errors.Is(err, models.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	}

	switch models.KindOf(err) {
	case models.KindInvalidURL:
		return http.StatusBadRequest
	case models.KindNoData:
		return http.StatusBadGateway
	case models.KindParsing:
		return http.StatusUnprocessableEntity
	case models.KindTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
