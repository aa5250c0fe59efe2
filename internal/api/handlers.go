// Package api serves the operator-facing HTTP surface: synchronous
// dispatch, campaign lifecycle, queueing, pool status and suppression
// management. Recipient-facing routes live in internal/tracking.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
	"github.com/arkmail/dispatch/internal/service/campaign"
	"github.com/arkmail/dispatch/internal/service/dispatch"
	"github.com/arkmail/dispatch/internal/service/selector"
	"github.com/arkmail/dispatch/internal/service/suppression"
)

// Dispatcher runs the delivery pipeline synchronously for one batch.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string, subscriberIDs []string) ([]domain.DispatchResult, error)
}

// CampaignService manages the campaign lifecycle.
type CampaignService interface {
	Create(ctx context.Context, input campaign.CreateInput) (*domain.Campaign, error)
	Get(ctx context.Context, id string) (*domain.Campaign, error)
	List(ctx context.Context, f campaign.ListFilter) ([]domain.Campaign, int, error)
	Update(ctx context.Context, id string, u campaign.UpdateFields) error
	Delete(ctx context.Context, id string) error
	Queue(ctx context.Context, campaignID string, subscriberIDs []string) (int, error)
	Stats(ctx context.Context, id string) (*campaign.Stats, error)
}

// ServerPool exposes the live relay scores.
type ServerPool interface {
	Status() []selector.ServerStatus
}

// SuppressionService manages the do-not-send list.
type SuppressionService interface {
	List(ctx context.Context, f suppression.ListFilter) ([]domain.Suppression, int, error)
	GetStats(ctx context.Context) (*suppression.Stats, error)
	Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error
	Remove(ctx context.Context, email string) error
}

// Handlers carries the service dependencies for every route.
type Handlers struct {
	dispatcher  Dispatcher
	campaigns   CampaignService
	pool        ServerPool
	suppression SuppressionService
	validate    *validator.Validate
}

// NewHandlers wires the route handlers.
func NewHandlers(dispatcher Dispatcher, campaigns CampaignService, pool ServerPool, supp SuppressionService) *Handlers {
	return &Handlers{
		dispatcher:  dispatcher,
		campaigns:   campaigns,
		pool:        pool,
		suppression: supp,
		validate:    validator.New(),
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// serviceError translates service-layer failures into status codes.
func serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound),
		errors.Is(err, dispatch.ErrNotFound),
		errors.Is(err, suppression.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, campaign.ErrAlreadySending):
		respondError(w, http.StatusConflict, err.Error())
	case domain.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed", "error", err.Error())
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate unmarshals the body into dst and runs struct validation.
func (h *Handlers) decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: "invalid JSON"}
	}
	if err := h.validate.Struct(dst); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   "dispatch-api",
		"timestamp": time.Now(),
	})
}

type dispatchRequest struct {
	CampaignID    string   `json:"campaign_id" validate:"required,uuid4"`
	SubscriberIDs []string `json:"subscriber_ids" validate:"required,min=1,dive,uuid4"`
}

// HandleDispatch runs the engine synchronously for an explicit recipient
// list and returns the per-recipient results.
func (h *Handlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	results, err := h.dispatcher.Dispatch(r.Context(), req.CampaignID, req.SubscriberIDs)
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaign_id": req.CampaignID,
		"results":     results,
	})
}

type queueRequest struct {
	SubscriberIDs []string `json:"subscriber_ids" validate:"omitempty,dive,uuid4"`
}

// HandleQueueCampaign enqueues recipients into send_queue for the worker
// pool. An empty subscriber list queues every active, unsuppressed
// subscriber.
func (h *Handlers) HandleQueueCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req queueRequest
	if r.ContentLength > 0 {
		if err := h.decodeAndValidate(r, &req); err != nil {
			serviceError(w, err)
			return
		}
	}

	queued, err := h.campaigns.Queue(r.Context(), id, req.SubscriberIDs)
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"campaign_id": id,
		"queued":      queued,
	})
}

// HandleServers returns the relay pool with live selector scores.
func (h *Handlers) HandleServers(w http.ResponseWriter, r *http.Request) {
	servers := h.pool.Status()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"servers": servers,
		"count":   len(servers),
	})
}

// HandleCampaignStats returns the counters and rates for one campaign.
func (h *Handlers) HandleCampaignStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.campaigns.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type createCampaignRequest struct {
	Name      string `json:"name" validate:"required"`
	Subject   string `json:"subject" validate:"required"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email" validate:"required,email"`
	ReplyTo   string `json:"reply_to" validate:"omitempty,email"`
	HTMLBody  string `json:"html_body"`
	TextBody  string `json:"text_body"`
}

// HandleCreateCampaign creates a draft campaign.
func (h *Handlers) HandleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	c, err := h.campaigns.Create(r.Context(), campaign.CreateInput{
		Name:      req.Name,
		Subject:   req.Subject,
		FromName:  req.FromName,
		FromEmail: req.FromEmail,
		ReplyTo:   req.ReplyTo,
		HTMLBody:  req.HTMLBody,
		TextBody:  req.TextBody,
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c)
}

// HandleListCampaigns lists campaigns with optional status/search filters.
func (h *Handlers) HandleListCampaigns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := campaign.ListFilter{
		Status: q.Get("status"),
		Search: q.Get("search"),
		Limit:  intQuery(q.Get("limit"), 50),
		Offset: intQuery(q.Get("offset"), 0),
	}

	campaigns, total, err := h.campaigns.List(r.Context(), f)
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": campaigns,
		"total":     total,
	})
}

// HandleGetCampaign returns one campaign.
func (h *Handlers) HandleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

type updateCampaignRequest struct {
	Name      *string `json:"name"`
	Subject   *string `json:"subject"`
	FromName  *string `json:"from_name"`
	FromEmail *string `json:"from_email" validate:"omitempty,email"`
	ReplyTo   *string `json:"reply_to"`
	HTMLBody  *string `json:"html_body"`
	TextBody  *string `json:"text_body"`
}

// HandleUpdateCampaign applies a partial update and returns the fresh row.
func (h *Handlers) HandleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateCampaignRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	err := h.campaigns.Update(r.Context(), id, campaign.UpdateFields{
		Name:      req.Name,
		Subject:   req.Subject,
		FromName:  req.FromName,
		FromEmail: req.FromEmail,
		ReplyTo:   req.ReplyTo,
		HTMLBody:  req.HTMLBody,
		TextBody:  req.TextBody,
	})
	if err != nil {
		serviceError(w, err)
		return
	}

	c, err := h.campaigns.Get(r.Context(), id)
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// HandleDeleteCampaign removes a draft campaign.
func (h *Handlers) HandleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListSuppressions lists suppression entries with filters.
func (h *Handlers) HandleListSuppressions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := suppression.ListFilter{
		Reason: q.Get("reason"),
		Source: q.Get("source"),
		Search: q.Get("search"),
		Limit:  intQuery(q.Get("limit"), 100),
		Offset: intQuery(q.Get("offset"), 0),
	}

	entries, total, err := h.suppression.List(r.Context(), f)
	if err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suppressions": entries,
		"total":        total,
	})
}

// HandleSuppressionStats returns totals broken down by reason and source.
func (h *Handlers) HandleSuppressionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.suppression.GetStats(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

type suppressRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Reason     string `json:"reason" validate:"omitempty,oneof=unsubscribed bounced complained manual"`
	Source     string `json:"source"`
	CampaignID string `json:"campaign_id" validate:"omitempty,uuid4"`
}

// HandleSuppress adds an address to the suppression list.
func (h *Handlers) HandleSuppress(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		serviceError(w, err)
		return
	}

	reason := domain.SuppressionReason(req.Reason)
	if req.Reason == "" {
		reason = domain.ReasonManual
	}
	source := domain.SuppressionSource(req.Source)
	if req.Source == "" {
		source = domain.SourceAPI
	}

	if err := h.suppression.Suppress(r.Context(), req.Email, reason, source, req.CampaignID); err != nil {
		serviceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{"email": req.Email, "status": "suppressed"})
}

// HandleRemoveSuppression deletes one suppression entry.
func (h *Handlers) HandleRemoveSuppression(w http.ResponseWriter, r *http.Request) {
	if err := h.suppression.Remove(r.Context(), chi.URLParam(r, "email")); err != nil {
		serviceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func intQuery(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}
