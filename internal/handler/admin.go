package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/middleware"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/service"
	"github.com/aosbot/portal-server-go/internal/sse"
)

// AdminHandler serves the review surface: the request queue, notices,
// balance adjustments and account activity.
type AdminHandler struct {
	accounts  *service.AccountService
	workflow  *service.WorkflowService
	credits   *service.CreditService
	messages  *service.MessageService
	broker    *sse.Broker
	sessionMW Middleware
}

func NewAdminHandler(
	accounts *service.AccountService,
	workflow *service.WorkflowService,
	credits *service.CreditService,
	messages *service.MessageService,
	broker *sse.Broker,
	sessionMW Middleware,
) *AdminHandler {
	return &AdminHandler{
		accounts:  accounts,
		workflow:  workflow,
		credits:   credits,
		messages:  messages,
		broker:    broker,
		sessionMW: sessionMW,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(h.sessionMW)
	r.Use(middleware.RequireAdmin)

	r.Get("/api/requests", h.ListRequests)
	r.Post("/api/requests/{id}/resolve", h.ResolveRequest)
	r.Post("/api/notifications", h.CreateNotification)
	r.Post("/api/balance", h.AdjustBalance)
	r.Get("/api/accounts/{id}/logs", h.AccountLogs)
	r.Get("/api/stats", h.Stats)

	return r
}

func (h *AdminHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.workflow.ListAllRequests(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *AdminHandler) ResolveRequest(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAccount(r.Context())
	id := chi.URLParam(r, "id")

	var req struct {
		Status model.RequestStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.MissingRequired("status"))
		return
	}

	resolved, err := h.workflow.ResolveRequest(r.Context(), actor.ID, id, req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *AdminHandler) CreateNotification(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAccount(r.Context())

	var req struct {
		Message      string  `json:"message"`
		TargetUserID *string `json:"targetUserId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.MissingRequired("message"))
		return
	}

	notification, err := h.workflow.CreateNotification(r.Context(), actor.ID, req.Message, req.TargetUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, notification)
}

func (h *AdminHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actor := middleware.GetAccount(r.Context())

	var req struct {
		UserID   string `json:"userId"`
		Amount   int    `json:"amount"`
		Subtract bool   `json:"subtract"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, errors.MissingRequired("userId"))
		return
	}

	account, err := h.credits.AdjustBalance(r.Context(), actor.ID, req.UserID, req.Amount, req.Subtract)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}

// AccountLogs returns a user's activity log. Admin accounts keep their own
// activity private from each other.
func (h *AdminHandler) AccountLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	target, err := h.accounts.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if target == nil {
		writeError(w, errors.NotFound("Account"))
		return
	}
	if target.IsAdmin() {
		writeError(w, errors.Forbidden("Admin activity is not viewable"))
		return
	}

	limit, offset := parsePagination(r)
	entries, err := h.messages.List(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	suspended := 0
	for _, a := range accounts {
		if a.IsSuspended {
			suspended++
		}
	}

	pending, err := h.workflow.PendingRequestCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	sends, err := h.messages.Stats(r.Context(), time.Now())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts":        len(accounts),
		"suspended":       suspended,
		"pendingRequests": pending,
		"sends":           sends,
		"sseClients":      h.broker.TotalClients(),
	})
}
