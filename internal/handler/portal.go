package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/middleware"
	"github.com/aosbot/portal-server-go/internal/service"
)

type Middleware func(http.Handler) http.Handler

type PortalHandler struct {
	sessions     *service.SessionService
	accounts     *service.AccountService
	webhooks     *service.WebhookService
	messages     *service.MessageService
	credits      *service.CreditService
	workflow     *service.WorkflowService
	events       *EventsHandler
	sessionMW    Middleware
	loginLimiter Middleware
	isProduction bool
}

func NewPortalHandler(
	sessions *service.SessionService,
	accounts *service.AccountService,
	webhooks *service.WebhookService,
	messages *service.MessageService,
	credits *service.CreditService,
	workflow *service.WorkflowService,
	events *EventsHandler,
	sessionMW Middleware,
	loginLimiter Middleware,
	isProduction bool,
) *PortalHandler {
	return &PortalHandler{
		sessions:     sessions,
		accounts:     accounts,
		webhooks:     webhooks,
		messages:     messages,
		credits:      credits,
		workflow:     workflow,
		events:       events,
		sessionMW:    sessionMW,
		loginLimiter: loginLimiter,
		isProduction: isProduction,
	}
}

func (h *PortalHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.loginLimiter).Post("/api/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.sessionMW)

		r.Post("/api/logout", h.Logout)
		r.Get("/api/me", h.Me)
		r.Get("/api/events", h.events.ServeHTTP)

		r.Get("/api/webhooks", h.ListWebhooks)
		r.Post("/api/webhooks", h.AddWebhook)
		r.Delete("/api/webhooks/{id}", h.RemoveWebhook)
		r.Put("/api/webhooks/selected", h.SelectWebhook)

		r.Get("/api/messages", h.ListMessages)
		r.Post("/api/messages", h.SendMessage)

		r.Get("/api/packages", h.ListPackages)
		r.Post("/api/purchase", h.Purchase)

		r.Get("/api/requests", h.ListRequests)
		r.Post("/api/requests", h.CreateRequest)

		r.Get("/api/notifications", h.ListNotifications)
		r.Get("/api/notifications/unread-count", h.UnreadCount)
		r.Post("/api/notifications/read", h.MarkAllRead)
	})

	return r
}

func (h *PortalHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.MissingRequired("User ID"))
		return
	}

	account, token, err := h.sessions.Login(r.Context(), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	middleware.SetSessionCookie(w, middleware.SessionCookie, token, "/", h.isProduction)
	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}

func (h *PortalHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookie)
	if err == nil && cookie.Value != "" {
		if logoutErr := h.sessions.Logout(r.Context(), cookie.Value); logoutErr != nil {
			log.Warn().Err(logoutErr).Msg("logout failed")
		}
	}

	middleware.ClearSessionCookie(w, middleware.SessionCookie, "/")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PortalHandler) Me(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"user": account})
}

func (h *PortalHandler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	webhooks, err := h.webhooks.List(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, webhooks)
}

func (h *PortalHandler) AddWebhook(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("Invalid request body"))
		return
	}

	webhook, err := h.webhooks.Add(r.Context(), account, req.Name, req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, webhook)
}

func (h *PortalHandler) RemoveWebhook(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.webhooks.Remove(r.Context(), account, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PortalHandler) SelectWebhook(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	var req struct {
		WebhookID string `json:"webhookId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WebhookID == "" {
		writeError(w, errors.MissingRequired("webhookId"))
		return
	}

	if err := h.webhooks.Select(r.Context(), account, req.WebhookID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *PortalHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	limit, offset := parsePagination(r)
	entries, err := h.messages.List(r.Context(), account.ID, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *PortalHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	var req struct {
		Message   string `json:"message"`
		WebhookID string `json:"webhookId"`
		Bypass    bool   `json:"bypass"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("Invalid request body"))
		return
	}

	result, err := h.messages.Send(r.Context(), account, service.SendParams{
		WebhookID: req.WebhookID,
		Message:   req.Message,
		Bypass:    req.Bypass,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user": result.Account,
		"log":  result.Entry,
	})
}

func (h *PortalHandler) ListPackages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.credits.Packages())
}

func (h *PortalHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	var req struct {
		Cost   int `json:"cost"`
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.ValidationError("Invalid request body"))
		return
	}

	updated, err := h.credits.Purchase(r.Context(), account.ID, req.Cost, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": updated})
}

func (h *PortalHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	requests, err := h.workflow.ListRequests(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, requests)
}

func (h *PortalHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.MissingRequired("message"))
		return
	}

	request, err := h.workflow.CreateRequest(r.Context(), account.ID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

func (h *PortalHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	notifications, err := h.workflow.ListNotifications(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (h *PortalHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	count, err := h.workflow.UnreadCount(r.Context(), account.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *PortalHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r.Context())

	if err := h.workflow.MarkAllRead(r.Context(), account.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
