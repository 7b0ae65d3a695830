package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/aosbot/portal-server-go/internal/errors"
	"github.com/aosbot/portal-server-go/internal/model"
	"github.com/aosbot/portal-server-go/internal/service"
)

// UsersHandler exposes the original management API surface. Its error
// payloads are fixed strings that existing clients match on, so service
// errors get translated rather than passed through.
type UsersHandler struct {
	accounts *service.AccountService
}

func NewUsersHandler(accounts *service.AccountService) *UsersHandler {
	return &UsersHandler{accounts: accounts}
}

func (h *UsersHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)

	return r
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to list users")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "User ID is required"})
		return
	}

	account, err := h.accounts.Create(r.Context(), req.ID)
	if err != nil {
		log.Error().Err(err).Str("id", req.ID).Msg("failed to create user")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to create user. It may already exist."})
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

type updateUserRequest struct {
	Role           *model.Role `json:"role"`
	IsSuspended    *bool       `json:"isSuspended"`
	DailyLimit     *int        `json:"dailyLimit"`
	MessageCount   *int        `json:"messageCount"`
	LastCountReset *string     `json:"lastCountReset"`
	AocBalance     *int        `json:"aocBalance"`
}

func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No update fields provided"})
		return
	}

	params := model.UpdateAccountParams{
		Role:           req.Role,
		IsSuspended:    req.IsSuspended,
		DailyLimit:     req.DailyLimit,
		MessageCount:   req.MessageCount,
		LastCountReset: req.LastCountReset,
		AocBalance:     req.AocBalance,
	}

	account, err := h.accounts.Update(r.Context(), "", id, params)
	if err != nil {
		switch errors.GetCode(err) {
		case errors.ErrCodeValidation, errors.ErrCodeInvalidInput:
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No update fields provided"})
		case errors.ErrCodeNotFound:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		default:
			log.Error().Err(err).Str("id", id).Msg("failed to update user")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to update user"})
		}
		return
	}

	writeJSON(w, http.StatusOK, account)
}

func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.accounts.Delete(r.Context(), "", id); err != nil {
		switch errors.GetCode(err) {
		case errors.ErrCodeNotFound:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "User not found"})
		default:
			log.Error().Err(err).Str("id", id).Msg("failed to delete user")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to delete user"})
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
