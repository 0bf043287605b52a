// AngelaMos | 2026
// handler.go

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/carterperez-dev/templates/token-service/internal/core"
	"github.com/carterperez-dev/templates/token-service/internal/middleware"
	"github.com/carterperez-dev/templates/token-service/internal/token"
)

type Handler struct {
	service   *Service
	validator *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(
	r chi.Router,
	authenticator func(http.Handler) http.Handler,
) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/refresh", h.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(authenticator)
			r.Get("/me", h.GetMe)
			r.Get("/sessions", h.GetSessions)
			r.Delete("/sessions/{sessionID}", h.RevokeSession)
			r.Post("/logout", h.Logout)
			r.Post("/revoke", h.Revoke)
		})
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			core.JSONError(
				w,
				core.UnauthorizedError("invalid email or password"),
			)
			return
		}
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}

// Refresh exchanges a refresh token for a new token pair. Every failure
// that means "this token will never work again" collapses into the same
// reauthenticate response so callers cannot probe which stage rejected it.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	resp, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrTokenReuse) {
			core.JSONError(w, core.NewAppError(
				core.ErrTokenRevoked,
				"security alert: token reuse detected, all sessions revoked",
				http.StatusUnauthorized,
				"TOKEN_REUSE_DETECTED",
			))
			return
		}
		if errors.Is(err, token.ErrNotFound) ||
			errors.Is(err, token.ErrInactive) ||
			errors.Is(err, ErrSubjectInactive) {
			core.JSONError(w, core.ReauthenticateError())
			return
		}
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, resp)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		core.Unauthorized(w, "")
		return
	}

	revoked, err := h.service.Logout(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, RevokedAllResponse{Revoked: revoked})
}

func (h *Handler) Revoke(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		core.Unauthorized(w, "")
		return
	}

	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.BadRequest(w, "invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		core.BadRequest(w, core.FormatValidationError(err))
		return
	}

	if err := h.service.RevokeToken(r.Context(), subjectID, req.RefreshToken); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			core.NotFound(w, "token")
			return
		}
		if errors.Is(err, core.ErrForbidden) {
			core.Forbidden(w, "cannot revoke another subject's token")
			return
		}
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		core.Unauthorized(w, "")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		core.BadRequest(w, "session ID required")
		return
	}

	if err := h.service.RevokeSession(r.Context(), subjectID, sessionID); err != nil {
		if errors.Is(err, token.ErrNotFound) {
			core.NotFound(w, "session")
			return
		}
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.NoContent(w)
}

func (h *Handler) GetSessions(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		core.Unauthorized(w, "")
		return
	}

	sessions, err := h.service.Sessions(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, core.ErrStorage) {
			core.JSONError(w, core.StorageUnavailableError())
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, SessionsResponse{Sessions: sessions})
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	subjectID := middleware.GetSubjectID(r.Context())
	if subjectID == "" {
		core.Unauthorized(w, "")
		return
	}

	subject, err := h.service.CurrentSubject(r.Context(), subjectID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			core.NotFound(w, "subject")
			return
		}
		core.InternalServerError(w, err)
		return
	}

	core.OK(w, subject)
}
