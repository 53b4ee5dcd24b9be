package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/httputil"
	"github.com/changeuikim/vercel-kayce/pkg/requestcontext"
)

// Service is the slice of the user service the HTTP layer calls.
type Service interface {
	Create(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error)
	CreateFromToken(ctx context.Context, provider identity.Provider, idToken string) (*models.User, error)
	SoftDelete(ctx context.Context, userID id.UserID) (*models.User, error)
	Restore(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByID(ctx context.Context, userID id.UserID, includeDeleted bool) (*models.User, error)
	FetchPage(ctx context.Context, req service.SearchRequest) (query.Page[*models.User], error)
}

// Handler serves the /users routes.
type Handler struct {
	users  Service
	logger *slog.Logger
}

func New(users Service, logger *slog.Logger) *Handler {
	return &Handler{users: users, logger: logger}
}

// Register mounts the user routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.handleCreate)
		r.Post("/search", h.handleSearch)
		r.Get("/{id}", h.handleGet)
		r.Delete("/{id}", h.handleSoftDelete)
		r.Post("/{id}/restore", h.handleRestore)
	})
}

// CreateRequest registers a user from either a raw provider id or a signed
// ID token, never both.
type CreateRequest struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId,omitempty"`
	IDToken    string `json:"idToken,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	provider, err := identity.ParseProvider(req.Provider)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if req.ProviderID != "" && req.IDToken != "" {
		h.fail(w, r, dErrors.New(dErrors.CodeValidation, "send either providerId or idToken, not both"))
		return
	}

	var user *models.User
	if req.IDToken != "" {
		user, err = h.users.CreateFromToken(ctx, provider, req.IDToken)
	} else {
		user, err = h.users.Create(ctx, provider, req.ProviderID)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req service.SearchRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.users.FetchPage(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUserID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	includeDeleted := false
	if raw := r.URL.Query().Get("includeDeleted"); raw != "" {
		includeDeleted, err = strconv.ParseBool(raw)
		if err != nil {
			h.fail(w, r, dErrors.New(dErrors.CodeValidation, "includeDeleted must be a boolean").WithMeta("includeDeleted", raw))
			return
		}
	}
	user, err := h.users.FindByID(r.Context(), userID, includeDeleted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.users.SoftDelete)
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.users.Restore)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, id.UserID) (*models.User, error)) {
	userID, err := pathUserID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	user, err := apply(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if h.logger != nil && dErrors.ToHTTPStatus(dErrors.CodeOf(err)) < http.StatusInternalServerError {
		h.logger.DebugContext(r.Context(), "request rejected",
			"request_id", requestcontext.RequestID(r.Context()),
			"path", r.URL.Path,
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}

func pathUserID(r *http.Request) (id.UserID, error) {
	return id.ParseUserID(chi.URLParam(r, "id"))
}
