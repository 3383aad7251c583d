package enterprises

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arcline-io/arcline-accounts/internal/authz"
	"github.com/arcline-io/arcline-accounts/internal/platform/httpx"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// Handler manages enterprise endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	authz     authz.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, authz authz.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New(), authz: authz}
}

// MountRoutes registers enterprise routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermEnterprisesView))
		r.Get("/", h.listEnterprises)
		r.Get("/{enterpriseID}", h.getEnterprise)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermEnterprisesEdit))
		r.Post("/", h.createEnterprise)
	})
}

type createEnterpriseRequest struct {
	Name string `json:"name" validate:"required,min=2,max=160"`
}

func (h *Handler) listEnterprises(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.ListEnterprises(r.Context())
	if err != nil {
		h.logger.Error("list enterprises", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"enterprises": list})
}

func (h *Handler) getEnterprise(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "enterpriseID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "enterprise id must be an integer")
		return
	}
	ent, err := h.service.GetEnterprise(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ent)
}

func (h *Handler) createEnterprise(w http.ResponseWriter, r *http.Request) {
	var req createEnterpriseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	ent, err := h.service.CreateEnterprise(r.Context(), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ent)
}
