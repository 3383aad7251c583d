package roles

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/arcline-io/arcline-accounts/internal/authz"
	"github.com/arcline-io/arcline-accounts/internal/platform/httpx"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// Handler manages role management endpoints.
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

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermRolesView))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/effective", h.getEffective)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Put("/{roleID}", h.updateRole)
		r.Delete("/{roleID}", h.deleteRole)
	})
}

type permissionPayload struct {
	Name    string `json:"name" validate:"required"`
	Allowed bool   `json:"allowed"`
}

type createRoleRequest struct {
	Name         string              `json:"name" validate:"required,min=2,max=120"`
	Level        string              `json:"level" validate:"omitempty,oneof=global_admin channel_admin enterprise_admin user device"`
	ParentRoleID *int64              `json:"parent_role_id"`
	EnterpriseID *int64              `json:"enterprise_id"`
	Permissions  []permissionPayload `json:"permissions" validate:"dive"`
}

type updateRoleRequest struct {
	Name         *string              `json:"name" validate:"omitempty,min=2,max=120"`
	Level        *string              `json:"level" validate:"omitempty,oneof=global_admin channel_admin enterprise_admin user device"`
	ParentRoleID *int64               `json:"parent_role_id"`
	ClearParent  bool                 `json:"clear_parent"`
	Permissions  *[]permissionPayload `json:"permissions" validate:"omitempty,dive"`
}

type roleResponse struct {
	ID           int64         `json:"id"`
	Name         string        `json:"name"`
	Level        string        `json:"level"`
	ParentRoleID *int64        `json:"parent_role_id,omitempty"`
	EnterpriseID *int64        `json:"enterprise_id,omitempty"`
	Permissions  PermissionSet `json:"permissions"`
	Effective    PermissionSet `json:"effective_permissions"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type updateRoleResponse struct {
	Role    roleResponse   `json:"role"`
	Cascade *CascadeReport `json:"cascade,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	var enterpriseID *int64
	if raw := r.URL.Query().Get("enterprise_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "enterprise_id must be an integer")
			return
		}
		enterpriseID = &id
	}
	list, err := h.service.ListRoles(r.Context(), enterpriseID)
	if err != nil {
		h.logger.Error("list roles", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(list))
	for _, role := range list {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": out})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(role))
}

func (h *Handler) getEffective(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	res, err := h.service.ResolveEffective(r.Context(), id)
	if err != nil {
		h.logger.Error("resolve effective permissions", slog.Int64("role_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"role_id":     res.RoleID,
		"role_name":   res.RoleName,
		"level":       string(res.Level),
		"permissions": res.Permissions,
	})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	role, err := h.service.CreateRole(r.Context(), CreateRoleInput{
		Name:         req.Name,
		Level:        Level(req.Level),
		ParentRoleID: req.ParentRoleID,
		EnterpriseID: req.EnterpriseID,
		Permissions:  toPermissionSet(req.Permissions),
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(role))
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	patch := UpdateRolePatch{
		Name:         req.Name,
		ParentRoleID: req.ParentRoleID,
		ClearParent:  req.ClearParent,
	}
	if req.Level != nil {
		level := Level(*req.Level)
		patch.Level = &level
	}
	if req.Permissions != nil {
		perms := toPermissionSet(*req.Permissions)
		patch.Permissions = &perms
	}
	role, report, err := h.service.UpdateRole(r.Context(), id, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	status := http.StatusOK
	if report == nil {
		// Cascade handed to the worker; caches converge shortly.
		status = http.StatusAccepted
	}
	httpx.JSON(w, status, updateRoleResponse{Role: toRoleResponse(role), Cascade: report})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "roleID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role id must be an integer")
		return 0, false
	}
	return id, true
}

func toPermissionSet(payload []permissionPayload) PermissionSet {
	perms := make(PermissionSet, 0, len(payload))
	for _, p := range payload {
		perms = append(perms, Permission{Name: p.Name, Allowed: p.Allowed})
	}
	return perms
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:           role.ID,
		Name:         role.Name,
		Level:        string(role.Level),
		ParentRoleID: role.ParentRoleID,
		EnterpriseID: role.EnterpriseID,
		Permissions:  orEmpty(role.Permissions),
		Effective:    orEmpty(role.Effective),
		CreatedAt:    role.CreatedAt,
		UpdatedAt:    role.UpdatedAt,
	}
}
