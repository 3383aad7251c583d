package users

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
	"github.com/arcline-io/arcline-accounts/internal/roles"
	"github.com/arcline-io/arcline-accounts/internal/shared"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermUsersView))
		r.Get("/", h.listUsers)
		r.Get("/{userID}", h.getUser)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.authz.Require(shared.PermUsersEdit))
		r.Post("/", h.createUser)
		r.Patch("/{userID}", h.updateUser)
		r.Delete("/{userID}", h.deleteUser)
		r.Post("/{userID}/role", h.assignRole)
	})
}

type createUserRequest struct {
	FullName     string `json:"full_name" validate:"required,min=2,max=160"`
	Email        string `json:"email" validate:"required,email"`
	Phone        string `json:"phone" validate:"required,min=6,max=32"`
	Password     string `json:"password" validate:"required,min=8"`
	EnterpriseID int64  `json:"enterprise_id" validate:"required"`
	WorkspaceID  *int64 `json:"workspace_id"`
	TeamID       *int64 `json:"team_id"`
	RoleName     string `json:"role_name"`
}

type updateUserRequest struct {
	FullName    *string `json:"full_name" validate:"omitempty,min=2,max=160"`
	Phone       *string `json:"phone" validate:"omitempty,min=6,max=32"`
	Password    *string `json:"password" validate:"omitempty,min=8"`
	WorkspaceID *int64  `json:"workspace_id"`
	TeamID      *int64  `json:"team_id"`
	Status      *string `json:"status" validate:"omitempty,oneof=active suspended"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required"`
}

type userResponse struct {
	ID           int64               `json:"id"`
	FullName     string              `json:"full_name"`
	Email        string              `json:"email"`
	Phone        string              `json:"phone"`
	EnterpriseID int64               `json:"enterprise_id"`
	WorkspaceID  *int64              `json:"workspace_id,omitempty"`
	TeamID       *int64              `json:"team_id,omitempty"`
	RoleID       int64               `json:"role_id"`
	RoleName     string              `json:"role_name"`
	RoleLevel    string              `json:"role_level"`
	Permissions  roles.PermissionSet `json:"permissions"`
	Status       string              `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	list, pagination, err := h.service.ListUsers(r.Context(), page, perPage)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, user := range list {
		out = append(out, toUserResponse(user))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": out, "pagination": pagination})
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	user, err := h.service.CreateUser(r.Context(), CreateUserInput{
		FullName:     req.FullName,
		Email:        req.Email,
		Phone:        req.Phone,
		Password:     req.Password,
		EnterpriseID: req.EnterpriseID,
		WorkspaceID:  req.WorkspaceID,
		TeamID:       req.TeamID,
		RoleName:     req.RoleName,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	patch := UpdateUserPatch{
		FullName:    req.FullName,
		Phone:       req.Phone,
		Password:    req.Password,
		WorkspaceID: req.WorkspaceID,
		TeamID:      req.TeamID,
	}
	if req.Status != nil {
		status := Status(*req.Status)
		patch.Status = &status
	}
	user, err := h.service.UpdateUser(r.Context(), id, patch)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err.Error()))
		return
	}
	user, err := h.service.AssignRole(r.Context(), id, req.RoleID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toUserResponse(user))
}

func (h *Handler) userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be an integer")
		return 0, false
	}
	return id, true
}

func toUserResponse(user User) userResponse {
	perms := user.PermissionsOverride
	if perms == nil {
		perms = roles.PermissionSet{}
	}
	return userResponse{
		ID:           user.ID,
		FullName:     user.FullName,
		Email:        user.Email,
		Phone:        user.Phone,
		EnterpriseID: user.EnterpriseID,
		WorkspaceID:  user.WorkspaceID,
		TeamID:       user.TeamID,
		RoleID:       user.RoleID,
		RoleName:     user.RoleName,
		RoleLevel:    string(user.RoleLevel),
		Permissions:  perms,
		Status:       string(user.Status),
		CreatedAt:    user.CreatedAt,
		UpdatedAt:    user.UpdatedAt,
	}
}
