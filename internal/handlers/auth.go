package handlers

import (
	"net/http"

	"github.com/xelth-com/commissariat/internal/middleware"
	"github.com/xelth-com/commissariat/internal/services/accounts"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordChangeRequest carries the current and the new password
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// register creates a declarant account and logs it in
func (r *Router) register(w http.ResponseWriter, req *http.Request) {
	var in accounts.RegisterInput
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	session, err := r.accounts.Register(req.Context(), in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

// login handles user login
func (r *Router) login(w http.ResponseWriter, req *http.Request) {
	var in LoginRequest
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	session, err := r.accounts.Login(req.Context(), in.Email, in.Password)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, session)
}

// logout revokes the bearer token of the request
func (r *Router) logout(w http.ResponseWriter, req *http.Request) {
	id, _ := middleware.IdentityFrom(req.Context())
	if err := r.accounts.Logout(req.Context(), id); err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (r *Router) me(w http.ResponseWriter, req *http.Request) {
	a, err := r.accounts.Me(req.Context(), actor(req))
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (r *Router) updateMe(w http.ResponseWriter, req *http.Request) {
	var in accounts.ProfileInput
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	a, err := r.accounts.UpdateProfile(req.Context(), actor(req), in)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

func (r *Router) changePassword(w http.ResponseWriter, req *http.Request) {
	var in PasswordChangeRequest
	if err := decodeJSON(req, &in); err != nil {
		r.fail(w, req, err)
		return
	}
	if err := r.accounts.ChangePassword(req.Context(), actor(req), in.CurrentPassword, in.NewPassword); err != nil {
		r.fail(w, req, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}
