package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-quiz/internal/auth/middleware"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	User        users.User `json:"user"`
}

// POST /auth/register
func RegisterHandler(svc *users.Service, a *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req users.Registration
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := svc.Register(r.Context(), req)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tok, err := a.IssueJWT(u.ID, u.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: tok, User: u})
	}
}

// POST /auth/login  { "email": "...", "password": "..." }
func LoginHandler(svc *users.Service, a *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Email    string `json:"email" validate:"required"`
			Password string `json:"password" validate:"required"`
		}
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		u, err := svc.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tok, err := a.IssueJWT(u.ID, u.Role)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{AccessToken: tok, User: u})
	}
}

// GET /me
func MeHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := svc.Get(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// POST /me/password
func ChangePasswordHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			OldPassword string `json:"old_password" validate:"required"`
			NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
		}
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		userID := auth.SubjectFromContext(r.Context())
		if err := svc.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /admin/users?role=teacher
func ListUsersHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// PUT /admin/users/{userID}/role  { "role": "teacher" }
func SetUserRoleHandler(svc *users.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role" validate:"required,oneof=student teacher admin"`
		}
		if err := decode(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := svc.SetRole(r.Context(), chi.URLParam(r, "userID"), req.Role); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
