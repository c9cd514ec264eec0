package http

import (
	"net/http"

	"go.uber.org/zap"

	auth "github.com/mind-engage/gabarito/internal/auth/middleware"
	"github.com/mind-engage/gabarito/internal/users"
)

type signupReq struct {
	Name     string `json:"nome"`
	Email    string `json:"email"`
	Password string `json:"senha"`
}

// POST /users  { "nome": "...", "email": "...", "senha": "..." }
func SignupHandler(store *users.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		u, err := store.Create(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"message": "Usuário cadastrado com sucesso!",
			"usuario": u,
		})
	}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"senha"`
}

// POST /auth/login  { "email": "...", "senha": "..." }
func LoginHandler(store *users.Store, a *auth.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		u, err := store.Authenticate(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		tok, err := a.IssueJWT(u.ID, u.Role)
		if err != nil {
			writeError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": tok,
			"token_type":   "Bearer",
			"expires_in":   int(a.TTL().Seconds()),
		})
	}
}

type changePasswordReq struct {
	OldPassword string `json:"senha_atual"`
	NewPassword string `json:"nova_senha"`
}

// POST /users/change-password
func ChangePasswordHandler(store *users.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePasswordReq
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, logger, err)
			return
		}
		if err := store.ChangePassword(r.Context(), auth.SubjectFromContext(r.Context()), req.OldPassword, req.NewPassword); err != nil {
			writeError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
