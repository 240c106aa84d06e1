package handlers

import (
	"log/slog"
	"net/http"
	"regexp"

	"remindbot/logging"
	"remindbot/middleware"
	"remindbot/models"

	"golang.org/x/crypto/bcrypt"
)

var userIDPattern = regexp.MustCompile(`^\d{1,20}$`)

// AuthHandler issues API tokens to the chat bridge. The bridge proves itself
// with a shared secret whose bcrypt hash is configured.
type AuthHandler struct {
	auth       *middleware.Auth
	secretHash []byte
	log        *slog.Logger
}

func NewAuthHandler(auth *middleware.Auth, secretHash string, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:       auth,
		secretHash: []byte(secretHash),
		log:        logging.OrNop(logger).With("component", "auth"),
	}
}

func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req models.TokenRequest
	if err := decode(w, r, &req); err != nil {
		invalidInput(w, "invalid request body")
		return
	}
	if !userIDPattern.MatchString(req.UserID) {
		invalidInput(w, "user_id must be a numeric id")
		return
	}
	if len(h.secretHash) == 0 {
		permissionDenied(w, "token issuing is disabled")
		return
	}
	if err := bcrypt.CompareHashAndPassword(h.secretHash, []byte(req.Secret)); err != nil {
		h.log.Warn("token refused", "user_id", req.UserID, "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, models.ErrorPermissionDenied, "invalid credentials")
		return
	}

	token, expires, err := h.auth.GenerateToken(req.UserID)
	if err != nil {
		h.log.Error("sign token", "error", err)
		internalError(w, "failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, models.TokenResponse{Token: token, ExpiresAt: expires})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"user_id": middleware.GetUserID(r)})
}
