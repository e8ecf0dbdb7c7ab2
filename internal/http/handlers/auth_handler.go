// README: Phone + SMS-code login.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/logincode"
	"taxihub/internal/modules/user"
	"taxihub/internal/types"
)

// CodeSender delivers a login code to a phone number.
type CodeSender interface {
	Send(ctx context.Context, phone, code string) error
}

type AuthHandler struct {
	codes     *logincode.Store
	users     *user.Store
	sender    CodeSender
	jwtSecret string
}

func NewAuthHandler(codes *logincode.Store, users *user.Store, sender CodeSender, jwtSecret string) *AuthHandler {
	return &AuthHandler{codes: codes, users: users, sender: sender, jwtSecret: jwtSecret}
}

type requestCodeReq struct {
	Phone string `json:"phone" binding:"required"`
}

func (h *AuthHandler) RequestCode(c *gin.Context) {
	var req requestCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	code, err := h.codes.Issue(c.Request.Context(), req.Phone)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	if err := h.sender.Send(c.Request.Context(), req.Phone, code); err != nil {
		writeError(c, http.StatusBadGateway, "code delivery failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "code_sent"})
}

type verifyCodeReq struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code" binding:"required"`
	Role  string `json:"role" binding:"required"`
}

func (h *AuthHandler) VerifyCode(c *gin.Context) {
	var req verifyCodeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	role := types.Role(req.Role)
	if role != types.RoleClient && role != types.RoleDriver {
		writeError(c, http.StatusBadRequest, "unknown role")
		return
	}
	err := h.codes.Verify(c.Request.Context(), req.Phone, req.Code)
	if errors.Is(err, logincode.ErrCodeExpired) || errors.Is(err, logincode.ErrCodeMismatch) {
		writeError(c, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}

	u, err := h.users.EnsureByPhone(c.Request.Context(), req.Phone, role)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	token, err := middleware.BuildJWT(h.jwtSecret, u.ID, u.Role)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":   token,
		"user_id": u.ID,
		"role":    u.Role,
	})
}

type fcmTokenReq struct {
	Token string `json:"token" binding:"required"`
}

// UpdateFCMToken stores the caller's device push token.
func (h *AuthHandler) UpdateFCMToken(c *gin.Context) {
	var req fcmTokenReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	err := h.users.SetFCMToken(c.Request.Context(), callerID(c), req.Token)
	if errors.Is(err, user.ErrNotFound) {
		writeError(c, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
