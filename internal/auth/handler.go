package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"novelrank/pkg/logger"
	"novelrank/pkg/utils"
)

// Handler issues admin tokens against the configured credentials.
type Handler struct {
	Tokens       TokenService
	AdminUser    string
	PasswordHash []byte
	log          *zap.Logger
}

func NewHandler(cfg utils.AuthConfig, tokens TokenService, log *zap.Logger) *Handler {
	return &Handler{
		Tokens:       tokens,
		AdminUser:    cfg.AdminUser,
		PasswordHash: []byte(cfg.AdminPasswordHash),
		log:          logger.OrNop(log).Named("auth"),
	}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.login)
	rg.GET("/me", AuthMiddleware(h.Tokens), h.me)
}

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if len(h.PasswordHash) == 0 {
		utils.Fail(c, http.StatusForbidden, "admin login disabled")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.AdminUser)) == 1
	passErr := bcrypt.CompareHashAndPassword(h.PasswordHash, []byte(req.Password))
	if !userOK || passErr != nil {
		h.log.Warn("login rejected", zap.String("username", req.Username))
		utils.Fail(c, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, exp, err := h.Tokens.Sign(h.AdminUser)
	if err != nil {
		h.log.Error("sign token", zap.Error(err))
		utils.Fail(c, http.StatusInternalServerError, "token failed")
		return
	}

	utils.OK(c, gin.H{
		"token":      token,
		"expires_at": exp,
		"username":   h.AdminUser,
	})
}

func (h *Handler) me(c *gin.Context) {
	claims := MustGetClaims(c)
	utils.OK(c, gin.H{
		"username":   claims.Username,
		"role":       claims.Role,
		"expires_at": claims.ExpiresAt,
	})
}

// HashPassword returns the bcrypt hash to put in auth.admin_password_hash.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
