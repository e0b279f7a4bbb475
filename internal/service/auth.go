package service

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"

	"github.com/oshitechglobal/creatordeck/internal/config"
)

const ownerContextKey = "owner_id"

type session struct {
	ownerID   string
	expiresAt time.Time
}

// AuthService validates TOTP codes and maps session tokens to owner ids.
// Every owner-scoped query downstream filters by the owner resolved here.
type AuthService struct {
	logger     *zap.Logger
	totpSecret string
	sessionTTL time.Duration

	mu       sync.RWMutex
	sessions map[string]session
}

func NewAuthService(logger *zap.Logger, cfg *config.AuthConfig) *AuthService {
	ttl, err := time.ParseDuration(cfg.SessionTTL)
	if err != nil {
		logger.Warn("Invalid session TTL, using 720h",
			zap.String("session_ttl", cfg.SessionTTL), zap.Error(err))
		ttl = 720 * time.Hour
	}

	return &AuthService{
		logger:     logger,
		totpSecret: cfg.TOTPSecret,
		sessionTTL: ttl,
		sessions:   make(map[string]session),
	}
}

func (a *AuthService) GenerateSecret(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "CreatorDeck",
		AccountName: accountName,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	return key.Secret(), key.URL(), nil
}

func (a *AuthService) ValidateCode(code string) bool {
	valid := totp.Validate(code, a.totpSecret)
	if !valid {
		a.logger.Warn("TOTP code validation failed")
	}
	return valid
}

// Login exchanges a valid TOTP code for a session token bound to ownerID.
func (a *AuthService) Login(ownerID, code string) (string, error) {
	if ownerID == "" {
		return "", fmt.Errorf("owner id required")
	}
	if !a.ValidateCode(code) {
		return "", fmt.Errorf("invalid code")
	}

	token := uuid.NewString()
	a.mu.Lock()
	a.sessions[token] = session{
		ownerID:   ownerID,
		expiresAt: time.Now().Add(a.sessionTTL),
	}
	a.mu.Unlock()

	a.logger.Info("Session created", zap.String("owner_id", ownerID))
	return token, nil
}

func (a *AuthService) resolveOwner(token string) (string, bool) {
	a.mu.RLock()
	sess, ok := a.sessions[token]
	a.mu.RUnlock()

	if !ok {
		return "", false
	}
	if time.Now().After(sess.expiresAt) {
		a.mu.Lock()
		delete(a.sessions, token)
		a.mu.Unlock()
		return "", false
	}
	return sess.ownerID, true
}

// AuthMiddleware resolves the owner for every request and aborts
// unauthenticated ones. Auth endpoints and the result callback (which
// authenticates by job id) are skipped.
func (a *AuthService) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" ||
			strings.HasPrefix(path, "/api/v1/auth/") ||
			isJobResultPath(path) {
			c.Next()
			return
		}

		token := bearerToken(c)
		if token == "" {
			var err error
			token, err = c.Cookie("auth_token")
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
				return
			}
		}

		ownerID, ok := a.resolveOwner(token)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		c.Set(ownerContextKey, ownerID)
		c.Next()
	}
}

// isJobResultPath matches exactly /api/v1/jobs/:kind/:id/result, the
// automation callback that authenticates by job id. Anything else that
// happens to end in /result still requires a session.
func isJobResultPath(path string) bool {
	if !strings.HasPrefix(path, "/api/v1/jobs/") || !strings.HasSuffix(path, "/result") {
		return false
	}
	rest := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/jobs/"), "/result")
	parts := strings.Split(rest, "/")
	return len(parts) == 2 && parts[0] != "" && parts[1] != ""
}

// OwnerID returns the authenticated owner for the request.
func OwnerID(c *gin.Context) string {
	return c.GetString(ownerContextKey)
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
