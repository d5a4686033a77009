package httpapi

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the signed session payload. Subject carries the ledger
// user id; Roles gates the admin surface.
type SessionClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// NewSessionToken signs an HS256 session token for userID.
func NewSessionToken(signingKey []byte, issuer string, userID string, roles []string, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(lifetime)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

func parseSessionToken(signingKey []byte, issuer string, tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: empty subject", jwt.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// sessionMiddleware accepts the session from the configured cookie or a
// Bearer Authorization header, the cookie winning when both are present.
func sessionMiddleware(cfg Config) gin.HandlerFunc {
	signingKey := []byte(cfg.SessionSigningKey)
	return func(ctx *gin.Context) {
		tokenString := sessionTokenFromRequest(ctx, cfg.SessionCookieName)
		if tokenString == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
			return
		}
		claims, err := parseSessionToken(signingKey, cfg.SessionIssuer, tokenString)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("unauthorized", "invalid session"))
			return
		}
		ctx.Set(sessionClaimsContextKey, claims)
		ctx.Next()
	}
}

func sessionTokenFromRequest(ctx *gin.Context, cookieName string) string {
	if cookie, err := ctx.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}
	header := ctx.GetHeader(authorizationHeader)
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && parts[0] == authorizationBearerPrefix {
		return parts[1]
	}
	return ""
}

// requireAdmin rejects sessions whose roles do not include admin.
func requireAdmin() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		claims := getClaims(ctx)
		if claims == nil || !slices.Contains(claims.Roles, adminRole) {
			ctx.AbortWithStatusJSON(http.StatusForbidden, errorResponse("forbidden", "admin role required"))
			return
		}
		ctx.Next()
	}
}

func getClaims(ctx *gin.Context) *SessionClaims {
	claimsValue, ok := ctx.Get(sessionClaimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*SessionClaims)
	return claims
}
