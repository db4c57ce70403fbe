package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"post-planner/infrastructure/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

// ContextSubject is the gin context key holding the authenticated token subject.
const ContextSubject = "subject"

// Auth guards the API with HS256 bearer tokens signed with secretKey. An empty
// secretKey disables the guard, which is the single-user default.
func Auth(secretKey string) gin.HandlerFunc {
	if secretKey == "" {
		return func(ctx *gin.Context) { ctx.Next() }
	}
	return func(ctx *gin.Context) {
		authorization := ctx.GetHeader("Authorization")
		raw := strings.TrimPrefix(authorization, "Bearer ")
		if authorization == "" || raw == authorization || raw == "" {
			unauthorized(ctx, "missing bearer token")
			return
		}
		claims, err := parseClaims(raw, secretKey)
		if err != nil {
			logger.GetLogger().WithField("error", err).Debug("api token rejected")
			unauthorized(ctx, rejection(err))
			return
		}
		ctx.Set(ContextSubject, claims.Subject)
		ctx.Next()
	}
}

func parseClaims(raw, secretKey string) (*jwt.StandardClaims, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

func rejection(err error) string {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		switch {
		case ve.Errors&jwt.ValidationErrorMalformed != 0:
			return "malformed token"
		case ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0:
			return "token expired or not yet valid"
		}
	}
	return "invalid token"
}

func unauthorized(ctx *gin.Context, msg string) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": msg, "code": "unauthorized"})
}
