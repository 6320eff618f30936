package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/critichord/pkg/response"
)

const userIDKey = "user_id"

// Auth 校验 Bearer JWT（HS256），把 sub 作为调用方身份写入上下文
func Auth(secret, issuer string) gin.HandlerFunc {
	key := []byte(secret)
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			// 浏览器 websocket 无法设置请求头，允许 query 传递
			raw = c.Query("access_token")
		}
		if raw == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}
		var claims jwt.RegisteredClaims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) { return key, nil }); err != nil {
			response.Unauthorized(c, tokenError(err))
			c.Abort()
			return
		}
		if strings.TrimSpace(claims.Subject) == "" {
			response.Unauthorized(c, "token has no subject")
			c.Abort()
			return
		}
		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID 返回 Auth 写入的调用方身份
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// IssueToken 签发测试和本地调试用的令牌；正式令牌由认证服务签发
func IssueToken(secret, issuer, subject string) (string, error) {
	claims := jwt.RegisteredClaims{Subject: subject, Issuer: issuer}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearer(h string) (string, bool) {
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):]), true
	}
	return "", false
}

func tokenError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "invalid token signature"
	default:
		return "invalid token"
	}
}
