package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"inkbook/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Staff roles allowed into the admin API
const (
	RoleStaff = "staff"
	RoleAdmin = "admin"
)

// StaffClaims is the token payload of a studio staff member.
type StaffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// StaffAuth validates an HS256 bearer token and requires one of the staff
// roles. With an empty secret every request is rejected.
func StaffAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Staff API is not configured"})
			return
		}

		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.Header("WWW-Authenticate", `Bearer realm="staff"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		claims := &StaffClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			msg := "Invalid token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				msg = "Token expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}

		if claims.Role != RoleStaff && claims.Role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}

		c.Set("staff_id", claims.Subject)
		c.Set("role", claims.Role)
		c.Request = c.Request.WithContext(logger.ContextWithStaffID(c.Request.Context(), claims.Subject))

		c.Next()
	}
}

// NewStaffToken signs a staff token. Used by inkctl to hand out credentials.
func NewStaffToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := StaffClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
