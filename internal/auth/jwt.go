package auth

import (
	"errors"
	"fmt"
	"time"

	"greendrake/chambers/internal/authz"
	"greendrake/chambers/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Claims defines the structure of the JWT claims.
type Claims struct {
	UserID       string              `json:"user_id"`
	Role         models.Role         `json:"role"`
	Capabilities models.Capabilities `json:"caps"`
	ClientID     string              `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateJWT creates a signed bearer token for a user.
func GenerateJWT(user *models.User, secretKey string, ttl time.Duration) (string, error) {
	issuedAt := time.Now()
	claims := &Claims{
		UserID:       user.ID.Hex(),
		Role:         user.Role,
		Capabilities: user.Capabilities,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Subject:   user.ID.Hex(),
		},
	}
	if user.ClientID != nil {
		claims.ClientID = user.ClientID.Hex()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return tokenString, nil
}

// ValidateJWT verifies a JWT string and returns the claims if valid.
func ValidateJWT(tokenString string, secretKey string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse JWT: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid JWT")
	}
	return claims, nil
}

// Principal converts validated claims into the request principal.
func (c *Claims) Principal() (authz.Principal, error) {
	id, err := primitive.ObjectIDFromHex(c.UserID)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("invalid user id in token: %w", err)
	}
	if !c.Role.Valid() {
		return authz.Principal{}, fmt.Errorf("invalid role in token: %q", c.Role)
	}
	p := authz.Principal{UserID: id, Role: c.Role, Capabilities: c.Capabilities}
	if c.ClientID != "" {
		cid, err := primitive.ObjectIDFromHex(c.ClientID)
		if err != nil {
			return authz.Principal{}, fmt.Errorf("invalid client id in token: %w", err)
		}
		p.ClientID = &cid
	}
	return p, nil
}
