package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/koustubh-k/Synk-App/internal/core/domain"
)

type TokenService struct {
	secretKey []byte
	issuer    string
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{
		secretKey: []byte(secret),
		issuer:    "synk-backend",
	}
}

// GenerateToken issues an HS256 token for userID. The id is carried both as
// "id", which the auth collaborator sets, and as the standard "sub".
func (s *TokenService) GenerateToken(userID string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", domain.ErrInvalidUserID
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"id":  userID,
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"iss": s.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

// ValidateToken parses and validates the JWT string and returns the user id.
// Every failure wraps domain.ErrAuthentication.
func (s *TokenService) ValidateToken(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrAuthentication)
	}
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", domain.ErrAuthentication)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	if !token.Valid {
		return "", fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("%w: invalid claims", domain.ErrAuthentication)
	}
	for _, key := range []string{"id", "sub"} {
		if id, ok := claims[key].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: user id not found in token", domain.ErrAuthentication)
}
