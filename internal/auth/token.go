package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"chat-relay/pkg/models"
)

const (
	// TokenLifetime defines how long chat API tokens are valid.
	TokenLifetime = time.Hour
)

var (
	// ErrTokenExpired is returned when the token has expired.
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when the token is invalid for any reason.
	ErrInvalidToken = errors.New("invalid token")
)

// TokenClaims holds the JWT claims carried by chat API tokens.
type TokenClaims struct {
	jwt.RegisteredClaims
	UserID uint64 `json:"user_id"`
	Login  string `json:"login"`
}

// CreateChatToken generates a JWT granting access to the chat API.
func CreateChatToken(userID uint64, login string, secret string) (string, error) {
	now := time.Now()

	claims := TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenLifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        now.Format(time.RFC3339Nano),
		},
		UserID: userID,
		Login:  login,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateChatToken validates and parses a chat API token.
func ValidateChatToken(tokenString string, secret string) (*models.ChatToken, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*TokenClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return &models.ChatToken{
		Iat:                    claims.IssuedAt.Unix(),
		Exp:                    claims.ExpiresAt.Unix(),
		Jti:                    claims.ID,
		UserID:                 claims.UserID,
		Login:                  claims.Login,
		AccountCreatedAt:       time.Now().AddDate(-1, 0, 0),
		HasSubscription:        true,
		MaxMonthlySpendInCents: 10000,
	}, nil
}
