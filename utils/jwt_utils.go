package utils

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// ParseToken extracts the user id from a signed token.
func ParseToken(tokenString, secret string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}
	if !token.Valid {
		return 0, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, errors.New("unexpected claims type")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return 0, errors.New("token is missing user_id")
	}
	return int64(userID), nil
}
