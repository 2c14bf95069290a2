package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Gratheon/graphql-router/errors"
)

// verifySession verifies a signed session JWT against the shared secret and
// extracts the user_id claim. Every token verification failure maps to
// ErrUnauthenticated; an unset secret is a fatal ErrMissingConfig error.
// Session validation never touches the network.
func verifySession(tokenString, secret string) (string, error) {
	if secret == "" {
		return "", errors.WrapFatal(errors.ErrMissingConfig, "Session", "verifySession",
			"jwt secret not configured")
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", errors.Wrap(errors.ErrUnauthenticated, "Session", "verifySession",
			fmt.Sprintf("jwt verification: %v", err))
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.Wrap(errors.ErrUnauthenticated, "Session", "verifySession",
			"jwt carries no claims")
	}

	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", errors.Wrap(errors.ErrUnauthenticated, "Session", "verifySession",
			"jwt carries no user_id")
	}

	return userID, nil
}
