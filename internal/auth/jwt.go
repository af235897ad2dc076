package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	claimSubject = "sub"
	claimUserID  = "user_id"
	claimEmail   = "email"

	// wsProtocolName is the subprotocol clients pass alongside the token:
	// new WebSocket(url, ["access_token", token]).
	wsProtocolName = "access_token"
)

// JWTMiddleware returns a JWT auth middleware configured for HS256 tokens.
func JWTMiddleware(secret string, skipper middleware.Skipper) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		SigningMethod: "HS256",
		TokenLookup:   "header:Authorization:Bearer ,query:token",
		Skipper:       skipper,
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return jwt.MapClaims{}
		},
	})
}

// GenerateToken creates a signed JWT for the user.
func GenerateToken(userID, email, secret string, expiresIn time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, fmt.Errorf("jwt secret is required")
	}
	if expiresIn <= 0 {
		return "", time.Time{}, fmt.Errorf("jwt expires in must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(expiresIn)
	claims := jwt.MapClaims{
		claimSubject: userID,
		claimUserID:  userID,
		claimEmail:   email,
		"iat":        now.Unix(),
		"exp":        expiresAt.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Claims carries the identity extracted from a verified token.
type Claims struct {
	UserID string
	Email  string
}

// VerifyToken parses and validates a signed token string.
func VerifyToken(tokenStr, secret string) (Claims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Claims{}, err
	}
	if !token.Valid {
		return Claims{}, fmt.Errorf("invalid token")
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, fmt.Errorf("invalid token claims")
	}
	claims := Claims{
		UserID: claimString(mapClaims, claimUserID),
		Email:  claimString(mapClaims, claimEmail),
	}
	if claims.UserID == "" {
		claims.UserID = claimString(mapClaims, claimSubject)
	}
	if claims.UserID == "" {
		return Claims{}, fmt.Errorf("user id missing from claims")
	}
	return claims, nil
}

// UserIDFromContext extracts the user id from JWT claims.
func UserIDFromContext(c echo.Context) (string, error) {
	claims, err := mapClaimsFromContext(c)
	if err != nil {
		return "", err
	}
	if userID := claimString(claims, claimUserID); userID != "" {
		return userID, nil
	}
	if userID := claimString(claims, claimSubject); userID != "" {
		return userID, nil
	}
	return "", echo.NewHTTPError(http.StatusUnauthorized, "user id missing")
}

// EmailFromContext extracts the email claim, empty when absent.
func EmailFromContext(c echo.Context) string {
	claims, err := mapClaimsFromContext(c)
	if err != nil {
		return ""
	}
	return claimString(claims, claimEmail)
}

// TokenFromWebSocketProtocol extracts the JWT from a Sec-WebSocket-Protocol
// header of the form "access_token, <token>". Returns the subprotocol name
// to echo back on upgrade.
func TokenFromWebSocketProtocol(header string) (token, subprotocol string, err error) {
	parts := strings.Split(header, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) != 2 || parts[0] != wsProtocolName || parts[1] == "" {
		return "", "", fmt.Errorf("invalid websocket protocol format, expected [%q, token]", wsProtocolName)
	}
	return parts[1], wsProtocolName, nil
}

func mapClaimsFromContext(c echo.Context) (jwt.MapClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil || !token.Valid {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	raw, ok := claims[key]
	if !ok || raw == nil {
		return ""
	}
	switch v := raw.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(raw)
	}
}
