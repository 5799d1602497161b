package mcp

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// AuthMode selects how initialize-time authentication is evaluated.
type AuthMode string

const (
	AuthNone   AuthMode = "none"
	AuthBearer AuthMode = "bearer" // HMAC-signed JWT
	AuthAPIKey AuthMode = "api_key"
)

// AuthConfig configures the optional session authenticator.
type AuthConfig struct {
	Mode      AuthMode
	JWTSecret string
	APIKeys   map[string]string // key -> client id
}

// Claims is the JWT payload a Bearer session must present.
type Claims struct {
	Sub string `json:"sub"`
	jwt.RegisteredClaims
}

// Authenticator evaluates a session's credentials once, at initialize time.
// An AuthNone-configured (or zero-mode) Authenticator always succeeds; a
// Dispatcher given a nil Authenticator skips authentication altogether.
type Authenticator struct {
	cfg AuthConfig
}

func NewAuthenticator(cfg AuthConfig) *Authenticator {
	return &Authenticator{cfg: cfg}
}

// Authenticate validates the supplied credential string (the value of an
// Authorization header or similar out-of-band token) and returns the
// resolved client id, or an error describing why authentication failed.
func (a *Authenticator) Authenticate(credential string) (clientID string, err error) {
	switch a.cfg.Mode {
	case "", AuthNone:
		return "anonymous", nil
	case AuthBearer:
		return a.authenticateBearer(credential)
	case AuthAPIKey:
		return a.authenticateAPIKey(credential)
	default:
		return "", errors.New("unknown authentication mode")
	}
}

func (a *Authenticator) authenticateBearer(credential string) (string, error) {
	tokenString := strings.TrimPrefix(credential, "Bearer ")
	if tokenString == credential {
		return "", errors.New("expected a Bearer credential")
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", errors.New("invalid token: " + err.Error())
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", errors.New("invalid token")
	}
	return claims.Sub, nil
}

func (a *Authenticator) authenticateAPIKey(credential string) (string, error) {
	clientID, ok := a.cfg.APIKeys[credential]
	if !ok {
		return "", errors.New("unrecognized api key")
	}
	return clientID, nil
}
