package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	errUnrecognizedToken = errors.New("unrecognized token")
)

type TokenOptions struct {
	Exp    time.Duration
	Secret []byte
}

// Identity is the authenticated user attached to a connection at handshake
// time. It is immutable for the lifetime of the connection.
type Identity struct {
	UserID string
	Name   string
	Role   string
}

type IdentityClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

func NewIdentityClaims(identity Identity, exp time.Time) *IdentityClaims {
	return &IdentityClaims{
		Name: identity.Name,
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "collab",
		},
	}
}

// CreateToken signs a token for the identity. The session-issuing service
// owns token creation in production; the gateway only verifies. Exported
// for tests and local tooling.
func CreateToken(identity Identity, options TokenOptions) (signed string, exp time.Time, err error) {
	exp = time.Now().Add(options.Exp)
	claims := NewIdentityClaims(identity, exp)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err = token.SignedString(options.Secret)
	if err != nil {
		return signed, exp, err
	}

	_, err = VerifyToken(signed, options)

	return signed, exp, err
}

// VerifyToken parses and validates a signed token and returns the identity
// it carries.
func VerifyToken(token string, options TokenOptions) (*Identity, error) {
	claims := &IdentityClaims{}

	_token, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return options.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case _token != nil && _token.Valid:
		return &Identity{
			UserID: claims.Subject,
			Name:   claims.Name,
			Role:   claims.Role,
		}, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, errUnrecognizedToken
	}
}
