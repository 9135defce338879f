package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTService emite y valida bearer tokens de acceso.
type JWTService struct {
	secret []byte
	issuer string
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

func NewJWTService(secret string) *JWTService {
	return &JWTService{
		secret: []byte(secret),
		issuer: "companion-llm",
	}
}

// Issue firma un access token para el usuario externo con el TTL pedido.
func (s *JWTService) Issue(externalUserID string, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 || strings.TrimSpace(externalUserID) == "" {
		return "", time.Time{}, ErrJWTInvalid
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	claims := Claims{
		UserID: externalUserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   externalUserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	return signed, expires, err
}

// Parse valida firma y expiracion y devuelve los claims.
func (s *JWTService) Parse(tokenString string) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrJWTInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if !token.Valid || claims.UserID == "" {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}
