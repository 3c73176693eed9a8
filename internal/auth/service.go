package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"room-broker/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Identity is the user a verified session token speaks for.
type Identity struct {
	UserID   string
	Username string
}

// Service verifies session tokens issued by the Room/Session Store.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(cfg config.JWTConfig) *Service {
	return &Service{
		secret: cfg.Secret,
		ttl:    24 * time.Hour,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *Service) Enabled() bool {
	return len(s.secret) > 0
}

func (s *Service) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("%w: token verification is not configured", ErrInvalidToken)
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IdentityFromToken validates the token and extracts the user it names.
func (s *Service) IdentityFromToken(tokenString string) (*Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID := claimString(claims, "user_id")
	username := strings.TrimSpace(claimString(claims, "username"))
	if userID == "" || username == "" {
		return nil, fmt.Errorf("%w: user_id and username claims are required", ErrInvalidToken)
	}
	return &Identity{UserID: userID, Username: username}, nil
}

// GenerateToken signs a session token for identity. The store normally
// issues these; the broker uses it for tooling and tests.
func (s *Service) GenerateToken(identity Identity) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id":  identity.UserID,
		"username": identity.Username,
		"exp":      now.Add(s.ttl).Unix(),
		"iat":      now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// claimString accepts string ids and the numeric ids older tokens carry.
func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
