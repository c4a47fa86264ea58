package auth

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/jafarnz/tpconnect/internal/logger"
	"github.com/jafarnz/tpconnect/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	// Initialized from the environment or explicitly via InitJWTKey
	// once configuration has been loaded.
	jwtKey = []byte(os.Getenv("JWT_SECRET"))
	log    = logger.New("auth")
)

// InitJWTKey initializes the JWT key with the provided secret. Session
// issuance lives outside this service; the key only has to match the
// issuer's so tokens validate here.
func InitJWTKey(key []byte) {
	jwtKey = key
}

// JWTClaims represents the claims in the JWT
type JWTClaims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	jwt.RegisteredClaims
}

// GenerateToken creates a new JWT token for a user
func GenerateToken(user *models.User) (string, time.Time, error) {
	if user == nil {
		return "", time.Time{}, errors.New("user cannot be nil")
	}

	if user.ID == uuid.Nil {
		return "", time.Time{}, errors.New("user ID cannot be empty")
	}

	expirationTime := time.Now().Add(24 * time.Hour)

	claims := &JWTClaims{
		UserID: user.ID.String(),
		Name:   user.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(jwtKey)

	return tokenString, expirationTime, err
}

// ValidateToken validates a JWT token and returns the claims
func ValidateToken(tokenString string) (*JWTClaims, error) {
	if tokenString == "" {
		log.Warn("Validating empty token")
	}

	claims := &JWTClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			log.Error("Unexpected signing method: %v", token.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return jwtKey, nil
	})

	if err != nil {
		log.Error("Token validation error: %v", err)
		return nil, err
	}

	if !token.Valid {
		log.Warn("Token is invalid")
		return nil, ErrInvalidToken
	}

	return claims, nil
}
