// Package auth issues and verifies the JWTs used by teams and admins to
// authenticate against the submission API and the event bus websocket.
package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTeamNotFound    = errors.New("team not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrTeamExists      = errors.New("team already registered for this contest")
	ErrInvalidToken    = errors.New("invalid token")
)

// Service issues and verifies team/admin auth tokens against the team
// table in Postgres.
type Service struct {
	db        *sql.DB
	jwtSecret string
}

// Team is a registered contest participant.
type Team struct {
	ID        uuid.UUID `json:"id"`
	ContestID uuid.UUID `json:"contest_id"`
	Name      string    `json:"name"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Claims is the JWT payload carried by every team and admin session. It
// scopes a token to exactly one contest; a team registered in multiple
// contests holds one token per contest.
type Claims struct {
	TeamID    string `json:"team_id"`
	ContestID string `json:"contest_id"`
	IsAdmin   bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// NewService constructs an auth Service.
func NewService(db *sql.DB, jwtSecret string) *Service {
	return &Service{
		db:        db,
		jwtSecret: jwtSecret,
	}
}

// Register creates a new team under a contest.
func (s *Service) Register(ctx context.Context, contestID uuid.UUID, name, password string, isAdmin bool) (*Team, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM teams WHERE contest_id = $1 AND name = $2)",
		contestID, name,
	).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrTeamExists
	}

	hashedPassword := hashPassword(password)
	teamID := uuid.New()
	now := time.Now()

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO teams (id, contest_id, name, password_hash, is_admin, created_at) VALUES ($1, $2, $3, $4, $5, $6)",
		teamID, contestID, name, hashedPassword, isAdmin, now,
	)
	if err != nil {
		return nil, err
	}

	return &Team{
		ID:        teamID,
		ContestID: contestID,
		Name:      name,
		IsAdmin:   isAdmin,
		CreatedAt: now,
	}, nil
}

// Login verifies credentials and returns a signed JWT scoped to the team's
// contest.
func (s *Service) Login(ctx context.Context, contestID uuid.UUID, name, password string) (string, error) {
	var teamID uuid.UUID
	var storedHash string
	var isAdmin bool

	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash, is_admin FROM teams WHERE contest_id = $1 AND name = $2",
		contestID, name,
	).Scan(&teamID, &storedHash, &isAdmin)

	if err == sql.ErrNoRows {
		return "", ErrTeamNotFound
	}
	if err != nil {
		return "", err
	}

	if hashPassword(password) != storedHash {
		return "", ErrInvalidPassword
	}

	claims := &Claims{
		TeamID:    teamID.String(),
		ContestID: contestID.String(),
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// VerifyToken parses and validates a bearer token, stripping the "Bearer "
// prefix if present.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	if len(tokenString) > 7 && tokenString[:7] == "Bearer " {
		tokenString = tokenString[7:]
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// IssueSocketToken mints a short-lived token for the websocket handshake,
// scoped the same way as a login token but with a tight expiry since it is
// passed as a query parameter.
func (s *Service) IssueSocketToken(teamID, contestID uuid.UUID, isAdmin bool) (string, error) {
	claims := &Claims{
		TeamID:    teamID.String(),
		ContestID: contestID.String(),
		IsAdmin:   isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

func hashPassword(password string) string {
	hash := sha256.Sum256([]byte(password))
	return hex.EncodeToString(hash[:])
}
