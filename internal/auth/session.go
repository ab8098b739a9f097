// Package auth manages backend sign-in and the saved session token.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/todochat/internal/logger"
)

// Session is the saved authentication state for one backend.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session carries a token that has not expired.
// A zero ExpiresAt means the backend issued no expiry and the token is
// trusted until the server rejects it.
func (s *Session) Valid() bool {
	if s == nil || s.Token == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return time.Now().Before(s.ExpiresAt)
}

// LoadSession reads the saved session from path.
// Returns nil if the file doesn't exist or cannot be parsed.
func LoadSession(path string) *Session {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Failed to read session file: %v", err)
		return nil
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		logger.Warn("Failed to parse session JSON: %v", err)
		return nil
	}

	return &sess
}

// SaveSession writes the session to path, creating the parent directory.
// The file is written 0600 since it holds a bearer token.
func SaveSession(path string, sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating session directory: %w", err)
	}

	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing session file: %w", err)
	}

	logger.Debug("Session saved to %s", path)
	return nil
}

// ClearSession removes the saved session. A missing file is not an error.
func ClearSession(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session file: %w", err)
	}
	return nil
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token string `json:"token"`
	User  struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Login authenticates against the backend's email sign-in endpoint and
// returns a session ready to save.
func Login(ctx context.Context, baseURL, email, password string) (*Session, error) {
	body, err := json.Marshal(signInRequest{Email: email, Password: password})
	if err != nil {
		return nil, fmt.Errorf("encoding sign-in request: %w", err)
	}

	url := strings.TrimRight(baseURL, "/") + "/api/auth/sign-in/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("invalid email or password")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("sign-in failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parsing sign-in response: %w", err)
	}
	if parsed.Token == "" {
		return nil, fmt.Errorf("sign-in response carried no token")
	}

	return &Session{
		Token:     parsed.Token,
		Email:     parsed.User.Email,
		UserID:    parsed.User.ID,
		ExpiresAt: parsed.ExpiresAt,
	}, nil
}
