package filejump

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// tokenName identifies tokens issued through this client in the
// server's token list.
const tokenName = "fuse3_token"

// TokenFile holds a saved access token. FileJump tokens are opaque and
// do not expire on their own; CreatedAt is informational.
type TokenFile struct {
	Token     string    `json:"token"`
	Server    string    `json:"server"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Login authenticates with email/password and returns the access token.
// The token is also installed on the client for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, "auth/login", nil, LoginRequest{
		Email:     email,
		Password:  password,
		TokenName: tokenName,
	})
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("login failed (%d): %s", status, snippet(body))
	}

	var result LoginResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse login response: %w", err)
	}
	if result.User.AccessToken == "" {
		return "", fmt.Errorf("login response carries no access token: %s", snippet(body))
	}

	c.SetAuthToken(result.User.AccessToken)
	return result.User.AccessToken, nil
}

// TokenFilePath returns the default path for the token file.
func TokenFilePath() string {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			home, _ := os.UserHomeDir()
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "FileJumpFS", "token.json")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "filejumpfs", "token.json")
}

// SaveToken saves a token file to the default location.
func SaveToken(tf *TokenFile) error {
	path := TokenFilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// LoadToken loads a token file from the default location.
func LoadToken() (*TokenFile, error) {
	data, err := os.ReadFile(TokenFilePath())
	if err != nil {
		return nil, err
	}
	var tf TokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, err
	}
	return &tf, nil
}

// DeleteToken removes the saved token file.
func DeleteToken() error {
	return os.Remove(TokenFilePath())
}
