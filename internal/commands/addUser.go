package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"parley/internal/api"
	"parley/internal/config"
)

// AddUser creates a user through the admin API of a running server.
func AddUser(username, displayName, password string, cfg *config.Config, out io.Writer) error {
	reqBody, err := json.Marshal(api.AddUserRequest{
		Username:    username,
		DisplayName: displayName,
		Password:    password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("http://%s/admin/users", cfg.AdminAddr)
	resp, err := client.Post(url, "application/json", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to call admin API: %w. Is the server running?", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var result api.AddUserResponse
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		if json.Unmarshal(body, &result) == nil && result.Message != "" {
			return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, result.Message)
		}
		return fmt.Errorf("failed to add user (Status: %d): %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	_, _ = fmt.Fprintf(out, "\nUser Created Successfully!\n")
	_, _ = fmt.Fprintf(out, "ID:           %d\n", result.ID)
	_, _ = fmt.Fprintf(out, "Username:     %s\n", result.Username)
	_, _ = fmt.Fprintf(out, "Display name: %s\n\n", result.DisplayName)
	return nil
}
