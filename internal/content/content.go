// Package content validates user supplied text before it is stored or broadcast.
package content

import (
	"errors"
	"fmt"
	"html"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const (
	MaxUsernameLength    = 32
	MaxDisplayNameLength = 64
	MaxMessageLength     = 4096
	maxExtensionLength   = 8
)

var (
	ErrEmptyMessage   = errors.New("message is empty")
	ErrMessageTooLong = fmt.Errorf("message exceeds %d characters", MaxMessageLength)
)

var (
	markup        = bluemonday.StrictPolicy()
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
	extRegex      = regexp.MustCompile(`^[a-z0-9]+$`)
)

// PlainText returns input with all markup removed and entities decoded.
func PlainText(input string) string {
	return html.UnescapeString(markup.Sanitize(input))
}

// Message checks a chat text frame and returns it trimmed, otherwise
// unchanged. Clients receive it as a JSON string and must not render it as
// HTML. Text with nothing left once markup is removed, like a lone script
// tag, is rejected.
func Message(input string) (string, error) {
	if utf8.RuneCountInString(input) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	text := strings.TrimSpace(input)
	if text == "" || strings.TrimSpace(PlainText(text)) == "" {
		return "", ErrEmptyMessage
	}
	return text, nil
}

// ValidateUsername allows alphanumerics, dot, dash and underscore.
func ValidateUsername(username string) error {
	if username == "" {
		return errors.New("username cannot be empty")
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("username exceeds %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return errors.New("username contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}

// DisplayName strips markup from a display name. An empty result falls back
// to username.
func DisplayName(displayName, username string) (string, error) {
	clean := strings.TrimSpace(PlainText(displayName))
	if clean == "" {
		return username, nil
	}
	if utf8.RuneCountInString(clean) > MaxDisplayNameLength {
		return "", fmt.Errorf("display name exceeds %d characters", MaxDisplayNameLength)
	}
	return clean, nil
}

// Extension returns the lowercased extension of a client supplied file name
// without the dot, or "" when it is missing or unusable in a stored name.
func Extension(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
	if ext == "" || len(ext) > maxExtensionLength || !extRegex.MatchString(ext) {
		return ""
	}
	return ext
}
