package content

import (
	"strings"
	"testing"
)

func TestPlainText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Plain text", "Hello World", "Hello World"},
		{"HTML tags", "Hello <b>World</b>", "Hello World"},
		{"Script tag", "<script>alert('xss')</script>Hello", "Hello"},
		{"Complex HTML", "<a href='javascript:alert(1)'>Click me</a>", "Click me"},
		{"Special characters", `it's "a" & b < c`, `it's "a" & b < c`},
		{"Emoji", "I am 🤖", "I am 🤖"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PlainText(tt.input); got != tt.expected {
				t.Errorf("PlainText() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMessage(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"Plain", "hi", "hi", nil},
		{"Trimmed", "  hi  ", "hi", nil},
		{"Special characters kept", `it's "a" & b < c`, `it's "a" & b < c`, nil},
		{"Markup kept", "<b>hi</b>", "<b>hi</b>", nil},
		{"Empty", "", "", ErrEmptyMessage},
		{"Whitespace", " \n\t ", "", ErrEmptyMessage},
		{"Only script", "<script>alert(1)</script>", "", ErrEmptyMessage},
		{"Too long", strings.Repeat("a", MaxMessageLength+1), "", ErrMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Message(tt.input)
			if err != tt.wantErr {
				t.Fatalf("Message() error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"Valid alphanumeric", "user123", false},
		{"Valid with dot", "user.name", false},
		{"Valid with dash", "user-name", false},
		{"Valid with underscore", "user_name", false},
		{"Invalid space", "user name", true},
		{"Invalid symbol", "user@name", true},
		{"Empty", "", true},
		{"Too long", strings.Repeat("u", MaxUsernameLength+1), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	got, err := DisplayName("", "alice")
	if err != nil || got != "alice" {
		t.Errorf("DisplayName() = %q, %v; want fallback to username", got, err)
	}
	got, err = DisplayName("<script>x</script>Alice", "alice")
	if err != nil || got != "Alice" {
		t.Errorf("DisplayName() = %q, %v; want Alice", got, err)
	}
	got, err = DisplayName("O'Brien & Sons", "obrien")
	if err != nil || got != "O'Brien & Sons" {
		t.Errorf("DisplayName() = %q, %v; want O'Brien & Sons", got, err)
	}
	if _, err := DisplayName(strings.Repeat("A", MaxDisplayNameLength+1), "alice"); err == nil {
		t.Error("expected error for long display name")
	}
}

func TestExtension(t *testing.T) {
	tests := map[string]string{
		"cat.PNG":          "png",
		"photo.jpeg":       "jpeg",
		"archive.tar.gz":   "gz",
		"noext":            "",
		"weird.p/ng":       "",
		"../../etc/passwd": "",
		"long.abcdefghijk": "",
	}
	for in, want := range tests {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}
