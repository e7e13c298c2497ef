package models

import (
	"strings"
	"unicode/utf8"
)

// FallbackName is shown when the credential carries no user name.
const FallbackName = "User"

// Principal is the identity recovered from the session credential.
// Any field may be empty.
type Principal struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// IsZero reports whether nothing was recovered.
func (p Principal) IsZero() bool {
	return p.ID == "" && p.Name == "" && p.Email == ""
}

// DisplayName returns the name or the fallback label.
func (p Principal) DisplayName() string {
	if p.Name == "" {
		return FallbackName
	}
	return p.Name
}

// Initial returns the upper-cased first letter of the display name.
func (p Principal) Initial() string {
	r, _ := utf8.DecodeRuneInString(p.DisplayName())
	return strings.ToUpper(string(r))
}
