// Package session recovers the acting user's identity from the stored bearer
// credential. The credential's signature is never verified here; the API does
// that on every request.
package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xolex/xolex/internal/models"
)

// DecodeError describes why a credential could not be decoded.
// It never leaves this package's exported API.
type DecodeError struct {
	Step string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "decode credential: " + e.Step
	}
	return fmt.Sprintf("decode credential: %s: %v", e.Step, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// identity is a user object as found in the payload.
type identity struct {
	ID    models.Flex `json:"id"`
	Name  string      `json:"name"`
	Email string      `json:"email"`
}

// claims accepts both payload shapes the API issues: a nested "user" object
// or the same fields at the top level.
type claims struct {
	User *identity `json:"user"`
	identity
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeCredential returns the Principal carried in the credential's payload
// segment. Malformed input yields the zero Principal.
func DecodeCredential(token string) models.Principal {
	p, _ := decode(token)
	return p
}

func decode(token string) (models.Principal, error) {
	parts := strings.Split(token, ".")
	if len(parts) < 2 || parts[1] == "" {
		return models.Principal{}, &DecodeError{Step: "missing payload segment"}
	}

	// Accept both base64 alphabets.
	seg := strings.NewReplacer("+", "-", "/", "_").Replace(parts[1])
	payload, err := segmentParser.DecodeSegment(seg)
	if err != nil {
		return models.Principal{}, &DecodeError{Step: "base64", Err: err}
	}
	if !utf8.Valid(payload) {
		return models.Principal{}, &DecodeError{Step: "payload is not UTF-8"}
	}

	var c claims
	if err := json.Unmarshal(payload, &c); err != nil {
		return models.Principal{}, &DecodeError{Step: "json", Err: err}
	}

	if c.User != nil {
		id := c.User.ID
		if !id.Valid() || id.String() == "" {
			id = c.ID
		}
		return models.Principal{ID: id.String(), Name: c.User.Name, Email: c.User.Email}, nil
	}
	return models.Principal{ID: c.ID.String(), Name: c.Name, Email: c.Email}, nil
}
