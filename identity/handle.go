package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	handleRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)

	// HandleInvalid is the special handle string indicating that handle
	// resolution failed.
	HandleInvalid = Handle("handle.invalid")
)

// Handle is a syntactically valid atproto handle identifier.
//
// Always use [ParseHandle] instead of wrapping strings directly, especially
// when working with untrusted input.
//
// Syntax specification: https://atproto.com/specs/handle
type Handle string

func ParseHandle(raw string) (Handle, error) {
	if raw == "" {
		return "", errors.New("expected handle, got empty string")
	}
	if len(raw) > 253 {
		return "", errors.New("handle is too long (253 chars max)")
	}
	if !handleRegex.MatchString(raw) {
		return "", fmt.Errorf("handle syntax didn't validate via regex: %s", raw)
	}
	return Handle(raw), nil
}

// AllowedTLD reports whether the handle's top-level domain is one atproto
// permits for real accounts. The syntax of a disallowed TLD may still be
// valid; it is simply never acceptable for linking or registration.
//
// The reserved ".test" TLD is allowed for local development; resolution of
// ".test" domains is expected to fail on the real network.
func (h Handle) AllowedTLD() bool {
	switch h.TLD() {
	case "local",
		"arpa",
		"invalid",
		"localhost",
		"internal",
		"example",
		"onion",
		"alt":
		return false
	}
	return true
}

func (h Handle) TLD() string {
	parts := strings.Split(string(h.Normalize()), ".")
	return parts[len(parts)-1]
}

// IsInvalidHandle reports whether this is the sentinel "handle.invalid".
func (h Handle) IsInvalidHandle() bool {
	return h.Normalize() == "handle.invalid"
}

func (h Handle) Normalize() Handle {
	return Handle(strings.ToLower(string(h)))
}

func (h Handle) String() string {
	return string(h)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	handle, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = handle
	return nil
}
