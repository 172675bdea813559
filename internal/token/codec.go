// Package token encodes and decodes the payload carried by attendance QR codes.
//
// Two modes exist. Plain tokens carry the subject name and the ISO date joined
// by a separator, so they decode back to both. Hashed tokens carry only a
// SHA-256 digest of the name and date; they cannot be decoded and are matched
// by recomputing Digest for known subjects.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Mode selects the token encoding.
type Mode string

const (
	ModePlain  Mode = "plain"
	ModeHashed Mode = "hashed"
)

// DefaultSeparator joins name and date in plain tokens.
const DefaultSeparator = "|"

var (
	ErrMalformedToken = errors.New("malformed token")
	ErrInvalidName    = errors.New("invalid subject name")
	ErrUnknownMode    = errors.New("unknown token mode")
)

// Payload is a decoded token. Plain tokens fill Name and Date, hashed tokens fill Hash.
type Payload struct {
	Mode Mode
	Name string
	Date string
	Hash string
}

// Codec is a stateless encoder/decoder; the zero value is a plain codec using "|".
type Codec struct {
	Mode      Mode
	Separator string
	// HexName hex-encodes the name in plain tokens so any name survives the separator split.
	HexName bool
	// Secret salts hashed digests.
	Secret string
}

// ParseMode converts a configuration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePlain:
		return ModePlain, nil
	case ModeHashed:
		return ModeHashed, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

func (c Codec) mode() Mode {
	if c.Mode == "" {
		return ModePlain
	}
	return c.Mode
}

func (c Codec) sep() string {
	if c.Separator == "" {
		return DefaultSeparator
	}
	return c.Separator
}

// Encode builds the token for name on date. date is passed through as given;
// callers supply ISO-8601 (YYYY-MM-DD).
func (c Codec) Encode(name, date string) (string, error) {
	if name == "" {
		return "", ErrInvalidName
	}
	switch c.mode() {
	case ModePlain:
		part := name
		if c.HexName {
			part = hex.EncodeToString([]byte(name))
		} else if strings.Contains(name, c.sep()) {
			return "", fmt.Errorf("%w: contains separator %q", ErrInvalidName, c.sep())
		}
		return part + c.sep() + date, nil
	case ModeHashed:
		return c.Digest(name, date), nil
	}
	return "", ErrUnknownMode
}

// Decode parses a token produced by Encode with the same configuration.
func (c Codec) Decode(tok string) (Payload, error) {
	switch c.mode() {
	case ModePlain:
		if strings.Count(tok, c.sep()) != 1 {
			return Payload{}, ErrMalformedToken
		}
		name, date, _ := strings.Cut(tok, c.sep())
		if c.HexName {
			raw, err := hex.DecodeString(name)
			if err != nil {
				return Payload{}, ErrMalformedToken
			}
			name = string(raw)
		}
		if name == "" {
			return Payload{}, ErrMalformedToken
		}
		return Payload{Mode: ModePlain, Name: name, Date: date}, nil
	case ModeHashed:
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) != sha256.Size*2 {
			return Payload{}, ErrMalformedToken
		}
		if _, err := hex.DecodeString(tok); err != nil {
			return Payload{}, ErrMalformedToken
		}
		return Payload{Mode: ModeHashed, Hash: tok}, nil
	}
	return Payload{}, ErrUnknownMode
}

// Digest is the hashed-mode token: hex(sha256(secret + name + ":" + date)).
func (c Codec) Digest(name, date string) string {
	sum := sha256.Sum256([]byte(c.Secret + name + ":" + date))
	return hex.EncodeToString(sum[:])
}
