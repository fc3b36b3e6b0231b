package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrBadState is returned for OAuth state blobs that are malformed or
// carry an invalid signature
var ErrBadState = errors.New("invalid oauth state")

// State is the payload round-tripped through the provider's consent
// dialog. It is HMAC-signed so a caller cannot forge another user's id.
type State struct {
	UserID int64 `json:"userId"`
	TS     int64 `json:"ts"`
}

// StateCodec signs and verifies OAuth state blobs
type StateCodec struct {
	key []byte
}

// NewStateCodec creates a state codec keyed with the given hex secret
func NewStateCodec(keyHex string) (*StateCodec, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("state signing key must be non-empty hex")
	}
	return &StateCodec{key: key}, nil
}

// Encode serializes and signs a state payload:
// base64url(json) + "." + hex(hmac-sha256)
func (s *StateCodec) Encode(userID int64) (string, error) {
	payload, err := json.Marshal(State{UserID: userID, TS: time.Now().Unix()})
	if err != nil {
		return "", err
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), nil
}

// Decode verifies the signature and deserializes a state blob
func (s *StateCodec) Decode(value string) (*State, error) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return nil, ErrBadState
	}
	if !hmac.Equal([]byte(s.sign(parts[0])), []byte(parts[1])) {
		return nil, ErrBadState
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrBadState
	}
	var state State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, ErrBadState
	}
	if state.UserID <= 0 {
		return nil, ErrBadState
	}
	return &state, nil
}

func (s *StateCodec) sign(encoded string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(encoded))
	return hex.EncodeToString(mac.Sum(nil))
}
