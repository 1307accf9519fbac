package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// ContentHash returns the hex sha256 of the canonical JSON form of an action.
// The hash and objects fields are excluded so side-channel data can be
// attached after hashing.
func ContentHash(action Action) (string, error) {
	raw, err := json.Marshal(action)
	if err != nil {
		return "", fmt.Errorf("failed to marshal action: %w", err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("failed to unmarshal action: %w", err)
	}
	delete(fields, "hash")
	delete(fields, "objects")
	stripped, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("failed to marshal action fields: %w", err)
	}
	canonical, err := jcs.Transform(stripped)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize action: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Seal computes the content hash and stores it on the action.
func Seal(action Action) error {
	hash, err := ContentHash(action)
	if err != nil {
		return err
	}
	action.Header().Hash = hash
	return nil
}

// VerifyHash reports whether the carried hash matches the content.
func VerifyHash(action Action) error {
	want, err := ContentHash(action)
	if err != nil {
		return err
	}
	if got := action.Header().Hash; got != want {
		return fmt.Errorf("hash mismatch: got %s want %s", got, want)
	}
	return nil
}
