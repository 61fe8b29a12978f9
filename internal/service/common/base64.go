package common

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncodeBase64 encodes bytes as an opaque URL-safe token.
func EncodeBase64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeBase64 reverses EncodeBase64.
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

// EncodeCursor serialises v as JSON wrapped in a URL-safe token.
func EncodeCursor(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return EncodeBase64(raw), nil
}

// DecodeCursor parses a token produced by EncodeCursor into v.
func DecodeCursor(token string, v any) error {
	raw, err := DecodeBase64(token)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode cursor: %w", err)
	}
	return nil
}
