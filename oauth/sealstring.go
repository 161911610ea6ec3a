package oauth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-atproto/oauth/envelope"
)

// envelopeSealString seals a single plaintext string as a JSON-encoded
// envelope.SealedValue, for values stored directly under their own storage
// key rather than as a field inside a larger document (eg, the client's
// own long-lived signing key).
func envelopeSealString(masterKey []byte, context, plaintext string) (string, error) {
	iv, data, tag, err := envelope.Seal(masterKey, context, context, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("oauth: sealing value: %w", err)
	}
	sv := envelope.SealedValue{
		Version: 1,
		IV:      base64.StdEncoding.EncodeToString(iv),
		Data:    base64.StdEncoding.EncodeToString(data),
		Tag:     base64.StdEncoding.EncodeToString(tag),
	}
	out, err := json.Marshal(sv)
	if err != nil {
		return "", fmt.Errorf("oauth: marshaling sealed value: %w", err)
	}
	return string(out), nil
}

// envelopeOpenString reverses envelopeSealString.
func envelopeOpenString(masterKey []byte, context, sealed string) (string, error) {
	var sv envelope.SealedValue
	if err := json.Unmarshal([]byte(sealed), &sv); err != nil {
		return "", fmt.Errorf("oauth: unmarshaling sealed value: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(sv.IV)
	if err != nil {
		return "", fmt.Errorf("oauth: decoding iv: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(sv.Data)
	if err != nil {
		return "", fmt.Errorf("oauth: decoding data: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(sv.Tag)
	if err != nil {
		return "", fmt.Errorf("oauth: decoding tag: %w", err)
	}
	plaintext, err := envelope.Open(masterKey, context, context, iv, data, tag)
	if err != nil {
		return "", fmt.Errorf("oauth: opening sealed value: %w", err)
	}
	return string(plaintext), nil
}
