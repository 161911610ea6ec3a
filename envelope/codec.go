package envelope

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Envelope is the versioned wire format every persisted value is wrapped
// in: {version, type, created_at, updated_at, data}. Sensitive fields
// inside Data are themselves replaced by SealedValue envelopes before this
// outer envelope is serialized.
type Envelope struct {
	Version   int             `json:"version"`
	Type      string          `json:"type"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

const envelopeVersion = 1

// SealedValue is the wire format of an individually encrypted field:
// {version, iv, data, tag}, all but version base64-encoded.
type SealedValue struct {
	Version int    `json:"version"`
	IV      string `json:"iv"`
	Data    string `json:"data"`
	Tag     string `json:"tag"`
}

// IsSealedValue reports whether a decoded JSON object looks like a
// SealedValue, used to detect already-encrypted fields during decryption
// and by tests asserting the at-rest shape of sensitive fields.
func IsSealedValue(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok {
		return false
	}
	_, hasVersion := m["version"]
	_, hasIV := m["iv"]
	_, hasData := m["data"]
	_, hasTag := m["tag"]
	return hasVersion && hasIV && hasData && hasTag
}

// EncryptFields takes a JSON-serializable object, walks it to the given
// dotted field paths (e.g. "access_token", "tokens.refresh_token"), and
// replaces the value at each path with a SealedValue encrypted under
// DeriveKey(masterKey, context). The additional-authenticated-data for
// each field is "data."+path, matching the wire format in spec section 6.
//
// The walk uses an explicit path stack over the parsed JSON tree
// (map[string]interface{}) rather than reflection over the Go struct,
// so field names at rest do not have to match Go struct tags or visibility
// rules, and pointer/slice/embedding quirks never enter into it.
func EncryptFields(masterKey []byte, context string, obj interface{}, sensitivePaths []string) (json.RawMessage, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshaling object: %w", err)
	}
	var tree map[string]interface{}
	if err := json.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("envelope: unmarshaling object for field walk: %w", err)
	}

	paths := make(map[string]bool, len(sensitivePaths))
	for _, p := range sensitivePaths {
		paths[p] = true
	}

	if err := walkAndSeal(masterKey, context, tree, nil, paths); err != nil {
		return nil, err
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshaling sealed tree: %w", err)
	}
	return out, nil
}

func walkAndSeal(masterKey []byte, context string, node map[string]interface{}, pathStack []string, targets map[string]bool) error {
	for key, value := range node {
		path := append(append([]string{}, pathStack...), key)
		dotted := strings.Join(path, ".")

		if targets[dotted] {
			strVal, ok := value.(string)
			if !ok || strVal == "" {
				continue
			}
			sealed, err := sealString(masterKey, context, dotted, strVal)
			if err != nil {
				return err
			}
			node[key] = sealed
			continue
		}

		if child, ok := value.(map[string]interface{}); ok {
			if err := walkAndSeal(masterKey, context, child, path, targets); err != nil {
				return err
			}
		}
	}
	return nil
}

func sealString(masterKey []byte, context, aad, plaintext string) (map[string]interface{}, error) {
	iv, data, tag, err := Seal(masterKey, context, "data."+aad, []byte(plaintext))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"version": envelopeVersion,
		"iv":      base64.StdEncoding.EncodeToString(iv),
		"data":    base64.StdEncoding.EncodeToString(data),
		"tag":     base64.StdEncoding.EncodeToString(tag),
	}, nil
}

// DecryptFields reverses EncryptFields: it walks the decoded tree, and
// every value shaped like a SealedValue at one of sensitivePaths is
// decrypted back to its plaintext string.
func DecryptFields(masterKey []byte, context string, data json.RawMessage, sensitivePaths []string) (json.RawMessage, error) {
	var tree map[string]interface{}
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("envelope: unmarshaling sealed tree: %w", err)
	}

	paths := make(map[string]bool, len(sensitivePaths))
	for _, p := range sensitivePaths {
		paths[p] = true
	}

	if err := walkAndOpen(masterKey, context, tree, nil, paths); err != nil {
		return nil, err
	}

	out, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("envelope: marshaling decrypted tree: %w", err)
	}
	return out, nil
}

func walkAndOpen(masterKey []byte, context string, node map[string]interface{}, pathStack []string, targets map[string]bool) error {
	for key, value := range node {
		path := append(append([]string{}, pathStack...), key)
		dotted := strings.Join(path, ".")

		if targets[dotted] && IsSealedValue(value) {
			plaintext, err := openSealedMap(masterKey, context, dotted, value.(map[string]interface{}))
			if err != nil {
				return err
			}
			node[key] = plaintext
			continue
		}

		if child, ok := value.(map[string]interface{}); ok {
			if err := walkAndOpen(masterKey, context, child, path, targets); err != nil {
				return err
			}
		}
	}
	return nil
}

func openSealedMap(masterKey []byte, context, aad string, m map[string]interface{}) (string, error) {
	iv, err := base64.StdEncoding.DecodeString(m["iv"].(string))
	if err != nil {
		return "", fmt.Errorf("envelope: decoding iv: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(m["data"].(string))
	if err != nil {
		return "", fmt.Errorf("envelope: decoding data: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(m["tag"].(string))
	if err != nil {
		return "", fmt.Errorf("envelope: decoding tag: %w", err)
	}
	plaintext, err := Open(masterKey, context, "data."+aad, iv, data, tag)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Wrap builds the outer Envelope around already-field-sealed data.
func Wrap(typ string, data json.RawMessage, createdAt, updatedAt time.Time) Envelope {
	return Envelope{
		Version:   envelopeVersion,
		Type:      typ,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Data:      data,
	}
}
