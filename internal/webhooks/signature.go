package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sign computes the lowercase hex HMAC-SHA256 signature of body using secret.
// An empty secret yields an empty signature.
func Sign(body []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// canonicalJSON encodes a payload with object keys sorted, so the same
// logical payload always produces the same bytes and the same signature.
// encoding/json sorts map keys, which receivers can rely on to verify.
func canonicalJSON(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}

// SignPayload signs the canonical JSON encoding of payload.
func SignPayload(payload map[string]any, secret string) (string, error) {
	if secret == "" {
		return "", nil
	}
	body, err := canonicalJSON(payload)
	if err != nil {
		return "", err
	}
	return Sign(body, secret), nil
}
