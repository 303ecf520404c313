package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// signatureVersion prefixes both the signing base string and the signature
// header, per Slack's signing protocol.
const signatureVersion = "v0"

// maxSignatureAge rejects replayed requests with stale timestamps.
const maxSignatureAge = 5 * time.Minute

// VerifySignature checks a Slack request signature against the signing
// secret. timestamp and signature come from the X-Slack-Request-Timestamp
// and X-Slack-Signature headers; body is the raw request body. Comparison
// is constant-time.
func VerifySignature(signingSecret, timestamp, signature string, body []byte, now time.Time) bool {
	if signingSecret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > maxSignatureAge {
		return false
	}

	mac := hmac.New(sha256.New, []byte(signingSecret))
	mac.Write([]byte(signatureVersion + ":" + timestamp + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
