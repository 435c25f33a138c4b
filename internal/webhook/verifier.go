package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeaders   = errors.New("missing webhook headers")
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedBody    = errors.New("malformed webhook body")
)

// Tolerance is the accepted clock skew between the provider's timestamp
// header and our clock. Anything older (or further in the future) is
// treated as a replay and rejected.
const Tolerance = 5 * time.Minute

const secretPrefix = "whsec_"

func decodeSecret(secret string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		return nil, fmt.Errorf("webhook secret is not base64: %w", err)
	}
	if len(key) == 0 {
		return nil, errors.New("webhook secret decodes to an empty key")
	}
	return key, nil
}

// ValidateSecret checks that secret holds a usable signing key. Meant to
// run once at startup: a misconfigured secret is an operator error and
// should fail fast, not 400 every delivery.
func ValidateSecret(secret string) error {
	_, err := decodeSecret(secret)
	return err
}

// Headers carries the three transport headers the provider signs with.
// Header names are provider-specific; the HTTP layer maps them here.
type Headers struct {
	ID        string
	Timestamp string
	Signature string
}

// Verify authenticates rawBody against the shared secret and parses the
// event. The signed content is "<id>.<timestamp>.<body>", MACed with
// HMAC-SHA256 under the base64-decoded secret; the signature header holds
// space-separated "v1,<base64>" candidates. Comparison is constant time.
// Verify is pure: no side effects on any outcome.
func Verify(rawBody []byte, hdr Headers, secret string) (*Event, error) {
	if hdr.ID == "" || hdr.Timestamp == "" || hdr.Signature == "" {
		return nil, ErrMissingHeaders
	}

	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}

	ts, err := strconv.ParseInt(hdr.Timestamp, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if d := time.Since(time.Unix(ts, 0)); d > Tolerance || d < -Tolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(hdr.ID))
	mac.Write([]byte("."))
	mac.Write([]byte(hdr.Timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if !signatureMatch(hdr.Signature, want) {
		return nil, ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(rawBody, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedBody)
	}
	return &ev, nil
}

func signatureMatch(header, want string) bool {
	for _, part := range strings.Split(header, " ") {
		version, sig, ok := strings.Cut(part, ",")
		if !ok || version != "v1" {
			continue
		}
		if hmac.Equal([]byte(sig), []byte(want)) {
			return true
		}
	}
	return false
}

// Sign produces the "v1,<base64>" signature for the given content.
// The server only verifies; this exists for tests and local tooling.
func Sign(id, timestamp string, body []byte, secret string) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, key)
	fmt.Fprintf(mac, "%s.%s.", id, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}
