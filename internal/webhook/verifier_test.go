package webhook_test

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhibayda/qna-service/internal/webhook"
)

// base64("test-signing-key....") — any base64 payload works as a key
const testSecret = "whsec_dGVzdC1zaWduaW5nLWtleS4uLi4="

func signedHeaders(t *testing.T, id string, body []byte) webhook.Headers {
	t.Helper()
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := webhook.Sign(id, ts, body, testSecret)
	require.NoError(t, err)
	return webhook.Headers{ID: id, Timestamp: ts, Signature: sig}
}

func TestVerify_OK(t *testing.T) {
	body := []byte(`{"type":"account.created","data":{"id":"u1"}}`)
	hdr := signedHeaders(t, "msg_1", body)

	ev, err := webhook.Verify(body, hdr, testSecret)
	require.NoError(t, err)
	assert.Equal(t, webhook.KindAccountCreated, ev.Kind())
	assert.Equal(t, "u1", ev.Data.ID)
}

func TestVerify_MissingHeaders(t *testing.T) {
	body := []byte(`{"type":"account.created"}`)
	hdr := signedHeaders(t, "msg_1", body)

	for _, tc := range []struct {
		name string
		hdr  webhook.Headers
	}{
		{"no id", webhook.Headers{Timestamp: hdr.Timestamp, Signature: hdr.Signature}},
		{"no timestamp", webhook.Headers{ID: hdr.ID, Signature: hdr.Signature}},
		{"no signature", webhook.Headers{ID: hdr.ID, Timestamp: hdr.Timestamp}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := webhook.Verify(body, tc.hdr, testSecret)
			assert.ErrorIs(t, err, webhook.ErrMissingHeaders)
		})
	}
}

func TestVerify_SingleByteFlip(t *testing.T) {
	body := []byte(`{"type":"account.created","data":{"id":"u1"}}`)
	hdr := signedHeaders(t, "msg_1", body)

	// every single-byte mutation of the body must flip the verdict
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		_, err := webhook.Verify(mutated, hdr, testSecret)
		assert.ErrorIs(t, err, webhook.ErrInvalidSignature, "flip at byte %d", i)
	}

	// tampered headers too: the id and timestamp are part of the MAC
	tampered := hdr
	tampered.ID = "msg_2"
	_, err := webhook.Verify(body, tampered, testSecret)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestVerify_StaleTimestamp(t *testing.T) {
	body := []byte(`{"type":"account.created"}`)
	ts := strconv.FormatInt(time.Now().Add(-webhook.Tolerance-time.Minute).Unix(), 10)
	sig, err := webhook.Sign("msg_1", ts, body, testSecret)
	require.NoError(t, err)

	_, err = webhook.Verify(body, webhook.Headers{ID: "msg_1", Timestamp: ts, Signature: sig}, testSecret)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestVerify_FutureTimestamp(t *testing.T) {
	body := []byte(`{"type":"account.created"}`)
	ts := strconv.FormatInt(time.Now().Add(webhook.Tolerance+time.Minute).Unix(), 10)
	sig, err := webhook.Sign("msg_1", ts, body, testSecret)
	require.NoError(t, err)

	_, err = webhook.Verify(body, webhook.Headers{ID: "msg_1", Timestamp: ts, Signature: sig}, testSecret)
	assert.ErrorIs(t, err, webhook.ErrInvalidSignature)
}

func TestVerify_MalformedBody(t *testing.T) {
	body := []byte(`{not json`)
	hdr := signedHeaders(t, "msg_1", body)

	_, err := webhook.Verify(body, hdr, testSecret)
	assert.ErrorIs(t, err, webhook.ErrMalformedBody)
}

func TestVerify_MultipleSignatureCandidates(t *testing.T) {
	body := []byte(`{"type":"account.updated"}`)
	hdr := signedHeaders(t, "msg_1", body)
	// delivery services may send several versions; any valid v1 entry passes
	hdr.Signature = "v1,Zm9yZ2VkZm9yZ2VkZm9yZ2Vk " + hdr.Signature

	ev, err := webhook.Verify(body, hdr, testSecret)
	require.NoError(t, err)
	assert.Equal(t, webhook.KindAccountUpdated, ev.Kind())
}

func TestValidateSecret(t *testing.T) {
	assert.NoError(t, webhook.ValidateSecret(testSecret))

	cases := map[string]string{
		"not base64":  "whsec_%%%not-base64%%%",
		"empty key":   "whsec_",
		"bare prefix": "",
	}
	for name, secret := range cases {
		assert.Error(t, webhook.ValidateSecret(secret), name)
	}
}

func TestKind_Unhandled(t *testing.T) {
	for _, typ := range []string{"session.created", "organization.deleted", "other"} {
		ev := webhook.Event{Type: typ}
		assert.Equal(t, webhook.KindOther, ev.Kind(), fmt.Sprintf("type %q", typ))
	}
}
