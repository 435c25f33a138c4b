package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tazhibayda/qna-service/internal/accounts"
	"github.com/tazhibayda/qna-service/internal/domain"
	api "github.com/tazhibayda/qna-service/internal/http"
	"github.com/tazhibayda/qna-service/internal/queue"
	"github.com/tazhibayda/qna-service/internal/repo"
	"github.com/tazhibayda/qna-service/internal/security"
	"github.com/tazhibayda/qna-service/internal/webhook"
)

const testSecret = "whsec_dGVzdC1zaWduaW5nLWtleS4uLi4="

// memStore is the in-memory accounts.Store used to drive the dispatcher
// without Mongo.
type memStore struct {
	users     []*domain.User
	questions map[primitive.ObjectID]primitive.ObjectID
	answers   map[primitive.ObjectID]primitive.ObjectID
}

func newMemStore() *memStore {
	return &memStore{
		questions: map[primitive.ObjectID]primitive.ObjectID{},
		answers:   map[primitive.ObjectID]primitive.ObjectID{},
	}
}

func (m *memStore) CreateUser(ctx context.Context, u *domain.User) error {
	for _, ex := range m.users {
		if ex.ExternalID == u.ExternalID || ex.Username == u.Username || ex.Email == u.Email {
			return accounts.ErrDuplicateAccount
		}
	}
	u.ID = primitive.NewObjectID()
	cp := *u
	m.users = append(m.users, &cp)
	return nil
}

func (m *memStore) FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) UpdateUserByExternalID(ctx context.Context, externalID, name, username, email, picture string) (*domain.User, error) {
	for _, u := range m.users {
		if u.ExternalID == externalID {
			u.Name, u.Username, u.Email, u.Picture = name, username, email, picture
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) DeleteUserByID(ctx context.Context, id primitive.ObjectID) error {
	for i, u := range m.users {
		if u.ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}

func (m *memStore) DeleteQuestionsByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	var n int64
	for id, a := range m.questions {
		if a == author {
			delete(m.questions, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) DeleteAnswersByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	var n int64
	for id, a := range m.answers {
		if a == author {
			delete(m.answers, id)
			n++
		}
	}
	return n, nil
}

// fakeGuard remembers event ids in a map; err, when set, simulates the
// guard backend being down.
type fakeGuard struct {
	seen map[string]bool
	err  error
}

func (g *fakeGuard) SeenEvent(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.seen == nil {
		g.seen = map[string]bool{}
	}
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

type capturedEvent struct {
	key string
	ctx context.Context
}

type capturePub struct{ ch chan capturedEvent }

func (p *capturePub) Publish(ctx context.Context, exchange, key string, event any, reqID string) error {
	p.ch <- capturedEvent{key: key, ctx: ctx}
	return nil
}

func (p *capturePub) Close() error { return nil }

func newWebhookEnv(st accounts.Store) *gin.Engine {
	return newWebhookEnvWith(st, nil, queue.NewNoop())
}

func newWebhookEnvWith(st accounts.Store, guard api.ReplayGuard, pub queue.Publisher) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := api.NewHandler(nil, accounts.NewSynchronizer(st), guard, pub, testSecret)
	jwks := security.NewFetcher("http://localhost/jwks.json", time.Minute)
	return api.NewRouter(h, jwks, 1000)
}

func deliver(t *testing.T, r *gin.Engine, eventID string, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("svix-id", eventID)
	req.Header.Set("svix-timestamp", ts)
	if sign {
		sig, err := webhook.Sign(eventID, ts, body, testSecret)
		require.NoError(t, err)
		req.Header.Set("svix-signature", sig)
	}
	r.ServeHTTP(w, req)
	return w
}

func createdEvent(id, username string) []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "account.created",
		"data": map[string]any{
			"id":              id,
			"email_addresses": []map[string]string{{"email_address": username + "@x.com"}},
			"image_url":       "http://x/i.png",
			"username":        username,
		},
	})
	return b
}

func TestWebhook_MissingSignature(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	w := deliver(t, r, "msg_1", createdEvent("u1", "bob"), false)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	// no database write on rejected events
	assert.Empty(t, st.users)
}

func TestWebhook_TamperedBody(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	body := createdEvent("u1", "bob")
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(append(body, ' ')))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := webhook.Sign("msg_1", ts, body, testSecret)
	require.NoError(t, err)
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", sig)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, st.users)
}

func TestWebhook_AccountCreated(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	w := deliver(t, r, "msg_1", createdEvent("u1", "bob"), true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	u, err := st.FindUserByExternalID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "bob", u.Username)
	assert.Equal(t, "bob@x.com", u.Email)
}

func TestWebhook_DuplicateCreate(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	w := deliver(t, r, "msg_1", createdEvent("u1", "bob"), true)
	require.Equal(t, http.StatusCreated, w.Code)

	w = deliver(t, r, "msg_2", createdEvent("u1", "bob"), true)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Len(t, st.users, 1)
}

func TestWebhook_IncompletePayload(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	body, _ := json.Marshal(map[string]any{
		"type": "account.created",
		"data": map[string]any{"id": "u1"}, // no email, no image
	})
	w := deliver(t, r, "msg_1", body, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, st.users)
}

func TestWebhook_OutOfOrderUpdate(t *testing.T) {
	r := newWebhookEnv(newMemStore())

	body, _ := json.Marshal(map[string]any{
		"type": "account.updated",
		"data": map[string]any{
			"id":              "u9",
			"email_addresses": []map[string]string{{"email_address": "n@x.com"}},
			"image_url":       "http://x/i.png",
			"username":        "nobody",
		},
	})
	w := deliver(t, r, "msg_1", body, true)
	// benign no-op, acked so the provider stops retrying
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_DeleteCascades(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	w := deliver(t, r, "msg_1", createdEvent("u1", "bob"), true)
	require.Equal(t, http.StatusCreated, w.Code)
	author := st.users[0].ID
	for i := 0; i < 3; i++ {
		st.questions[primitive.NewObjectID()] = author
	}
	for i := 0; i < 5; i++ {
		st.answers[primitive.NewObjectID()] = author
	}

	body, _ := json.Marshal(map[string]any{
		"type": "account.deleted",
		"data": map[string]any{"id": "u1", "deleted": true},
	})
	w = deliver(t, r, "msg_2", body, true)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Empty(t, st.users)
	assert.Empty(t, st.questions)
	assert.Empty(t, st.answers)

	// idempotent: deleting again is still a 200
	w = deliver(t, r, "msg_3", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_ReplayedDeliveryAckedWithoutSideEffects(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnvWith(st, &fakeGuard{}, queue.NewNoop())

	body := createdEvent("u1", "bob")
	w := deliver(t, r, "msg_1", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// same event id redelivered: acked, not reprocessed
	w = deliver(t, r, "msg_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "duplicate")
	assert.Len(t, st.users, 1)
}

func TestWebhook_ReplayGuardUnavailable(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnvWith(st, &fakeGuard{err: errors.New("connection refused")}, queue.NewNoop())

	// a broken guard must not drop a verified event
	w := deliver(t, r, "msg_1", createdEvent("u1", "bob"), true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, st.users, 1)
}

func TestWebhook_PublishOutlivesRequest(t *testing.T) {
	st := newMemStore()
	pub := &capturePub{ch: make(chan capturedEvent, 1)}
	r := newWebhookEnvWith(st, nil, pub)

	body := createdEvent("u1", "bob")
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := webhook.Sign("msg_1", ts, body, testSecret)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/webhooks/identity", bytes.NewReader(body)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("svix-id", "msg_1")
	req.Header.Set("svix-timestamp", ts)
	req.Header.Set("svix-signature", sig)
	r.ServeHTTP(w, req)
	cancel() // request is over; the event must still go out
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	select {
	case got := <-pub.ch:
		assert.Equal(t, queue.KeyAccountCreated, got.key)
		assert.NoError(t, got.ctx.Err())
	case <-time.After(time.Second):
		t.Fatal("event was never published")
	}
}

func TestWebhook_UnhandledKindAcked(t *testing.T) {
	st := newMemStore()
	r := newWebhookEnv(st)

	body, _ := json.Marshal(map[string]any{"type": "session.created", "data": map[string]any{"id": "sess_1"}})
	w := deliver(t, r, "msg_1", body, true)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, st.users)
}
