package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/tazhibayda/qna-service/internal/accounts"
	"github.com/tazhibayda/qna-service/internal/domain"
	"github.com/tazhibayda/qna-service/internal/repo"
	"github.com/tazhibayda/qna-service/internal/webhook"
)

// fakeStore keeps everything in maps and enforces the same uniqueness the
// Mongo indexes do.
type fakeStore struct {
	users     map[primitive.ObjectID]*domain.User
	questions map[primitive.ObjectID]primitive.ObjectID // question -> author
	answers   map[primitive.ObjectID]primitive.ObjectID // answer -> author
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:     map[primitive.ObjectID]*domain.User{},
		questions: map[primitive.ObjectID]primitive.ObjectID{},
		answers:   map[primitive.ObjectID]primitive.ObjectID{},
	}
}

func (f *fakeStore) CreateUser(ctx context.Context, u *domain.User) error {
	for _, ex := range f.users {
		if ex.ExternalID == u.ExternalID || ex.Username == u.Username || ex.Email == u.Email {
			return accounts.ErrDuplicateAccount
		}
	}
	u.ID = primitive.NewObjectID()
	cp := *u
	f.users[u.ID] = &cp
	return nil
}

func (f *fakeStore) FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateUserByExternalID(ctx context.Context, externalID, name, username, email, picture string) (*domain.User, error) {
	for _, u := range f.users {
		if u.ExternalID == externalID {
			u.Name, u.Username, u.Email, u.Picture = name, username, email, picture
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) DeleteUserByID(ctx context.Context, id primitive.ObjectID) error {
	if _, ok := f.users[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.users, id)
	return nil
}

func (f *fakeStore) DeleteQuestionsByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	var n int64
	for id, a := range f.questions {
		if a == author {
			delete(f.questions, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeleteAnswersByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	var n int64
	for id, a := range f.answers {
		if a == author {
			delete(f.answers, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) addContent(author primitive.ObjectID, questions, answers int) {
	for i := 0; i < questions; i++ {
		f.questions[primitive.NewObjectID()] = author
	}
	for i := 0; i < answers; i++ {
		f.answers[primitive.NewObjectID()] = author
	}
}

func bobData() *webhook.AccountData {
	return &webhook.AccountData{
		ExternalID: "u1",
		Name:       "Bob Builder",
		Username:   "bob",
		Email:      "a@x.com",
		Picture:    "http://x/i.png",
	}
}

func TestOnAccountCreated_RoundTrip(t *testing.T) {
	st := newFakeStore()
	s := accounts.NewSynchronizer(st)

	created, err := s.OnAccountCreated(context.Background(), bobData())
	require.NoError(t, err)
	require.False(t, created.ID.IsZero())

	got, err := st.FindUserByExternalID(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ExternalID)
	assert.Equal(t, "bob", got.Username)
	assert.Equal(t, "a@x.com", got.Email)
	assert.Equal(t, "http://x/i.png", got.Picture)
}

func TestOnAccountCreated_Duplicate(t *testing.T) {
	st := newFakeStore()
	s := accounts.NewSynchronizer(st)

	_, err := s.OnAccountCreated(context.Background(), bobData())
	require.NoError(t, err)

	_, err = s.OnAccountCreated(context.Background(), bobData())
	assert.ErrorIs(t, err, accounts.ErrDuplicateAccount)
	assert.Len(t, st.users, 1)
}

func TestOnAccountUpdated(t *testing.T) {
	st := newFakeStore()
	s := accounts.NewSynchronizer(st)

	_, err := s.OnAccountCreated(context.Background(), bobData())
	require.NoError(t, err)

	d := bobData()
	d.Name, d.Username, d.Email = "Robert Builder", "robert", "r@x.com"
	u, err := s.OnAccountUpdated(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "robert", u.Username)
	assert.Equal(t, "r@x.com", u.Email)
}

func TestOnAccountUpdated_UnknownIsBenign(t *testing.T) {
	s := accounts.NewSynchronizer(newFakeStore())

	u, err := s.OnAccountUpdated(context.Background(), bobData())
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestOnAccountDeleted_CascadeAndIdempotence(t *testing.T) {
	st := newFakeStore()
	s := accounts.NewSynchronizer(st)

	created, err := s.OnAccountCreated(context.Background(), bobData())
	require.NoError(t, err)
	st.addContent(created.ID, 3, 5)

	other := primitive.NewObjectID()
	st.addContent(other, 1, 1)

	snap, err := s.OnAccountDeleted(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, created.ID, snap.ID)

	// all 8 owned records removed, the other author untouched
	assert.Len(t, st.questions, 1)
	assert.Len(t, st.answers, 1)
	assert.Empty(t, st.users)

	// second delete: no error, nothing returned
	snap, err = s.OnAccountDeleted(context.Background(), "u1")
	assert.NoError(t, err)
	assert.Nil(t, snap)
}

func TestLookup(t *testing.T) {
	st := newFakeStore()
	s := accounts.NewSynchronizer(st)

	lk, err := s.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, accounts.Absent, lk.State)

	lk, err = s.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, accounts.Pending, lk.State)

	_, err = s.OnAccountCreated(context.Background(), bobData())
	require.NoError(t, err)

	lk, err = s.Lookup(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, accounts.Found, lk.State)
	assert.Equal(t, "bob", lk.User.Username)
}
