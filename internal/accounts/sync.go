// Package accounts synchronizes the external identity provider's user
// lifecycle into the local users collection and owns the cascade that
// keeps content from outliving its author.
package accounts

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/qna-service/internal/domain"
	"github.com/tazhibayda/qna-service/internal/log"
	"github.com/tazhibayda/qna-service/internal/repo"
	"github.com/tazhibayda/qna-service/internal/webhook"
)

// ErrDuplicateAccount is returned when an insert trips one of the unique
// indexes (external_id, username, email). Surfaced, not retried: a
// duplicate means a replayed event or an upstream race with no local
// recovery action.
var ErrDuplicateAccount = errors.New("duplicate account")

// Store is the slice of the repository the synchronizer needs. An
// interface so tests can run against an in-memory fake instead of Mongo.
type Store interface {
	CreateUser(ctx context.Context, u *domain.User) error
	FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error)
	UpdateUserByExternalID(ctx context.Context, externalID, name, username, email, picture string) (*domain.User, error)
	DeleteUserByID(ctx context.Context, id primitive.ObjectID) error
	DeleteQuestionsByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error)
	DeleteAnswersByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error)
}

type Synchronizer struct {
	store Store
}

func NewSynchronizer(store Store) *Synchronizer {
	return &Synchronizer{store: store}
}

// OnAccountCreated inserts the local mirror of a freshly created account.
// Idempotence comes from the store's unique indexes, not from a
// check-then-insert (which would race concurrent deliveries).
func (s *Synchronizer) OnAccountCreated(ctx context.Context, data *webhook.AccountData) (*domain.User, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "sync.account.created",
		tracer.Tag("external_id", data.ExternalID))
	defer sp.Finish()

	u := &domain.User{
		ExternalID: data.ExternalID,
		Name:       data.Name,
		Username:   data.Username,
		Email:      data.Email,
		Picture:    data.Picture,
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if repo.IsDup(err) || errors.Is(err, ErrDuplicateAccount) {
			return nil, ErrDuplicateAccount
		}
		sp.SetTag("error", err)
		return nil, err
	}
	return u, nil
}

// OnAccountUpdated overwrites the provider-owned fields. A missing target
// is a benign out-of-order delivery (update racing creation upstream):
// logged as a warning and reported as (nil, nil), never an error.
func (s *Synchronizer) OnAccountUpdated(ctx context.Context, data *webhook.AccountData) (*domain.User, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "sync.account.updated",
		tracer.Tag("external_id", data.ExternalID))
	defer sp.Finish()

	u, err := s.store.UpdateUserByExternalID(ctx, data.ExternalID, data.Name, data.Username, data.Email, data.Picture)
	if err != nil {
		sp.SetTag("error", err)
		return nil, err
	}
	if u == nil {
		log.WithDD(ctx, log.L).Warn("account.updated for unknown account",
			zap.String("external_id", data.ExternalID))
		return nil, nil
	}
	return u, nil
}

// OnAccountDeleted removes the account and everything it authored, in
// this order: snapshot, delete account, delete questions, delete answers.
// The snapshot comes first so the cascade still knows the internal id
// after the account row is gone. The steps are not transactional; a crash
// mid-cascade leaves orphans, which the next delivery of the same event
// cannot repair (the lookup already misses) — partial failure is logged
// at error level instead. Deleting an already-deleted account is a no-op.
func (s *Synchronizer) OnAccountDeleted(ctx context.Context, externalID string) (*domain.User, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "sync.account.deleted",
		tracer.Tag("external_id", externalID))
	defer sp.Finish()

	u, err := s.store.FindUserByExternalID(ctx, externalID)
	if err != nil {
		sp.SetTag("error", err)
		return nil, err
	}
	if u == nil {
		return nil, nil
	}

	if err := s.store.DeleteUserByID(ctx, u.ID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, nil
		}
		sp.SetTag("error", err)
		return nil, err
	}

	questions, err := s.store.DeleteQuestionsByAuthor(ctx, u.ID)
	if err != nil {
		log.WithDD(ctx, log.L).Error("cascade delete: questions leg failed, content orphaned",
			zap.String("external_id", externalID), zap.Error(err))
		sp.SetTag("error", err)
		return nil, err
	}
	answers, err := s.store.DeleteAnswersByAuthor(ctx, u.ID)
	if err != nil {
		log.WithDD(ctx, log.L).Error("cascade delete: answers leg failed, content orphaned",
			zap.String("external_id", externalID), zap.Error(err))
		sp.SetTag("error", err)
		return nil, err
	}

	log.WithDD(ctx, log.L).Info("account deleted",
		zap.String("external_id", externalID),
		zap.Int64("questions", questions),
		zap.Int64("answers", answers))
	return u, nil
}
