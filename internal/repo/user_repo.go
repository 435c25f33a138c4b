package repo

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/qna-service/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.insert",
		tracer.Tag("external_id", u.ExternalID),
	)
	defer sp.Finish()

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	res, err := s.colUsers.InsertOne(ctx, u)
	if err != nil {
		sp.SetTag("error", err)
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		u.ID = oid
	}
	return nil
}

func (s *Store) FindUserByExternalID(ctx context.Context, externalID string) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOne(ctx, bson.M{"external_id": externalID}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

func (s *Store) FindUserByID(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	var u domain.User
	err := s.colUsers.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &u, err
}

// UpdateUserByExternalID overwrites the provider-owned fields wholesale.
// Returns the post-update document, or nil when no user matches.
func (s *Store) UpdateUserByExternalID(ctx context.Context, externalID, name, username, email, picture string) (*domain.User, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.update",
		tracer.Tag("external_id", externalID),
	)
	defer sp.Finish()

	res := s.colUsers.FindOneAndUpdate(ctx,
		bson.M{"external_id": externalID},
		bson.M{"$set": bson.M{
			"name":       name,
			"username":   username,
			"email":      email,
			"picture":    picture,
			"updated_at": time.Now().UTC(),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var u domain.User
	if err := res.Decode(&u); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		sp.SetTag("error", err)
		return nil, err
	}
	return &u, nil
}

func (s *Store) DeleteUserByID(ctx context.Context, id primitive.ObjectID) error {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.delete")
	defer sp.Finish()

	res, err := s.colUsers.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		sp.SetTag("error", err)
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context, query string, sort UserSort, p ListParams) ([]domain.User, bool, error) {
	filter := bson.M{}
	if query != "" {
		re := ciSubstring(query)
		filter["$or"] = bson.A{
			bson.M{"name": re},
			bson.M{"username": re},
		}
	}

	skip, limit := p.clamp()
	cur, err := s.colUsers.Find(ctx, filter,
		optionsFind().SetSort(sort.order()).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var out []domain.User
	for cur.Next(ctx) {
		var u domain.User
		if err := cur.Decode(&u); err != nil {
			return nil, false, err
		}
		out = append(out, u)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	total, err := s.colUsers.CountDocuments(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}

func (s *Store) AdjustReputation(ctx context.Context, userID primitive.ObjectID, delta int) error {
	if delta == 0 {
		return nil
	}
	_, err := s.colUsers.UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$inc": bson.M{"reputation": delta}})
	return err
}

// ToggleSavedQuestion adds the question to the user's saved set, or
// removes it if already present. Reports whether it is saved afterwards.
func (s *Store) ToggleSavedQuestion(ctx context.Context, userID, questionID primitive.ObjectID) (bool, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return false, err
	}
	if u == nil {
		return false, ErrNotFound
	}
	saved := false
	for _, id := range u.SavedQuestions {
		if id == questionID {
			saved = true
			break
		}
	}
	var update bson.M
	if saved {
		update = bson.M{"$pull": bson.M{"saved_questions": questionID}}
	} else {
		update = bson.M{"$addToSet": bson.M{"saved_questions": questionID}}
	}
	if _, err := s.colUsers.UpdateOne(ctx, bson.M{"_id": userID}, update); err != nil {
		return false, err
	}
	return !saved, nil
}

// ListSavedQuestions resolves the user's saved set. Saved ids may point at
// questions deleted since (author cascade); the $in lookup simply drops
// them, so dangling references read as absent rather than erroring.
func (s *Store) ListSavedQuestions(ctx context.Context, userID primitive.ObjectID, query string, p ListParams) ([]domain.Question, bool, error) {
	u, err := s.FindUserByID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if u == nil {
		return nil, false, ErrNotFound
	}
	ids := u.SavedQuestions
	if ids == nil {
		ids = []primitive.ObjectID{}
	}

	filter := bson.M{"_id": bson.M{"$in": ids}}
	if query != "" {
		filter["title"] = ciSubstring(query)
	}

	skip, limit := p.clamp()
	cur, err := s.colQuestions.Find(ctx, filter,
		optionsFind().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var out []domain.Question
	for cur.Next(ctx) {
		var q domain.Question
		if err := cur.Decode(&q); err != nil {
			return nil, false, err
		}
		out = append(out, q)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	total, err := s.colQuestions.CountDocuments(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}

// UserStats runs the question-side and answer-side aggregations
// independently and merges the result. Empty pipelines contribute zeroes.
func (s *Store) UserStats(ctx context.Context, userID primitive.ObjectID) (*domain.UserStats, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.users.stats")
	defer sp.Finish()

	var (
		wg         sync.WaitGroup
		st         domain.UserStats
		qErr, aErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		st.TotalQuestions, st.QuestionUpvotes, st.TotalViews, qErr = s.questionTotals(ctx, userID)
	}()
	go func() {
		defer wg.Done()
		st.TotalAnswers, st.AnswerUpvotes, aErr = s.answerTotals(ctx, userID)
	}()
	wg.Wait()

	if qErr != nil {
		sp.SetTag("error", qErr)
		return nil, qErr
	}
	if aErr != nil {
		sp.SetTag("error", aErr)
		return nil, aErr
	}
	return &st, nil
}

func (s *Store) questionTotals(ctx context.Context, userID primitive.ObjectID) (count, upvotes, views int64, err error) {
	cur, err := s.colQuestions.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"author": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"count":   bson.M{"$sum": 1},
			"upvotes": bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}}},
			"views":   bson.M{"$sum": "$views"},
		}}},
	})
	if err != nil {
		return 0, 0, 0, err
	}
	defer cur.Close(ctx)

	var row struct {
		Count   int64 `bson:"count"`
		Upvotes int64 `bson:"upvotes"`
		Views   int64 `bson:"views"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return 0, 0, 0, err
		}
	}
	return row.Count, row.Upvotes, row.Views, cur.Err()
}

func (s *Store) answerTotals(ctx context.Context, userID primitive.ObjectID) (count, upvotes int64, err error) {
	cur, err := s.colAnswers.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"author": userID}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"count":   bson.M{"$sum": 1},
			"upvotes": bson.M{"$sum": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}}},
		}}},
	})
	if err != nil {
		return 0, 0, err
	}
	defer cur.Close(ctx)

	var row struct {
		Count   int64 `bson:"count"`
		Upvotes int64 `bson:"upvotes"`
	}
	if cur.Next(ctx) {
		if err := cur.Decode(&row); err != nil {
			return 0, 0, err
		}
	}
	return row.Count, row.Upvotes, cur.Err()
}
