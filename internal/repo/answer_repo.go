package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/qna-service/internal/domain"
)

func (s *Store) CreateAnswer(ctx context.Context, a *domain.Answer) error {
	a.CreatedAt = time.Now().UTC()
	res, err := s.colAnswers.InsertOne(ctx, a)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		a.ID = oid
	}
	return nil
}

func (s *Store) FindAnswerByID(ctx context.Context, id primitive.ObjectID) (*domain.Answer, error) {
	var a domain.Answer
	err := s.colAnswers.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &a, err
}

func (s *Store) ListAnswersByQuestion(ctx context.Context, questionID primitive.ObjectID, sort AnswerSort, p ListParams) ([]domain.Answer, bool, error) {
	match := bson.M{"question": questionID}
	skip, limit := p.clamp()

	var order bson.D
	switch sort {
	case AnswerSortLeastVoted:
		order = bson.D{{Key: "vote_count", Value: 1}, {Key: "created_at", Value: -1}}
	case AnswerSortNewest:
		order = bson.D{{Key: "created_at", Value: -1}}
	case AnswerSortOldest:
		order = bson.D{{Key: "created_at", Value: 1}}
	default:
		order = bson.D{{Key: "vote_count", Value: -1}, {Key: "created_at", Value: -1}}
	}
	order = append(order, bson.E{Key: "_id", Value: 1}) // stable pages on ties

	cur, err := s.colAnswers.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.M{
			"vote_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}},
		}}},
		{{Key: "$sort", Value: order}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	})
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var out []domain.Answer
	for cur.Next(ctx) {
		var a domain.Answer
		if err := cur.Decode(&a); err != nil {
			return nil, false, err
		}
		out = append(out, a)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	total, err := s.colAnswers.CountDocuments(ctx, match)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}

func (s *Store) ListAnswersByAuthor(ctx context.Context, author primitive.ObjectID, p ListParams) ([]domain.Answer, bool, error) {
	match := bson.M{"author": author}
	skip, limit := p.clamp()

	cur, err := s.colAnswers.Find(ctx, match,
		optionsFind().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var out []domain.Answer
	for cur.Next(ctx) {
		var a domain.Answer
		if err := cur.Decode(&a); err != nil {
			return nil, false, err
		}
		out = append(out, a)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	total, err := s.colAnswers.CountDocuments(ctx, match)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}

func (s *Store) CountAnswersByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	return s.colAnswers.CountDocuments(ctx, bson.M{"author": author})
}

// DeleteAnswersByAuthor is the answer leg of the account cascade.
func (s *Store) DeleteAnswersByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.answers.cascade_delete")
	defer sp.Finish()

	res, err := s.colAnswers.DeleteMany(ctx, bson.M{"author": author})
	if err != nil {
		sp.SetTag("error", err)
		return 0, err
	}
	return res.DeletedCount, nil
}

// VoteAnswer mirrors VoteQuestion; see there for the toggle semantics.
func (s *Store) VoteAnswer(ctx context.Context, id, userID primitive.ObjectID, up bool) (int, primitive.ObjectID, error) {
	a, err := s.FindAnswerByID(ctx, id)
	if err != nil {
		return 0, primitive.NilObjectID, err
	}
	if a == nil {
		return 0, primitive.NilObjectID, ErrNotFound
	}
	update, delta := voteUpdate(a.Upvotes, a.Downvotes, userID, up, answerUpvoteRep, answerDownvoteRep)
	if _, err := s.colAnswers.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return 0, primitive.NilObjectID, err
	}
	return delta, a.Author, nil
}
