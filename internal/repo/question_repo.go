package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/tazhibayda/qna-service/internal/domain"
)

func (s *Store) CreateQuestion(ctx context.Context, q *domain.Question) error {
	q.CreatedAt = time.Now().UTC()
	res, err := s.colQuestions.InsertOne(ctx, q)
	if err != nil {
		return err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		q.ID = oid
	}
	return nil
}

func (s *Store) FindQuestionByID(ctx context.Context, id primitive.ObjectID) (*domain.Question, error) {
	var q domain.Question
	err := s.colQuestions.FindOne(ctx, bson.M{"_id": id}).Decode(&q)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &q, err
}

// BumpQuestionViews increments the view counter and returns the question
// as of after the bump. Nil when the question does not exist.
func (s *Store) BumpQuestionViews(ctx context.Context, id primitive.ObjectID) (*domain.Question, error) {
	res := s.colQuestions.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var q domain.Question
	if err := res.Decode(&q); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &q, nil
}

type QuestionFilter struct {
	Query  string
	Tag    primitive.ObjectID // zero value = any tag
	Author primitive.ObjectID // zero value = any author
}

func (f QuestionFilter) match() bson.M {
	m := bson.M{}
	if f.Query != "" {
		m["title"] = ciSubstring(f.Query)
	}
	if !f.Tag.IsZero() {
		m["tags"] = f.Tag
	}
	if !f.Author.IsZero() {
		m["author"] = f.Author
	}
	return m
}

// ListQuestions runs an aggregation so the vote/answer sorts can order by
// array sizes; upvotes and answers may be absent on old documents, hence
// the $ifNull.
func (s *Store) ListQuestions(ctx context.Context, f QuestionFilter, sort QuestionSort, p ListParams) ([]domain.Question, bool, error) {
	match := f.match()
	skip, limit := p.clamp()

	var order bson.D
	switch sort {
	case QuestionSortOldest:
		order = bson.D{{Key: "created_at", Value: 1}}
	case QuestionSortMostVoted:
		order = bson.D{{Key: "vote_count", Value: -1}, {Key: "created_at", Value: -1}}
	case QuestionSortMostViewed:
		order = bson.D{{Key: "views", Value: -1}, {Key: "created_at", Value: -1}}
	case QuestionSortMostAnswered:
		order = bson.D{{Key: "answer_count", Value: -1}, {Key: "created_at", Value: -1}}
	default:
		order = bson.D{{Key: "created_at", Value: -1}}
	}
	order = append(order, bson.E{Key: "_id", Value: 1}) // stable pages on ties

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$addFields", Value: bson.M{
			"vote_count":   bson.M{"$size": bson.M{"$ifNull": bson.A{"$upvotes", bson.A{}}}},
			"answer_count": bson.M{"$size": bson.M{"$ifNull": bson.A{"$answers", bson.A{}}}},
		}}},
		{{Key: "$sort", Value: order}},
		{{Key: "$skip", Value: skip}},
		{{Key: "$limit", Value: limit}},
	}

	cur, err := s.colQuestions.Aggregate(ctx, pipeline)
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

	total, err := s.colQuestions.CountDocuments(ctx, match)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}

func (s *Store) CountQuestionsByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	return s.colQuestions.CountDocuments(ctx, bson.M{"author": author})
}

// DeleteQuestionsByAuthor is the question leg of the account cascade.
func (s *Store) DeleteQuestionsByAuthor(ctx context.Context, author primitive.ObjectID) (int64, error) {
	sp, ctx := tracer.StartSpanFromContext(ctx, "mongo.questions.cascade_delete")
	defer sp.Finish()

	res, err := s.colQuestions.DeleteMany(ctx, bson.M{"author": author})
	if err != nil {
		sp.SetTag("error", err)
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *Store) AttachAnswer(ctx context.Context, questionID, answerID primitive.ObjectID) error {
	res, err := s.colQuestions.UpdateOne(ctx,
		bson.M{"_id": questionID},
		bson.M{"$push": bson.M{"answers": answerID}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// VoteQuestion applies an up or down vote by userID with toggle
// semantics: voting the same direction twice retracts the vote, voting
// the other direction moves it. A user is never in both sets; the switch
// happens in a single update. The returned delta is the reputation
// adjustment owed to the question's author (also returned).
func (s *Store) VoteQuestion(ctx context.Context, id, userID primitive.ObjectID, up bool) (int, primitive.ObjectID, error) {
	q, err := s.FindQuestionByID(ctx, id)
	if err != nil {
		return 0, primitive.NilObjectID, err
	}
	if q == nil {
		return 0, primitive.NilObjectID, ErrNotFound
	}
	update, delta := voteUpdate(q.Upvotes, q.Downvotes, userID, up, questionUpvoteRep, questionDownvoteRep)
	if _, err := s.colQuestions.UpdateOne(ctx, bson.M{"_id": id}, update); err != nil {
		return 0, primitive.NilObjectID, err
	}
	return delta, q.Author, nil
}

const (
	questionUpvoteRep   = 2
	questionDownvoteRep = -1
	answerUpvoteRep     = 1
	answerDownvoteRep   = -1
)

func voteUpdate(upvotes, downvotes []primitive.ObjectID, userID primitive.ObjectID, up bool, upRep, downRep int) (bson.M, int) {
	has := func(ids []primitive.ObjectID) bool {
		for _, id := range ids {
			if id == userID {
				return true
			}
		}
		return false
	}
	hadUp, hadDown := has(upvotes), has(downvotes)

	if up {
		if hadUp { // retract
			return bson.M{"$pull": bson.M{"upvotes": userID}}, -upRep
		}
		delta := upRep
		if hadDown {
			delta -= downRep
		}
		return bson.M{
			"$addToSet": bson.M{"upvotes": userID},
			"$pull":     bson.M{"downvotes": userID},
		}, delta
	}
	if hadDown { // retract
		return bson.M{"$pull": bson.M{"downvotes": userID}}, -downRep
	}
	delta := downRep
	if hadUp {
		delta -= upRep
	}
	return bson.M{
		"$addToSet": bson.M{"downvotes": userID},
		"$pull":     bson.M{"upvotes": userID},
	}, delta
}
