package repo

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tazhibayda/qna-service/internal/domain"
)

func normalizeTag(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UpsertTags resolves tag names to ids, creating missing tags and bumping
// the per-tag question counter. Names are lowercased and deduplicated.
func (s *Store) UpsertTags(ctx context.Context, names []string) ([]primitive.ObjectID, error) {
	seen := make(map[string]bool, len(names))
	var ids []primitive.ObjectID
	for _, raw := range names {
		name := normalizeTag(raw)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		res := s.colTags.FindOneAndUpdate(ctx,
			bson.M{"name": name},
			bson.M{
				"$inc":         bson.M{"questions": 1},
				"$setOnInsert": bson.M{"name": name, "created_at": time.Now().UTC()},
			},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		)
		var t domain.Tag
		if err := res.Decode(&t); err != nil {
			return nil, err
		}
		ids = append(ids, t.ID)
	}
	return ids, nil
}

func (s *Store) FindTagByID(ctx context.Context, id primitive.ObjectID) (*domain.Tag, error) {
	var t domain.Tag
	err := s.colTags.FindOne(ctx, bson.M{"_id": id}).Decode(&t)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	return &t, err
}

func (s *Store) ListTags(ctx context.Context, query string, sort TagSort, p ListParams) ([]domain.Tag, bool, error) {
	filter := bson.M{}
	if query != "" {
		filter["name"] = ciSubstring(query)
	}

	skip, limit := p.clamp()
	cur, err := s.colTags.Find(ctx, filter,
		optionsFind().SetSort(sort.order()).SetSkip(skip).SetLimit(limit))
	if err != nil {
		return nil, false, err
	}
	defer cur.Close(ctx)

	var out []domain.Tag
	for cur.Next(ctx) {
		var t domain.Tag
		if err := cur.Decode(&t); err != nil {
			return nil, false, err
		}
		out = append(out, t)
	}
	if err := cur.Err(); err != nil {
		return nil, false, err
	}

	total, err := s.colTags.CountDocuments(ctx, filter)
	if err != nil {
		return nil, false, err
	}
	return out, hasNext(total, skip, len(out)), nil
}
