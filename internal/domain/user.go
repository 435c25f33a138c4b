package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User mirrors an account mastered at the external identity provider.
// ExternalID is the provider subject id and the only stable join key;
// everything else is overwritten wholesale on account.updated events.
type User struct {
	ID             primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	ExternalID     string               `bson:"external_id"   json:"external_id"`
	Name           string               `bson:"name"          json:"name"`
	Username       string               `bson:"username"      json:"username"`
	Email          string               `bson:"email"         json:"email"`
	Picture        string               `bson:"picture"       json:"picture"`
	Reputation     int                  `bson:"reputation"    json:"reputation"`
	SavedQuestions []primitive.ObjectID `bson:"saved_questions,omitempty" json:"saved_questions,omitempty"`
	CreatedAt      time.Time            `bson:"created_at"    json:"created_at"`
	UpdatedAt      time.Time            `bson:"updated_at"    json:"updated_at"`
}

// UserStats aggregates a user's footprint over owned content.
// Zero-result aggregations yield zeroes, never missing fields.
type UserStats struct {
	TotalQuestions  int64 `json:"total_questions"`
	TotalAnswers    int64 `json:"total_answers"`
	QuestionUpvotes int64 `json:"question_upvotes"`
	AnswerUpvotes   int64 `json:"answer_upvotes"`
	TotalViews      int64 `json:"total_views"`
}
