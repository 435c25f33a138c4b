package queue

import "go.mongodb.org/mongo-driver/bson/primitive"

// Routing keys on the qna.events exchange.
const (
	KeyAccountCreated  = "account.created"
	KeyAccountUpdated  = "account.updated"
	KeyAccountDeleted  = "account.deleted"
	KeyQuestionCreated = "question.created"
	KeyAnswerCreated   = "answer.created"
)

type AccountSynced struct {
	UserID     primitive.ObjectID `json:"user_id"`
	ExternalID string             `json:"external_id"`
	Username   string             `json:"username"`
	Email      string             `json:"email"`
}

type AccountDeleted struct {
	UserID     primitive.ObjectID `json:"user_id"`
	ExternalID string             `json:"external_id"`
}

type QuestionCreated struct {
	QuestionID primitive.ObjectID `json:"question_id"`
	Author     primitive.ObjectID `json:"author"`
	Title      string             `json:"title"`
}

type AnswerCreated struct {
	AnswerID   primitive.ObjectID `json:"answer_id"`
	QuestionID primitive.ObjectID `json:"question_id"`
	Author     primitive.ObjectID `json:"author"`
}
