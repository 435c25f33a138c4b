package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Upvotes and Downvotes hold user ids; a user appears in at most one of
// the two at a time (the vote ops enforce that in a single update).
type Question struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Author    primitive.ObjectID   `bson:"author"        json:"author"`
	Title     string               `bson:"title"         json:"title"`
	Content   string               `bson:"content"       json:"content"`
	Tags      []primitive.ObjectID `bson:"tags,omitempty"      json:"tags,omitempty"`
	Upvotes   []primitive.ObjectID `bson:"upvotes,omitempty"   json:"upvotes,omitempty"`
	Downvotes []primitive.ObjectID `bson:"downvotes,omitempty" json:"downvotes,omitempty"`
	Answers   []primitive.ObjectID `bson:"answers,omitempty"   json:"answers,omitempty"`
	Views     int64                `bson:"views"         json:"views"`
	CreatedAt time.Time            `bson:"created_at"    json:"created_at"`
}

type Answer struct {
	ID        primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Author    primitive.ObjectID   `bson:"author"        json:"author"`
	Question  primitive.ObjectID   `bson:"question"      json:"question"`
	Content   string               `bson:"content"       json:"content"`
	Upvotes   []primitive.ObjectID `bson:"upvotes,omitempty"   json:"upvotes,omitempty"`
	Downvotes []primitive.ObjectID `bson:"downvotes,omitempty" json:"downvotes,omitempty"`
	CreatedAt time.Time            `bson:"created_at"    json:"created_at"`
}

type Tag struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name"          json:"name"`
	Questions int64              `bson:"questions"     json:"questions"` // maintained counter, backs the "popular" sort
	CreatedAt time.Time          `bson:"created_at"    json:"created_at"`
}
