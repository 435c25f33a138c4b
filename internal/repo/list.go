package repo

import (
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListParams is 1-based pagination. Out-of-range values are clamped, not
// rejected: page < 1 becomes 1, pageSize outside 1..100 becomes 20. The
// same policy applies to every list operation.
type ListParams struct {
	Page     int
	PageSize int
}

func (p ListParams) clamp() (skip, limit int64) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	size := p.PageSize
	if size < 1 || size > maxPageSize {
		size = defaultPageSize
	}
	return int64(page-1) * int64(size), int64(size)
}

// HasNext reports whether strictly more matching items exist beyond the
// returned window.
func hasNext(total, skip int64, returned int) bool {
	return total > skip+int64(returned)
}

// ciSubstring builds a case-insensitive substring match with all regex
// metacharacters escaped, so user input can neither break the query nor
// feed a pathological pattern to the server.
func ciSubstring(query string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(query), Options: "i"}
}

type UserSort string

const (
	UserSortNewest UserSort = "newest"
	UserSortOldest UserSort = "oldest"
	UserSortTop    UserSort = "top" // by reputation
)

// ParseUserSort falls back to newest for unrecognized values.
func ParseUserSort(s string) UserSort {
	switch UserSort(s) {
	case UserSortOldest, UserSortTop:
		return UserSort(s)
	}
	return UserSortNewest
}

// order includes an _id tiebreak so identical sort keys page deterministically.
func (s UserSort) order() bson.D {
	switch s {
	case UserSortOldest:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	case UserSortTop:
		return bson.D{{Key: "reputation", Value: -1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
}

type QuestionSort string

const (
	QuestionSortNewest       QuestionSort = "newest"
	QuestionSortOldest       QuestionSort = "oldest"
	QuestionSortMostVoted    QuestionSort = "most_voted"
	QuestionSortMostViewed   QuestionSort = "most_viewed"
	QuestionSortMostAnswered QuestionSort = "most_answered"
)

func ParseQuestionSort(s string) QuestionSort {
	switch QuestionSort(s) {
	case QuestionSortOldest, QuestionSortMostVoted, QuestionSortMostViewed, QuestionSortMostAnswered:
		return QuestionSort(s)
	}
	return QuestionSortNewest
}

type AnswerSort string

const (
	AnswerSortMostVoted  AnswerSort = "most_voted"
	AnswerSortLeastVoted AnswerSort = "least_voted"
	AnswerSortNewest     AnswerSort = "newest"
	AnswerSortOldest     AnswerSort = "oldest"
)

func ParseAnswerSort(s string) AnswerSort {
	switch AnswerSort(s) {
	case AnswerSortLeastVoted, AnswerSortNewest, AnswerSortOldest:
		return AnswerSort(s)
	}
	return AnswerSortMostVoted
}

type TagSort string

const (
	TagSortPopular TagSort = "popular"
	TagSortRecent  TagSort = "recent"
	TagSortName    TagSort = "name"
	TagSortOld     TagSort = "old"
)

func ParseTagSort(s string) TagSort {
	switch TagSort(s) {
	case TagSortRecent, TagSortName, TagSortOld:
		return TagSort(s)
	}
	return TagSortPopular
}

func (s TagSort) order() bson.D {
	switch s {
	case TagSortRecent:
		return bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}
	case TagSortName:
		return bson.D{{Key: "name", Value: 1}}
	case TagSortOld:
		return bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
	}
	return bson.D{{Key: "questions", Value: -1}, {Key: "_id", Value: 1}}
}
