package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"github.com/tazhibayda/qna-service/internal/accounts"
	"github.com/tazhibayda/qna-service/internal/domain"
	"github.com/tazhibayda/qna-service/internal/log"
	"github.com/tazhibayda/qna-service/internal/queue"
	"github.com/tazhibayda/qna-service/internal/repo"
)

// ReplayGuard dedupes webhook event ids inside the verification window.
// An interface for the same reason accounts.Store is one: tests swap in
// a fake instead of a live Redis. repo.Redis implements it.
type ReplayGuard interface {
	SeenEvent(ctx context.Context, id string, ttl time.Duration) (bool, error)
}

type Handler struct {
	Store         *repo.Store
	Sync          *accounts.Synchronizer
	Replay        ReplayGuard
	Events        queue.Publisher
	WebhookSecret string
}

func NewHandler(store *repo.Store, sync *accounts.Synchronizer, guard ReplayGuard, pub queue.Publisher, webhookSecret string) *Handler {
	return &Handler{
		Store:         store,
		Sync:          sync,
		Replay:        guard,
		Events:        pub,
		WebhookSecret: webhookSecret,
	}
}

// publish emits a domain event without tying it to the request lifetime:
// the request context is cancelled as soon as the handler returns, which
// would race the broker write.
func (h *Handler) publish(ctx context.Context, key string, event any, reqID string) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := h.Events.Publish(ctx, queue.Exchange, key, event, reqID); err != nil {
			log.WithDD(ctx, log.L).Warn("event publish failed",
				zap.String("key", key), zap.Error(err))
		}
	}()
}

func listParams(c *gin.Context) repo.ListParams {
	atoi := func(s string) int { v, _ := strconv.Atoi(s); return v }
	return repo.ListParams{
		Page:     atoi(c.Query("page")),
		PageSize: atoi(c.Query("page_size")),
	}
}

func pathID(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return primitive.NilObjectID, false
	}
	return id, true
}

// currentUser resolves the session subject set by AuthJWT to the local
// account. Pending (valid session, webhook not yet delivered) is a 403 so
// clients can distinguish "sign in" from "wait for sync".
func (h *Handler) currentUser(c *gin.Context) (*domain.User, bool) {
	lk, err := h.Sync.Lookup(c.Request.Context(), c.GetString("uid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return nil, false
	}
	switch lk.State {
	case accounts.Found:
		return lk.User, true
	case accounts.Pending:
		c.JSON(http.StatusForbidden, gin.H{"error": "account not synced yet"})
		return nil, false
	default:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
}

func (h *Handler) Healthz(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListUsers godoc
// @Summary List users
// @Tags users
// @Produce json
// @Param q query string false "substring match on name/username"
// @Param sort query string false "newest|oldest|top"
// @Param page query int false "1-based page"
// @Param page_size query int false "items per page (max 100)"
// @Success 200 {object} map[string]any
// @Router /api/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	items, more, err := h.Store.ListUsers(c.Request.Context(),
		c.Query("q"), repo.ParseUserSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.Store.FindUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, u)
}

// GetUserStats godoc
// @Summary Aggregate profile statistics
// @Tags users
// @Produce json
// @Success 200 {object} domain.UserStats
// @Failure 404 {object} map[string]string
// @Router /api/users/{id}/stats [get]
func (h *Handler) GetUserStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	u, err := h.Store.FindUserByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	st, err := h.Store.UserStats(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reputation": u.Reputation, "stats": st})
}

func (h *Handler) ListUserQuestions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, more, err := h.Store.ListQuestions(c.Request.Context(),
		repo.QuestionFilter{Author: id}, repo.ParseQuestionSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

func (h *Handler) ListUserAnswers(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, more, err := h.Store.ListAnswersByAuthor(c.Request.Context(), id, listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

// ListSaved godoc
// @Summary Saved questions of the current user
// @Tags users
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]any
// @Router /api/users/me/saved [get]
func (h *Handler) ListSaved(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	items, more, err := h.Store.ListSavedQuestions(c.Request.Context(), u.ID, c.Query("q"), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

type createQuestionReq struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// CreateQuestion godoc
// @Summary Ask a question
// @Tags questions
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body createQuestionReq true "title, content, tags"
// @Success 201 {object} domain.Question
// @Failure 400 {object} map[string]string
// @Router /api/questions [post]
func (h *Handler) CreateQuestion(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	var in createQuestionReq
	if err := c.ShouldBindJSON(&in); err != nil ||
		strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title and content required"})
		return
	}
	tagIDs, err := h.Store.UpsertTags(c.Request.Context(), in.Tags)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	q := &domain.Question{
		Author:  u.ID,
		Title:   strings.TrimSpace(in.Title),
		Content: in.Content,
		Tags:    tagIDs,
	}
	if err := h.Store.CreateQuestion(c.Request.Context(), q); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	h.publish(c.Request.Context(), queue.KeyQuestionCreated,
		queue.QuestionCreated{QuestionID: q.ID, Author: u.ID, Title: q.Title},
		c.GetString("X-Request-ID"))

	c.JSON(http.StatusCreated, q)
}

// ListQuestions godoc
// @Summary List questions
// @Tags questions
// @Produce json
// @Param q query string false "substring match on title"
// @Param tag query string false "tag id"
// @Param sort query string false "newest|oldest|most_voted|most_viewed|most_answered"
// @Success 200 {object} map[string]any
// @Router /api/questions [get]
func (h *Handler) ListQuestions(c *gin.Context) {
	f := repo.QuestionFilter{Query: c.Query("q")}
	if raw := c.Query("tag"); raw != "" {
		tagID, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tag id"})
			return
		}
		f.Tag = tagID
	}
	items, more, err := h.Store.ListQuestions(c.Request.Context(),
		f, repo.ParseQuestionSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

// GetQuestion returns the question and counts the view.
func (h *Handler) GetQuestion(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.Store.BumpQuestionViews(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	c.JSON(http.StatusOK, q)
}

type voteReq struct {
	Direction string `json:"direction"` // "up" | "down"
}

// VoteQuestion godoc
// @Summary Vote on a question
// @Tags questions
// @Security BearerAuth
// @Accept json
// @Param payload body voteReq true "direction up|down"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /api/questions/{id}/vote [post]
func (h *Handler) VoteQuestion(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in voteReq
	if err := c.ShouldBindJSON(&in); err != nil || (in.Direction != "up" && in.Direction != "down") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
		return
	}
	delta, author, err := h.Store.VoteQuestion(c.Request.Context(), id, u.ID, in.Direction == "up")
	if err == repo.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if err := h.Store.AdjustReputation(c.Request.Context(), author, delta); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ToggleSave godoc
// @Summary Save or unsave a question
// @Tags questions
// @Security BearerAuth
// @Success 200 {object} map[string]bool
// @Router /api/questions/{id}/save [post]
func (h *Handler) ToggleSave(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	q, err := h.Store.FindQuestionByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	saved, err := h.Store.ToggleSavedQuestion(c.Request.Context(), u.ID, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": saved})
}

type createAnswerReq struct {
	Content string `json:"content"`
}

// CreateAnswer godoc
// @Summary Answer a question
// @Tags answers
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body createAnswerReq true "content"
// @Success 201 {object} domain.Answer
// @Failure 404 {object} map[string]string
// @Router /api/questions/{id}/answers [post]
func (h *Handler) CreateAnswer(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	qid, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in createAnswerReq
	if err := c.ShouldBindJSON(&in); err != nil || strings.TrimSpace(in.Content) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content required"})
		return
	}
	q, err := h.Store.FindQuestionByID(c.Request.Context(), qid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if q == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "question not found"})
		return
	}
	a := &domain.Answer{Author: u.ID, Question: qid, Content: in.Content}
	if err := h.Store.CreateAnswer(c.Request.Context(), a); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if err := h.Store.AttachAnswer(c.Request.Context(), qid, a.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}

	h.publish(c.Request.Context(), queue.KeyAnswerCreated,
		queue.AnswerCreated{AnswerID: a.ID, QuestionID: qid, Author: u.ID},
		c.GetString("X-Request-ID"))

	c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAnswers(c *gin.Context) {
	qid, ok := pathID(c, "id")
	if !ok {
		return
	}
	items, more, err := h.Store.ListAnswersByQuestion(c.Request.Context(),
		qid, repo.ParseAnswerSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

func (h *Handler) VoteAnswer(c *gin.Context) {
	u, ok := h.currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var in voteReq
	if err := c.ShouldBindJSON(&in); err != nil || (in.Direction != "up" && in.Direction != "down") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "direction must be up or down"})
		return
	}
	delta, author, err := h.Store.VoteAnswer(c.Request.Context(), id, u.ID, in.Direction == "up")
	if err == repo.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "answer not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if err := h.Store.AdjustReputation(c.Request.Context(), author, delta); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListTags godoc
// @Summary List tags
// @Tags tags
// @Produce json
// @Param q query string false "substring match on name"
// @Param sort query string false "popular|recent|name|old"
// @Success 200 {object} map[string]any
// @Router /api/tags [get]
func (h *Handler) ListTags(c *gin.Context) {
	items, more, err := h.Store.ListTags(c.Request.Context(),
		c.Query("q"), repo.ParseTagSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "has_next": more})
}

func (h *Handler) ListTagQuestions(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	t, err := h.Store.FindTagByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "tag not found"})
		return
	}
	items, more, err := h.Store.ListQuestions(c.Request.Context(),
		repo.QuestionFilter{Tag: id, Query: c.Query("q")},
		repo.ParseQuestionSort(c.Query("sort")), listParams(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tag": t, "items": items, "has_next": more})
}
