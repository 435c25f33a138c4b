package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/tazhibayda/qna-service/internal/security"
)

func NewRouter(h *Handler, jwks *security.Fetcher, rlPerMin int) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Metrics())

	if rlPerMin <= 0 {
		rlPerMin = 30
	}
	rl := NewRateLimiter(rlPerMin, time.Minute)

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r.POST("/api/webhooks/identity", h.IdentityWebhook)

	users := r.Group("/api/users")
	{
		users.GET("", h.ListUsers)
		users.GET("/me/saved", AuthJWT(jwks), h.ListSaved)
		users.GET("/:id", h.GetUser)
		users.GET("/:id/stats", h.GetUserStats)
		users.GET("/:id/questions", h.ListUserQuestions)
		users.GET("/:id/answers", h.ListUserAnswers)
	}

	questions := r.Group("/api/questions")
	{
		questions.POST("", AuthJWT(jwks), RateLimit(rl), h.CreateQuestion)
		questions.GET("", h.ListQuestions)
		questions.GET("/:id", h.GetQuestion)
		questions.POST("/:id/vote", AuthJWT(jwks), h.VoteQuestion)
		questions.POST("/:id/save", AuthJWT(jwks), h.ToggleSave)
		questions.POST("/:id/answers", AuthJWT(jwks), RateLimit(rl), h.CreateAnswer)
		questions.GET("/:id/answers", h.ListAnswers)
	}

	r.POST("/api/answers/:id/vote", AuthJWT(jwks), h.VoteAnswer)

	tags := r.Group("/api/tags")
	{
		tags.GET("", h.ListTags)
		tags.GET("/:id/questions", h.ListTagQuestions)
	}

	return r
}
