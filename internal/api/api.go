// Package api exposes the session, submission and result services over HTTP
// and relays leaderboard updates to Redis pub/sub and websocket clients.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc/codes"

	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/errors"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/leaderboard"
	"github.com/victornm/quizgrade/internal/result"
	"github.com/victornm/quizgrade/internal/session"
	"github.com/victornm/quizgrade/internal/submission"
)

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Session      *session.Service
	Submission   *submission.Service
	Result       *result.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

type API struct {
	qss *session.Service
	sub *submission.Service
	rs  *result.Service
	ls  *leaderboard.Service

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		qss:    c.Session,
		sub:    c.Submission,
		rs:     c.Result,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	v1.POST("/sessions", a.CreateSession)
	v1.GET("/sessions", a.ListSessions)
	v1.GET("/sessions/:name", a.GetSession)
	v1.POST("/sessions/:name/submissions", a.Submit)
	v1.GET("/sessions/:name/stats", a.GetSessionStats)
	v1.GET("/sessions/:name/leaderboard", a.GetLeaderboard)
	v1.GET("/sessions/:name/leaderboard/ws", a.StreamLeaderboard)
	v1.GET("/results/:token", a.GetResult)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
	})

	return a
}

type CreateSessionRequest struct {
	QuizID    string     `json:"quizId"`
	OpenFrom  *time.Time `json:"openFrom"`
	OpenUntil *time.Time `json:"openUntil"`
}

func (a *API) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	ss, err := a.qss.CreateSession(c.Request.Context(), session.CreateSessionRequest{
		QuizID:    req.QuizID,
		OpenFrom:  req.OpenFrom,
		OpenUntil: req.OpenUntil,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, ss)
}

func (a *API) GetSession(c *gin.Context) {
	ss, err := a.qss.GetSession(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, ss)
}

// ListSessions only supports listing the sessions open right now.
func (a *API) ListSessions(c *gin.Context) {
	if c.Query("open") != "true" {
		writeError(c, errors.New(errors.CodeInvalidArgument,
			errors.WithMessagef("only open=true listing is supported"),
			errors.WithReason(domain.ReasonInvalidInput),
		))
		return
	}

	sessions, err := a.qss.ListOpenSessions(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

type SubmitRequest struct {
	UserCode string                   `json:"userCode"`
	Answers  []domain.SubmittedAnswer `json:"answers"`
}

func (a *API) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	resp, err := a.sub.Submit(c.Request.Context(), submission.SubmitRequest{
		SessionName: c.Param("name"),
		UserCode:    req.UserCode,
		Answers:     req.Answers,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// GetResult answers 200 in both outcomes: the result itself, or
// {"openAfter": ...} while disclosure is pending.
func (a *API) GetResult(c *gin.Context) {
	resp, err := a.rs.GetResult(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Pending != nil {
		c.JSON(http.StatusOK, resp.Pending)
		return
	}

	c.JSON(http.StatusOK, resp.Result)
}

func (a *API) GetSessionStats(c *gin.Context) {
	stats, err := a.rs.GetSessionStats(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetLeaderboard answers like GetResult: the ranking, or {"openAfter": ...}
// while the session still hides its scores.
func (a *API) GetLeaderboard(c *gin.Context) {
	resp, err := a.ls.GetLeaderboard(c.Request.Context(), leaderboard.GetLeaderboardRequest{
		SessionName: c.Param("name"),
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if resp.Pending != nil {
		c.JSON(http.StatusOK, resp.Pending)
		return
	}

	c.JSON(http.StatusOK, toLeaderboard(*resp.Leaderboard))
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func writeError(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed",
			"path", c.FullPath(),
			"error", err,
		)
	}

	if e.Retryable() {
		c.Header("Retry-After", "1")
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), ErrorResponse{
		Error: ErrorBody{
			Code:    codes.Code(e.Code).String(),
			Message: e.Message,
			Reason:  e.Reason,
			Details: e.Details,
		},
	})
}

func invalidBody(err error) error {
	return errors.New(errors.CodeInvalidArgument,
		errors.WithMessagef("malformed request body: %v", err),
		errors.WithReason(domain.ReasonInvalidInput),
		errors.WithCause(err),
	)
}
