package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizgrade/internal/api"
	"github.com/victornm/quizgrade/internal/domain"
	"github.com/victornm/quizgrade/internal/event"
	"github.com/victornm/quizgrade/internal/infra/memory"
	"github.com/victornm/quizgrade/internal/leaderboard"
	"github.com/victornm/quizgrade/internal/quiz"
	"github.com/victornm/quizgrade/internal/result"
	"github.com/victornm/quizgrade/internal/session"
	"github.com/victornm/quizgrade/internal/submission"
)

var testQuiz = domain.Quiz{
	ID:    "quiz-1",
	Title: "Capitals",
	Questions: []domain.Question{
		{
			ID:   "q1",
			Text: "Capital of France?",
			Options: []domain.Option{
				{ID: "a", Text: "Lyon"},
				{ID: "b", Text: "Paris", Correct: true},
			},
		},
	},
}

type stubSubmissions struct {
	domain.SubmissionRepository
	inTxErr error
}

func (s stubSubmissions) InTx(context.Context, func(context.Context, domain.SubmissionTx) error) error {
	return s.inTxErr
}

type testServer struct {
	handler http.Handler
	eb      *event.Bus
	rc      redis.UniversalClient
	clock   *time.Time
}

type testOption func(submissions *domain.SubmissionRepository)

func withSubmissions(r domain.SubmissionRepository) testOption {
	return func(submissions *domain.SubmissionRepository) {
		*submissions = r
	}
}

func newTestServer(t *testing.T, opts ...testOption) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{rs.Addr()}})
	t.Cleanup(func() { _ = rc.Close() })

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ts := &testServer{eb: event.NewBus(), rc: rc, clock: &now}
	clock := func() time.Time { return *ts.clock }

	sessions := memory.NewSessionStore()
	var submissions domain.SubmissionRepository = memory.NewSubmissionStore()
	for _, opt := range opts {
		opt(&submissions)
	}
	quizzes := quiz.NewStaticLoader(testQuiz)

	lb := leaderboard.NewService(leaderboard.Config{EventBus: ts.eb, Redis: rc, Sessions: sessions, Prefix: "test", Now: clock})
	t.Cleanup(lb.Close)

	e := gin.New()
	api.New(api.Config{
		Router:   e,
		EventBus: ts.eb,
		Session:  session.NewService(session.Config{Sessions: sessions, Quizzes: quizzes, Now: clock}),
		Submission: submission.NewService(submission.Config{
			EventBus: ts.eb, Sessions: sessions, Submissions: submissions, Quizzes: quizzes, Now: clock,
		}),
		Result:       result.NewService(result.Config{Sessions: sessions, Submissions: submissions, Quizzes: quizzes, Now: clock}),
		Leaderboard:  lb,
		Redis:        rc,
		PubsubPrefix: "test",
	})
	ts.handler = e

	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (ts *testServer) createSession(t *testing.T, openUntil *time.Time) string {
	t.Helper()

	body := map[string]any{"quizId": "quiz-1"}
	if openUntil != nil {
		body["openUntil"] = openUntil.Format(time.RFC3339)
	}

	code, out := ts.do(t, http.MethodPost, "/v1/sessions", body)
	require.Equal(t, http.StatusCreated, code, out)
	require.NotEmpty(t, out["sessionId"])
	return out["sessionName"].(string)
}

func submitBody(user string, chosen ...string) map[string]any {
	return map[string]any{
		"userCode": user,
		"answers":  []map[string]any{{"questionId": "q1", "chosen": chosen}},
	}
}

func errorReason(out map[string]any) string {
	e, _ := out["error"].(map[string]any)
	r, _ := e["reason"].(string)
	return r
}

func TestAPI_SubmitAndGetResult(t *testing.T) {
	ts := newTestServer(t)
	until := ts.clock.Add(time.Hour)
	name := ts.createSession(t, &until)

	code, out := ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody("u1", "b"))
	require.Equal(t, http.StatusCreated, code, out)
	assert.EqualValues(t, 1, out["score"])
	assert.EqualValues(t, 1, out["maxScore"])
	token := out["resultToken"].(string)

	code, out = ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody("u1", "a"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ReasonDuplicateSubmission, errorReason(out))

	code, out = ts.do(t, http.MethodGet, "/v1/results/"+token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, until.Format(time.RFC3339), out["openAfter"], "result should be pending while the session is open")

	// Let event handlers, which read the clock, settle before moving it.
	ts.eb.Stop()
	*ts.clock = until.Add(time.Second)

	code, out = ts.do(t, http.MethodGet, "/v1/results/"+token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, token, out["resultToken"])
	assert.Equal(t, "Capitals", out["quizTitle"])
	require.Len(t, out["questions"], 1)

	code, out = ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody("u2", "b"))
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.ReasonSessionClosed, errorReason(out))

	ts.eb.Stop()
}

func TestAPI_Errors(t *testing.T) {
	ts := newTestServer(t)
	name := ts.createSession(t, nil)

	tests := map[string]struct {
		method     string
		path       string
		body       any
		wantStatus int
		wantReason string
	}{
		"unknown session should be 404": {
			method: http.MethodGet, path: "/v1/sessions/missing",
			wantStatus: http.StatusNotFound, wantReason: domain.ReasonSessionNotFound,
		},
		"unknown result should be 404": {
			method: http.MethodGet, path: "/v1/results/missing",
			wantStatus: http.StatusNotFound, wantReason: domain.ReasonResultNotFound,
		},
		"unknown quiz should be 404": {
			method: http.MethodPost, path: "/v1/sessions", body: map[string]any{"quizId": "nope"},
			wantStatus: http.StatusNotFound, wantReason: domain.ReasonQuizNotFound,
		},
		"empty answers should be 400": {
			method: http.MethodPost, path: "/v1/sessions/" + name + "/submissions", body: map[string]any{"userCode": "u1"},
			wantStatus: http.StatusBadRequest, wantReason: domain.ReasonInvalidInput,
		},
		"malformed body should be 400": {
			method: http.MethodPost, path: "/v1/sessions/" + name + "/submissions", body: "not an object",
			wantStatus: http.StatusBadRequest, wantReason: domain.ReasonInvalidInput,
		},
		"listing without open filter should be 400": {
			method: http.MethodGet, path: "/v1/sessions",
			wantStatus: http.StatusBadRequest, wantReason: domain.ReasonInvalidInput,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			code, out := ts.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, code, out)
			assert.Equal(t, tt.wantReason, errorReason(out))
		})
	}

	ts.eb.Stop()
}

func TestAPI_ListOpenSessionsAndStats(t *testing.T) {
	ts := newTestServer(t)
	name := ts.createSession(t, nil)

	code, out := ts.do(t, http.MethodGet, "/v1/sessions?open=true", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, out["sessions"], 1)

	for _, user := range []string{"u1", "u2"} {
		chosen := "b"
		if user == "u2" {
			chosen = "a"
		}
		code, out = ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody(user, chosen))
		require.Equal(t, http.StatusCreated, code, out)
	}

	code, out = ts.do(t, http.MethodGet, "/v1/sessions/"+name+"/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 2, out["submissions"])
	questions := out["questions"].([]any)
	require.Len(t, questions, 1)
	q1 := questions[0].(map[string]any)
	assert.EqualValues(t, 2, q1["totalResponses"])
	assert.EqualValues(t, 1, q1["correctCount"])
	assert.Equal(t, "50", q1["correctPercent"])

	ts.eb.Stop()

	code, out = ts.do(t, http.MethodGet, "/v1/sessions/"+name+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	entries := out["entries"].([]any)
	require.Len(t, entries, 2)
	assert.Equal(t, "u1", entries[0].(map[string]any)["userCode"])
}

func TestAPI_StreamLeaderboard(t *testing.T) {
	ts := newTestServer(t)
	name := ts.createSession(t, nil)

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + name + "/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	var snapshot api.Notification
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, domain.EventNameLeaderboardUpdated, snapshot.Event)

	code, out := ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody("u1", "b"))
	require.Equal(t, http.StatusCreated, code, out)

	var update struct {
		Event string          `json:"event"`
		Data  api.Leaderboard `json:"data"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&update))
	assert.Equal(t, domain.EventNameLeaderboardUpdated, update.Event)
	assert.Equal(t, name, update.Data.SessionName)
	assert.Equal(t, []api.LeaderboardEntry{{UserCode: "u1", Score: "1"}}, update.Data.Entries)

	ts.eb.Stop()
}

func TestAPI_PublishLeaderboardUpdated(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	ps := ts.rc.Subscribe(ctx, "test:user:u1")
	defer ps.Close()
	_, err := ps.Receive(ctx)
	require.NoError(t, err)

	a := api.New(api.Config{Router: gin.New(), EventBus: event.NewBus(), Redis: ts.rc, PubsubPrefix: "test"})
	require.NoError(t, a.PublishLeaderboardUpdated(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			SessionName: "s1",
			Entries:     []domain.LeaderboardEntry{{UserCode: "u1", Score: 2}},
		},
	}))

	msg, err := ps.ReceiveMessage(ctx)
	require.NoError(t, err)

	var n api.Notification
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &n))
	assert.Equal(t, domain.EventNameLeaderboardUpdated, n.Event)
}

func TestAPI_LeaderboardPendingWhileSessionOpen(t *testing.T) {
	ts := newTestServer(t)
	until := ts.clock.Add(time.Hour)
	name := ts.createSession(t, &until)

	code, out := ts.do(t, http.MethodPost, "/v1/sessions/"+name+"/submissions", submitBody("u1", "b"))
	require.Equal(t, http.StatusCreated, code, out)
	ts.eb.Stop()

	code, out = ts.do(t, http.MethodGet, "/v1/sessions/"+name+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, until.Format(time.RFC3339), out["openAfter"])
	assert.NotContains(t, out, "entries", "scores should stay hidden while the session is open")

	srv := httptest.NewServer(ts.handler)
	defer srv.Close()

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + name + "/leaderboard/ws"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake, "the stream should not open while pending")
	defer resp.Body.Close()

	var pending domain.PendingDisclosure
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&pending))
	assert.True(t, until.Equal(pending.OpenAfter))

	*ts.clock = until.Add(time.Second)

	code, out = ts.do(t, http.MethodGet, "/v1/sessions/"+name+"/leaderboard", nil)
	require.Equal(t, http.StatusOK, code)
	entries := out["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "u1", entries[0].(map[string]any)["userCode"])
}

func TestAPI_SubmitAbortedIsRetryable(t *testing.T) {
	ts := newTestServer(t, withSubmissions(stubSubmissions{
		inTxErr: domain.TransactionAborted(stderrors.New("could not serialize access")),
	}))
	name := ts.createSession(t, nil)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(submitBody("u1", "b")))
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/"+name+"/submissions", &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "Aborted", out["error"].(map[string]any)["code"])

	ts.eb.Stop()
}
