package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbxark/leadagent/agent"
	"github.com/tbxark/leadagent/crm"
	"github.com/tbxark/leadagent/llmtest"
	"github.com/tbxark/leadagent/scheduling"
	"github.com/tbxark/leadagent/types"
)

var testNow = time.Date(2025, 11, 3, 10, 30, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	model   *llmtest.Model
	crm     *crm.Memory
	handler http.Handler
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	m := llmtest.NewModel()
	clock := func() time.Time { return testNow }
	sched := scheduling.NewFallback(nil, time.UTC)
	sched.Now = clock

	flow, err := agent.NewFlow(m, sched)
	require.NoError(t, err)
	mem := crm.NewMemory()
	lifecycle := agent.NewLifecycle(sched, crm.NewRegistrar(mem), agent.WithClock(clock))
	svc := agent.NewService(flow, lifecycle, agent.WithServiceClock(clock))
	return &testEnv{model: m, crm: mem, handler: New(svc, opts...).Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestConversationOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/chat/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[agent.Session](t, rec)
	require.Len(t, session.Turns, 1)
	assert.Equal(t, types.RoleAssistant, session.Turns[0].Role)

	env.model.Reply("Prazer, Ana! Qual é o seu email?")
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"Ana Souza"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[agent.TurnResult](t, rec)
	assert.Equal(t, types.ActionCollectData, result.Action)
	assert.Equal(t, "Ana Souza", result.Lead.Name)

	env.model.Reply("Obrigado! Qual é a sua empresa?")
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"ana@acme.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana@acme.com", decode[agent.TurnResult](t, rec).Lead.Email)

	env.model.Reply("Ótimo! [INTERESSE_CONFIRMADO]")
	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"quero sim"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[agent.TurnResult](t, rec)
	assert.Equal(t, types.ActionOfferSlots, result.Action)
	assert.Equal(t, types.PhaseSlotsOffered, result.Phase)
	require.Len(t, result.Payload.Slots, scheduling.MaxSlots)
	offerID := result.Payload.OfferID
	require.NotEmpty(t, offerID)
	assert.Equal(t, 1, env.crm.Len())

	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1/slots", `{"offer_id":"`+offerID+`","index":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	result = decode[agent.TurnResult](t, rec)
	assert.Equal(t, types.PhaseScheduled, result.Phase)
	assert.True(t, strings.HasPrefix(result.Lead.MeetingLink, scheduling.MockMeetingURLPrefix))
	assert.Contains(t, result.Message, result.Lead.MeetingLink)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/s1/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[HistoryResponse](t, rec)
	assert.Equal(t, "s1", history.SessionID)
	assert.Equal(t, "SLOT_1", history.Messages[len(history.Messages)-2].Content)

	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"obrigado"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/api/chat/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	session := decode[agent.Session](t, rec)
	assert.NotEmpty(t, session.ID)

	rec = env.do(t, http.MethodGet, "/api/chat/sessions/"+session.ID+"/messages", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResetSession(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/chat/sessions/s1", "")
	env.model.Reply("Prazer, Ana! Qual é o seu email?")
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"Ana Souza"}`).Code)

	rec := env.do(t, http.MethodDelete, "/api/chat/sessions/s1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/chat/sessions/s1/messages", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = env.do(t, http.MethodDelete, "/api/chat/sessions/s1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/chat/sessions/s1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[agent.Session](t, rec)
	require.Len(t, session.Turns, 1)
	assert.Empty(t, session.State.Lead.Name)
}

func TestRequestErrors(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/chat/sessions/s1", "")

	t.Run("unknown session", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/chat/sessions/nope/messages", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		rec = env.do(t, http.MethodPost, "/api/chat/sessions/nope/messages", `{"message":"oi"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("missing message", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("blank message", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"   "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("slot request without index", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/chat/sessions/s1/slots", `{"offer_id":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("backend failure answers with apology", func(t *testing.T) {
		env.model.Fail(errors.New("upstream down"))
		rec := env.do(t, http.MethodPost, "/api/chat/sessions/s1/messages", `{"message":"oi"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, agent.ApologyMessage, resp.Message)

		rec = env.do(t, http.MethodGet, "/api/chat/sessions/s1/messages", "")
		history := decode[HistoryResponse](t, rec)
		assert.Len(t, history.Messages, 1)
	})
}

func TestErrorResponse(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{agent.ErrSessionNotFound, http.StatusNotFound},
		{agent.ErrConversationClosed, http.StatusConflict},
		{errors.Join(agent.ErrSessionBusy, context.DeadlineExceeded), http.StatusConflict},
		{agent.ErrEmptyMessage, http.StatusBadRequest},
		{agent.ErrBackend, http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _ := errorResponse(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, WithRateLimit(0.001, 2))
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat/sessions/s1", "").Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/chat/sessions/s1", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodPost, "/api/chat/sessions/s1", "").Code)
	// health checks are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/healthz", "").Code)
}

func TestIPRateLimiterIsBounded(t *testing.T) {
	l := newIPRateLimiter(1, 1, 2, time.Hour)
	a := l.limiter("10.0.0.1")
	assert.Same(t, a, l.limiter("10.0.0.1"))
	l.limiter("10.0.0.2")
	l.limiter("10.0.0.3")
	assert.Equal(t, 2, l.limiters.Len())
	assert.NotSame(t, a, l.limiter("10.0.0.1"))

	idle := newIPRateLimiter(1, 1, 10, 20*time.Millisecond)
	idle.limiter("10.0.0.1")
	assert.Eventually(t, func() bool { return idle.limiters.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestTimeoutBoundsRequestContext(t *testing.T) {
	r := gin.New()
	r.Use(Timeout(time.Minute))
	var deadline bool
	r.GET("/", func(c *gin.Context) {
		_, deadline = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, deadline)
}
