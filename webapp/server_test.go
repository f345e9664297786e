package webapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chunk-quiz/quiz"
)

func newTestServer(t *testing.T, mode quiz.Mode) *Server {
	t.Helper()
	c, err := quiz.DefaultContent()
	if err != nil {
		t.Fatalf("DefaultContent: %v", err)
	}
	s, err := New(Options{
		Content:    c,
		Mode:       mode,
		SessionTTL: time.Hour,
		Fade:       400 * time.Millisecond,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// client replays the session cookie like a browser would.
type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, r)
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	if set := rr.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rr
}

func (c *client) state(method, path, body string) stateResponse {
	c.t.Helper()
	rr := c.do(method, path, body)
	if rr.Code != http.StatusOK {
		c.t.Fatalf("%s %s returned %d: %s", method, path, rr.Code, rr.Body.String())
	}
	var st stateResponse
	decodeBody(c.t, rr.Body.Bytes(), &st)
	return st
}

func TestServerAuthoringFlow(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	c := &client{t: t, handler: s.Router()}

	state := c.state(http.MethodGet, "/api/state", "")
	if state.Mode != quiz.ModeAuthoring || state.View != quiz.ViewAuthoring || state.Submitted {
		t.Fatalf("unexpected initial state: mode=%s view=%s submitted=%v", state.Mode, state.View, state.Submitted)
	}
	if len(state.Sentences) != 10 || len(state.Breaks) != 9 {
		t.Fatalf("got %d sentences and %d breaks", len(state.Sentences), len(state.Breaks))
	}
	if !strings.Contains(state.HTML.Instructions, "<p>") {
		t.Fatalf("instructions not rendered: %q", state.HTML.Instructions)
	}

	state = c.state(http.MethodPost, "/api/breaks/7/toggle", "")
	if !state.Breaks[7].Active {
		t.Fatalf("break after 7 should be active")
	}

	state = c.state(http.MethodPost, "/api/submit", "")
	if state.View != quiz.ViewComparing || state.Result == nil || state.Result.Score == nil {
		t.Fatalf("submit did not produce a comparison: %+v", state.Result)
	}
	if *state.Result.Score != 100 {
		t.Fatalf("score = %d, want 100", *state.Result.Score)
	}
	if len(state.HTML.Reasoning) != 2 || !strings.Contains(state.HTML.Reasoning[0], "Christopher Robin") {
		t.Fatalf("reasoning not rendered: %v", state.HTML.Reasoning)
	}

	state = c.state(http.MethodPost, "/api/back", "")
	if state.View != quiz.ViewAuthoring || !state.Submitted {
		t.Fatalf("back should keep the submission: view=%s submitted=%v", state.View, state.Submitted)
	}

	state = c.state(http.MethodPost, "/api/reset", "")
	if state.Submitted || state.Result != nil || state.Breaks[7].Active {
		t.Fatalf("state after reset not initial: %+v", state)
	}
}

func TestServerChoiceFlow(t *testing.T) {
	s := newTestServer(t, quiz.ModeChoice)
	c := &client{t: t, handler: s.Router()}

	rr := c.do(http.MethodPost, "/api/submit", "")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit without selection returned %d", rr.Code)
	}
	var errResp errorResponse
	decodeBody(t, rr.Body.Bytes(), &errResp)
	if errResp.Prompt == "" {
		t.Fatalf("missing prompt in %+v", errResp)
	}

	c.state(http.MethodPost, "/api/select", `{"option":"A"}`)
	state := c.state(http.MethodPost, "/api/submit", "")
	r := state.Result
	if r == nil || r.Correct == nil || *r.Correct {
		t.Fatalf("option A should be graded incorrect: %+v", r)
	}
	if !r.ShowCorrectAnswer || r.CorrectAnswer == nil || r.CorrectAnswer.ID != "C" {
		t.Fatalf("option C should be revealed: %+v", r.CorrectAnswer)
	}
	if !strings.Contains(state.HTML.Feedback, "<em>") {
		t.Fatalf("feedback markdown not rendered: %q", state.HTML.Feedback)
	}

	state = c.state(http.MethodPost, "/api/select", `{"option":"C"}`)
	if state.View != quiz.ViewComparing || !state.Submitted {
		t.Fatalf("reselecting should resubmit: view=%s submitted=%v", state.View, state.Submitted)
	}
	if state.Result.OptionID != "C" || !*state.Result.Correct || state.Result.ShowCorrectAnswer {
		t.Fatalf("unexpected result after reselect: %+v", state.Result)
	}
	if len(state.HTML.Reasoning) != 2 || !strings.Contains(state.HTML.Reasoning[1], "fairy tale") {
		t.Fatalf("model chunks lost their reasoning in choice mode: %v", state.HTML.Reasoning)
	}
}

func TestComparisonSummaryCountsChunks(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	c := &client{t: t, handler: s.Router()}

	state := c.state(http.MethodPost, "/api/submit", "")
	want := "<strong>Your chunking:</strong> 1 chunk<br><strong>Model's chunking:</strong> 2 chunks"
	if state.HTML.Summary != want {
		t.Fatalf("summary = %q, want %q", state.HTML.Summary, want)
	}
}

func TestServerRejectsBadInput(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	c := &client{t: t, handler: s.Router()}

	cases := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{http.MethodPost, "/api/breaks/abc/toggle", "", http.StatusBadRequest},
		{http.MethodPost, "/api/breaks/9/toggle", "", http.StatusBadRequest},
		{http.MethodPost, "/api/select", `{"option":"A"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/select", `not json`, http.StatusBadRequest},
		{http.MethodGet, "/api/submit", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		rr := c.do(tc.method, tc.path, tc.body)
		if rr.Code != tc.code {
			t.Fatalf("%s %s returned %d, want %d", tc.method, tc.path, rr.Code, tc.code)
		}
	}
}

func TestSessionsAreIsolatedPerBrowser(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	h := s.Router()
	alice := &client{t: t, handler: h}
	bob := &client{t: t, handler: h}

	alice.state(http.MethodPost, "/api/breaks/2/toggle", "")
	state := bob.state(http.MethodGet, "/api/state", "")
	if state.Breaks[2].Active {
		t.Fatalf("bob sees alice's break")
	}
	state = alice.state(http.MethodGet, "/api/state", "")
	if !state.Breaks[2].Active {
		t.Fatalf("alice lost her break")
	}
	if n := s.sessions.count(); n != 2 {
		t.Fatalf("store holds %d sessions, want 2", n)
	}
}

func TestSessionStoreExpiresIdleSessions(t *testing.T) {
	c, _ := quiz.DefaultContent()
	store := newSessionStore(time.Minute, func() (*quiz.Session, error) {
		return quiz.NewSession(c, quiz.ModeAuthoring)
	})
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	rr := httptest.NewRecorder()
	first, err := store.get(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	cookie := rr.Result().Cookies()[0]

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if again, _ := store.get(httptest.NewRecorder(), req); again != first {
		t.Fatalf("same cookie returned a different session")
	}

	now = now.Add(2 * time.Minute)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	if _, ok := store.lookup(req); ok {
		t.Fatalf("expired session still found")
	}
	if fresh, _ := store.get(httptest.NewRecorder(), req); fresh == first {
		t.Fatalf("expired session was reused")
	}
	if n := store.count(); n != 1 {
		t.Fatalf("store holds %d sessions after pruning, want 1", n)
	}
}

func TestHomePageSetsCookieAndFade(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	c := &client{t: t, handler: s.Router()}
	rr := c.do(http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("home returned %d", rr.Code)
	}
	if len(c.cookies) == 0 || c.cookies[0].Name != sessionCookie {
		t.Fatalf("home did not set the session cookie")
	}
	body := rr.Body.String()
	if !strings.Contains(body, "const FADE_MS =  400 ;") && !strings.Contains(body, "const FADE_MS = 400;") {
		t.Fatalf("fade duration not injected into page")
	}
	if !strings.Contains(body, "Where would you split this passage?") {
		t.Fatalf("title missing from page")
	}
}

func TestHomePageFailsWithoutSession(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	s.sessions.create = func() (*quiz.Session, error) {
		return nil, errors.New("session limit reached")
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("home returned %d, want 500", rr.Code)
	}
	if len(rr.Result().Cookies()) != 0 {
		t.Fatalf("home set a cookie without a session")
	}
	if strings.Contains(rr.Body.String(), "<html") {
		t.Fatalf("page rendered despite the session error")
	}
}

func TestRequestsAreLoggedThroughSlog(t *testing.T) {
	c, err := quiz.DefaultContent()
	if err != nil {
		t.Fatalf("DefaultContent: %v", err)
	}
	var logs bytes.Buffer
	s, err := New(Options{
		Content: c,
		Mode:    quiz.ModeAuthoring,
		Logger:  slog.New(slog.NewJSONHandler(&logs, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.Router().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	line := strings.TrimSpace(logs.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("request log is not JSON: %q", line)
	}
	if msg, _ := entry["msg"].(string); !strings.Contains(msg, "GET") || !strings.Contains(msg, "/healthz") {
		t.Fatalf("request log = %q, want method and path", msg)
	}
	if entry["level"] != "INFO" {
		t.Fatalf("request log level = %v, want INFO", entry["level"])
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "ok") {
		t.Fatalf("healthz returned %d: %s", rr.Code, rr.Body.String())
	}
}

func TestNewRejectsChoiceWithoutOptions(t *testing.T) {
	c, err := quiz.ParseContent([]byte("sentences:\n  - {id: 0, text: One.}\n"))
	if err != nil {
		t.Fatalf("ParseContent: %v", err)
	}
	if _, err := New(Options{Content: c, Mode: quiz.ModeChoice}); err == nil {
		t.Fatalf("expected an error")
	}
	if _, err := New(Options{Mode: quiz.ModeAuthoring}); err == nil {
		t.Fatalf("expected an error without content")
	}
}

func TestStreamPushesStateOnTransition(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	res, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	res.Body.Close()
	cookies := res.Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no session cookie")
	}
	header := http.Header{}
	header.Add("Cookie", cookies[0].Name+"="+cookies[0].Value)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first streamMessage
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if first.Event != nil || first.State == nil || first.State.View != quiz.ViewAuthoring {
		t.Fatalf("unexpected initial message: %+v", first)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/submit", nil)
	req.AddCookie(cookies[0])
	res, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	res.Body.Close()

	var pushed streamMessage
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("read pushed state: %v", err)
	}
	if pushed.Event == nil || pushed.Event.Kind != quiz.EventSubmitted {
		t.Fatalf("pushed event = %+v, want submitted", pushed.Event)
	}
	if pushed.State.View != quiz.ViewComparing || pushed.State.Result == nil {
		t.Fatalf("pushed state not comparing: %+v", pushed.State)
	}
}

func TestStreamRequiresSession(t *testing.T) {
	s := newTestServer(t, quiz.ModeAuthoring)
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("stream without session returned %d", rr.Code)
	}
}

func decodeBody(t *testing.T, data []byte, v any) {
	t.Helper()
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("decode body: %v\nbody: %s", err, string(data))
	}
}
