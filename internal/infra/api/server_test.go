//go:build !integration

package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"compat-assistant/internal/assistant"
	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/infra/db/memory"
	"compat-assistant/internal/infra/logging"
	"compat-assistant/internal/usecase"
)

type fixture struct {
	chat usecase.ChatUseCase
	api  *Server
	srv  *httptest.Server
}

func newFixture(t *testing.T, opts usecase.ChatOptions) *fixture {
	t.Helper()
	log := logging.Nop()
	sessions := memory.NewChatSessionRepo()
	bank, err := assistant.DefaultBank("en")
	if err != nil {
		t.Fatalf("bank: %v", err)
	}
	sched := usecase.NewTurnScheduler(usecase.SystemClock(), rand.New(rand.NewPCG(1, 2)), usecase.LatencyWindow{Min: 5 * time.Millisecond, Max: 10 * time.Millisecond}, log)
	chat := usecase.NewChatUseCase(
		sessions, memory.NewProfileRepo(), memory.NewTxManager(),
		assistant.NewClassifier(assistant.DefaultLexicon()),
		assistant.NewSynthesizer(bank, rand.New(rand.NewPCG(3, 4))),
		sched, usecase.SystemClock(), opts, log,
	)
	api := NewServer(chat, usecase.NewStatsUseCase(sessions, log), 5*time.Second, log)
	srv := httptest.NewServer(api.Routes())
	t.Cleanup(func() {
		srv.Close()
		_ = chat.Close(context.Background())
	})
	return &fixture{chat: chat, api: api, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string, out any) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (f *fixture) createSession(t *testing.T, title string) string {
	t.Helper()
	var s sessionResponse
	if code := f.do(t, http.MethodPost, "/api/v1/sessions", `{"title":"`+title+`"}`, &s); code != http.StatusCreated {
		t.Fatalf("create session: status %d", code)
	}
	return s.ID
}

func waitForMessages(t *testing.T, chat usecase.ChatUseCase, id string, n int) []model.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s, err := chat.GetSession(context.Background(), id)
		if err != nil {
			t.Fatalf("get session: %v", err)
		}
		if len(s.Messages) >= n {
			return s.Messages
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d messages, have %d", n, len(s.Messages))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionsAPI(t *testing.T) {
	t.Run("should create a session seeded with the greeting", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{SeedGreeting: true})

		id := f.createSession(t, "Windows Server Setup")

		var got sessionResponse
		if code := f.do(t, http.MethodGet, "/api/v1/sessions/"+id, "", &got); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if got.Title != "Windows Server Setup" || len(got.Messages) != 1 || got.Messages[0].Sender != model.SenderAssistant {
			t.Errorf("unexpected session %+v", got.ChatSession)
		}
	})

	t.Run("should default the title when the body is empty", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})

		var s sessionResponse
		if code := f.do(t, http.MethodPost, "/api/v1/sessions", "", &s); code != http.StatusCreated {
			t.Fatalf("status %d", code)
		}
		if s.Title != usecase.DefaultSessionTitle {
			t.Errorf("expected default title, got %q", s.Title)
		}
	})

	t.Run("should answer 404 for unknown sessions", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})

		var body map[string]string
		if code := f.do(t, http.MethodGet, "/api/v1/sessions/nope", "", &body); code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", code)
		}
		if body["error"] == "" {
			t.Error("expected an error message")
		}
		if code := f.do(t, http.MethodPost, "/api/v1/sessions/nope/messages", `{"text":"mysql"}`, nil); code != http.StatusNotFound {
			t.Errorf("expected 404 on submit, got %d", code)
		}
	})

	t.Run("should list sessions", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})
		f.createSession(t, "one")
		f.createSession(t, "two")

		var list struct {
			Items []model.SessionSummary `json:"items"`
		}
		if code := f.do(t, http.MethodGet, "/api/v1/sessions", "", &list); code != http.StatusOK {
			t.Fatalf("status %d", code)
		}
		if len(list.Items) != 2 {
			t.Errorf("expected 2 sessions, got %d", len(list.Items))
		}
	})
}

func TestSubmitAPI(t *testing.T) {
	t.Run("should accept text and reply later", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})
		id := f.createSession(t, "MySQL Compatibility")

		var res usecase.SubmitResult
		if code := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"text":"Is MySQL 8 supported?"}`, &res); code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", code)
		}
		if !res.Accepted || res.Message == nil || res.Message.Domain != model.DomainDatabase {
			t.Fatalf("unexpected result %+v", res)
		}

		msgs := waitForMessages(t, f.chat, id, 2)
		if msgs[1].Sender != model.SenderAssistant || msgs[1].Domain != model.DomainDatabase || msgs[1].Trace == nil {
			t.Errorf("unexpected reply %+v", msgs[1])
		}
	})

	t.Run("should not accept blank text", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})
		id := f.createSession(t, "blank")

		var res usecase.SubmitResult
		if code := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"text":"   "}`, &res); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if res.Accepted {
			t.Error("blank text must not be accepted")
		}
	})

	t.Run("should reject malformed bodies", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{})
		id := f.createSession(t, "bad")

		if code := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"text":`, nil); code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", code)
		}
	})

	t.Run("should answer 429 when the limiter refuses", func(t *testing.T) {
		f := newFixture(t, usecase.ChatOptions{Limiter: denyAll{}})
		id := f.createSession(t, "limited")

		if code := f.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", `{"text":"nginx"}`, nil); code != http.StatusTooManyRequests {
			t.Errorf("expected 429, got %d", code)
		}
	})
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, error) { return false, nil }

func TestProfileAPI(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})

	var p model.UserProfile
	body := `{"operating_system":" Ubuntu 22.04 ","web_servers":["nginx","NGINX",""]}`
	if code := f.do(t, http.MethodPut, "/api/v1/profile", body, &p); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if p.OperatingSystem != "Ubuntu 22.04" || len(p.WebServers) != 1 {
		t.Errorf("profile not normalized: %+v", p)
	}
	if !p.IncludeInReasoning.OS || !p.IncludeInReasoning.WebServers {
		t.Errorf("omitted flags should default on: %+v", p.IncludeInReasoning)
	}

	var got model.UserProfile
	if code := f.do(t, http.MethodGet, "/api/v1/profile", "", &got); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	if got.OperatingSystem != "Ubuntu 22.04" {
		t.Errorf("profile not stored: %+v", got)
	}
}

func TestReferenceAPI(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})

	var catalog model.Catalog
	if code := f.do(t, http.MethodGet, "/api/v1/catalog", "", &catalog); code != http.StatusOK {
		t.Fatalf("catalog status %d", code)
	}
	var qa struct {
		Items []model.QuickAction `json:"items"`
	}
	if code := f.do(t, http.MethodGet, "/api/v1/quick-actions", "", &qa); code != http.StatusOK || len(qa.Items) == 0 {
		t.Errorf("quick actions: status %d, %d items", code, len(qa.Items))
	}

	id := f.createSession(t, "stats")
	if _, err := f.chat.Submit(context.Background(), id, "apache on rhel"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	var stats usecase.Overview
	if code := f.do(t, http.MethodGet, "/api/v1/stats", "", &stats); code != http.StatusOK {
		t.Fatalf("stats status %d", code)
	}
	if stats.Sessions != 1 || stats.TotalQueries != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}

	resp, err := http.Get(f.srv.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestEventsAPI(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})
	id := f.createSession(t, "Linux Migration")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, f.srv.URL+"/api/v1/sessions/"+id+"/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	events := make(chan string, 16)
	go func() {
		defer close(events)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case name, ok := <-events:
			if !ok {
				t.Fatal("stream closed early")
			}
			return name
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
		return ""
	}

	if got := next(); got != "snapshot" {
		t.Fatalf("expected snapshot first, got %s", got)
	}
	if _, err := f.chat.Submit(context.Background(), id, "Moving from CentOS to Ubuntu"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	want := []string{"message", "composing", "message", "composing"}
	for i, w := range want {
		if got := next(); got != w {
			t.Fatalf("event %d: expected %s, got %s", i, w, got)
		}
	}
}

func TestUnknownSessionEvents(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})
	if code := f.do(t, http.MethodGet, "/api/v1/sessions/nope/events", "", nil); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestShutdownClosesEventStreams(t *testing.T) {
	f := newFixture(t, usecase.ChatOptions{})
	id := f.createSession(t, "Windows Server Setup")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	hs := f.api.HTTPServer(0)
	served := make(chan error, 1)
	go func() { served <- hs.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/sessions/" + id + "/events")
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(resp.Body)
	if !sc.Scan() || sc.Text() != "event: snapshot" {
		t.Fatalf("expected snapshot, got %q", sc.Text())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := hs.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown with an open stream: %v", err)
	}
	if d := time.Since(start); d > time.Second {
		t.Errorf("shutdown took %s", d)
	}
	if err := <-served; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("expected ErrServerClosed, got %v", err)
	}
}
