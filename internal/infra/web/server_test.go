package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"odanna-bot/internal/domain"
	"odanna-bot/internal/domain/model"
	"odanna-bot/internal/infra/logging"
)

const testSecret = "test-admin-jwt-secret-please-change"

type fakeChats struct {
	chats    []*model.ChatSession
	messages []model.Message
	err      error
}

func (f *fakeChats) ListChats(_ context.Context, userID int64) ([]*model.ChatSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.ChatSession
	for _, c := range f.chats {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChats) AuditMessages(_ context.Context, chatID string, includeIgnored bool) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	if chatID != "c1" {
		return nil, domain.ErrNotFound
	}
	var out []model.Message
	for _, m := range f.messages {
		if includeIgnored || !m.Ignored {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeUsers struct{}

func (fakeUsers) Get(_ context.Context, id int64) (*model.User, error) {
	if id != 7 {
		return nil, domain.ErrNotFound
	}
	u := model.NewUser(7, "guest", "Гость")
	return u, nil
}

func newTestServer(t *testing.T, chats *fakeChats) (http.Handler, string) {
	t.Helper()
	auth := NewAuthManager(testSecret, time.Minute)
	tok, err := auth.Mint("ops")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	return NewServer(chats, fakeUsers{}, auth, logging.Nop()).Handler(), tok
}

func do(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestAuth(t *testing.T) {
	h, tok := newTestServer(t, &fakeChats{})

	foreign := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: adminRole})
	forged, _ := foreign.SignedString([]byte("another-secret"))

	expired, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role:             adminRole,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte(testSecret))

	notAdmin, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{Role: "viewer"}).SignedString([]byte(testSecret))

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"forged", forged, http.StatusUnauthorized},
		{"expired", expired, http.StatusUnauthorized},
		{"wrong role", notAdmin, http.StatusUnauthorized},
		{"valid", tok, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(h, "/api/v1/users/7/chats", tt.token); rr.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", rr.Code, tt.want, rr.Body.String())
			}
		})
	}
}

func TestUnconfiguredAuthRefuses(t *testing.T) {
	h := NewServer(&fakeChats{}, fakeUsers{}, nil, logging.Nop()).Handler()
	if rr := do(h, "/api/v1/users/7", "anything"); rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rr.Code)
	}
}

func TestMintWithoutSecret(t *testing.T) {
	if _, err := NewAuthManager("", time.Minute).Mint("ops"); err == nil {
		t.Fatalf("expected error minting without a secret")
	}
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	h, _ := newTestServer(t, &fakeChats{})
	if rr := do(h, "/healthz", ""); rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
	if rr := do(h, "/metrics", ""); rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
}

func TestChatMessagesAudit(t *testing.T) {
	now := time.Now()
	chats := &fakeChats{messages: []model.Message{
		{ID: "m1", ChatID: "c1", Seq: 1, Role: model.RoleUser, Text: "мне грустно, срочно", CreatedAt: now, Snapshot: model.Classification{
			Emotion: model.EmotionNegative, Intent: model.IntentHelp, Urgency: model.UrgencyHigh,
			Tone: model.TonePolite, Category: model.CategoryComplaint, Situation: "lost_key", Empathy: 90,
		}},
		{ID: "m2", ChatID: "c1", Seq: 2, Role: model.RoleAssistant, Text: "Я рядом.", CreatedAt: now,
			Snapshot: model.Classification{Emotion: model.EmotionNegative, Empathy: 90}},
		{ID: "m3", ChatID: "c1", Seq: 3, Role: model.RoleUser, Text: "секрет", Ignored: true, CreatedAt: now},
	}}
	h, tok := newTestServer(t, chats)

	tests := []struct {
		query string
		want  int
	}{
		{"", 2},
		{"?include_ignored=false", 2},
		{"?include_ignored=true", 3},
	}
	for _, tt := range tests {
		t.Run("q"+tt.query, func(t *testing.T) {
			rr := do(h, "/api/v1/chats/c1/messages"+tt.query, tok)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}
			var body struct {
				Data []messageDTO `json:"data"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatal(err)
			}
			if len(body.Data) != tt.want {
				t.Fatalf("got %d messages, want %d", len(body.Data), tt.want)
			}
			user, reply := body.Data[0], body.Data[1]
			if user.Emotion != "negative" || user.Intent != "help" || user.Urgency != "high" ||
				user.Tone != "polite" || user.Category != "complaint" || user.Situation != "lost_key" || user.EmpathyLevel != 90 {
				t.Fatalf("user snapshot incomplete: %+v", user)
			}
			if reply.Emotion != "" || reply.EmpathyLevel != 90 {
				t.Fatalf("reply snapshot = %+v", reply)
			}
		})
	}

	if rr := do(h, "/api/v1/chats/nope/messages", tok); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown chat = %d", rr.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	lvl := 70
	chats := &fakeChats{chats: []*model.ChatSession{
		{ID: "c1", UserID: 7, Title: "Ключ", Empathy: 70, EmpathyOverride: &lvl, MessageCount: 3, Active: true},
		{ID: "c2", UserID: 8, Title: "чужой", Active: true},
	}}
	h, tok := newTestServer(t, chats)

	rr := do(h, "/api/v1/users/7/chats", tok)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"empathy_override":70`) || strings.Contains(rr.Body.String(), "чужой") {
		t.Fatalf("chats = %d %s", rr.Code, rr.Body.String())
	}

	rr = do(h, "/api/v1/users/7", tok)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"gender":"unknown"`) {
		t.Fatalf("user = %d %s", rr.Code, rr.Body.String())
	}

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/users/abc/chats", http.StatusBadRequest},
		{"/api/v1/users/-1", http.StatusBadRequest},
		{"/api/v1/users/99", http.StatusNotFound},
	}
	for _, tt := range tests {
		if rr := do(h, tt.path, tok); rr.Code != tt.want {
			t.Fatalf("%s = %d, want %d", tt.path, rr.Code, tt.want)
		}
	}

	chats.err = errors.New("db down")
	if rr := do(h, "/api/v1/users/7/chats", tok); rr.Code != http.StatusInternalServerError {
		t.Fatalf("storage failure = %d", rr.Code)
	}
}

func TestTraceIDHeader(t *testing.T) {
	h, _ := newTestServer(t, &fakeChats{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-Id"); got != "abc-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func TestRecoverMiddleware(t *testing.T) {
	h := Recover(logging.Nop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}
