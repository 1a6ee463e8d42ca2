package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSessionBackend implements the four inbound services against an
// in-memory session set, close enough to exercise the full endpoint
// contracts.
type fakeSessionBackend struct {
	policies    map[int64]domain.PolicyRecord
	initialized map[string]int64
	chatAnswer  domain.ChatAnswer
	chatErr     error
	chatCalls   int
	searchRes   *domain.SearchResult
	searchErr   error
	lastFilter  domain.SearchFilter
}

func newFakeBackend() *fakeSessionBackend {
	return &fakeSessionBackend{
		policies: map[int64]domain.PolicyRecord{
			507: {ID: 507, Name: "청년 창업 지원사업"},
		},
		initialized: map[string]int64{},
	}
}

func (f *fakeSessionBackend) InitPolicy(_ context.Context, sessionID string, policyID int64) (*domain.PolicyContext, error) {
	record, ok := f.policies[policyID]
	if !ok {
		return nil, domain.WrapError(domain.ErrPolicyNotFound, "init policy", errors.New("unknown id"))
	}
	f.initialized[sessionID] = policyID
	return &domain.PolicyContext{
		PolicyID: policyID,
		Policy:   record,
		Documents: []domain.DocumentChunk{
			{ID: "c1", PolicyID: policyID, ChunkIndex: 0, DocType: "지원내용", Content: "지원 금액은 최대 8억원"},
		},
	}, nil
}

func (f *fakeSessionBackend) Chat(_ context.Context, sessionID, _ string) (*domain.ChatAnswer, error) {
	f.chatCalls++
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if _, ok := f.initialized[sessionID]; !ok {
		return nil, domain.WrapError(domain.ErrPolicyNotInitialized, "chat", errors.New("no context"))
	}
	answer := f.chatAnswer
	answer.SessionID = sessionID
	return &answer, nil
}

func (f *fakeSessionBackend) Cleanup(_ context.Context, sessionID string) error {
	delete(f.initialized, sessionID)
	return nil
}

func (f *fakeSessionBackend) Search(_ context.Context, _ string, filter domain.SearchFilter) (*domain.SearchResult, error) {
	f.lastFilter = filter
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRes, nil
}

func newTestRouter(backend *fakeSessionBackend) http.Handler {
	return NewRouter(RouterDeps{
		Init:    backend,
		Chat:    backend,
		Cleanup: backend,
		Search:  backend,
		Logger:  testLogger(),
	}).Handler()
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", res.Body.String(), err)
	}
	return body
}

func TestHealthz(t *testing.T) {
	handler := newTestRouter(newFakeBackend())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestInitPolicyEndpoint(t *testing.T) {
	handler := newTestRouter(newFakeBackend())

	res := postJSON(t, handler, "/chat/init-policy", map[string]any{"session_id": "s1", "policy_id": 507})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["session_id"] != "s1" || body["status"] != "initialized" {
		t.Errorf("body = %v", body)
	}
	if body["documents_count"].(float64) != 1 {
		t.Errorf("documents_count = %v", body["documents_count"])
	}
}

func TestInitPolicyGeneratesSessionID(t *testing.T) {
	handler := newTestRouter(newFakeBackend())

	res := postJSON(t, handler, "/chat/init-policy", map[string]any{"policy_id": 507})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	if decodeBody(t, res)["session_id"] == "" {
		t.Error("expected generated session id")
	}
}

func TestInitPolicyUnknownPolicyReturns404(t *testing.T) {
	handler := newTestRouter(newFakeBackend())

	res := postJSON(t, handler, "/chat/init-policy", map[string]any{"session_id": "s1", "policy_id": 99999})
	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d", res.Code)
	}
	if decodeBody(t, res)["code"] != "policy_not_found" {
		t.Errorf("body = %s", res.Body.String())
	}
}

func TestChatBeforeInitReturns412(t *testing.T) {
	handler := newTestRouter(newFakeBackend())

	res := postJSON(t, handler, "/chat", map[string]any{"session_id": "s4", "message": "지원 금액은?"})
	if res.Code != http.StatusPreconditionFailed {
		t.Fatalf("status = %d", res.Code)
	}
	if decodeBody(t, res)["code"] != "policy_not_initialized" {
		t.Errorf("body = %s", res.Body.String())
	}
}

func TestChatAnswersAfterInit(t *testing.T) {
	backend := newFakeBackend()
	backend.chatAnswer = domain.ChatAnswer{
		Answer: "지원 금액은 최대 8억원입니다 [정책문서 1].",
		Evidence: []domain.Evidence{
			{Type: domain.EvidenceInternal, PolicyID: 507, URL: "/policy/507", LinkType: domain.LinkPolicyDetail},
		},
		WebSources: []domain.WebResult{},
		QueryType:  domain.QueryPolicyQA,
		AnswerMode: domain.AnswerDocsOnly,
	}
	handler := newTestRouter(backend)

	if res := postJSON(t, handler, "/chat/init-policy", map[string]any{"session_id": "s1", "policy_id": 507}); res.Code != http.StatusOK {
		t.Fatalf("init status = %d", res.Code)
	}
	res := postJSON(t, handler, "/chat", map[string]any{"session_id": "s1", "message": "지원 금액은 얼마야?"})
	if res.Code != http.StatusOK {
		t.Fatalf("chat status = %d, body %s", res.Code, res.Body.String())
	}

	body := decodeBody(t, res)
	evidence := body["evidence"].([]any)
	first := evidence[0].(map[string]any)
	if first["type"] != "internal" || first["policy_id"].(float64) != 507 {
		t.Errorf("evidence[0] = %v", first)
	}
	if web := body["web_sources"].([]any); len(web) != 0 {
		t.Errorf("web_sources = %v", web)
	}
	if _, leaked := body["answer_mode"]; leaked {
		t.Error("answer_mode must not appear in the response body")
	}
}

func TestChatAutoInitializesWhenPolicyProvided(t *testing.T) {
	backend := newFakeBackend()
	backend.chatAnswer = domain.ChatAnswer{Answer: "안내", QueryType: domain.QueryPolicyQA}
	handler := newTestRouter(backend)

	res := postJSON(t, handler, "/chat", map[string]any{"session_id": "s9", "message": "지원 금액은?", "policy_id": 507})
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if backend.chatCalls != 2 {
		t.Errorf("chat calls = %d, want failed attempt + retry after init", backend.chatCalls)
	}
	if backend.initialized["s9"] != 507 {
		t.Errorf("session not initialized: %v", backend.initialized)
	}
}

func TestCleanupThenChatReturns412(t *testing.T) {
	backend := newFakeBackend()
	backend.chatAnswer = domain.ChatAnswer{Answer: "안내"}
	handler := newTestRouter(backend)

	postJSON(t, handler, "/chat/init-policy", map[string]any{"session_id": "s5", "policy_id": 507})
	res := postJSON(t, handler, "/chat/cleanup", map[string]any{"session_id": "s5"})
	if res.Code != http.StatusOK {
		t.Fatalf("cleanup status = %d", res.Code)
	}
	if decodeBody(t, res)["status"] != "cleaned" {
		t.Errorf("body = %s", res.Body.String())
	}

	// Cleanup is idempotent.
	if res := postJSON(t, handler, "/chat/cleanup", map[string]any{"session_id": "s5"}); res.Code != http.StatusOK {
		t.Fatalf("second cleanup status = %d", res.Code)
	}

	if res := postJSON(t, handler, "/chat", map[string]any{"session_id": "s5", "message": "지원 금액은?"}); res.Code != http.StatusPreconditionFailed {
		t.Fatalf("chat after cleanup status = %d", res.Code)
	}
}

func TestCleanupRequiresSessionID(t *testing.T) {
	handler := newTestRouter(newFakeBackend())
	if res := postJSON(t, handler, "/chat/cleanup", map[string]any{}); res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	backend := newFakeBackend()
	backend.searchRes = &domain.SearchResult{
		Query:    "창업 지원",
		Policies: []domain.PolicyHit{},
		Metrics: domain.SearchMetrics{
			WebSearchTriggered: true,
			WebSearchCount:     1,
			SufficiencyReason:  "내부 검색 결과 부족 (결과: 0건, 최고 점수: 0.00). 웹 검색으로 보충합니다.",
		},
		Evidence:   []domain.Evidence{},
		WebSources: []domain.WebResult{{Title: "안내", URL: "https://example.go.kr"}},
		Summary:    "'창업 지원'에 대한 내부 정책을 찾지 못해 웹 검색 결과 1건을 제공합니다.",
	}
	handler := newTestRouter(backend)

	req := httptest.NewRequest(http.MethodGet, "/policies/search?query=창업+지원&region=서울&target_group=청년", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", res.Code, res.Body.String())
	}
	if backend.lastFilter.Region != "서울" || backend.lastFilter.TargetGroup != "청년" {
		t.Errorf("filter = %+v", backend.lastFilter)
	}

	body := decodeBody(t, res)
	metricsBody := body["metrics"].(map[string]any)
	if metricsBody["web_search_triggered"] != true {
		t.Errorf("metrics = %v", metricsBody)
	}
	if body["policies"] == nil {
		t.Error("policies must be [] not null")
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	handler := newTestRouter(newFakeBackend())
	req := httptest.NewRequest(http.MethodGet, "/policies/search", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestSearchUpstreamFailureMapsTo502(t *testing.T) {
	backend := newFakeBackend()
	backend.searchErr = domain.WrapError(domain.ErrUpstream, "search", errors.New("qdrant down"))
	handler := newTestRouter(backend)

	req := httptest.NewRequest(http.MethodGet, "/policies/search?query=창업", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestRouter(newFakeBackend())
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", res.Code)
	}
}

func TestCacheStatsEndpoint(t *testing.T) {
	backend := newFakeBackend()
	router := NewRouter(RouterDeps{
		Init:    backend,
		Chat:    backend,
		Cleanup: backend,
		Search:  backend,
		Logger:  testLogger(),
		CacheStats: func() CacheStats {
			return CacheStats{ChatSessions: 2, PolicyContexts: 1, CachedDocuments: 40}
		},
	})
	req := httptest.NewRequest(http.MethodGet, "/admin/cache/stats", nil)
	res := httptest.NewRecorder()
	router.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d", res.Code)
	}
	body := decodeBody(t, res)
	if body["chat_sessions"].(float64) != 2 || body["cached_documents"].(float64) != 40 {
		t.Errorf("body = %v", body)
	}
}

func TestWarmIndexEndpoint(t *testing.T) {
	backend := newFakeBackend()
	warmed := 0
	router := NewRouter(RouterDeps{
		Init:    backend,
		Chat:    backend,
		Cleanup: backend,
		Search:  backend,
		Logger:  testLogger(),
		WarmSparse: func(*http.Request) error {
			warmed++
			return nil
		},
	})
	res := postJSON(t, router.Handler(), "/admin/index/warm", map[string]any{})
	if res.Code != http.StatusOK || warmed != 1 {
		t.Fatalf("status = %d, warmed = %d", res.Code, warmed)
	}
}
