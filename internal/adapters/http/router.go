package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
	"github.com/daehwan-dev/policy-assistant/internal/observability/metrics"
)

const serviceName = "api"

// backpressureWait is how long a request waits for an in-flight slot before
// the gate rejects it.
const backpressureWait = 2 * time.Second

// CacheStats is the /admin/cache/stats response body.
type CacheStats struct {
	ChatSessions    int `json:"chat_sessions"`
	PolicyContexts  int `json:"policy_contexts"`
	CachedDocuments int `json:"cached_documents"`
}

// RouterDeps carries the inbound services plus the operational hooks the
// admin surface exposes.
type RouterDeps struct {
	Init    ports.PolicyInitializer
	Chat    ports.ChatService
	Cleanup ports.SessionCleaner
	Search  ports.PolicySearcher

	WarmSparse func(r *http.Request) error
	CacheStats func() CacheStats

	Metrics *metrics.Metrics
	Logger  *slog.Logger

	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
}

type Router struct {
	deps RouterDeps
}

func NewRouter(deps RouterDeps) *Router {
	return &Router{deps: deps}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/chat/init-policy", rt.initPolicy)
	mux.HandleFunc("/chat/cleanup", rt.cleanup)
	mux.HandleFunc("/chat", rt.chat)
	mux.HandleFunc("/policies/search", rt.searchPolicies)
	mux.HandleFunc("/admin/cache/stats", rt.cacheStats)
	mux.HandleFunc("/admin/index/warm", rt.warmIndex)
	if rt.deps.Metrics != nil {
		mux.Handle("/metrics", rt.deps.Metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.deps.Metrics != nil {
		handler = rt.deps.Metrics.Middleware(serviceName, handler)
	}
	handler = rateLimitMiddleware(handler, rt.deps.RateLimitRPS, rt.deps.RateLimitBurst)
	handler = backpressureMiddleware(handler, rt.deps.MaxInFlight, backpressureWait)
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(rt.deps.Logger, handler)
	return handler
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) initPolicy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		PolicyID  int64  `json:"policy_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json", "code": "invalid_input"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	policyContext, err := rt.deps.Init.InitPolicy(r.Context(), req.SessionID, req.PolicyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      req.SessionID,
		"policy_id":       policyContext.PolicyID,
		"status":          "initialized",
		"documents_count": len(policyContext.Documents),
	})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
		PolicyID  int64  `json:"policy_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json", "code": "invalid_input"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	start := time.Now()
	answer, err := rt.deps.Chat.Chat(r.Context(), req.SessionID, req.Message)
	if err != nil && req.PolicyID > 0 && domain.IsKind(err, domain.ErrPolicyNotInitialized) {
		// The client named a policy, so initialize on its behalf and rerun.
		if _, initErr := rt.deps.Init.InitPolicy(r.Context(), req.SessionID, req.PolicyID); initErr != nil {
			writeError(w, initErr)
			return
		}
		answer, err = rt.deps.Chat.Chat(r.Context(), req.SessionID, req.Message)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.deps.Metrics != nil {
		internalCount := 0
		for _, entry := range answer.Evidence {
			if entry.Type == domain.EvidenceInternal {
				internalCount++
			}
		}
		rt.deps.Metrics.RecordQATurn(serviceName, answer.AnswerMode, internalCount, time.Since(start))
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) cleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id is required", "code": "invalid_input"})
		return
	}

	if err := rt.deps.Cleanup.Cleanup(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleaned"})
}

func (rt *Router) searchPolicies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	params := r.URL.Query()
	query := strings.TrimSpace(params.Get("query"))
	if query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query parameter is required", "code": "invalid_input"})
		return
	}
	filter := domain.SearchFilter{
		Region:      strings.TrimSpace(params.Get("region")),
		Category:    strings.TrimSpace(params.Get("category")),
		TargetGroup: strings.TrimSpace(params.Get("target_group")),
	}

	result, err := rt.deps.Search.Search(r.Context(), query, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if rt.deps.Metrics != nil {
		rt.deps.Metrics.RecordSearch(serviceName, result.Metrics.FinalCount)
		if result.Metrics.WebSearchTriggered {
			rt.deps.Metrics.RecordWebFallback(serviceName, result.Metrics.WebSearchCount > 0)
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) cacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if rt.deps.CacheStats == nil {
		writeJSON(w, http.StatusOK, CacheStats{})
		return
	}
	writeJSON(w, http.StatusOK, rt.deps.CacheStats())
}

func (rt *Router) warmIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if rt.deps.WarmSparse == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "noop"})
		return
	}
	if err := rt.deps.WarmSparse(r); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "warmed"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed", "code": "method_not_allowed"})
}
