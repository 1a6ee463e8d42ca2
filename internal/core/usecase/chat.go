package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

// qaPromptDocsLimit caps how many cached chunks one answer turn consumes. The
// same chunks, in the same order, become the internal evidence so every
// [정책문서 i] citation resolves.
const qaPromptDocsLimit = 10

// minSufficientDocs is the floor below which the cached context alone is
// considered too thin and the web supplement runs.
const minSufficientDocs = 3

var errSessionOrMessageMissing = errors.New("session_id and message are required")

// webOnlyMarkers routes a query straight to web search: the user wants a
// link, an address or application logistics that cached policy text rarely
// carries.
var webOnlyMarkers = []string{
	"링크", "url", "홈페이지", "사이트", "웹사이트",
	"어디서 신청", "신청 방법", "신청하는 방법",
	"신청서 다운로드", "양식 다운로드",
	"접수", "접수처", "공고문",
}

// homepageMarkers flag a POLICY_QA query that still asks for an official page
// or address, which makes the cached docs insufficient on their own.
var homepageMarkers = []string{"홈페이지", "사이트", "링크", "url", "주소"}

// ChatDeps wires the QA workflow.
type ChatDeps struct {
	Contexts      ports.PolicyContextCache
	History       ports.ChatHistoryCache
	Model         ports.ChatModel
	Web           ports.WebSearcher
	Events        ports.EventPublisher
	WebMaxResults int
	WebTimeout    time.Duration
	LLMTimeout    time.Duration
	Logger        *slog.Logger
}

// ChatUseCase runs one QA turn as a small state machine: classify, load the
// cached policy context, judge sufficiency, optionally supplement from the
// web, answer, then persist the turn and emit a usage event.
type ChatUseCase struct {
	deps ChatDeps
}

func NewChatUseCase(deps ChatDeps) *ChatUseCase {
	if deps.WebMaxResults <= 0 {
		deps.WebMaxResults = 5
	}
	return &ChatUseCase{deps: deps}
}

// qaState is the mutable state threaded through the workflow nodes.
type qaState struct {
	sessionID  string
	query      string
	queryType  domain.QueryType
	policy     domain.PolicyRecord
	promptDocs []domain.DocumentChunk
	web        []domain.WebResult
	history    []domain.ChatTurn
	answer     string
	evidence   []domain.Evidence
	mode       string
}

func (uc *ChatUseCase) Chat(ctx context.Context, sessionID, message string) (*domain.ChatAnswer, error) {
	message = strings.TrimSpace(message)
	if sessionID == "" || message == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errSessionOrMessageMissing)
	}

	start := time.Now()
	state := &qaState{
		sessionID: sessionID,
		query:     message,
		queryType: classifyQueryType(message),
		history:   uc.deps.History.History(sessionID),
	}

	if state.queryType == domain.QueryWebOnly {
		// The web path does not require an initialized context, but an
		// existing one sharpens the web query with the policy name.
		if policyContext, ok := uc.deps.Contexts.Get(sessionID); ok {
			state.policy = policyContext.Policy
		}
		state.web = uc.searchWeb(ctx, webQueryFor(state))
		uc.answer(ctx, state, webOnlySystemPrompt, domain.AnswerWebOnly)
	} else {
		policyContext, ok := uc.deps.Contexts.Get(sessionID)
		if !ok {
			return nil, domain.WrapError(domain.ErrPolicyNotInitialized, "chat",
				fmt.Errorf("session %q has no cached policy context", sessionID))
		}
		state.policy = policyContext.Policy
		state.promptDocs = policyContext.Documents
		if len(state.promptDocs) > qaPromptDocsLimit {
			state.promptDocs = state.promptDocs[:qaPromptDocsLimit]
		}

		if insufficient, reason := checkSufficiency(state); insufficient {
			uc.deps.Logger.Info("qa_web_supplement", "session_id", sessionID, "reason", reason)
			state.web = uc.searchWeb(ctx, webQueryFor(state))
		}
		if len(state.web) > 0 {
			uc.answer(ctx, state, hybridSystemPrompt, domain.AnswerHybrid)
		} else {
			uc.answer(ctx, state, docsOnlySystemPrompt, domain.AnswerDocsOnly)
		}
	}

	now := time.Now()
	uc.deps.History.Append(sessionID, domain.ChatTurn{
		Role:      domain.RoleUser,
		Content:   message,
		CreatedAt: now,
	})
	uc.deps.History.Append(sessionID, domain.ChatTurn{
		Role:      domain.RoleAssistant,
		Content:   state.answer,
		Evidence:  state.evidence,
		CreatedAt: now,
	})

	internalCount, webCount := countEvidence(state.evidence)
	if uc.deps.Events != nil {
		_ = uc.deps.Events.PublishChatAnswered(ctx, ports.ChatAnsweredEvent{
			SessionID:     sessionID,
			PolicyID:      state.policy.ID,
			QueryType:     string(state.queryType),
			AnswerMode:    state.mode,
			InternalCount: internalCount,
			WebCount:      webCount,
			DurationMs:    time.Since(start).Milliseconds(),
		})
	}

	uc.deps.Logger.Info("chat_answered",
		"session_id", sessionID,
		"query_type", state.queryType,
		"answer_mode", state.mode,
		"evidence_count", len(state.evidence),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	// Empty collections marshal as [] rather than null.
	if state.evidence == nil {
		state.evidence = []domain.Evidence{}
	}
	if state.web == nil {
		state.web = []domain.WebResult{}
	}
	return &domain.ChatAnswer{
		SessionID:  sessionID,
		Answer:     state.answer,
		Evidence:   state.evidence,
		WebSources: state.web,
		QueryType:  state.queryType,
		AnswerMode: state.mode,
	}, nil
}

// classifyQueryType is a pure lexicon check; no model call.
func classifyQueryType(query string) domain.QueryType {
	lowered := strings.ToLower(query)
	for _, marker := range webOnlyMarkers {
		if strings.Contains(lowered, marker) {
			return domain.QueryWebOnly
		}
	}
	return domain.QueryPolicyQA
}

// checkSufficiency decides whether the cached context alone can answer the
// query.
func checkSufficiency(state *qaState) (insufficient bool, reason string) {
	if len(state.promptDocs) == 0 {
		return true, "cached documents empty"
	}
	if state.policy.Name == "" {
		return true, "policy metadata empty"
	}
	lowered := strings.ToLower(state.query)
	for _, marker := range homepageMarkers {
		if strings.Contains(lowered, marker) {
			return true, "homepage request"
		}
	}
	if len(state.promptDocs) < minSufficientDocs {
		return true, fmt.Sprintf("only %d cached documents", len(state.promptDocs))
	}
	return false, ""
}

// answer renders the prompt, calls the model and freezes the evidence. A
// model failure degrades to a fixed apology with no evidence; the turn still
// completes.
func (uc *ChatUseCase) answer(ctx context.Context, state *qaState, systemPrompt, mode string) {
	if uc.deps.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.deps.LLMTimeout)
		defer cancel()
	}

	completion, err := uc.deps.Model.Complete(ctx, systemPrompt, buildUserPrompt(state))
	if err != nil {
		uc.deps.Logger.Error("answer_generation_failed", "session_id", state.sessionID, "mode", mode, "error", err)
		state.answer = fallbackAnswer
		state.evidence = nil
		state.mode = domain.AnswerFallback
		return
	}

	state.answer = completion
	state.evidence = qaEvidence(state)
	state.mode = mode
}

// qaEvidence freezes the sources behind the answer: the prompt docs in prompt
// order, then the web results. Index i here corresponds to citation marker i
// in the answer text.
func qaEvidence(state *qaState) []domain.Evidence {
	evidence := make([]domain.Evidence, 0, len(state.promptDocs)+len(state.web))
	for _, doc := range state.promptDocs {
		evidence = append(evidence, domain.Evidence{
			Type:       domain.EvidenceInternal,
			Source:     fmt.Sprintf("정책 문서 (섹션: %s)", doc.DocType),
			Content:    truncateRunes(doc.Content, excerptLimit),
			URL:        fmt.Sprintf("/policy/%d", doc.PolicyID),
			LinkType:   domain.LinkPolicyDetail,
			PolicyID:   doc.PolicyID,
			ChunkIndex: doc.ChunkIndex,
		})
	}
	for _, result := range state.web {
		evidence = append(evidence, domain.Evidence{
			Type:        domain.EvidenceWeb,
			Source:      result.Title,
			Content:     truncateRunes(result.Snippet, excerptLimit),
			Score:       result.Score,
			URL:         result.URL,
			LinkType:    domain.LinkExternal,
			FetchedDate: result.FetchedDate,
		})
	}
	return evidence
}

// searchWeb is best-effort: failures degrade to no web sources.
func (uc *ChatUseCase) searchWeb(ctx context.Context, query string) []domain.WebResult {
	if uc.deps.Web == nil {
		return nil
	}
	if uc.deps.WebTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.deps.WebTimeout)
		defer cancel()
	}
	results, err := uc.deps.Web.Search(ctx, query, uc.deps.WebMaxResults)
	if err != nil {
		uc.deps.Logger.Warn("web_search_failed", "query", query, "error", err)
		return nil
	}
	return results
}

func webQueryFor(state *qaState) string {
	if state.policy.Name == "" {
		return state.query
	}
	return state.policy.Name + " " + state.query
}

func countEvidence(evidence []domain.Evidence) (internal, web int) {
	for _, entry := range evidence {
		if entry.Type == domain.EvidenceWeb {
			web++
		} else {
			internal++
		}
	}
	return internal, web
}
