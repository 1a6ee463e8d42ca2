package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
	"github.com/daehwan-dev/policy-assistant/internal/core/ports"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakePolicyStore struct {
	policies  map[int64]domain.PolicyRecord
	getErr    error
	lookupErr error
}

func (f *fakePolicyStore) GetByID(_ context.Context, id int64) (*domain.PolicyRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	record, ok := f.policies[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrPolicyNotFound, "get policy", errors.New("no such row"))
	}
	return &record, nil
}

func (f *fakePolicyStore) LookupPolicies(_ context.Context, ids []int64) (map[int64]domain.PolicyRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	found := make(map[int64]domain.PolicyRecord, len(ids))
	for _, id := range ids {
		if record, ok := f.policies[id]; ok {
			found[id] = record
		}
	}
	return found, nil
}

type vectorSearchCall struct {
	limit    int
	filter   domain.SearchFilter
	minScore float64
}

type fakeVectorStore struct {
	searchHits   []domain.ChunkHit
	searchErr    error
	searchFn     func(minScore float64) []domain.ChunkHit
	searchCalls  []vectorSearchCall
	scrollChunks []domain.DocumentChunk
	scrollErr    error
	scrollCalls  []domain.SearchFilter
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, limit int, filter domain.SearchFilter, minScore float64) ([]domain.ChunkHit, error) {
	f.searchCalls = append(f.searchCalls, vectorSearchCall{limit: limit, filter: filter, minScore: minScore})
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchFn != nil {
		return f.searchFn(minScore), nil
	}
	return f.searchHits, nil
}

func (f *fakeVectorStore) Scroll(_ context.Context, filter domain.SearchFilter, _ int) ([]domain.DocumentChunk, error) {
	f.scrollCalls = append(f.scrollCalls, filter)
	if f.scrollErr != nil {
		return nil, f.scrollErr
	}
	return f.scrollChunks, nil
}

type fakeSparseIndex struct {
	hits       []domain.ChunkHit
	buildErr   error
	buildCalls int
}

func (f *fakeSparseIndex) EnsureBuilt(context.Context) error {
	f.buildCalls++
	return f.buildErr
}

func (f *fakeSparseIndex) Search(_ string, topK int) []domain.ChunkHit {
	if topK > 0 && len(f.hits) > topK {
		return f.hits[:topK]
	}
	return f.hits
}

func (f *fakeSparseIndex) Tokenize(text string) []string {
	return strings.Fields(text)
}

type fakeEmbedder struct {
	vector []float32
	err    error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

type fakeChatModel struct {
	answer     string
	err        error
	calls      int
	lastSystem string
	lastUser   string
}

func (f *fakeChatModel) Complete(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type fakeWebSearcher struct {
	results   []domain.WebResult
	err       error
	calls     int
	lastQuery string
	lastMax   int
}

func (f *fakeWebSearcher) Search(_ context.Context, query string, maxResults int) ([]domain.WebResult, error) {
	f.calls++
	f.lastQuery = query
	f.lastMax = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeContextCache struct {
	contexts map[string]domain.PolicyContext
}

func newFakeContextCache() *fakeContextCache {
	return &fakeContextCache{contexts: make(map[string]domain.PolicyContext)}
}

func (f *fakeContextCache) Set(sessionID string, ctx domain.PolicyContext) {
	f.contexts[sessionID] = ctx
}

func (f *fakeContextCache) Get(sessionID string) (domain.PolicyContext, bool) {
	ctx, ok := f.contexts[sessionID]
	return ctx, ok
}

func (f *fakeContextCache) Clear(sessionID string) {
	delete(f.contexts, sessionID)
}

type fakeHistoryCache struct {
	turns map[string][]domain.ChatTurn
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{turns: make(map[string][]domain.ChatTurn)}
}

func (f *fakeHistoryCache) Append(sessionID string, turn domain.ChatTurn) {
	f.turns[sessionID] = append(f.turns[sessionID], turn)
}

func (f *fakeHistoryCache) History(sessionID string) []domain.ChatTurn {
	return f.turns[sessionID]
}

func (f *fakeHistoryCache) Clear(sessionID string) {
	delete(f.turns, sessionID)
}

type fakePublisher struct {
	chatEvents   []ports.ChatAnsweredEvent
	searchEvents []ports.SearchCompletedEvent
}

func (f *fakePublisher) PublishChatAnswered(_ context.Context, event ports.ChatAnsweredEvent) error {
	f.chatEvents = append(f.chatEvents, event)
	return nil
}

func (f *fakePublisher) PublishSearchCompleted(_ context.Context, event ports.SearchCompletedEvent) error {
	f.searchEvents = append(f.searchEvents, event)
	return nil
}
