package sparse

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

type scrollFake struct {
	mu     sync.Mutex
	chunks []domain.DocumentChunk
	err    error
	calls  int
}

func (f *scrollFake) Search(_ context.Context, _ []float32, _ int, _ domain.SearchFilter, _ float64) ([]domain.ChunkHit, error) {
	return nil, errors.New("not used")
}

func (f *scrollFake) Scroll(_ context.Context, _ domain.SearchFilter, _ int) ([]domain.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCorpus() []domain.DocumentChunk {
	return []domain.DocumentChunk{
		{ID: "100:0", PolicyID: 100, ChunkIndex: 0, DocType: "overview", Content: "청년 창업 지원금 최대 1억원 지급"},
		{ID: "100:1", PolicyID: 100, ChunkIndex: 1, DocType: "apply", Content: "신청 대상은 예비 창업자 및 초기 스타트업"},
		{ID: "200:0", PolicyID: 200, ChunkIndex: 0, DocType: "overview", Content: "수출 바우처 해외 마케팅 비용 지원"},
		{ID: "300:0", PolicyID: 300, ChunkIndex: 0, DocType: "overview", Content: "특허 출원 비용과 지식재산권 컨설팅 제공"},
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"korean with particles", "청년을 위한 창업 지원금", []string{"청년을", "창업", "지원금"}},
		{"lowercases latin", "AI Startup 지원", []string{"ai", "startup", "지원"}},
		{"drops short tokens and punctuation", "R&D 및 기술 혁신!", []string{"기술", "혁신"}},
		{"drops stopwords", "그리고 창업 하지만 지원금", []string{"창업", "지원금"}},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Tokenize(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
				}
			}
		})
	}
}

func TestEnsureBuiltIsLazyAndIdempotent(t *testing.T) {
	store := &scrollFake{chunks: testCorpus()}
	idx := NewIndex(store, domain.DefaultSearchConfig(), testLogger())

	if idx.Built() {
		t.Fatalf("index must not build before first use")
	}
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("EnsureBuilt() error = %v", err)
	}
	if !idx.Built() {
		t.Fatalf("expected built index")
	}
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("second EnsureBuilt() error = %v", err)
	}
	if store.calls != 1 {
		t.Fatalf("expected single corpus scroll, got %d", store.calls)
	}
}

func TestEnsureBuiltRetriesAfterFailure(t *testing.T) {
	store := &scrollFake{err: errors.New("qdrant down")}
	idx := NewIndex(store, domain.DefaultSearchConfig(), testLogger())

	if err := idx.EnsureBuilt(context.Background()); err == nil {
		t.Fatalf("expected build error")
	} else if !domain.IsKind(err, domain.ErrUpstream) {
		t.Fatalf("expected upstream error kind, got %v", err)
	}
	if idx.Built() {
		t.Fatalf("failed build must leave the index unbuilt")
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("retry EnsureBuilt() error = %v", err)
	}
	if !idx.Built() {
		t.Fatalf("expected built index after retry")
	}
}

func TestEnsureBuiltConcurrentCallersBuildOnce(t *testing.T) {
	store := &scrollFake{chunks: testCorpus()}
	idx := NewIndex(store, domain.DefaultSearchConfig(), testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := idx.EnsureBuilt(context.Background()); err != nil {
				t.Errorf("EnsureBuilt() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if store.calls != 1 {
		t.Fatalf("expected single build, got %d scrolls", store.calls)
	}
}

func TestSearchRanksMatchingChunks(t *testing.T) {
	idx := NewIndex(&scrollFake{chunks: testCorpus()}, domain.DefaultSearchConfig(), testLogger())
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("EnsureBuilt() error = %v", err)
	}

	hits := idx.Search("창업 지원금", 10)
	if len(hits) == 0 {
		t.Fatalf("expected hits for matching query")
	}
	if hits[0].ChunkID != "100:0" {
		t.Fatalf("expected chunk 100:0 first, got %s", hits[0].ChunkID)
	}
	if hits[0].MatchType != domain.MatchSparse {
		t.Fatalf("expected sparse match type, got %s", hits[0].MatchType)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Fatalf("hits not ordered by score: %v", hits)
		}
	}
	for _, hit := range hits {
		if hit.PolicyID == 200 || hit.PolicyID == 300 {
			t.Fatalf("unrelated policy %d matched query", hit.PolicyID)
		}
	}
}

func TestSearchRespectsTopK(t *testing.T) {
	idx := NewIndex(&scrollFake{chunks: testCorpus()}, domain.DefaultSearchConfig(), testLogger())
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("EnsureBuilt() error = %v", err)
	}

	hits := idx.Search("지원 창업 수출 특허 비용", 2)
	if len(hits) > 2 {
		t.Fatalf("expected at most 2 hits, got %d", len(hits))
	}
}

func TestSearchBeforeBuildAndEmptyQuery(t *testing.T) {
	idx := NewIndex(&scrollFake{chunks: testCorpus()}, domain.DefaultSearchConfig(), testLogger())

	if hits := idx.Search("창업", 10); hits != nil {
		t.Fatalf("unbuilt index must return no hits, got %d", len(hits))
	}

	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("EnsureBuilt() error = %v", err)
	}
	if hits := idx.Search("은 는 이 가", 10); len(hits) != 0 {
		t.Fatalf("stopword-only query must return no hits")
	}
}

func TestSearchTieBreakByChunkID(t *testing.T) {
	chunks := []domain.DocumentChunk{
		{ID: "b", PolicyID: 1, Content: "창업 지원"},
		{ID: "a", PolicyID: 2, Content: "창업 지원"},
	}
	idx := NewIndex(&scrollFake{chunks: chunks}, domain.DefaultSearchConfig(), testLogger())
	if err := idx.EnsureBuilt(context.Background()); err != nil {
		t.Fatalf("EnsureBuilt() error = %v", err)
	}

	hits := idx.Search("창업", 10)
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].ChunkID != "a" || hits[1].ChunkID != "b" {
		t.Fatalf("expected ascending chunk id tie-break, got %s then %s", hits[0].ChunkID, hits[1].ChunkID)
	}
}
