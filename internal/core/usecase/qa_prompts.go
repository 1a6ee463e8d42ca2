package usecase

import (
	"fmt"
	"strings"

	"github.com/daehwan-dev/policy-assistant/internal/core/domain"
)

const (
	docsOnlySystemPrompt = "당신은 정부 정책 전문 상담사입니다. 제공된 정책 문서를 근거로 정확하고 친절하게 답변하세요. 문서에 없는 내용은 추측하지 마세요."
	webOnlySystemPrompt  = "당신은 정부 정책 전문 상담사입니다. 제공된 웹 검색 결과를 근거로 정확하고 친절하게 답변하세요. 출처가 불확실한 내용은 추측하지 마세요."
	hybridSystemPrompt   = "당신은 정부 정책 전문 상담사입니다. 정책 문서를 우선 근거로 삼고, 부족한 부분은 웹 검색 결과로 보완하여 정확하고 친절하게 답변하세요."

	citationInstruction = "문서 내용을 인용할 때는 [정책문서 1]처럼 문서 번호를, 웹 검색 결과를 인용할 때는 [웹 1]처럼 번호를 표기하세요."

	fallbackAnswer = "죄송합니다. 답변 생성 중 오류가 발생했습니다. 잠시 후 다시 시도해주세요."
)

// promptHistoryWindow bounds how many past messages the prompt carries.
const promptHistoryWindow = 10

// buildUserPrompt renders the QA user prompt. Document numbering here is the
// citation contract: document i in the prompt is evidence entry i in the
// answer, so callers must pass the exact doc slice they will emit as
// evidence.
func buildUserPrompt(state *qaState) string {
	var b strings.Builder

	if state.policy.Name != "" {
		b.WriteString("[정책 정보]\n")
		fmt.Fprintf(&b, "- 정책명: %s\n", state.policy.Name)
		if state.policy.Region != "" {
			fmt.Fprintf(&b, "- 지역: %s\n", state.policy.Region)
		}
		if state.policy.Category != "" {
			fmt.Fprintf(&b, "- 분야: %s\n", state.policy.Category)
		}
		if state.policy.ApplyTarget != "" {
			fmt.Fprintf(&b, "- 지원 대상: %s\n", state.policy.ApplyTarget)
		}
		if state.policy.SupportDescription != "" {
			fmt.Fprintf(&b, "- 지원 내용: %s\n", state.policy.SupportDescription)
		}
		b.WriteString("\n")
	}

	if len(state.promptDocs) > 0 {
		b.WriteString("[정책 문서]\n")
		for i, doc := range state.promptDocs {
			fmt.Fprintf(&b, "[정책문서 %d] (섹션: %s)\n%s\n\n", i+1, doc.DocType, doc.Content)
		}
	}

	if len(state.web) > 0 {
		b.WriteString("[웹 검색 결과]\n")
		for i, result := range state.web {
			fmt.Fprintf(&b, "[웹 %d] %s (%s)\n%s\n출처: %s\n\n", i+1, result.Title, result.FetchedDate, result.Snippet, result.URL)
		}
	}

	if history := recentMessages(state.history, promptHistoryWindow); len(history) > 0 {
		b.WriteString("[대화 이력]\n")
		for _, turn := range history {
			speaker := "사용자"
			if turn.Role == domain.RoleAssistant {
				speaker = "상담사"
			}
			fmt.Fprintf(&b, "%s: %s\n", speaker, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "[질문]\n%s\n\n%s", state.query, citationInstruction)
	return b.String()
}

func recentMessages(history []domain.ChatTurn, window int) []domain.ChatTurn {
	if len(history) <= window {
		return history
	}
	return history[len(history)-window:]
}
