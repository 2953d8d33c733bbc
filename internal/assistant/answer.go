package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/suPer8Hu/cookingpapa/internal/ai"
	"github.com/suPer8Hu/cookingpapa/internal/store"
)

const persona = `你是 CookingPapa 餐廳的客服助手，主要使用粵語回應，友善、專業、有耐性。
自稱「我」或「CookingPapa」。回答要簡潔，適合在手機訊息中閱讀。
如果問題超出你所知道的範圍，請禮貌地說明並建議客人直接致電餐廳。`

// Answerer replies to non-reservation messages.
type Answerer interface {
	Answer(ctx context.Context, category, text string, history []store.HistoryEntry) (string, error)
}

// ChatAnswerer answers with a chat model, passing the most recent history
// entries as context.
type ChatAnswerer struct {
	provider          ai.Provider
	reference         string
	contextWindowSize int
}

// NewChatAnswerer builds an answerer. reference is restaurant information
// (hours, address, menu notes) appended to the system prompt.
func NewChatAnswerer(p ai.Provider, reference string, contextWindowSize int) *ChatAnswerer {
	if contextWindowSize <= 0 || contextWindowSize > 100 {
		contextWindowSize = 20
	}
	return &ChatAnswerer{provider: p, reference: strings.TrimSpace(reference), contextWindowSize: contextWindowSize}
}

func (a *ChatAnswerer) Answer(ctx context.Context, category, text string, history []store.HistoryEntry) (string, error) {
	system := persona
	if a.reference != "" {
		system += "\n\n餐廳資料：\n" + a.reference
	}
	if category != "" {
		system += fmt.Sprintf("\n\n這個問題的分類是：%s。", category)
	}

	if len(history) > a.contextWindowSize {
		history = history[len(history)-a.contextWindowSize:]
	}
	msgs := make([]ai.Message, 0, len(history)+2)
	msgs = append(msgs, ai.Message{Role: ai.RoleSystem, Content: system})
	for _, h := range history {
		role := ai.RoleAssistant
		if h.IsUser {
			role = ai.RoleUser
		}
		msgs = append(msgs, ai.Message{Role: role, Content: h.Content})
	}
	msgs = append(msgs, ai.Message{Role: ai.RoleUser, Content: text})

	reply, err := a.provider.Chat(ctx, msgs)
	if err != nil {
		return "", err
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("empty reply")
	}
	return reply, nil
}
