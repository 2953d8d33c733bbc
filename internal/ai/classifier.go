package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"go.uber.org/zap"
)

const classificationPrompt = `你是一個專門分類餐廳客服對話的AI。
請將用戶訊息分類為以下類別之一：
- restaurant_info: 餐廳資料詢問（如：營業時間、地址、環境等）
- food_info: 食物資料詢問（如：菜單、食材、價格等）
- reservation: 訂位相關（如：訂位、更改訂位、取消訂位、查詢訂位等）
- service: 其他服務（如：外賣、包場、特別要求等）
- others: 其他查詢

請只返回一個 JSON 物件，包含：
- category: 分類名稱
- confidence: 信心指數（0-1）
- reason: 分類原因`

type Classification struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// FallbackClassification is used whenever classification fails.
func FallbackClassification() Classification {
	return Classification{Category: models.CategoryOthers, Confidence: 0, Reason: "分類過程出錯"}
}

type Classifier struct {
	provider Provider
	log      *zap.Logger
}

func NewClassifier(p Provider, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{provider: p, log: log}
}

// Classify labels message with one of the fixed categories. Unknown labels
// map to others.
func (c *Classifier) Classify(ctx context.Context, message string) (Classification, error) {
	reply, err := chatJSON(ctx, c.provider, []Message{
		{Role: RoleSystem, Content: classificationPrompt},
		{Role: RoleUser, Content: message},
	})
	if err != nil {
		return FallbackClassification(), fmt.Errorf("classify: %w", err)
	}
	raw, err := jsonObject(reply)
	if err != nil {
		return FallbackClassification(), fmt.Errorf("classify: %w", err)
	}
	var out Classification
	if err := json.Unmarshal(raw, &out); err != nil {
		return FallbackClassification(), fmt.Errorf("classify: %w", err)
	}

	out.Category = strings.ToLower(strings.TrimSpace(out.Category))
	if !models.IsCategory(out.Category) {
		c.log.Debug("unknown category from model", zap.String("category", out.Category))
		out.Category = models.CategoryOthers
	}
	if out.Confidence < 0 {
		out.Confidence = 0
	}
	if out.Confidence > 1 {
		out.Confidence = 1
	}
	return out, nil
}
