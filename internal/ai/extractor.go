package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/reservation"
	"github.com/suPer8Hu/cookingpapa/internal/store"
	"go.uber.org/zap"
)

const extractionPrompt = `你是一個專門處理餐廳訂位的AI助手。
請從用戶訊息和對話歷史中提取訂位相關信息，並只返回一個 JSON 物件。

今天是 %s（%s）。相對日期（如「明天」、「下星期六」）請換算成實際日期。

特別注意：
1. 當用戶回答「無」、「没有」、「不用」等否定詞時，如果是回應特別要求的提問，應理解為「無特別要求」。
2. 要考慮對話上下文，特別是之前的問題。
3. 日期格式為 YYYY-MM-DD，時間格式為 24 小時制 HH:MM，人數為整數。
4. 日期、時間、人數齊全時 has_complete_info 為 true；否則在 follow_up_question 中用廣東話追問缺少的資料。

返回格式：
{
  "has_complete_info": false,
  "needs_human": false,
  "extracted_info": {
    "reservation_date": "YYYY-MM-DD",
    "reservation_time": "HH:MM",
    "number_of_people": 0,
    "special_requests": null
  },
  "missing_info": ["缺少的信息項目"],
  "follow_up_question": "追問問題",
  "previous_info": {"found": false, "items": []}
}`

// Extractor reads reservation fields out of a message with a chat model.
type Extractor struct {
	provider Provider
	log      *zap.Logger
	now      func() time.Time
}

func NewExtractor(p Provider, log *zap.Logger) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{provider: p, log: log, now: time.Now}
}

func (e *Extractor) Extract(ctx context.Context, message string, history []store.HistoryEntry) (*reservation.Extraction, error) {
	today := e.now()
	msgs := []Message{{
		Role:    RoleSystem,
		Content: fmt.Sprintf(extractionPrompt, today.Format("2006-01-02"), today.Weekday()),
	}}
	if len(history) > 0 {
		var b strings.Builder
		b.WriteString("對話歷史：\n")
		for _, h := range history {
			role := "助手"
			if h.IsUser {
				role = "用戶"
			}
			fmt.Fprintf(&b, "%s: %s\n", role, h.Content)
		}
		msgs = append(msgs, Message{Role: RoleSystem, Content: b.String()})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: "當前用戶訊息: " + message})

	reply, err := chatJSON(ctx, e.provider, msgs)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	ext, err := parseExtraction(reply)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	e.log.Debug("extraction",
		zap.Bool("complete", ext.HasCompleteInfo),
		zap.Strings("missing", ext.MissingInfo),
		zap.Bool("previous_found", ext.PreviousInfo.Found),
	)
	return ext, nil
}

// wireExtraction accepts the loose shapes models produce, such as a party
// size sent as "4" or "4人".
type wireExtraction struct {
	HasCompleteInfo bool `json:"has_complete_info"`
	NeedsHuman      bool `json:"needs_human"`
	ExtractedInfo   struct {
		Date            string          `json:"reservation_date"`
		Time            string          `json:"reservation_time"`
		PartySize       json.RawMessage `json:"number_of_people"`
		SpecialRequests *string         `json:"special_requests"`
	} `json:"extracted_info"`
	MissingInfo      []string                 `json:"missing_info"`
	FollowUpQuestion *string                  `json:"follow_up_question"`
	PreviousInfo     reservation.PreviousInfo `json:"previous_info"`
}

func parseExtraction(reply string) (*reservation.Extraction, error) {
	raw, err := jsonObject(reply)
	if err != nil {
		return nil, err
	}
	var w wireExtraction
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	out := &reservation.Extraction{
		HasCompleteInfo: w.HasCompleteInfo,
		NeedsHuman:      w.NeedsHuman,
		ExtractedInfo: reservation.ExtractedInfo{
			Date:            placeholderToEmpty(w.ExtractedInfo.Date),
			Time:            placeholderToEmpty(w.ExtractedInfo.Time),
			PartySize:       partySize(w.ExtractedInfo.PartySize),
			SpecialRequests: w.ExtractedInfo.SpecialRequests,
		},
		MissingInfo:  w.MissingInfo,
		PreviousInfo: w.PreviousInfo,
	}
	if w.FollowUpQuestion != nil {
		out.FollowUpQuestion = strings.TrimSpace(*w.FollowUpQuestion)
	}
	return out, nil
}

func placeholderToEmpty(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToUpper(s) {
	case "YYYY-MM-DD", "HH:MM", "NULL", "NONE":
		return ""
	}
	return s
}

func partySize(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return int(f)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(strings.TrimRight(strings.TrimSpace(s), "人位個个"))
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return 0
}
