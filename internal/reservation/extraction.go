package reservation

import (
	"context"
	"strings"

	"github.com/suPer8Hu/cookingpapa/internal/store"
)

// Field names used in MissingInfo and PreviousInfo.Items.
const (
	FieldDate            = "reservation_date"
	FieldTime            = "reservation_time"
	FieldPartySize       = "number_of_people"
	FieldSpecialRequests = "special_requests"
)

type ExtractedInfo struct {
	Date            string  `json:"reservation_date"`
	Time            string  `json:"reservation_time"`
	PartySize       int     `json:"number_of_people"`
	SpecialRequests *string `json:"special_requests"`
}

type PreviousInfo struct {
	Found bool     `json:"found"`
	Items []string `json:"items"`
}

// Extraction is the structured reading of a reservation message.
type Extraction struct {
	HasCompleteInfo  bool          `json:"has_complete_info"`
	NeedsHuman       bool          `json:"needs_human"`
	ExtractedInfo    ExtractedInfo `json:"extracted_info"`
	MissingInfo      []string      `json:"missing_info"`
	FollowUpQuestion string        `json:"follow_up_question"`
	PreviousInfo     PreviousInfo  `json:"previous_info"`
}

// Extractor turns free text plus recent history into reservation fields.
type Extractor interface {
	Extract(ctx context.Context, message string, history []store.HistoryEntry) (*Extraction, error)
}

// fallbackExtraction is what the flow proceeds with when extraction fails.
func fallbackExtraction() *Extraction {
	return &Extraction{
		HasCompleteInfo:  false,
		NeedsHuman:       true,
		FollowUpQuestion: msgExtractionFailed,
		PreviousInfo:     PreviousInfo{Items: []string{}},
	}
}

func (e ExtractedInfo) missing() []string {
	var out []string
	if strings.TrimSpace(e.Date) == "" {
		out = append(out, FieldDate)
	}
	if strings.TrimSpace(e.Time) == "" {
		out = append(out, FieldTime)
	}
	if e.PartySize <= 0 {
		out = append(out, FieldPartySize)
	}
	return out
}
