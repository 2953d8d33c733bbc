package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/suPer8Hu/cookingpapa/internal/store"
)

type recordingProvider struct {
	reply    string
	err      error
	last     []Message
	usedJSON bool
}

func (p *recordingProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	// copy to avoid mutations
	p.last = append([]Message(nil), messages...)
	return p.reply, p.err
}

type jsonRecordingProvider struct{ recordingProvider }

func (p *jsonRecordingProvider) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	p.usedJSON = true
	return p.Chat(ctx, messages)
}

func TestExtractor_ParsesReplyAndSendsHistory(t *testing.T) {
	prov := &jsonRecordingProvider{recordingProvider{reply: "```json\n" + `{
		"has_complete_info": true,
		"needs_human": false,
		"extracted_info": {"reservation_date": "2025-06-01", "reservation_time": "12:00", "number_of_people": "4人", "special_requests": null},
		"missing_info": [],
		"follow_up_question": null,
		"previous_info": {"found": true, "items": ["reservation_date"]}
	}` + "\n```"}}
	e := NewExtractor(prov, nil)
	e.now = func() time.Time { return time.Date(2025, 5, 30, 10, 0, 0, 0, time.UTC) }

	history := []store.HistoryEntry{
		{Content: "我想訂位", IsUser: true},
		{Content: "請問幾多位？", IsUser: false},
	}
	ext, err := e.Extract(context.Background(), "訂 2025-06-01 12:00 4人", history)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !prov.usedJSON {
		t.Fatal("expected json mode")
	}
	if !ext.HasCompleteInfo || ext.ExtractedInfo.Date != "2025-06-01" || ext.ExtractedInfo.Time != "12:00" || ext.ExtractedInfo.PartySize != 4 {
		t.Fatalf("unexpected extraction %+v", ext)
	}
	if ext.ExtractedInfo.SpecialRequests != nil || ext.FollowUpQuestion != "" || !ext.PreviousInfo.Found {
		t.Fatalf("unexpected optional fields %+v", ext)
	}

	if len(prov.last) != 3 {
		t.Fatalf("expected system, history, user messages; got %d", len(prov.last))
	}
	if !strings.Contains(prov.last[0].Content, "2025-05-30") {
		t.Fatalf("prompt should carry today's date: %q", prov.last[0].Content)
	}
	if !strings.Contains(prov.last[1].Content, "用戶: 我想訂位") || !strings.Contains(prov.last[1].Content, "助手: 請問幾多位？") {
		t.Fatalf("unexpected history message %q", prov.last[1].Content)
	}
	if prov.last[2].Role != RoleUser || !strings.HasSuffix(prov.last[2].Content, "4人") {
		t.Fatalf("unexpected user message %+v", prov.last[2])
	}
}

func TestExtractor_Errors(t *testing.T) {
	e := NewExtractor(&recordingProvider{err: errors.New("timeout")}, nil)
	if _, err := e.Extract(context.Background(), "x", nil); err == nil {
		t.Fatal("expected provider error")
	}

	e = NewExtractor(&recordingProvider{reply: "sorry, I cannot help"}, nil)
	if _, err := e.Extract(context.Background(), "x", nil); err == nil {
		t.Fatal("expected error for non-json reply")
	}
}

func TestParseExtraction_Placeholders(t *testing.T) {
	ext, err := parseExtraction(`{"has_complete_info": false, "extracted_info": {"reservation_date": "YYYY-MM-DD", "reservation_time": "19:00", "number_of_people": 0}, "missing_info": ["reservation_date"], "follow_up_question": " 請問哪一天？ "}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ext.ExtractedInfo.Date != "" || ext.ExtractedInfo.Time != "19:00" {
		t.Fatalf("unexpected fields %+v", ext.ExtractedInfo)
	}
	if ext.FollowUpQuestion != "請問哪一天？" {
		t.Fatalf("unexpected follow-up %q", ext.FollowUpQuestion)
	}
}

func TestPartySize(t *testing.T) {
	cases := map[string]int{
		`4`:      4,
		`4.0`:    4,
		`"6"`:    6,
		`"6人"`:   6,
		`"十人"`:  0,
		`null`:   0,
		``:       0,
	}
	for in, want := range cases {
		if got := partySize([]byte(in)); got != want {
			t.Errorf("partySize(%s) = %d, want %d", in, got, want)
		}
	}
}
