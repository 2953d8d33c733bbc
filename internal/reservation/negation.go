package reservation

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/suPer8Hu/cookingpapa/internal/models"
	"github.com/suPer8Hu/cookingpapa/internal/store"
)

var negationTokens = map[string]struct{}{
	"無": {}, "无": {}, "没有": {}, "沒有": {}, "冇": {}, "冇呀": {}, "不用": {}, "不需要": {}, "唔使": {}, "唔需要": {},
	"none": {}, "no": {}, "nope": {}, "nothing": {}, "not needed": {}, "no thanks": {},
}

// isNegation reports whether msg is a short "nothing" answer.
func isNegation(msg string) bool {
	s := strings.ToLower(strings.TrimSpace(msg))
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})
	_, ok := negationTokens[s]
	return ok
}

// askedSpecialRequests reports whether the latest assistant entry asked about
// special requests. A booking confirmation also lists 特別要求 but is not a
// question, so it does not count.
func askedSpecialRequests(history []store.HistoryEntry) bool {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.IsUser {
			continue
		}
		if strings.Contains(h.Content, confirmationMarker) {
			return false
		}
		lc := strings.ToLower(h.Content)
		return strings.Contains(h.Content, "特別要求") ||
			strings.Contains(h.Content, "特别要求") ||
			strings.Contains(lc, "special request")
	}
	return false
}

// summaryFields re-reads 日期：/時間：/人數： lines from the newest assistant
// entry that carries any of them. A booking confirmation closes the dialogue:
// the search stops there and nothing before it is read. Unparsable values are
// left empty.
func summaryFields(history []store.HistoryEntry) ExtractedInfo {
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.IsUser {
			continue
		}
		if strings.Contains(h.Content, confirmationMarker) {
			break
		}
		info, found := parseSummary(h.Content)
		if found {
			return info
		}
	}
	return ExtractedInfo{}
}

func parseSummary(text string) (ExtractedInfo, bool) {
	var info ExtractedInfo
	found := false
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := splitLabel(line)
		if !ok {
			continue
		}
		switch key {
		case "日期":
			found = true
			if _, err := models.ParseSlot(val, "00:00"); err == nil {
				info.Date = val
			}
		case "時間", "时间":
			found = true
			if c, err := models.NormalizeClock(val); err == nil {
				info.Time = c
			}
		case "人數", "人数":
			found = true
			n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(val, "人")))
			if err == nil && n > 0 {
				info.PartySize = n
			}
		}
	}
	return info, found
}

func splitLabel(line string) (string, string, bool) {
	for _, sep := range []string{"：", ":"} {
		if i := strings.Index(line, sep); i >= 0 {
			key := strings.TrimSpace(line[:i])
			key = strings.TrimLeft(key, "-•* ")
			return key, strings.TrimSpace(line[i+len(sep):]), true
		}
	}
	return "", "", false
}
