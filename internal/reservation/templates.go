package reservation

import (
	"fmt"
	"strings"

	"github.com/suPer8Hu/cookingpapa/internal/models"
)

// User-facing replies. Every message the reservation flow sends is built here.
const (
	confirmationMarker = "已收到您的訂位請求"

	msgSlotFull = "非常抱歉，您選擇的時段訂位較多。" +
		"為了確保為您提供最好的服務，" +
		"我們的客服人員會盡快與您聯繫確認可行的安排。"
	msgInvalidSlot       = "抱歉，我未能確認您提供的日期、時間或人數，請以「2025-06-01 19:00 4人」的格式重新提供。"
	msgExtractionFailed  = "我處理緊你嘅訂位請求，請稍後，我們將儘快有專人聯絡你。"
	msgGenericError      = "抱歉，處理訂位時出現錯誤，請稍後再試。"
	msgNoReservations    = "您目前沒有任何訂位記錄。"
	msgMissingFieldsBase = "請問"
)

func outsideHoursMessage(r Rules) string {
	var b strings.Builder
	b.WriteString("非常抱歉，您選擇的時間不在我們的營業時間內。\n")
	b.WriteString("我們的營業時間是：\n")
	for _, w := range r.Windows {
		fmt.Fprintf(&b, "%s：%s-%s\n", w.Name, w.Open, w.Close)
	}
	b.WriteString("請選擇其他時間，或需要我為您安排其他時段嗎？")
	return b.String()
}

func partySizeMessage(n int) string {
	return fmt.Sprintf("非常抱歉，%d人的訂位需要特別安排。"+
		"為了更好地服務您，我們的客服人員會盡快與您聯繫確認細節。", n)
}

func confirmationMessage(r *models.Reservation) string {
	return fmt.Sprintf("好的，%s：\n日期：%s\n時間：%s\n人數：%d人\n特別要求：%s\n\n我們會盡快確認訂位，請稍候。",
		confirmationMarker, r.Date, r.Time, r.PartySize, specialOrNone(r.SpecialRequests))
}

// followUpFor is used when the extractor leaves the follow-up question empty.
func followUpFor(missing []string) string {
	labels := map[string]string{
		"reservation_date": "日期",
		"reservation_time": "時間",
		"number_of_people": "人數",
	}
	var parts []string
	for _, m := range missing {
		if l, ok := labels[m]; ok {
			parts = append(parts, l)
		}
	}
	if len(parts) == 0 {
		parts = []string{"日期", "時間", "人數"}
	}
	return msgMissingFieldsBase + "您想訂位的" + strings.Join(parts, "、") + "是？"
}

var statusLabels = map[models.ReservationStatus]string{
	models.ReservationPending:   "待確認",
	models.ReservationConfirmed: "已確認",
	models.ReservationCancelled: "已取消",
}

func statusSummary(list []models.Reservation) string {
	if len(list) == 0 {
		return msgNoReservations
	}
	var b strings.Builder
	b.WriteString("您的訂位記錄：\n\n")
	for _, r := range list {
		label, ok := statusLabels[r.Status]
		if !ok {
			label = string(r.Status)
		}
		fmt.Fprintf(&b, "日期：%s\n時間：%s\n人數：%d人\n狀態：%s\n特別要求：%s\n訂位時間：%s\n%s\n",
			r.Date, r.Time, r.PartySize, label, specialOrNone(r.SpecialRequests),
			r.CreatedAt.Format("2006-01-02 15:04"), strings.Repeat("=", 20))
	}
	return b.String()
}

func specialOrNone(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return "無"
	}
	return strings.TrimSpace(*s)
}
