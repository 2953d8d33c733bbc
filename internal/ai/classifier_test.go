package ai

import (
	"context"
	"errors"
	"testing"

	"github.com/suPer8Hu/cookingpapa/internal/models"
)

func TestClassifier(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
		want  string
		fails bool
	}{
		{"reservation", `{"category": "reservation", "confidence": 0.93, "reason": "訂位"}`, nil, models.CategoryReservation, false},
		{"upper case", `{"category": " Food_Info ", "confidence": 0.8}`, nil, models.CategoryFoodInfo, false},
		{"unknown label", `{"category": "weather", "confidence": 0.5}`, nil, models.CategoryOthers, false},
		{"garbage", `not json`, nil, models.CategoryOthers, true},
		{"provider down", ``, errors.New("dial tcp"), models.CategoryOthers, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cl := NewClassifier(&recordingProvider{reply: c.reply, err: c.err}, nil)
			got, err := cl.Classify(context.Background(), "msg")
			if (err != nil) != c.fails {
				t.Fatalf("err = %v, fails = %v", err, c.fails)
			}
			if got.Category != c.want {
				t.Fatalf("category = %q, want %q", got.Category, c.want)
			}
			if c.fails && got.Confidence != 0 {
				t.Fatalf("fallback confidence must be 0, got %v", got.Confidence)
			}
		})
	}
}
