package reservation

import (
	"context"
	"fmt"

	"github.com/suPer8Hu/cookingpapa/internal/models"
)

type Reason string

const (
	ReasonNone          Reason = ""
	ReasonInvalid       Reason = "invalid_slot"
	ReasonOutsideHours  Reason = "outside_hours"
	ReasonPartyTooLarge Reason = "party_too_large"
	ReasonSlotFull      Reason = "slot_full"
)

// Decision is the validator's verdict. A rejection with Escalate set must be
// followed by a support request.
type Decision struct {
	Accepted bool
	Reason   Reason
	Message  string
	Escalate bool
}

func accept() Decision { return Decision{Accepted: true} }

func reject(reason Reason, msg string, escalate bool) Decision {
	return Decision{Reason: reason, Message: msg, Escalate: escalate}
}

// Validator applies the booking rules in order; the first failing rule wins.
type Validator struct {
	rules   Rules
	counter ConflictCounter
}

func NewValidator(rules Rules, counter ConflictCounter) *Validator {
	return &Validator{rules: rules, counter: counter}
}

func (v *Validator) Rules() Rules { return v.rules }

// Validate returns an error only when the conflict count cannot be read.
func (v *Validator) Validate(ctx context.Context, date, clock string, partySize int) (Decision, error) {
	if _, err := models.ParseSlot(date, clock); err != nil || partySize <= 0 {
		return reject(ReasonInvalid, msgInvalidSlot, false), nil
	}

	open, err := v.rules.InServiceHours(clock)
	if err != nil {
		return reject(ReasonInvalid, msgInvalidSlot, false), nil
	}
	if !open {
		return reject(ReasonOutsideHours, outsideHoursMessage(v.rules), false), nil
	}

	if partySize > v.rules.MaxPartySize {
		return reject(ReasonPartyTooLarge, partySizeMessage(partySize), true), nil
	}

	n, err := v.counter.CountConflicts(ctx, date, clock)
	if err != nil {
		return Decision{}, fmt.Errorf("count conflicts: %w", err)
	}
	if n >= v.rules.MaxConcurrent {
		return reject(ReasonSlotFull, msgSlotFull, true), nil
	}
	return accept(), nil
}
