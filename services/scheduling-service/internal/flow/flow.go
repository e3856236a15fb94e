package flow

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

type Step string

const (
	StepGreet       Step = "greet"
	StepCollectInfo Step = "collect_patient_info"
	StepLookup      Step = "lookup_result"
	StepChooseSlot  Step = "choose_slot"
	StepInsurance   Step = "insurance"
	StepConfirm     Step = "confirm"
	StepDone        Step = "done"
)

var (
	ErrTerminal      = errors.New("conversation already done")
	ErrUnknownStep   = errors.New("unknown step")
	ErrMissingFields = errors.New("required fields missing")
	ErrNotFound      = errors.New("session not found")
)

// transition is the one outgoing edge of a step and the values that must be collected
// before it can be taken.
type transition struct {
	next     Step
	requires []string
}

var transitions = map[Step]transition{
	StepGreet:       {next: StepCollectInfo},
	StepCollectInfo: {next: StepLookup, requires: []string{"name", "dob", "doctor", "location"}},
	StepLookup:      {next: StepChooseSlot, requires: []string{"patient_id"}},
	StepChooseSlot:  {next: StepInsurance, requires: []string{"appointment_id"}},
	StepInsurance:   {next: StepConfirm, requires: []string{"insurance_carrier", "insurance_member_id"}},
	StepConfirm:     {next: StepDone},
}

// Next returns the step after s.
func Next(s Step) (Step, error) {
	if s == StepDone {
		return s, ErrTerminal
	}
	t, ok := transitions[s]
	if !ok {
		return s, fmt.Errorf("%w: %q", ErrUnknownStep, s)
	}
	return t.next, nil
}

type Session struct {
	ID        string            `json:"session_id"`
	Step      Step              `json:"step"`
	Collected map[string]string `json:"collected"`
	Errors    []string          `json:"errors,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

func NewSession(id string, now time.Time) Session {
	return Session{ID: id, Step: StepGreet, Collected: map[string]string{}, UpdatedAt: now}
}

// Advance merges input into the collected values and moves one step forward. A refused
// advance keeps the step and records the reason in Errors.
func (s Session) Advance(input map[string]string, now time.Time) (Session, error) {
	out := s
	out.Collected = maps.Clone(s.Collected)
	if out.Collected == nil {
		out.Collected = map[string]string{}
	}
	for k, v := range input {
		if v != "" {
			out.Collected[k] = v
		}
	}
	out.UpdatedAt = now

	next, err := Next(s.Step)
	if err != nil {
		return s, err
	}
	var missing []string
	for _, key := range transitions[s.Step].requires {
		if out.Collected[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		err := fmt.Errorf("%w: %v", ErrMissingFields, missing)
		out.Errors = append(append([]string(nil), s.Errors...), err.Error())
		return out, err
	}
	out.Step = next
	out.Errors = nil
	return out, nil
}
