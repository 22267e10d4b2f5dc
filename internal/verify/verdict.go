package verify

import (
	"fmt"

	"github.com/kalambet/sverka/internal/llmjson"
)

// Status is the verification outcome for one criterion.
type Status string

const (
	StatusConfirmed            Status = "confirmed"
	StatusNotFound             Status = "not_found"
	StatusPartial              Status = "partial"
	StatusIndirect             Status = "indirect"
	StatusRequiresConfirmation Status = "requires_confirmation"
)

// Statuses lists every valid Status in schema order.
var Statuses = []Status{StatusConfirmed, StatusNotFound, StatusPartial, StatusIndirect, StatusRequiresConfirmation}

// Valid reports whether s is one of the enumerated statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Source is an evidence chunk attached to a verdict.
type Source struct {
	SourceID string `json:"source_id"`
	Page     int    `json:"page,omitempty"`
	Slide    int    `json:"slide,omitempty"`
	Snippet  string `json:"snippet"`
}

// Verdict is the judgment for one criterion.
type Verdict struct {
	Status  Status   `json:"status"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

const (
	noEvidenceAnswer = "No relevant documents found."
	missingAnswer    = "The model response did not include an answer."
	maxRawInAnswer   = 500
)

// decodeVerdict parses a model response into status and answer. Missing
// keys take defaults and an unknown status becomes requires_confirmation;
// invalid JSON or non-string fields are errors.
func decodeVerdict(resp string) (Verdict, error) {
	fields, err := llmjson.Fields(resp)
	if err != nil {
		return Verdict{}, err
	}
	status, ok, err := llmjson.String(fields, "status")
	if err != nil {
		return Verdict{}, err
	}
	if !ok {
		status = string(StatusRequiresConfirmation)
	}
	answer, ok, err := llmjson.String(fields, "answer")
	if err != nil {
		return Verdict{}, err
	}
	if !ok {
		answer = missingAnswer
	}

	v := Verdict{Status: Status(status), Answer: answer}
	if !v.Status.Valid() {
		v.Status = StatusRequiresConfirmation
	}
	return v, nil
}

func noEvidenceVerdict() Verdict {
	return Verdict{Status: StatusNotFound, Answer: noEvidenceAnswer, Sources: []Source{}}
}

// FailedVerdict is the requires_confirmation verdict for a criterion whose
// verification could not complete.
func FailedVerdict(err error) Verdict {
	return Verdict{
		Status:  StatusRequiresConfirmation,
		Answer:  fmt.Sprintf("Language model request failed: %v", err),
		Sources: []Source{},
	}
}

func malformedVerdict(raw string, err error) Verdict {
	if r := []rune(raw); len(r) > maxRawInAnswer {
		raw = string(r[:maxRawInAnswer]) + "..."
	}
	return Verdict{
		Status:  StatusRequiresConfirmation,
		Answer:  fmt.Sprintf("The model returned an unusable response (%v): %s", err, raw),
		Sources: []Source{},
	}
}
