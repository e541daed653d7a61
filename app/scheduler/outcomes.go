package scheduler

import (
	"encoding/json"
	"time"

	"github.com/matchops/fixturecast/models"
)

// RunSummary aggregates one run of a scheduler unit for logs and the admin API
type RunSummary struct {
	RunName      string    `json:"run_name"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	LockAcquired bool      `json:"lock_acquired"`
	Created      int       `json:"created"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Cancelled    int       `json:"cancelled"`
	Errors       int       `json:"errors"`
	Alerts       int       `json:"alerts"`
}

func (s *RunSummary) tally(outcome string) {
	switch outcome {
	case models.OutcomeCreated:
		s.Created++
	case models.OutcomeUpdated:
		s.Updated++
	case models.OutcomeSkipped:
		s.Skipped++
	case models.OutcomeCancelled:
		s.Cancelled++
	case models.OutcomeError:
		s.Errors++
	default:
		s.Alerts++
	}
}

// newRunOutcome builds one structured outcome record. Detail marshaling is
// best-effort; a record is never dropped over an unserializable detail.
func newRunOutcome(runName string, fixtureID *uint, outcome, reason string, detail map[string]any) *models.RunOutcome {
	o := &models.RunOutcome{
		RunName:   runName,
		FixtureID: fixtureID,
		Outcome:   outcome,
		Reason:    reason,
	}
	if len(detail) > 0 {
		if payload, err := json.Marshal(detail); err == nil {
			o.Detail = payload
		}
	}
	return o
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
