package models

import (
	"encoding/json"
	"time"
)

// Step identifies one stage of the fixed enrollment sequence. The string
// values are part of the persisted contract and must round-trip exactly.
type Step string

const (
	StepPersonalData   Step = "PERSONAL_DATA"
	StepDependentsData Step = "DEPENDENTS_DATA"
	StepPlanSelection  Step = "PLAN_SELECTION"
	StepDocuments      Step = "DOCUMENTS"
	StepPayment        Step = "PAYMENT"
	StepAnalysis       Step = "ANALYSIS"
	StepApproval       Step = "APPROVAL"
)

// StepOrder is the single source of truth for the enrollment sequence.
// Next-step computation and progress arithmetic both walk this slice.
var StepOrder = []Step{
	StepPersonalData,
	StepDependentsData,
	StepPlanSelection,
	StepDocuments,
	StepPayment,
	StepAnalysis,
	StepApproval,
}

// TotalSteps is the length of StepOrder.
const TotalSteps = 7

// StepIndex returns the position of a step in StepOrder, or -1 when unknown.
func StepIndex(step Step) int {
	for i, s := range StepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// IsValidStep reports whether the step belongs to the enrollment sequence.
func IsValidStep(step Step) bool {
	return StepIndex(step) >= 0
}

// NextStep returns the entry following step in StepOrder. The terminal step
// maps to itself.
func NextStep(step Step) Step {
	idx := StepIndex(step)
	if idx < 0 || idx == len(StepOrder)-1 {
		return step
	}
	return StepOrder[idx+1]
}

// EnrollmentStep is one row per (lead, step) pair. The (lead_id, step) pair is
// unique; rows are created lazily on first write.
type EnrollmentStep struct {
	ID             string          `db:"id" json:"id"`
	LeadID         string          `db:"lead_id" json:"lead_id"`
	Step           Step            `db:"step" json:"step"`
	Completed      bool            `db:"completed" json:"completed"`
	CompletionDate *time.Time      `db:"completion_date" json:"completion_date,omitempty"`
	Notes          string          `db:"notes" json:"notes"`
	StepData       json.RawMessage `db:"step_data" json:"step_data,omitempty"`
	SignatureData  []byte          `db:"signature_data" json:"signature_data,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// StepView is the per-step detail exposed by the progress endpoint. Steps the
// lead never touched are backfilled as not completed.
type StepView struct {
	Step           Step       `json:"step"`
	Completed      bool       `json:"completed"`
	CompletionDate *time.Time `json:"completion_date,omitempty"`
	Notes          string     `json:"notes,omitempty"`
}

// ProgressView summarises a lead's position in the funnel.
type ProgressView struct {
	LeadID             string     `json:"lead_id"`
	CurrentStep        Step       `json:"current_step"`
	LeadStatus         LeadStatus `json:"lead_status"`
	CompletedSteps     int        `json:"completed_steps"`
	TotalSteps         int        `json:"total_steps"`
	ProgressPercentage int        `json:"progress_percentage"`
	Steps              []StepView `json:"steps"`
}
