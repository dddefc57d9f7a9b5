package models

import "time"

// LeadStatus is the traffic-light summary of a lead's enrollment progress.
type LeadStatus string

const (
	StatusRed    LeadStatus = "RED"
	StatusYellow LeadStatus = "YELLOW"
	StatusGreen  LeadStatus = "GREEN"
)

// PlanType identifies the contracted health plan tier.
type PlanType string

const (
	PlanBasic    PlanType = "BASIC"
	PlanStandard PlanType = "STANDARD"
	PlanPremium  PlanType = "PREMIUM"
)

// Lead represents a prospective member progressing through the enrollment funnel.
type Lead struct {
	ID               string     `db:"id" json:"id"`
	Name             string     `db:"name" json:"name"`
	Email            string     `db:"email" json:"email"`
	Phone            string     `db:"phone" json:"phone"`
	TaxID            string     `db:"tax_id" json:"tax_id"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	AddressStreet    string     `db:"address_street" json:"address_street"`
	AddressNumber    string     `db:"address_number" json:"address_number"`
	AddressCity      string     `db:"address_city" json:"address_city"`
	AddressState     string     `db:"address_state" json:"address_state"`
	AddressZip       string     `db:"address_zip" json:"address_zip"`
	Organization     string     `db:"organization" json:"organization"`
	Position         string     `db:"position" json:"position"`
	EmployeeID       string     `db:"employee_id" json:"employee_id"`
	PlanType         PlanType   `db:"plan_type" json:"plan_type"`
	HasDental        bool       `db:"has_dental" json:"has_dental"`
	LeadStatus       LeadStatus `db:"lead_status" json:"lead_status"`
	CurrentStep      Step       `db:"current_step" json:"current_step"`
	LastActivityDate *time.Time `db:"last_activity_date" json:"last_activity_date,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// LeadFilter captures filtering criteria for listing leads.
type LeadFilter struct {
	Status      *LeadStatus
	CurrentStep *Step
	Search      string
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// StatusChange records one correction applied by the bulk sweep.
type StatusChange struct {
	LeadID         string     `json:"lead_id"`
	Name           string     `json:"name"`
	PreviousStatus LeadStatus `json:"previous_status"`
	NewStatus      LeadStatus `json:"new_status"`
	CurrentStep    Step       `json:"current_step"`
}

// BulkStatusResult aggregates the outcome of a bulk status sweep.
type BulkStatusResult struct {
	TotalLeads   int            `json:"total_leads"`
	UpdatedLeads int            `json:"updated_leads"`
	Changes      []StatusChange `json:"changes"`
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
