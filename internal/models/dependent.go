package models

import "time"

// Dependent is a person covered under a lead's plan. Dependents are owned
// exclusively by one lead and are removed with it.
type Dependent struct {
	ID           string     `db:"id" json:"id"`
	LeadID       string     `db:"lead_id" json:"lead_id"`
	Name         string     `db:"name" json:"name"`
	TaxID        string     `db:"tax_id" json:"tax_id"`
	BirthDate    *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Relationship string     `db:"relationship" json:"relationship"`
	PlanType     PlanType   `db:"plan_type" json:"plan_type"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}
