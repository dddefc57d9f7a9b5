package models

import (
	"encoding/json"
	"time"
)

// NotificationChannel identifies a delivery transport.
type NotificationChannel string

const (
	ChannelEmail    NotificationChannel = "EMAIL"
	ChannelWhatsApp NotificationChannel = "WHATSAPP"
)

// NotificationStatus tracks the lifecycle of one delivery attempt.
// PENDING→SENT, PENDING→ERROR, ERROR→RETRYING→{SENT|ERROR}; SENT never
// regresses.
type NotificationStatus string

const (
	NotificationPending  NotificationStatus = "PENDING"
	NotificationSent     NotificationStatus = "SENT"
	NotificationError    NotificationStatus = "ERROR"
	NotificationRetrying NotificationStatus = "RETRYING"
)

// NotificationLog is an append-only record of one notification attempt. The
// outbound payload is stored in full so failed attempts can be replayed.
type NotificationLog struct {
	ID        string              `db:"id" json:"id"`
	LeadID    string              `db:"lead_id" json:"lead_id"`
	Channel   NotificationChannel `db:"channel" json:"channel"`
	Status    NotificationStatus  `db:"status" json:"status"`
	Message   string              `db:"message" json:"message"`
	Payload   json.RawMessage     `db:"payload" json:"payload,omitempty"`
	Response  json.RawMessage     `db:"response" json:"response,omitempty"`
	CreatedAt time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt time.Time           `db:"updated_at" json:"updated_at"`
}

// NotificationPayload is the channel-agnostic content built once per fan-out
// and stored with every attempt.
type NotificationPayload struct {
	LeadID          string               `json:"lead_id"`
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	Phone           string               `json:"phone"`
	PlanDescription string               `json:"plan_description"`
	MonthlyPrice    float64              `json:"monthly_price"`
	Dependents      []DependentSummary   `json:"dependents"`
	Date            string               `json:"date"`
	DocumentURL     string               `json:"document_url,omitempty"`
	Attachment      []byte               `json:"attachment,omitempty"`
	AttachmentName  string               `json:"attachment_name,omitempty"`
}

// DependentSummary is the slim dependent view embedded in notifications.
type DependentSummary struct {
	Name         string `json:"name"`
	Relationship string `json:"relationship"`
}
