// Package notify renders and delivers workflow notifications out of band.
package notify

import "time"

type Kind string

const (
	KindSubmitted     Kind = "submitted"
	KindMoved         Kind = "moved"
	KindFinalApproved Kind = "final_approved"
	KindRejected      Kind = "rejected"
	KindReturned      Kind = "returned_for_rework"
	KindReminder      Kind = "reminder"
)

// Recipient is resolved through the user directory when Email is empty.
type Recipient struct {
	UserID string
	Email  string
	Name   string
}

// Deferral carries the fields the templates show.
type Deferral struct {
	ID           string
	Number       string
	CustomerName string
	DCLNumber    string
	DaysSought   int
	Status       string
	ApprovedAt   *time.Time
}

// Notice is one notification to deliver.
type Notice struct {
	Kind     Kind
	To       Recipient
	Deferral Deferral
	Reason   string
	// InApp also records an in-app notification for To.UserID.
	InApp bool
}
