package deferral

import (
	"time"

	"deferral-backend/internal/domain/document"
)

type Status string

const (
	StatusPendingApproval   Status = "pending_approval"
	StatusInReview          Status = "in_review"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusReturnedForRework Status = "returned_for_rework"
)

// Terminal statuses freeze the approval chain.
func (s Status) Terminal() bool { return s == StatusApproved || s == StatusRejected }

// Actionable reports whether approvers can still act.
func (s Status) Actionable() bool { return s == StatusPendingApproval || s == StatusInReview }

// OpenStatuses are the statuses listed as pending work.
var OpenStatuses = []Status{StatusPendingApproval, StatusInReview}

type StageStatus string

const (
	StagePending  StageStatus = "pending"
	StageApproved StageStatus = "approved"
)

type RefKind string

const (
	RefUser    RefKind = "user"
	RefContact RefKind = "contact"
)

// ApproverRef points at either a directory user or an inline contact that
// did not resolve to one. It is fixed when the slot is created.
type ApproverRef struct {
	Kind   RefKind `json:"kind"`
	UserID string  `json:"user_id,omitempty"`
	Name   string  `json:"name,omitempty"`
	Email  string  `json:"email,omitempty"`
}

func UserRef(userID string) ApproverRef { return ApproverRef{Kind: RefUser, UserID: userID} }

func ContactRef(name, email string) ApproverRef {
	return ApproverRef{Kind: RefContact, Name: name, Email: email}
}

// Is reports whether the ref names the given directory user. Inline contacts never match.
func (r ApproverRef) Is(userID string) bool {
	return r.Kind == RefUser && r.UserID != "" && r.UserID == userID
}

type ApproverSlot struct {
	Role       string      `json:"role"`
	Ref        ApproverRef `json:"ref"`
	Approved   bool        `json:"approved"`
	ApprovedAt *time.Time  `json:"approved_at,omitempty"`
}

type HistoryAction string

const (
	ActionSubmitted         HistoryAction = "submitted"
	ActionApproved          HistoryAction = "approved"
	ActionMoved             HistoryAction = "moved"
	ActionCompleted         HistoryAction = "completed"
	ActionRejected          HistoryAction = "rejected"
	ActionReturnedForRework HistoryAction = "returned_for_rework"
	ActionReminder          HistoryAction = "reminder"
	ActionApproversUpdated  HistoryAction = "approvers_updated"
	ActionApproverRemoved   HistoryAction = "approver_removed"
)

// HistoryEntry is immutable once appended.
type HistoryEntry struct {
	Action   HistoryAction `json:"action"`
	UserID   string        `json:"user_id"`
	UserName string        `json:"user_name"`
	Notes    string        `json:"notes"`
	Comment  string        `json:"comment,omitempty"`
	Date     time.Time     `json:"date"`
}

type Comment struct {
	ID        string    `json:"id"`
	AuthorID  string    `json:"author_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type Facility struct {
	Type       string  `json:"type"`
	Sanctioned float64 `json:"sanctioned"`
	Balance    float64 `json:"balance"`
	Headroom   float64 `json:"headroom"`
}

// CustomerSnapshot copies customer display fields at creation time. It is not
// refreshed afterwards and may go stale.
type CustomerSnapshot struct {
	CustomerNumber string `gorm:"column:number;size:32" json:"customer_number"`
	CustomerName   string `gorm:"column:name;size:200" json:"customer_name"`
	BusinessName   string `gorm:"column:business_name;size:200" json:"business_name"`
}

// Actor is the user performing an operation.
type Actor struct {
	ID   string
	Name string
}

// Table: deferrals. Lists are stored as JSON columns so one row holds the
// whole aggregate and a single conditional update commits it.
type Deferral struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	DeferralID     string `gorm:"column:deferral_id;size:32;not null;uniqueIndex" json:"id"`
	DeferralNumber string `gorm:"column:deferral_number;size:24;not null;uniqueIndex" json:"deferral_number"`

	CustomerID string           `gorm:"column:customer_id;size:32;index" json:"customer_id,omitempty"`
	Customer   CustomerSnapshot `gorm:"embedded;embeddedPrefix:customer_" json:"customer"`
	LoanType   string           `gorm:"column:loan_type;size:64" json:"loan_type"`
	DCLNumber  string           `gorm:"column:dcl_number;size:64;not null" json:"dcl_number"`

	Title               string     `gorm:"column:title;size:255" json:"title"`
	Description         string     `gorm:"column:description;type:text" json:"description"`
	LoanAmount          float64    `gorm:"column:loan_amount;type:decimal(18,2)" json:"loan_amount"`
	DaysSought          int        `gorm:"column:days_sought" json:"days_sought"`
	NextDocumentDueDate *time.Time `gorm:"column:next_document_due_date" json:"next_document_due_date,omitempty"`

	Facilities        []Facility          `gorm:"column:facilities;serializer:json;type:text" json:"facilities"`
	Documents         []document.Document `gorm:"column:documents;serializer:json;type:text" json:"documents"`
	SelectedDocuments []document.Selected `gorm:"column:selected_documents;serializer:json;type:text" json:"selected_documents"`

	Status               Status         `gorm:"column:status;size:32;not null;index" json:"status"`
	Approvers            []ApproverSlot `gorm:"column:approvers;serializer:json;type:text" json:"approvers"`
	CurrentApproverIndex int            `gorm:"column:current_approver_index;not null;default:0" json:"current_approver_index"`
	// Derived from Approvers[CurrentApproverIndex]; kept for the approver queue lookup.
	CurrentApproverID    string `gorm:"column:current_approver_id;size:32;index" json:"-"`
	AllApproversApproved bool   `gorm:"column:all_approvers_approved;not null;default:false" json:"all_approvers_approved"`

	CreatorID             string      `gorm:"column:creator_id;size:32" json:"creator_id,omitempty"`
	CreatorApprovalStatus StageStatus `gorm:"column:creator_approval_status;size:16" json:"creator_approval_status"`
	CreatorApprovedAt     *time.Time  `gorm:"column:creator_approved_at" json:"creator_approved_at,omitempty"`
	CheckerID             string      `gorm:"column:checker_id;size:32" json:"checker_id,omitempty"`
	CheckerApprovalStatus StageStatus `gorm:"column:checker_approval_status;size:16" json:"checker_approval_status"`
	CheckerApprovedAt     *time.Time  `gorm:"column:checker_approved_at" json:"checker_approved_at,omitempty"`

	ApprovedBy   string     `gorm:"column:approved_by;size:200" json:"approved_by,omitempty"`
	ApprovedByID string     `gorm:"column:approved_by_id;size:32" json:"approved_by_id,omitempty"`
	ApprovedAt   *time.Time `gorm:"column:approved_at" json:"approved_date,omitempty"`

	RejectedBy      string     `gorm:"column:rejected_by;size:200" json:"rejected_by,omitempty"`
	RejectedByID    string     `gorm:"column:rejected_by_id;size:32" json:"rejected_by_id,omitempty"`
	RejectedAt      *time.Time `gorm:"column:rejected_at" json:"rejected_date,omitempty"`
	RejectionReason string     `gorm:"column:rejection_reason;type:text" json:"rejection_reason,omitempty"`

	ReworkRequestedBy   string     `gorm:"column:rework_requested_by;size:200" json:"rework_requested_by,omitempty"`
	ReworkRequestedByID string     `gorm:"column:rework_requested_by_id;size:32" json:"rework_requested_by_id,omitempty"`
	ReworkRequestedAt   *time.Time `gorm:"column:rework_requested_at" json:"rework_requested_date,omitempty"`
	ReworkComment       string     `gorm:"column:rework_comment;type:text" json:"rework_comment,omitempty"`

	RequestorID string `gorm:"column:requestor_id;size:32;not null;index" json:"requestor_id"`

	History  []HistoryEntry `gorm:"column:history;serializer:json;type:text" json:"history"`
	Comments []Comment      `gorm:"column:comments;serializer:json;type:text" json:"comments"`

	Version   int64     `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Deferral) TableName() string { return "deferrals" }

// Actor rows let "actioned by me" be answered without scanning history JSON.
// Table: deferral_actors
type ActorRecord struct {
	ID         uint64        `gorm:"column:id;primaryKey;autoIncrement"`
	DeferralID uint64        `gorm:"column:deferral_id;not null;uniqueIndex:ux_deferral_actors"`
	UserID     string        `gorm:"column:user_id;size:32;not null;uniqueIndex:ux_deferral_actors;index"`
	Action     HistoryAction `gorm:"column:action;size:32;not null;uniqueIndex:ux_deferral_actors"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
}

func (ActorRecord) TableName() string { return "deferral_actors" }

// Filter selects deferrals for the list queries. Empty fields do not filter.
type Filter struct {
	Statuses          []Status
	CurrentApproverID string
	RequestorID       string
	// ActionedBy matches deferrals the user approved or rejected.
	ActionedBy string
	Limit      int
}
