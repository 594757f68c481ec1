package deferral

import (
	"io"
	"time"

	"deferral-backend/internal/domain/deferral"
	"deferral-backend/internal/domain/document"
	"deferral-backend/internal/usecase/approval"
)

type CreateInput struct {
	CustomerID     string `json:"customer_id" validate:"omitempty,hex32"`
	CustomerNumber string `json:"customer_number"`
	CustomerName   string `json:"customer_name"`
	BusinessName   string `json:"business_name"`
	LoanType       string `json:"loan_type"`
	DCLNumber      string `json:"dcl_number" validate:"required,notblank"`

	Title               string     `json:"title"`
	Description         string     `json:"description"`
	LoanAmount          float64    `json:"loan_amount" validate:"gte=0,dec2"`
	DaysSought          int        `json:"days_sought" validate:"gte=0"`
	NextDocumentDueDate *time.Time `json:"next_document_due_date"`

	Facilities        []deferral.Facility      `json:"facilities"`
	Documents         []document.Raw           `json:"documents"`
	SelectedDocuments []document.RawSelected   `json:"selected_documents"`
	Approvers         []approval.ApproverInput `json:"approvers" validate:"dive"`

	// Optional presets; otherwise the first user to act on each stage is adopted.
	CreatorID string `json:"creator_id" validate:"omitempty,hex32"`
	CheckerID string `json:"checker_id" validate:"omitempty,hex32"`
}

// Upload is a file to store and attach to a deferral.
type Upload struct {
	Filename     string
	ContentType  string
	Size         int64
	Body         io.Reader
	IsDCL        bool
	IsAdditional bool
}

type NumberPreview struct {
	Number string `json:"number"`
}
