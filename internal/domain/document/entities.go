package document

import "time"

// Document is one attachment record on a deferral.
type Document struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url"`
	Type         string    `json:"type"`
	Size         *int64    `json:"size"`
	UploadDate   time.Time `json:"upload_date"`
	IsDCL        bool      `json:"is_dcl"`
	IsAdditional bool      `json:"is_additional"`
	UploadedBy   string    `json:"uploaded_by"`
}

// Selected is a catalog selection (e.g. "Customer Identification Documents"
// with items like "KRA"), distinct from an uploaded file.
type Selected struct {
	Name  string   `json:"name"`
	Type  string   `json:"type"`
	Items []string `json:"items"`
}

// Raw is an incoming document descriptor as sent by a client.
type Raw struct {
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Type         string     `json:"type"`
	Size         *int64     `json:"size"`
	UploadDate   *time.Time `json:"upload_date"`
	IsDCL        bool       `json:"is_dcl"`
	IsAdditional bool       `json:"is_additional"`
}

// RawSelected accepts both the "items" and the legacy "selected" spelling.
type RawSelected struct {
	Name     string   `json:"name"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	Items    []string `json:"items"`
	Selected []string `json:"selected"`
}
