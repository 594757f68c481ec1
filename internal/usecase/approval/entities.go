package approval

// ApproverInput names one approver slot. A UserID must resolve in the
// directory; otherwise Email is looked up and falls back to an inline contact.
type ApproverInput struct {
	Role   string `json:"role"    validate:"max=100"`
	UserID string `json:"user_id" validate:"omitempty,hex32"`
	Name   string `json:"name"    validate:"max=200"`
	Email  string `json:"email"   validate:"omitempty,email"`
}
