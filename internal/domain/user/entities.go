package user

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("user not found")

const (
	RoleCustomer = "customer"
	RoleRM       = "rm"
	RoleApprover = "approver"
	RoleCO       = "co"
	RoleAdmin    = "admin"
)

// User is a directory record. Deferrals reference users by UserID.
type User struct {
	ID             uint64    `gorm:"primaryKey;column:id" json:"-"`
	UserID         string    `gorm:"column:user_id;size:32;not null;uniqueIndex" json:"id"`
	Name           string    `gorm:"column:name;size:200" json:"name"`
	Email          string    `gorm:"column:email;size:320;uniqueIndex" json:"email"`
	Role           string    `gorm:"column:role;size:32;index" json:"role"`
	Position       string    `gorm:"column:position;size:100" json:"position,omitempty"`
	CustomerNumber string    `gorm:"column:customer_number;size:32" json:"customer_number,omitempty"`
	BusinessName   string    `gorm:"column:business_name;size:200" json:"business_name,omitempty"`
	Active         bool      `gorm:"column:active;default:true" json:"active"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string { return "users" }

// Summary is the display-friendly projection embedded in deferral views.
type Summary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.UserID, Name: u.Name, Email: u.Email, Role: u.Role}
}
