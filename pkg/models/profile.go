package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

const UnknownUserName = "Unknown User"

// Profile is the public identity of a user. Rides, requests and messages
// reference it for display only.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email,omitempty"`
	FullName    string    `json:"full_name"`
	StudentID   string    `json:"student_id,omitempty"`
	Department  string    `json:"department,omitempty"`
	Gender      string    `json:"gender,omitempty"`
	Role        Role      `json:"role"`
	PhoneNumber string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p Profile) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Public is the view shown to other users: no email, student id or phone.
func (p Profile) Public() *Profile {
	p.Email = ""
	p.StudentID = ""
	p.PhoneNumber = ""
	return &p
}

// UnknownProfile is substituted when a profile lookup fails.
func UnknownProfile(id uuid.UUID) *Profile {
	return &Profile{ID: id, FullName: UnknownUserName, Role: RoleStudent}
}

type UpdateProfileRequest struct {
	FullName    *string `json:"full_name" validate:"omitempty,min=1,max=120"`
	StudentID   *string `json:"student_id" validate:"omitempty,min=1,max=32"`
	Department  *string `json:"department" validate:"omitempty,max=80"`
	Gender      *string `json:"gender" validate:"omitempty,oneof=male female other"`
	PhoneNumber *string `json:"phone_number" validate:"omitempty,phone"`
}
