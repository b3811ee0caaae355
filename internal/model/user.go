package model

import "time"

type User struct {
	ID               int64     `json:"id"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"-"`
	FullName         string    `json:"full_name"`
	Role             Role      `json:"role"`
	HasActiveProject bool      `json:"has_active_project"` // constructors only
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
