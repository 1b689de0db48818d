package model

import "time"

// User represents an application user record as stored in the `users`
// table.  Users are provisioned by the authentication layer; this service
// only reads them to validate references and to list suggestion
// candidates.
//
// Fields:
//  ID          – uuid primary key (the JWT subject).
//  DisplayName – human readable name.
//  Email       – unique email address.
//  IsAdmin     – whether the user may use operator endpoints.
//  CreatedAt   – timestamp of creation.
type User struct {
	ID          string    `json:"id"`           // users.id
	DisplayName string    `json:"display_name"` // users.display_name
	Email       string    `json:"email"`        // users.email
	IsAdmin     bool      `json:"is_admin"`     // users.is_admin
	CreatedAt   time.Time `json:"created_at"`   // users.created_at
}
