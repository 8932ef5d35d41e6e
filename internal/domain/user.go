package domain

import "time"

// User is an identity-provider account. Customers share its id.
type User struct {
	ID             string
	Email          string
	Name           string
	Phone          string
	Hash           string
	EmailConfirmed bool
	CreatedAt      time.Time
}

type Customer struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	CreatedAt time.Time
}

// HasPhone reports whether the customer finished the profile step.
func (c Customer) HasPhone() bool { return c.Phone != "" }

// Session is the server side of the sid cookie. Recovery sessions may only
// be used to set a new password.
type Session struct {
	ID       string
	UserID   string
	Remember bool
	Recovery bool
}
