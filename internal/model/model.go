// Package model defines domain entities shared by the stores, services and the shell.
package model

import (
	"bytes"
	"encoding/json"
	"time"
)

// RoleAdmin is the only role with catalog and user management rights.
const RoleAdmin = "admin"

// Session is a read-only snapshot of the authentication state.
type Session struct {
	IsLoggedIn  bool
	AccessToken string // empty when logged out
	UserID      *int   // nil when unknown
	Role        string // empty when unknown
}

// Claims are the decoded payload fields of an access token. Nil means "not present".
type Claims struct {
	ExpiresAt *time.Time
	UserID    *int
	Role      *string
}

// Timestamp is a backend time value. Empty strings and null decode to the zero time.
type Timestamp struct{ time.Time }

// UnmarshalJSON accepts RFC 3339 strings, "" and null.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		t.Time = time.Time{}
		return nil
	}
	return json.Unmarshal(b, &t.Time)
}

// MarshalJSON writes the zero time as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time)
}

// Book is a catalog entry as the backend serializes it.
type Book struct {
	ID                   int       `json:"id"`
	Author               string    `json:"author"`
	Name                 string    `json:"name"`
	Price                float64   `json:"price"`
	Genre                string    `json:"genre"`
	Description          string    `json:"description"`
	DescriptionLong      string    `json:"descriptionLong"`
	Quantity             int       `json:"quantity"` // stock
	IsBorrowed           bool      `json:"isBorrowed"`
	BorrowPrice          float64   `json:"borrowPrice"`
	DueAt                Timestamp `json:"dueAt"`
	ReservationExpiresAt Timestamp `json:"reservationExpiresAt"`
}

// CartLine is one entry of the local cart; the book id is its identity.
type CartLine struct {
	Book     Book
	Quantity int // always >= 1
}

// Subtotal is price times quantity.
func (l CartLine) Subtotal() float64 { return l.Book.Price * float64(l.Quantity) }

// Expired reports whether the server-side reservation for this line has elapsed.
func (l CartLine) Expired(now time.Time) bool {
	return !l.Book.ReservationExpiresAt.IsZero() && !now.Before(l.Book.ReservationExpiresAt.Time)
}

// Purchase is a single entry of a batch purchase request.
type Purchase struct {
	BookID   int `json:"bookId"`
	Quantity int `json:"quantity"`
}

// User is an account as returned by /user/me and /users.
type User struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	Lastname string    `json:"lastname"`
	Username string    `json:"username"`
	Created  Timestamp `json:"created"`
	Email    string    `json:"email"`
	Balance  float64   `json:"balance"`
	Role     string    `json:"role"`
}

// OrderedBook is one entry of the purchase history.
type OrderedBook struct {
	Book
	OrderedQuantity int       `json:"orderedQuantity"`
	OrderedAt       Timestamp `json:"orderedAt"`
}
