// Package models holds the wire-level data model shared by all packages.
package models

// User represents an authenticated account, either a customer or a provider.
type User struct {
	ID    string `json:"_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"` // "user" or "provider"
}

// IsProvider reports whether the account can manage services.
func (u *User) IsProvider() bool {
	return u.Role == "provider"
}

// Credentials is the access/refresh token pair issued on login, registration
// or refresh. The refresh token must never be sent to any endpoint except
// the refresh endpoint.
type Credentials struct {
	AccessToken  string
	RefreshToken string
}

// Empty reports whether no tokens are held.
func (c Credentials) Empty() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Provider is a marketplace provider as returned by the listing and detail
// endpoints.
type Provider struct {
	ID       string    `json:"_id"`
	Name     string    `json:"name"`
	Service  string    `json:"service"`
	Location string    `json:"location"`
	Photo    string    `json:"photo,omitempty"`
	Rating   float64   `json:"rating"`
	Reviews  []Review  `json:"reviews,omitempty"`
	Services []Service `json:"services,omitempty"`
}

// Service is a bookable offering owned by a provider. Read-only from the
// booking side; providers edit it through the service endpoints.
type Service struct {
	ID           string         `json:"_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Price        int64          `json:"price"`
	Duration     string         `json:"duration"`
	Availability []Availability `json:"availability"`
}

// Availability lists the bookable slot labels for one date. The server
// should emit at most one entry per date; consumers must tolerate
// duplicates and take the first.
type Availability struct {
	Date  string   `json:"date"` // "2006-01-02"
	Slots []string `json:"slots"`
}

// SlotsFor returns the slot set for a date, scanning in order so duplicate
// date entries resolve to the first one.
func SlotsFor(availability []Availability, date string) ([]string, bool) {
	for _, a := range availability {
		if a.Date == date {
			return a.Slots, true
		}
	}
	return nil, false
}

// PaymentStatus is the server-side payment state of a booking.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Booking is a reserved (service, date, slot) tuple. Created server-side;
// the client treats it as opaque after creation except for PaymentStatus,
// which it reconciles after verification.
type Booking struct {
	ID            string        `json:"_id"`
	ProviderID    string        `json:"providerId"`
	ServiceID     string        `json:"serviceId"`
	Date          string        `json:"date"`
	Slot          string        `json:"slot"`
	PaymentStatus PaymentStatus `json:"paymentStatus"`
}

// Review is a rating left against a provider after a completed booking.
type Review struct {
	ID      string `json:"_id,omitempty"`
	UserID  string `json:"userId,omitempty"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}
