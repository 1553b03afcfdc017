package domain

import "time"

// InvoiceStatus is the payment state of an invoice. Paid invoices are
// immutable.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid InvoiceStatus = "unpaid"
	InvoiceStatusPaid   InvoiceStatus = "paid"
)

// Invoice is a billing record owned by a client, created by billing events
// (activation, monthly cycle).
type Invoice struct {
	ID        string        `json:"id"`
	ClientID  string        `json:"clientId"`
	Amount    float64       `json:"amount"`
	Status    InvoiceStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`

	// Proration fields, set when the invoice covers a partial billing month.
	ProratedDays *int `json:"proratedDays,omitempty"`
	DaysInMonth  *int `json:"daysInMonth,omitempty"`
}

// IsCurrentPeriod reports whether the invoice belongs to the billing month of
// the reference time.
func (i *Invoice) IsCurrentPeriod(at time.Time) bool {
	return i.CreatedAt.Year() == at.Year() && i.CreatedAt.Month() == at.Month()
}

// Client is the billing identity owning zero or more lines. The agency owns
// the operational assignment; the client exclusively owns the billing side.
type Client struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	AgencyID  string `json:"agencyId"`
}

// Agency resells lines and settles commissions with the supervisor. Balance
// is mutated only by recorded payment-confirmation actions.
type Agency struct {
	ID                string  `json:"id"`
	CommissionRate    float64 `json:"commissionRate"`
	SubscriptionPrice float64 `json:"subscriptionPrice"`
	Balance           float64 `json:"balance"`
	PendingPayment    float64 `json:"pendingPayment"`
}
