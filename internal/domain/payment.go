package domain

// PaymentStatus mirrors the external gateway's terminal states plus PENDING
// while the asynchronous side is still in flight.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentSuccess PaymentStatus = "SUCCESS"
	PaymentFailed  PaymentStatus = "FAILED"
)

// Payment is created at saga start and updated either by the gateway's
// synchronous response or by the recovery loop.
type Payment struct {
	ID             int64
	OrderID        int64
	UserID         int64
	Amount         int64
	CardType       string
	TransactionKey *string
	Status         PaymentStatus
}
