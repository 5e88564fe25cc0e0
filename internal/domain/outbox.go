package domain

import "time"

// OutboxStatus tracks delivery to the streaming bus.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxPublished OutboxStatus = "PUBLISHED"
	OutboxFailed    OutboxStatus = "FAILED"
)

// OutboxEvent is a durable, append-only row created inside the same DB
// transaction as the domain mutation it describes. The composite key
// (AggregateID, AggregateType, Version) is unique and is the mechanism
// that turns a duplicate saga-retry insert into a no-op.
type OutboxEvent struct {
	ID            int64
	EventID       string // UUID, unique
	EventType     string
	AggregateID   int64
	AggregateType string
	Version       int64
	Topic         string
	PartitionKey  string
	Payload       []byte // JSON
	Status        OutboxStatus
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Envelope is the wire envelope every bus message carries, per spec §6.
type Envelope struct {
	EventID       string    `json:"eventId"`
	EventType     string    `json:"eventType"`
	AggregateID   int64     `json:"aggregateId"`
	AggregateType string    `json:"aggregateType"`
	Version       int64     `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
	Payload       []byte    `json:"payload"`
}

const (
	TopicOrderEvents   = "order-events"
	TopicLikeEvents    = "like-events"
	TopicProductEvents = "product-events"

	AggregateTypeOrder = "Order"

	EventTypeOrderCreated  = "OrderCreated"
	EventTypeOrderCanceled = "OrderCanceled"
	EventTypePaymentCompleted = "PaymentCompleted"
	EventTypePaymentFailed    = "PaymentFailed"
	EventTypeLikeAdded     = "LikeAdded"
	EventTypeLikeRemoved   = "LikeRemoved"
	EventTypeProductViewed = "ProductViewed"
)

// OrderCreatedPayload is the order-events JSON body for OrderCreated.
type OrderCreatedPayload struct {
	OrderID         int64                  `json:"orderId"`
	UserID          int64                  `json:"userId"`
	CouponCode      *string                `json:"couponCode,omitempty"`
	Subtotal        int64                  `json:"subtotal"`
	UsedPointAmount int64                  `json:"usedPointAmount"`
	Items           []OrderCreatedItem     `json:"items"`
	OccurredAt      time.Time              `json:"occurredAt"`
}

// OrderCreatedItem carries PriceSnapshot alongside the (productId,
// quantity) pair spec §6 names explicitly: the ranking scorer's §4.6
// formula (log(1+price*quantity)*0.6) needs a price, and the price
// snapshot the saga already captured at order time is the correct one to
// carry (the catalog price could have moved since). This is a payload
// enrichment beyond the literal spec §6 listing, not a behavior change to
// any operation — see DESIGN.md.
type OrderCreatedItem struct {
	ProductID     int64 `json:"productId"`
	Quantity      int64 `json:"quantity"`
	PriceSnapshot int64 `json:"priceSnapshot"`
}

// OrderCanceledPayload is the order-events JSON body for OrderCanceled.
type OrderCanceledPayload struct {
	OrderID    int64     `json:"orderId"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurredAt"`
}

// LikeEventPayload is the like-events JSON body for LikeAdded/LikeRemoved.
type LikeEventPayload struct {
	UserID     int64     `json:"userId"`
	ProductID  int64     `json:"productId"`
	OccurredAt time.Time `json:"occurredAt"`
}

// ProductViewedPayload is the product-events JSON body for ProductViewed.
type ProductViewedPayload struct {
	ProductID  int64     `json:"productId"`
	UserID     int64     `json:"userId"`
	OccurredAt time.Time `json:"occurredAt"`
}
