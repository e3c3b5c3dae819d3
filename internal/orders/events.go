package orders

import "context"

// OrderCreatedEvent is emitted once per order creation (originals and rework
// children alike).
type OrderCreatedEvent struct {
	OrderID         string
	DisplayID       string
	BrandID         int64
	SupplierID      *int64
	AssignmentType  AssignmentType
	Origin          Origin
	Quantity        int
	TotalValueCents int64
	ActorID         int64
	ActorName       string
}

// OrderStatusChangedEvent is emitted on every status transition.
type OrderStatusChangedEvent struct {
	OrderID        string
	DisplayID      string
	BrandID        int64
	SupplierID     *int64
	PreviousStatus Status
	NewStatus      Status
	ActorID        int64
	ActorName      string
	Notes          *string
}

// OrderFinalizedEvent is emitted in addition to the status-changed event when
// an order reaches FINALIZADO.
type OrderFinalizedEvent struct {
	OrderID       string
	DisplayID     string
	BrandID       int64
	SupplierID    *int64
	NetValueCents int64
	ActorID       int64
	ActorName     string
}

// Sink receives lifecycle events for downstream notification and reporting.
// It is the core's sole interface to the notification subsystem; delivery
// failures never fail the originating operation.
type Sink interface {
	HandleOrderCreated(ctx context.Context, evt OrderCreatedEvent) error
	HandleOrderStatusChanged(ctx context.Context, evt OrderStatusChangedEvent) error
	HandleOrderFinalized(ctx context.Context, evt OrderFinalizedEvent) error
}
