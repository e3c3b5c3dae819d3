package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/texlink/texlink/internal/orders"
)

// Dispatcher translates order lifecycle events into queued notification
// tasks. It is the orders.Sink implementation wired into the service.
type Dispatcher struct {
	client *asynq.Client
}

// NewDispatcher builds Dispatcher instance.
func NewDispatcher(client *asynq.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// HandleOrderCreated enqueues an order-created notification.
func (d *Dispatcher) HandleOrderCreated(ctx context.Context, evt orders.OrderCreatedEvent) error {
	task, err := NewOrderCreatedTask(OrderCreatedPayload{
		OrderID:        evt.OrderID,
		DisplayID:      evt.DisplayID,
		BrandID:        evt.BrandID,
		SupplierID:     evt.SupplierID,
		AssignmentType: string(evt.AssignmentType),
		Origin:         string(evt.Origin),
		Quantity:       evt.Quantity,
		ActorName:      evt.ActorName,
	})
	if err != nil {
		return fmt.Errorf("notify: build created task: %w", err)
	}
	return d.enqueue(ctx, task)
}

// HandleOrderStatusChanged enqueues a status-change notification.
func (d *Dispatcher) HandleOrderStatusChanged(ctx context.Context, evt orders.OrderStatusChangedEvent) error {
	task, err := NewOrderStatusTask(OrderStatusPayload{
		OrderID:        evt.OrderID,
		DisplayID:      evt.DisplayID,
		BrandID:        evt.BrandID,
		SupplierID:     evt.SupplierID,
		PreviousStatus: string(evt.PreviousStatus),
		NewStatus:      string(evt.NewStatus),
		ActorName:      evt.ActorName,
		Notes:          evt.Notes,
	})
	if err != nil {
		return fmt.Errorf("notify: build status task: %w", err)
	}
	return d.enqueue(ctx, task)
}

// HandleOrderFinalized enqueues a finalization notification.
func (d *Dispatcher) HandleOrderFinalized(ctx context.Context, evt orders.OrderFinalizedEvent) error {
	task, err := NewOrderFinalizedTask(OrderFinalizedPayload{
		OrderID:       evt.OrderID,
		DisplayID:     evt.DisplayID,
		BrandID:       evt.BrandID,
		SupplierID:    evt.SupplierID,
		NetValueCents: evt.NetValueCents,
		ActorName:     evt.ActorName,
	})
	if err != nil {
		return fmt.Errorf("notify: build finalized task: %w", err)
	}
	return d.enqueue(ctx, task)
}

func (d *Dispatcher) enqueue(ctx context.Context, task *asynq.Task) error {
	if _, err := d.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("notify: enqueue %s: %w", task.Type(), err)
	}
	return nil
}
