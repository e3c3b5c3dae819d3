// Package notify delivers order lifecycle notifications: durable tasks
// through the job queue and a per-company activity feed in Redis.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue name for notification jobs.
	QueueDefault = "default"

	TaskOrderCreated   = "notify:order_created"
	TaskOrderStatus    = "notify:order_status"
	TaskOrderFinalized = "notify:order_finalized"
)

// OrderCreatedPayload announces a new order to its participants.
type OrderCreatedPayload struct {
	OrderID        string `json:"order_id"`
	DisplayID      string `json:"display_id"`
	BrandID        int64  `json:"brand_id"`
	SupplierID     *int64 `json:"supplier_id,omitempty"`
	AssignmentType string `json:"assignment_type"`
	Origin         string `json:"origin"`
	Quantity       int    `json:"quantity"`
	ActorName      string `json:"actor_name"`
}

// OrderStatusPayload announces a status transition.
type OrderStatusPayload struct {
	OrderID        string  `json:"order_id"`
	DisplayID      string  `json:"display_id"`
	BrandID        int64   `json:"brand_id"`
	SupplierID     *int64  `json:"supplier_id,omitempty"`
	PreviousStatus string  `json:"previous_status"`
	NewStatus      string  `json:"new_status"`
	ActorName      string  `json:"actor_name"`
	Notes          *string `json:"notes,omitempty"`
}

// OrderFinalizedPayload announces completion with the supplier payout amount.
type OrderFinalizedPayload struct {
	OrderID       string `json:"order_id"`
	DisplayID     string `json:"display_id"`
	BrandID       int64  `json:"brand_id"`
	SupplierID    *int64 `json:"supplier_id,omitempty"`
	NetValueCents int64  `json:"net_value_cents"`
	ActorName     string `json:"actor_name"`
}

// NewOrderCreatedTask constructs an Asynq task.
func NewOrderCreatedTask(payload OrderCreatedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderCreated, data), nil
}

// NewOrderStatusTask constructs an Asynq task.
func NewOrderStatusTask(payload OrderStatusPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderStatus, data), nil
}

// NewOrderFinalizedTask constructs an Asynq task.
func NewOrderFinalizedTask(payload OrderFinalizedPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderFinalized, data), nil
}

// Tasks processes notification jobs on the worker side, fanning each one out
// to the activity feeds of every involved company.
type Tasks struct {
	feed   *Feed
	logger *slog.Logger
}

// NewTasks builds Tasks instance.
func NewTasks(feed *Feed, logger *slog.Logger) *Tasks {
	return &Tasks{feed: feed, logger: logger}
}

// HandleOrderCreatedTask processes TaskOrderCreated tasks.
func (t *Tasks) HandleOrderCreatedTask(ctx context.Context, task *asynq.Task) error {
	var payload OrderCreatedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	entry := FeedEntry{
		Kind:      "order_created",
		OrderID:   payload.OrderID,
		DisplayID: payload.DisplayID,
		Message:   createdMessage(payload),
	}
	return t.push(ctx, entry, payload.BrandID, payload.SupplierID)
}

// HandleOrderStatusTask processes TaskOrderStatus tasks.
func (t *Tasks) HandleOrderStatusTask(ctx context.Context, task *asynq.Task) error {
	var payload OrderStatusPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	entry := FeedEntry{
		Kind:      "order_status",
		OrderID:   payload.OrderID,
		DisplayID: payload.DisplayID,
		Message:   statusMessage(payload),
	}
	return t.push(ctx, entry, payload.BrandID, payload.SupplierID)
}

// HandleOrderFinalizedTask processes TaskOrderFinalized tasks.
func (t *Tasks) HandleOrderFinalizedTask(ctx context.Context, task *asynq.Task) error {
	var payload OrderFinalizedPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	entry := FeedEntry{
		Kind:      "order_finalized",
		OrderID:   payload.OrderID,
		DisplayID: payload.DisplayID,
		Message:   finalizedMessage(payload),
	}
	return t.push(ctx, entry, payload.BrandID, payload.SupplierID)
}

func (t *Tasks) push(ctx context.Context, entry FeedEntry, brandID int64, supplierID *int64) error {
	if err := t.feed.Push(ctx, brandID, entry); err != nil {
		return err
	}
	if supplierID != nil {
		if err := t.feed.Push(ctx, *supplierID, entry); err != nil {
			return err
		}
	}
	t.logger.Debug("feed entry pushed",
		slog.String("kind", entry.Kind),
		slog.String("order_id", entry.OrderID))
	return nil
}
