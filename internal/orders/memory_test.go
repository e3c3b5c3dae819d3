package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/texlink/texlink/internal/shared"
)

type memoryOrderRepo struct {
	orders       map[string]*Order
	byDisplayID  map[string]string
	history      map[string][]StatusHistoryEntry
	targets      map[string][]TargetSupplier
	reviews      map[string][]Review
	rejected     map[string][]RejectedItem
	secondQual   map[string][]SecondQualityItem
	failNextTx   error
	insertedIDs  []string
	historyCount int
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders:      make(map[string]*Order),
		byDisplayID: make(map[string]string),
		history:     make(map[string][]StatusHistoryEntry),
		targets:     make(map[string][]TargetSupplier),
		reviews:     make(map[string][]Review),
		rejected:    make(map[string][]RejectedItem),
		secondQual:  make(map[string][]SecondQualityItem),
	}
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r.failNextTx != nil {
		err := r.failNextTx
		r.failNextTx = nil
		return err
	}
	return fn(ctx, &memoryOrderTx{repo: r})
}

func (r *memoryOrderRepo) GetOrder(ctx context.Context, id string) (*Order, error) {
	return r.load(id)
}

func (r *memoryOrderRepo) load(id string) (*Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("orders: order %s: %w", id, shared.ErrNotFound)
	}
	clone := *o
	clone.StatusHistory = append([]StatusHistoryEntry(nil), r.history[id]...)
	clone.TargetSuppliers = append([]TargetSupplier(nil), r.targets[id]...)
	clone.SecondQualityItems = append([]SecondQualityItem(nil), r.secondQual[id]...)
	clone.Reviews = nil
	for _, rev := range r.reviews[id] {
		rc := rev
		rc.RejectedItems = append([]RejectedItem(nil), r.rejected[rev.ID]...)
		clone.Reviews = append(clone.Reviews, rc)
	}
	return &clone, nil
}

func (t *memoryOrderTx) GetOrder(ctx context.Context, id string) (*Order, error) {
	return t.repo.load(id)
}

func (t *memoryOrderTx) InsertOrder(ctx context.Context, o Order) error {
	if _, dup := t.repo.byDisplayID[o.DisplayID]; dup {
		return fmt.Errorf("orders: display id %s taken: %w", o.DisplayID, shared.ErrConflict)
	}
	if o.ParentOrderID != nil {
		for _, existing := range t.repo.orders {
			if existing.ParentOrderID != nil && *existing.ParentOrderID == *o.ParentOrderID && existing.RevisionNumber == o.RevisionNumber {
				return fmt.Errorf("orders: revision %d of %s taken: %w", o.RevisionNumber, *o.ParentOrderID, shared.ErrConflict)
			}
		}
	}
	stored := o
	t.repo.orders[o.ID] = &stored
	t.repo.byDisplayID[o.DisplayID] = o.ID
	t.repo.insertedIDs = append(t.repo.insertedIDs, o.ID)
	return nil
}

func (t *memoryOrderTx) InsertHistory(ctx context.Context, entry StatusHistoryEntry) error {
	t.repo.history[entry.OrderID] = append(t.repo.history[entry.OrderID], entry)
	t.repo.historyCount++
	return nil
}

func (t *memoryOrderTx) InsertTarget(ctx context.Context, target TargetSupplier) error {
	for _, existing := range t.repo.targets[target.OrderID] {
		if existing.SupplierID == target.SupplierID {
			return fmt.Errorf("orders: supplier %d already targeted: %w", target.SupplierID, shared.ErrConflict)
		}
	}
	t.repo.targets[target.OrderID] = append(t.repo.targets[target.OrderID], target)
	return nil
}

func (t *memoryOrderTx) UpdateOrderStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	o, ok := t.repo.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return true, nil
}

func (t *memoryOrderTx) SetAcceptance(ctx context.Context, id string, supplierID, acceptedBy int64, at time.Time) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", id, shared.ErrNotFound)
	}
	o.SupplierID = &supplierID
	o.AcceptedByID = &acceptedBy
	o.AcceptedAt = &at
	return nil
}

func (t *memoryOrderTx) ClearAssignment(ctx context.Context, id string, reason *string) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", id, shared.ErrNotFound)
	}
	o.SupplierID = nil
	o.RejectionReason = reason
	return nil
}

func (t *memoryOrderTx) SetRejectionReason(ctx context.Context, id string, reason *string) error {
	o, ok := t.repo.orders[id]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", id, shared.ErrNotFound)
	}
	o.RejectionReason = reason
	return nil
}

func (t *memoryOrderTx) UpdateTargetStatus(ctx context.Context, orderID string, supplierID int64, from, to TargetStatus, reason *string, at time.Time) (bool, error) {
	list := t.repo.targets[orderID]
	for i := range list {
		if list[i].SupplierID == supplierID && list[i].Status == from {
			list[i].Status = to
			list[i].Reason = reason
			list[i].RespondedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryOrderTx) RejectPendingTargets(ctx context.Context, orderID string, exceptSupplierID int64, at time.Time) error {
	list := t.repo.targets[orderID]
	for i := range list {
		if list[i].SupplierID != exceptSupplierID && list[i].Status == TargetPending {
			list[i].Status = TargetRejected
			list[i].RespondedAt = &at
		}
	}
	return nil
}

func (t *memoryOrderTx) CountPendingTargets(ctx context.Context, orderID string) (int, error) {
	count := 0
	for _, target := range t.repo.targets[orderID] {
		if target.Status == TargetPending {
			count++
		}
	}
	return count, nil
}

func (t *memoryOrderTx) InsertReview(ctx context.Context, review Review) error {
	review.RejectedItems = nil
	t.repo.reviews[review.OrderID] = append(t.repo.reviews[review.OrderID], review)
	return nil
}

func (t *memoryOrderTx) InsertRejectedItem(ctx context.Context, item RejectedItem) error {
	t.repo.rejected[item.ReviewID] = append(t.repo.rejected[item.ReviewID], item)
	return nil
}

func (t *memoryOrderTx) InsertSecondQualityItem(ctx context.Context, item SecondQualityItem) error {
	t.repo.secondQual[item.OrderID] = append(t.repo.secondQual[item.OrderID], item)
	return nil
}

func (t *memoryOrderTx) ApplyReviewCounters(ctx context.Context, orderID string, reviews, approvals, rejections, secondQuality int) error {
	o, ok := t.repo.orders[orderID]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", orderID, shared.ErrNotFound)
	}
	o.TotalReviewCount += reviews
	o.ApprovalCount += approvals
	o.RejectionCount += rejections
	o.SecondQualityCount += secondQuality
	return nil
}

func (t *memoryOrderTx) ListChildren(ctx context.Context, parentID string) ([]Order, error) {
	var out []Order
	for _, o := range t.repo.orders {
		if o.ParentOrderID != nil && *o.ParentOrderID == parentID {
			out = append(out, *o)
		}
	}
	return out, nil
}

type capturedEvents struct {
	created   []OrderCreatedEvent
	changed   []OrderStatusChangedEvent
	finalized []OrderFinalizedEvent
}

func (c *capturedEvents) HandleOrderCreated(ctx context.Context, evt OrderCreatedEvent) error {
	c.created = append(c.created, evt)
	return nil
}

func (c *capturedEvents) HandleOrderStatusChanged(ctx context.Context, evt OrderStatusChangedEvent) error {
	c.changed = append(c.changed, evt)
	return nil
}

func (c *capturedEvents) HandleOrderFinalized(ctx context.Context, evt OrderFinalizedEvent) error {
	c.finalized = append(c.finalized, evt)
	return nil
}
