package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/shared"
)

// CreateReworkInput carries the brand's rework request. Quantity defaults to
// the parent's rejected-unit total when zero.
type CreateReworkInput struct {
	Quantity         int
	DeliveryDeadline *time.Time
	Notes            *string
}

// reworkAttempts bounds the retry on a revision-number race between two
// concurrent rework requests against the same parent.
const reworkAttempts = 2

// CreateChildOrder spawns a rework revision of a rejected or partially
// approved order. The child re-enters the lifecycle at the rework-pending
// status, carries zero commercial value and numbers itself after the highest
// existing revision in the family. The parent is parked at the rework-pending
// status alongside it.
func (s *Service) CreateChildOrder(ctx context.Context, actor membership.Actor, parentID string, input CreateReworkInput) (*Order, error) {
	var child *Order
	var err error
	for attempt := 0; attempt < reworkAttempts; attempt++ {
		child, err = s.createChildOnce(ctx, actor, parentID, input)
		if err == nil || !errors.Is(err, shared.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, err
	}

	parent, err := s.repo.GetOrder(ctx, parentID)
	if err == nil {
		s.emitCreated(ctx, child, actor)
		s.emitStatusChanged(ctx, parent, parent.Status, StatusAwaitingRework, actor, strPtr(fmt.Sprintf("Retrabalho aberto: %s", child.DisplayID)))
	}
	return child, nil
}

func (s *Service) createChildOnce(ctx context.Context, actor membership.Actor, parentID string, input CreateReworkInput) (*Order, error) {
	parent, err := s.repo.GetOrder(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !actor.IsBrand() || actor.CompanyID != parent.BrandID {
		return nil, fmt.Errorf("orders: only the brand may open a rework for %s: %w", parent.DisplayID, shared.ErrForbidden)
	}
	if parent.Status != StatusRejected && parent.Status != StatusPartiallyApproved {
		return nil, fmt.Errorf("orders: order %s is not in a reworkable state: %w", parent.DisplayID, shared.ErrInvalidTransition)
	}

	quantity := input.Quantity
	if quantity <= 0 {
		quantity = rejectedUnits(parent)
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("orders: rework quantity must be positive: %w", shared.ErrValidation)
	}

	now := s.now()
	deadline := now.AddDate(0, 0, 14)
	if input.DeliveryDeadline != nil {
		deadline = *input.DeliveryDeadline
	}

	var child *Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		children, err := tx.ListChildren(ctx, parent.ID)
		if err != nil {
			return err
		}
		revision := parent.RevisionNumber
		for _, c := range children {
			if c.RevisionNumber > revision {
				revision = c.RevisionNumber
			}
		}
		revision++

		order := Order{
			ID:                s.newID(),
			DisplayID:         reworkDisplayID(parent.DisplayID, revision),
			BrandID:           parent.BrandID,
			SupplierID:        parent.SupplierID,
			AssignmentType:    AssignmentDirect,
			ProductRef:        parent.ProductRef,
			Description:       parent.Description,
			Quantity:          quantity,
			Status:            StatusAwaitingRework,
			MaterialsProvided: parent.MaterialsProvided,
			DeliveryDeadline:  deadline,
			Notes:             input.Notes,
			ParentOrderID:     &parent.ID,
			RevisionNumber:    revision,
			Origin:            OriginRework,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.InsertHistory(ctx, s.historyEntry(order.ID, nil, StatusAwaitingRework, actor, strPtr(fmt.Sprintf("Retrabalho da revisão %d de %s", revision, parent.DisplayID)), now)); err != nil {
			return err
		}

		won, err := tx.UpdateOrderStatus(ctx, parent.ID, parent.Status, StatusAwaitingRework)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("orders: order %s changed concurrently: %w", parent.DisplayID, shared.ErrConflict)
		}
		prev := parent.Status
		if err := tx.InsertHistory(ctx, s.historyEntry(parent.ID, &prev, StatusAwaitingRework, actor, strPtr(fmt.Sprintf("Aguardando retrabalho: %s", order.DisplayID)), now)); err != nil {
			return err
		}
		child = &order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return child, nil
}

// rejectedUnits sums the rejected quantities across the parent's reviews.
func rejectedUnits(o *Order) int {
	total := 0
	for _, r := range o.Reviews {
		total += r.RejectedQuantity
	}
	return total
}
