package orders

import (
	"context"
	"fmt"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/shared"
)

// CreateReviewInput partitions the produced quantity into approved, rejected
// and second-quality buckets. The review result is never part of the input.
type CreateReviewInput struct {
	Type                  string
	TotalQuantity         int
	ApprovedQuantity      int
	RejectedQuantity      int
	SecondQualityQuantity int
	Notes                 *string
	RejectedItems         []RejectedItemInput
	SecondQualityItems    []SecondQualityItemInput
}

// RejectedItemInput is one defect line.
type RejectedItemInput struct {
	Reason            string
	Quantity          int
	DefectDescription string
	ReworkRequired    bool
}

// SecondQualityItemInput is one discounted-unit line.
type SecondQualityItemInput struct {
	Description        string
	Quantity           int
	DiscountPercentage int
}

// classifyReview derives the result from the quantity partition. Pure.
func classifyReview(approved, rejected, secondQuality int) ReviewResult {
	switch {
	case rejected == 0 && secondQuality == 0:
		return ResultApproved
	case approved == 0:
		return ResultRejected
	default:
		return ResultPartial
	}
}

// statusForResult maps a review result onto the next order status.
func statusForResult(result ReviewResult) Status {
	switch result {
	case ResultApproved:
		return StatusFinalized
	case ResultRejected:
		return StatusRejected
	default:
		return StatusPartiallyApproved
	}
}

// CreateReview records a quality-review pass and derives the resulting order
// status. Quantity conservation is enforced before any write.
func (s *Service) CreateReview(ctx context.Context, actor membership.Actor, orderID string, input CreateReviewInput) (*Review, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsBrand() || actor.CompanyID != o.BrandID {
		return nil, fmt.Errorf("orders: only the brand may review order %s: %w", o.DisplayID, shared.ErrForbidden)
	}
	if o.Status != StatusInReview {
		return nil, fmt.Errorf("orders: order %s is not under review: %w", o.DisplayID, shared.ErrInvalidTransition)
	}
	if err := validateReviewInput(input); err != nil {
		return nil, err
	}

	result := classifyReview(input.ApprovedQuantity, input.RejectedQuantity, input.SecondQualityQuantity)
	nextStatus := statusForResult(result)
	now := s.now()

	review := Review{
		ID:                    s.newID(),
		OrderID:               o.ID,
		Type:                  input.Type,
		Result:                result,
		TotalQuantity:         input.TotalQuantity,
		ApprovedQuantity:      input.ApprovedQuantity,
		RejectedQuantity:      input.RejectedQuantity,
		SecondQualityQuantity: input.SecondQualityQuantity,
		Notes:                 input.Notes,
		CreatedByID:           actor.UserID,
		CreatedAt:             now,
	}

	previous := o.Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		won, err := tx.UpdateOrderStatus(ctx, o.ID, previous, nextStatus)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
		}
		if err := tx.InsertReview(ctx, review); err != nil {
			return err
		}
		for _, in := range input.RejectedItems {
			item := RejectedItem{
				ID:                s.newID(),
				ReviewID:          review.ID,
				Reason:            in.Reason,
				Quantity:          in.Quantity,
				DefectDescription: in.DefectDescription,
				ReworkRequired:    in.ReworkRequired,
				CreatedAt:         now,
			}
			if err := tx.InsertRejectedItem(ctx, item); err != nil {
				return err
			}
			review.RejectedItems = append(review.RejectedItems, item)
		}
		for _, in := range input.SecondQualityItems {
			item := SecondQualityItem{
				ID:          s.newID(),
				OrderID:     o.ID,
				ReviewID:    &review.ID,
				Description: in.Description,
				Quantity:    in.Quantity,
				// Stamped from the order's current price; never re-derived
				// even if the price is later edited.
				OriginalUnitValueCents: o.PricePerUnitCents,
				DiscountPercentage:     in.DiscountPercentage,
				CreatedAt:              now,
			}
			if err := tx.InsertSecondQualityItem(ctx, item); err != nil {
				return err
			}
		}
		approvals := 0
		if input.ApprovedQuantity > 0 {
			approvals = 1
		}
		rejections := 0
		if input.RejectedQuantity > 0 {
			rejections = 1
		}
		if err := tx.ApplyReviewCounters(ctx, o.ID, 1, approvals, rejections, input.SecondQualityQuantity); err != nil {
			return err
		}
		note := fmt.Sprintf("Revisão registrada: %s (%d/%d aprovadas)", result, input.ApprovedQuantity, input.TotalQuantity)
		return tx.InsertHistory(ctx, s.historyEntry(o.ID, &previous, nextStatus, actor, &note, now))
	})
	if err != nil {
		return nil, err
	}

	s.emitStatusChanged(ctx, o, previous, nextStatus, actor, nil)
	if nextStatus == StatusFinalized {
		s.emitFinalized(ctx, o, actor)
	}
	return &review, nil
}

func validateReviewInput(input CreateReviewInput) error {
	if input.TotalQuantity <= 0 {
		return fmt.Errorf("orders: review total quantity must be positive: %w", shared.ErrValidation)
	}
	if input.ApprovedQuantity < 0 || input.RejectedQuantity < 0 || input.SecondQualityQuantity < 0 {
		return fmt.Errorf("orders: review quantities must be non-negative: %w", shared.ErrValidation)
	}
	if input.ApprovedQuantity+input.RejectedQuantity+input.SecondQualityQuantity != input.TotalQuantity {
		return fmt.Errorf("orders: approved+rejected+second quality must equal total: %w", shared.ErrValidation)
	}
	return nil
}

// AddSecondQualityItems appends second-quality items outside a formal review
// pass. Order status is untouched; only the second-quality counter moves.
func (s *Service) AddSecondQualityItems(ctx context.Context, actor membership.Actor, orderID string, inputs []SecondQualityItemInput) ([]SecondQualityItem, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsBrand() || actor.CompanyID != o.BrandID {
		return nil, fmt.Errorf("orders: only the brand may add second quality items to %s: %w", o.DisplayID, shared.ErrForbidden)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("orders: at least one item required: %w", shared.ErrValidation)
	}
	total := 0
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("orders: item quantity must be positive: %w", shared.ErrValidation)
		}
		total += in.Quantity
	}

	now := s.now()
	items := make([]SecondQualityItem, 0, len(inputs))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, in := range inputs {
			item := SecondQualityItem{
				ID:                     s.newID(),
				OrderID:                o.ID,
				Description:            in.Description,
				Quantity:               in.Quantity,
				OriginalUnitValueCents: o.PricePerUnitCents,
				DiscountPercentage:     in.DiscountPercentage,
				CreatedAt:              now,
			}
			if err := tx.InsertSecondQualityItem(ctx, item); err != nil {
				return err
			}
			items = append(items, item)
		}
		return tx.ApplyReviewCounters(ctx, o.ID, 0, 0, 0, total)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
