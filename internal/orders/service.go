package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/shared"
)

// displayIDAttempts bounds the regenerate-and-retry loop on display-ID
// collisions.
const displayIDAttempts = 3

// Service orchestrates the order lifecycle. All mutating operations validate
// against a snapshot and write through a single transaction; a losing
// concurrent writer observes ErrConflict.
type Service struct {
	repo   RepositoryPort
	sink   Sink
	logger *slog.Logger

	transitionsGroup singleflight.Group

	now   func() time.Time
	newID func() string
}

// NewService constructs the order service.
func NewService(repo RepositoryPort, sink Sink, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		sink:   sink,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateOrderInput is the brand's creation payload.
type CreateOrderInput struct {
	AssignmentType    AssignmentType
	SupplierID        *int64
	TargetSupplierIDs []int64
	ProductRef        string
	Description       string
	Quantity          int
	PricePerUnitCents int64
	MaterialsProvided bool
	DeliveryDeadline  *time.Time
	Notes             *string
}

// UpdateStatusInput carries a requested transition.
type UpdateStatusInput struct {
	Status          Status
	Notes           *string
	RejectionReason *string
}

// Create validates and constructs a new order aggregate.
func (s *Service) Create(ctx context.Context, actor membership.Actor, input CreateOrderInput) (*Order, error) {
	if !actor.IsBrand() || !actor.IsActive {
		return nil, fmt.Errorf("orders: create requires an active brand membership: %w", shared.ErrForbidden)
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	total, fee, net := ComputeFinancials(input.Quantity, input.PricePerUnitCents)
	now := s.now()
	deadline := now.AddDate(0, 0, 30)
	if input.DeliveryDeadline != nil {
		deadline = *input.DeliveryDeadline
	}

	var created *Order
	for attempt := 0; attempt < displayIDAttempts; attempt++ {
		order := Order{
			ID:                s.newID(),
			DisplayID:         NewDisplayID(now),
			BrandID:           actor.CompanyID,
			SupplierID:        input.SupplierID,
			AssignmentType:    input.AssignmentType,
			ProductRef:        input.ProductRef,
			Description:       input.Description,
			Quantity:          input.Quantity,
			PricePerUnitCents: input.PricePerUnitCents,
			TotalValueCents:   total,
			PlatformFeeCents:  fee,
			NetValueCents:     net,
			Status:            StatusLaunched,
			MaterialsProvided: input.MaterialsProvided,
			DeliveryDeadline:  deadline,
			Notes:             input.Notes,
			Origin:            OriginOriginal,
			CreatedAt:         now,
			UpdatedAt:         now,
		}

		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			if err := tx.InsertOrder(ctx, order); err != nil {
				return err
			}
			if err := tx.InsertHistory(ctx, s.historyEntry(order.ID, nil, StatusLaunched, actor, strPtr("Order created"), now)); err != nil {
				return err
			}
			for _, supplierID := range input.TargetSupplierIDs {
				target := TargetSupplier{
					ID:         s.newID(),
					OrderID:    order.ID,
					SupplierID: supplierID,
					Status:     TargetPending,
					CreatedAt:  now,
				}
				if err := tx.InsertTarget(ctx, target); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			// A display-ID collision is the only expected conflict here;
			// regenerate and try again.
			if errors.Is(err, shared.ErrConflict) && attempt < displayIDAttempts-1 {
				continue
			}
			return nil, err
		}
		created = &order
		break
	}

	s.emitCreated(ctx, created, actor)
	return s.repo.GetOrder(ctx, created.ID)
}

func validateCreateInput(input CreateOrderInput) error {
	if input.Quantity <= 0 {
		return fmt.Errorf("orders: quantity must be positive: %w", shared.ErrValidation)
	}
	if input.PricePerUnitCents <= 0 {
		return fmt.Errorf("orders: price per unit must be positive: %w", shared.ErrValidation)
	}
	switch input.AssignmentType {
	case AssignmentDirect:
		if input.SupplierID == nil {
			return fmt.Errorf("orders: DIRECT assignment requires supplier_id: %w", shared.ErrValidation)
		}
	case AssignmentBidding:
		if len(input.TargetSupplierIDs) == 0 {
			return fmt.Errorf("orders: BIDDING assignment requires target suppliers: %w", shared.ErrValidation)
		}
	case AssignmentHybrid:
		// Either a named supplier or targets or both; nothing to enforce.
	default:
		return fmt.Errorf("orders: unknown assignment type %q: %w", input.AssignmentType, shared.ErrValidation)
	}
	return nil
}

// Accept claims an order for the acting supplier company. For BIDDING/HYBRID
// orders the acceptance and the rejection of every competing pending target
// commit atomically.
func (s *Service) Accept(ctx context.Context, actor membership.Actor, orderID string) (*Order, error) {
	if !actor.IsSupplier() || !actor.IsActive {
		return nil, fmt.Errorf("orders: accept requires an active supplier membership: %w", shared.ErrForbidden)
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusLaunched && o.Status != StatusOpenToMarket && !(o.Status == StatusAwaitingRework && o.Origin == OriginRework) {
		return nil, fmt.Errorf("orders: order %s is not open for acceptance: %w", o.DisplayID, shared.ErrInvalidTransition)
	}
	if o.Status != StatusOpenToMarket && !s.eligibleToAccept(o, actor.CompanyID) {
		return nil, fmt.Errorf("orders: company %d may not accept order %s: %w", actor.CompanyID, o.DisplayID, shared.ErrForbidden)
	}

	now := s.now()
	previous := o.Status
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		won, err := tx.UpdateOrderStatus(ctx, o.ID, previous, StatusAccepted)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
		}
		if err := tx.SetAcceptance(ctx, o.ID, actor.CompanyID, actor.UserID, now); err != nil {
			return err
		}
		if o.AssignmentType != AssignmentDirect {
			// The accepting target (if invited) wins; every other pending
			// target loses in the same transaction.
			if o.PendingTarget(actor.CompanyID) != nil {
				if _, err := tx.UpdateTargetStatus(ctx, o.ID, actor.CompanyID, TargetPending, TargetAccepted, nil, now); err != nil {
					return err
				}
			}
			if err := tx.RejectPendingTargets(ctx, o.ID, actor.CompanyID, now); err != nil {
				return err
			}
		}
		return tx.InsertHistory(ctx, s.historyEntry(o.ID, &previous, StatusAccepted, actor, strPtr("Pedido aceito pela facção"), now))
	})
	if err != nil {
		return nil, err
	}

	// Re-read so the event carries the winning supplier, which is only
	// assigned inside the transaction.
	accepted, err := s.repo.GetOrder(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	s.emitStatusChanged(ctx, accepted, previous, StatusAccepted, actor, nil)
	return accepted, nil
}

func (s *Service) eligibleToAccept(o *Order, companyID int64) bool {
	switch o.AssignmentType {
	case AssignmentDirect:
		return o.AssignedTo(companyID)
	case AssignmentBidding:
		return o.PendingTarget(companyID) != nil
	case AssignmentHybrid:
		return o.AssignedTo(companyID) || o.PendingTarget(companyID) != nil
	}
	return false
}

// Reject declines an order or a bidding invitation. A DIRECT rejection
// reopens the order to the market; a BIDDING rejection that empties the
// pending-target pool does the same.
func (s *Service) Reject(ctx context.Context, actor membership.Actor, orderID string, reason *string) (*Order, error) {
	if !actor.IsSupplier() || !actor.IsActive {
		return nil, fmt.Errorf("orders: reject requires an active supplier membership: %w", shared.ErrForbidden)
	}
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusLaunched {
		return nil, fmt.Errorf("orders: order %s is not awaiting a supplier response: %w", o.DisplayID, shared.ErrInvalidTransition)
	}

	now := s.now()
	if o.AssignmentType == AssignmentDirect || (o.AssignmentType == AssignmentHybrid && o.AssignedTo(actor.CompanyID)) {
		if !o.AssignedTo(actor.CompanyID) {
			return nil, fmt.Errorf("orders: company %d is not the assigned supplier of %s: %w", actor.CompanyID, o.DisplayID, shared.ErrForbidden)
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			won, err := tx.UpdateOrderStatus(ctx, o.ID, StatusLaunched, StatusOpenToMarket)
			if err != nil {
				return err
			}
			if !won {
				return fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
			}
			if err := tx.ClearAssignment(ctx, o.ID, reason); err != nil {
				return err
			}
			return tx.InsertHistory(ctx, s.historyEntry(o.ID, &o.Status, StatusOpenToMarket, actor, reason, now))
		})
		if err != nil {
			return nil, err
		}
		s.emitStatusChanged(ctx, o, StatusLaunched, StatusOpenToMarket, actor, reason)
		return s.repo.GetOrder(ctx, o.ID)
	}

	// BIDDING/HYBRID invitation rejection.
	if o.PendingTarget(actor.CompanyID) == nil {
		return nil, fmt.Errorf("orders: company %d has no pending invitation on %s: %w", actor.CompanyID, o.DisplayID, shared.ErrForbidden)
	}
	reopened := false
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		won, err := tx.UpdateTargetStatus(ctx, o.ID, actor.CompanyID, TargetPending, TargetRejected, reason, now)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("orders: invitation for company %d already answered: %w", actor.CompanyID, shared.ErrConflict)
		}
		pending, err := tx.CountPendingTargets(ctx, o.ID)
		if err != nil {
			return err
		}
		// When the last invitee declines and no direct supplier remains,
		// the whole order reopens to the market.
		if pending == 0 && o.SupplierID == nil {
			won, err := tx.UpdateOrderStatus(ctx, o.ID, StatusLaunched, StatusOpenToMarket)
			if err != nil {
				return err
			}
			if !won {
				return fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
			}
			reopened = true
			return tx.InsertHistory(ctx, s.historyEntry(o.ID, &o.Status, StatusOpenToMarket, actor, strPtr("Todas as facções convidadas recusaram"), now))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reopened {
		s.emitStatusChanged(ctx, o, StatusLaunched, StatusOpenToMarket, actor, reason)
	}
	return s.repo.GetOrder(ctx, o.ID)
}

// UpdateStatus applies a table-driven transition requested by the actor.
func (s *Service) UpdateStatus(ctx context.Context, actor membership.Actor, orderID string, input UpdateStatusInput) (*Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	party, err := s.partyOf(actor, o)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeTransition(o, party, input.Status); err != nil {
		return nil, err
	}

	now := s.now()
	previous := o.Status
	notes := input.Notes
	if input.Status == StatusCancelled && input.RejectionReason != nil {
		notes = input.RejectionReason
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		won, err := tx.UpdateOrderStatus(ctx, o.ID, previous, input.Status)
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
		}
		// The rework re-entry edge is an acceptance; stamp it like Accept
		// does.
		if input.Status == StatusAccepted {
			if err := tx.SetAcceptance(ctx, o.ID, actor.CompanyID, actor.UserID, now); err != nil {
				return err
			}
		}
		if input.Status == StatusCancelled && input.RejectionReason != nil {
			if err := tx.SetRejectionReason(ctx, o.ID, input.RejectionReason); err != nil {
				return err
			}
		}
		return tx.InsertHistory(ctx, s.historyEntry(o.ID, &previous, input.Status, actor, notes, now))
	})
	if err != nil {
		return nil, err
	}

	s.emitStatusChanged(ctx, o, previous, input.Status, actor, notes)
	if input.Status == StatusFinalized {
		s.emitFinalized(ctx, o, actor)
	}
	return s.repo.GetOrder(ctx, o.ID)
}

// authorizeTransition distinguishes "no one can reach that status right now"
// (InvalidTransition) from "someone can, but not this actor" (Forbidden).
func (s *Service) authorizeTransition(o *Order, party Party, target Status) error {
	if o.Status.IsTerminal() {
		return fmt.Errorf("orders: order %s is %s: %w", o.DisplayID, StatusLabel(o.Status), shared.ErrInvalidTransition)
	}
	var anyLegal, actorLegal bool
	for _, t := range transitionsFrom(o) {
		if t.Target != target {
			continue
		}
		if t.Guard != nil && !t.Guard(o) {
			continue
		}
		anyLegal = true
		if t.Actor == party {
			actorLegal = true
		}
	}
	if !anyLegal {
		return fmt.Errorf("orders: %s is unreachable from %s: %w", target, o.Status, shared.ErrInvalidTransition)
	}
	if !actorLegal {
		return fmt.Errorf("orders: %s may not move %s to %s: %w", party, o.DisplayID, target, shared.ErrForbidden)
	}
	return nil
}

// TransitionOption is one legal next step for the calling actor.
type TransitionOption struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
}

// TransitionList answers getAvailableTransitions.
type TransitionList struct {
	CanAdvance   bool               `json:"can_advance"`
	Transitions  []TransitionOption `json:"transitions"`
	WaitingFor   *Party             `json:"waiting_for,omitempty"`
	WaitingLabel *string            `json:"waiting_label,omitempty"`
}

// AvailableTransitions lists the actor's legal next statuses with labels, or
// whose turn it is when the actor has none. Concurrent identical queries are
// collapsed.
func (s *Service) AvailableTransitions(ctx context.Context, actor membership.Actor, orderID string) (*TransitionList, error) {
	key := fmt.Sprintf("%s:%d", orderID, actor.CompanyID)
	v, err, _ := s.transitionsGroup.Do(key, func() (any, error) {
		return s.availableTransitions(ctx, actor, orderID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*TransitionList), nil
}

func (s *Service) availableTransitions(ctx context.Context, actor membership.Actor, orderID string) (*TransitionList, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	party, err := s.partyOf(actor, o)
	if err != nil {
		// Unassigned suppliers still get an answer for open orders they
		// could claim or were invited to.
		if actor.IsSupplier() && errors.Is(err, shared.ErrForbidden) {
			party = PartySupplier
		} else {
			return nil, err
		}
	}

	var options []TransitionOption
	for _, t := range legalFor(o, party) {
		options = append(options, TransitionOption{Status: t.Target, Label: t.Label})
	}
	if party == PartySupplier && (o.Status == StatusLaunched || o.Status == StatusOpenToMarket) {
		if o.Status == StatusOpenToMarket || s.eligibleToAccept(o, actor.CompanyID) {
			options = append(options, TransitionOption{Status: StatusAccepted, Label: "Aceitar pedido"})
			if o.AssignmentType == AssignmentDirect && o.Status == StatusLaunched {
				options = append(options, TransitionOption{Status: StatusOpenToMarket, Label: "Recusar pedido"})
			}
		}
	}

	list := &TransitionList{CanAdvance: len(options) > 0, Transitions: options}
	if !list.CanAdvance {
		if wp, label := waitingParty(o); wp != "" {
			list.WaitingFor = &wp
			list.WaitingLabel = &label
		}
	}
	return list, nil
}

// Get returns the order redacted for the actor.
func (s *Service) Get(ctx context.Context, actor membership.Actor, orderID string) (*OrderView, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return ViewForActor(o, actor), nil
}

// partyOf maps the actor onto the order's brand or assigned supplier side.
func (s *Service) partyOf(actor membership.Actor, o *Order) (Party, error) {
	switch {
	case actor.IsBrand() && actor.CompanyID == o.BrandID:
		return PartyBrand, nil
	case actor.IsSupplier() && o.AssignedTo(actor.CompanyID):
		return PartySupplier, nil
	}
	return "", fmt.Errorf("orders: company %d is not a party of order %s: %w", actor.CompanyID, o.DisplayID, shared.ErrForbidden)
}

func (s *Service) historyEntry(orderID string, previous *Status, next Status, actor membership.Actor, notes *string, at time.Time) StatusHistoryEntry {
	return StatusHistoryEntry{
		ID:             s.newID(),
		OrderID:        orderID,
		PreviousStatus: previous,
		NewStatus:      next,
		ActorID:        actor.UserID,
		ActorName:      actor.DisplayName,
		Notes:          notes,
		CreatedAt:      at,
	}
}

func (s *Service) emitCreated(ctx context.Context, o *Order, actor membership.Actor) {
	if s.sink == nil || o == nil {
		return
	}
	evt := OrderCreatedEvent{
		OrderID:         o.ID,
		DisplayID:       o.DisplayID,
		BrandID:         o.BrandID,
		SupplierID:      o.SupplierID,
		AssignmentType:  o.AssignmentType,
		Origin:          o.Origin,
		Quantity:        o.Quantity,
		TotalValueCents: o.TotalValueCents,
		ActorID:         actor.UserID,
		ActorName:       actor.DisplayName,
	}
	if err := s.sink.HandleOrderCreated(ctx, evt); err != nil {
		s.logger.Warn("emit order created", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func (s *Service) emitStatusChanged(ctx context.Context, o *Order, previous, next Status, actor membership.Actor, notes *string) {
	if s.sink == nil {
		return
	}
	evt := OrderStatusChangedEvent{
		OrderID:        o.ID,
		DisplayID:      o.DisplayID,
		BrandID:        o.BrandID,
		SupplierID:     o.SupplierID,
		PreviousStatus: previous,
		NewStatus:      next,
		ActorID:        actor.UserID,
		ActorName:      actor.DisplayName,
		Notes:          notes,
	}
	if err := s.sink.HandleOrderStatusChanged(ctx, evt); err != nil {
		s.logger.Warn("emit status changed", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func (s *Service) emitFinalized(ctx context.Context, o *Order, actor membership.Actor) {
	if s.sink == nil {
		return
	}
	evt := OrderFinalizedEvent{
		OrderID:       o.ID,
		DisplayID:     o.DisplayID,
		BrandID:       o.BrandID,
		SupplierID:    o.SupplierID,
		NetValueCents: o.NetValueCents,
		ActorID:       actor.UserID,
		ActorName:     actor.DisplayName,
	}
	if err := s.sink.HandleOrderFinalized(ctx, evt); err != nil {
		s.logger.Warn("emit finalized", slog.String("order_id", o.ID), slog.Any("error", err))
	}
}

func strPtr(s string) *string { return &s }
