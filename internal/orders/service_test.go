package orders

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/shared"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestService(repo *memoryOrderRepo, sink Sink) *Service {
	svc := NewService(repo, sink, testLogger())
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%04d", seq)
	}
	return svc
}

func brandActor(userID, companyID int64) membership.Actor {
	return membership.Actor{
		CompanyUser: membership.CompanyUser{
			UserID:      userID,
			CompanyID:   companyID,
			CompanyType: membership.CompanyTypeBrand,
			Role:        membership.RoleManager,
			IsActive:    true,
			DisplayName: fmt.Sprintf("brand-user-%d", userID),
		},
	}
}

func supplierActor(userID, companyID int64) membership.Actor {
	return membership.Actor{
		CompanyUser: membership.CompanyUser{
			UserID:      userID,
			CompanyID:   companyID,
			CompanyType: membership.CompanyTypeSupplier,
			Role:        membership.RoleManager,
			IsActive:    true,
			DisplayName: fmt.Sprintf("supplier-user-%d", userID),
		},
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestCreateDirectOrder(t *testing.T) {
	repo := newMemoryOrderRepo()
	sink := &capturedEvents{}
	svc := newTestService(repo, sink)
	brand := brandActor(1, 10)

	o, err := svc.Create(context.Background(), brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "CAMISA-POLO-001",
		Description:       "Lote de camisas polo",
		Quantity:          100,
		PricePerUnitCents: 5000,
	})
	require.NoError(t, err)

	require.Equal(t, StatusLaunched, o.Status)
	require.Equal(t, OriginOriginal, o.Origin)
	require.Equal(t, int64(500000), o.TotalValueCents)
	require.Equal(t, int64(50000), o.PlatformFeeCents)
	require.Equal(t, int64(450000), o.NetValueCents)
	require.Equal(t, o.TotalValueCents, o.PlatformFeeCents+o.NetValueCents)
	require.Regexp(t, `^TX-20260310-[A-Z0-9]{4}$`, o.DisplayID)
	require.Len(t, o.StatusHistory, 1)
	require.Nil(t, o.StatusHistory[0].PreviousStatus)
	require.Equal(t, StatusLaunched, o.StatusHistory[0].NewStatus)

	// 30-day default deadline.
	require.Equal(t, time.Date(2026, 4, 9, 12, 0, 0, 0, time.UTC), o.DeliveryDeadline)

	require.Len(t, sink.created, 1)
	require.Equal(t, o.ID, sink.created[0].OrderID)
}

func TestCreateFinancialSplitIsExact(t *testing.T) {
	cases := []struct {
		quantity int
		price    int64
	}{
		{100, 5000},
		{1, 1},
		{3, 333},
		{7, 99},
		{1234, 56789},
	}
	for _, tc := range cases {
		total, fee, net := ComputeFinancials(tc.quantity, tc.price)
		require.Equal(t, total, fee+net, "quantity=%d price=%d", tc.quantity, tc.price)
		require.Equal(t, int64(tc.quantity)*tc.price, total)
	}
}

func TestCreateValidation(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	brand := brandActor(1, 10)
	ctx := context.Background()

	_, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		ProductRef:        "X",
		Description:       "sem fornecedor",
		Quantity:          10,
		PricePerUnitCents: 100,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentBidding,
		ProductRef:        "X",
		Description:       "sem convidados",
		Quantity:          10,
		PricePerUnitCents: 100,
	})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, supplierActor(2, 20), CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "X",
		Description:       "facção criando pedido",
		Quantity:          10,
		PricePerUnitCents: 100,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAcceptDirectOrder(t *testing.T) {
	repo := newMemoryOrderRepo()
	sink := &capturedEvents{}
	svc := newTestService(repo, sink)
	ctx := context.Background()

	o, err := svc.Create(ctx, brandActor(1, 10), CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-1",
		Description:       "lote",
		Quantity:          50,
		PricePerUnitCents: 1000,
	})
	require.NoError(t, err)

	// A different supplier may not claim a DIRECT order.
	_, err = svc.Accept(ctx, supplierActor(9, 99), o.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)

	accepted, err := svc.Accept(ctx, supplierActor(2, 20), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Equal(t, int64(20), *accepted.SupplierID)
	require.Equal(t, int64(2), *accepted.AcceptedByID)
	require.NotNil(t, accepted.AcceptedAt)
	require.Len(t, accepted.StatusHistory, 2)

	// Accepting twice is an invalid transition, not a silent no-op.
	_, err = svc.Accept(ctx, supplierActor(2, 20), o.ID)
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestBiddingWinnerTakesAll(t *testing.T) {
	repo := newMemoryOrderRepo()
	sink := &capturedEvents{}
	svc := newTestService(repo, sink)
	ctx := context.Background()

	o, err := svc.Create(ctx, brandActor(1, 10), CreateOrderInput{
		AssignmentType:    AssignmentBidding,
		TargetSupplierIDs: []int64{20, 21, 22},
		ProductRef:        "REF-B",
		Description:       "licitação",
		Quantity:          10,
		PricePerUnitCents: 2500,
	})
	require.NoError(t, err)
	require.Len(t, o.TargetSuppliers, 3)

	accepted, err := svc.Accept(ctx, supplierActor(5, 21), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, accepted.Status)
	require.Equal(t, int64(21), *accepted.SupplierID)

	statuses := map[int64]TargetStatus{}
	for _, target := range accepted.TargetSuppliers {
		statuses[target.SupplierID] = target.Status
	}
	require.Equal(t, TargetAccepted, statuses[21])
	require.Equal(t, TargetRejected, statuses[20])
	require.Equal(t, TargetRejected, statuses[22])

	// The status-changed event names the winner even though the order had
	// no supplier before the acceptance.
	require.Len(t, sink.changed, 1)
	require.NotNil(t, sink.changed[0].SupplierID)
	require.Equal(t, int64(21), *sink.changed[0].SupplierID)

	// An uninvited supplier cannot accept a BIDDING order.
	o2, err := svc.Create(ctx, brandActor(1, 10), CreateOrderInput{
		AssignmentType:    AssignmentBidding,
		TargetSupplierIDs: []int64{30},
		ProductRef:        "REF-B2",
		Description:       "licitação",
		Quantity:          10,
		PricePerUnitCents: 2500,
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, supplierActor(6, 31), o2.ID)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestBiddingSingleRejectionKeepsOrderOpen(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	o, err := svc.Create(ctx, brandActor(1, 10), CreateOrderInput{
		AssignmentType:    AssignmentBidding,
		TargetSupplierIDs: []int64{20, 21},
		ProductRef:        "REF-B3",
		Description:       "licitação",
		Quantity:          10,
		PricePerUnitCents: 2500,
	})
	require.NoError(t, err)

	after, err := svc.Reject(ctx, supplierActor(5, 20), o.ID, strPtr("agenda cheia"))
	require.NoError(t, err)
	require.Equal(t, StatusLaunched, after.Status)

	var rejected *TargetSupplier
	for i := range after.TargetSuppliers {
		if after.TargetSuppliers[i].SupplierID == 20 {
			rejected = &after.TargetSuppliers[i]
		}
	}
	require.NotNil(t, rejected)
	require.Equal(t, TargetRejected, rejected.Status)
	require.Equal(t, "agenda cheia", *rejected.Reason)

	// Last invitee declining reopens the order to the market.
	final, err := svc.Reject(ctx, supplierActor(6, 21), o.ID, nil)
	require.NoError(t, err)
	require.Equal(t, StatusOpenToMarket, final.Status)
}

func TestDirectRejectionReopensToMarket(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()

	o, err := svc.Create(ctx, brandActor(1, 10), CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-D",
		Description:       "lote",
		Quantity:          10,
		PricePerUnitCents: 1000,
	})
	require.NoError(t, err)

	after, err := svc.Reject(ctx, supplierActor(2, 20), o.ID, strPtr("capacidade esgotada"))
	require.NoError(t, err)
	require.Equal(t, StatusOpenToMarket, after.Status)
	require.Nil(t, after.SupplierID)
	require.Equal(t, "capacidade esgotada", *after.RejectionReason)

	// Any active supplier can now claim the reopened order.
	claimed, err := svc.Accept(ctx, supplierActor(7, 70), o.ID)
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, claimed.Status)
	require.Equal(t, int64(70), *claimed.SupplierID)
}

func TestUpdateStatusProductionChain(t *testing.T) {
	repo := newMemoryOrderRepo()
	sink := &capturedEvents{}
	svc := newTestService(repo, sink)
	ctx := context.Background()
	brand := brandActor(1, 10)
	supplier := supplierActor(2, 20)

	o, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-CHAIN",
		Description:       "cadeia completa",
		Quantity:          100,
		PricePerUnitCents: 5000,
		MaterialsProvided: true,
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, supplier, o.ID)
	require.NoError(t, err)

	// With materials provided, outbound prep is the brand's move; the
	// supplier attempting it is Forbidden, not InvalidTransition.
	_, err = svc.UpdateStatus(ctx, supplier, o.ID, UpdateStatusInput{Status: StatusOutboundPrep})
	require.ErrorIs(t, err, shared.ErrForbidden)

	chain := []struct {
		actor  membership.Actor
		status Status
	}{
		{brand, StatusOutboundPrep},
		{brand, StatusInTransitToSupplier},
		{supplier, StatusInboundPrep},
		{supplier, StatusInProduction},
		{supplier, StatusReady},
		{supplier, StatusInTransitToBrand},
		{brand, StatusInReview},
	}
	for _, step := range chain {
		o2, err := svc.UpdateStatus(ctx, step.actor, o.ID, UpdateStatusInput{Status: step.status})
		require.NoError(t, err, "to %s", step.status)
		require.Equal(t, step.status, o2.Status)
	}

	final, err := svc.repo.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	// create + accept + 7 transitions.
	require.Len(t, final.StatusHistory, 9)
	prev := final.StatusHistory[0].NewStatus
	for _, entry := range final.StatusHistory[1:] {
		require.Equal(t, prev, *entry.PreviousStatus)
		prev = entry.NewStatus
	}
}

func TestUpdateStatusRejectsIllegalJumps(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	brand := brandActor(1, 10)
	supplier := supplierActor(2, 20)

	o, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-J",
		Description:       "pulos ilegais",
		Quantity:          10,
		PricePerUnitCents: 1000,
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, supplier, o.ID)
	require.NoError(t, err)

	// FINALIZADO is unreachable directly from ACEITO.
	_, err = svc.UpdateStatus(ctx, supplier, o.ID, UpdateStatusInput{Status: StatusFinalized})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	// Review statuses are reachable only through the review engine.
	_, err = svc.UpdateStatus(ctx, brand, o.ID, UpdateStatusInput{Status: StatusRejected})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	// Materials not provided: the material steps do not exist on this order.
	_, err = svc.UpdateStatus(ctx, brand, o.ID, UpdateStatusInput{Status: StatusOutboundPrep})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)

	// The supplier enters the production queue instead.
	o2, err := svc.UpdateStatus(ctx, supplier, o.ID, UpdateStatusInput{Status: StatusProductionQueue})
	require.NoError(t, err)
	require.Equal(t, StatusProductionQueue, o2.Status)
}

func TestBrandCanCancelUntilTerminal(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	brand := brandActor(1, 10)

	o, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-C",
		Description:       "cancelamento",
		Quantity:          10,
		PricePerUnitCents: 1000,
	})
	require.NoError(t, err)

	// The supplier cannot cancel.
	_, err = svc.UpdateStatus(ctx, supplierActor(2, 20), o.ID, UpdateStatusInput{Status: StatusCancelled})
	require.ErrorIs(t, err, shared.ErrForbidden)

	cancelled, err := svc.UpdateStatus(ctx, brand, o.ID, UpdateStatusInput{
		Status:          StatusCancelled,
		RejectionReason: strPtr("coleção descontinuada"),
	})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	// The reason survives on the aggregate, not only in the history note.
	require.NotNil(t, cancelled.RejectionReason)
	require.Equal(t, "coleção descontinuada", *cancelled.RejectionReason)

	// Terminal: nothing moves out.
	_, err = svc.UpdateStatus(ctx, brand, o.ID, UpdateStatusInput{Status: StatusLaunched})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestUpdateStatusConcurrentWriterLoses(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	brand := brandActor(1, 10)
	supplier := supplierActor(2, 20)

	o, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-CC",
		Description:       "corrida",
		Quantity:          10,
		PricePerUnitCents: 1000,
	})
	require.NoError(t, err)
	_, err = svc.Accept(ctx, supplier, o.ID)
	require.NoError(t, err)

	// Another writer committed between this caller's snapshot and its
	// guarded write; the write loses and the caller sees a conflict.
	repo.failNextTx = fmt.Errorf("orders: order %s changed concurrently: %w", o.DisplayID, shared.ErrConflict)
	_, err = svc.UpdateStatus(ctx, supplier, o.ID, UpdateStatusInput{Status: StatusProductionQueue})
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestAvailableTransitions(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)
	ctx := context.Background()
	brand := brandActor(1, 10)
	supplier := supplierActor(2, 20)

	o, err := svc.Create(ctx, brand, CreateOrderInput{
		AssignmentType:    AssignmentDirect,
		SupplierID:        int64Ptr(20),
		ProductRef:        "REF-T",
		Description:       "opções",
		Quantity:          10,
		PricePerUnitCents: 1000,
		MaterialsProvided: true,
	})
	require.NoError(t, err)

	// At launch, the invited supplier sees accept and decline options.
	list, err := svc.AvailableTransitions(ctx, supplier, o.ID)
	require.NoError(t, err)
	require.True(t, list.CanAdvance)
	var statuses []Status
	for _, opt := range list.Transitions {
		statuses = append(statuses, opt.Status)
	}
	require.Contains(t, statuses, StatusAccepted)

	_, err = svc.Accept(ctx, supplier, o.ID)
	require.NoError(t, err)

	// After acceptance with materials provided, the supplier waits on the
	// brand and is told so.
	list, err = svc.AvailableTransitions(ctx, supplier, o.ID)
	require.NoError(t, err)
	require.False(t, list.CanAdvance)
	require.NotNil(t, list.WaitingFor)
	require.Equal(t, PartyBrand, *list.WaitingFor)

	list, err = svc.AvailableTransitions(ctx, brand, o.ID)
	require.NoError(t, err)
	require.True(t, list.CanAdvance)
	statuses = statuses[:0]
	for _, opt := range list.Transitions {
		statuses = append(statuses, opt.Status)
	}
	require.Contains(t, statuses, StatusOutboundPrep)
	require.Contains(t, statuses, StatusCancelled)
}

func TestGetNotFound(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc := newTestService(repo, nil)

	_, err := svc.Get(context.Background(), brandActor(1, 10), "missing")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
