package orders

import "time"

// Status is the order lifecycle status. Values are the marketplace's
// canonical Portuguese codes and are stored as-is.
type Status string

const (
	StatusLaunched            Status = "LANCADO_PELA_MARCA"
	StatusAccepted            Status = "ACEITO_PELA_FACCAO"
	StatusOutboundPrep        Status = "EM_PREPARACAO_SAIDA_MARCA"
	StatusInTransitToSupplier Status = "EM_TRANSITO_PARA_FACCAO"
	StatusInboundPrep         Status = "EM_PREPARACAO_ENTRADA_FACCAO"
	StatusProductionQueue     Status = "FILA_DE_PRODUCAO"
	StatusInProduction        Status = "EM_PRODUCAO"
	StatusReady               Status = "PRONTO"
	StatusInTransitToBrand    Status = "EM_TRANSITO_PARA_MARCA"
	StatusInReview            Status = "EM_REVISAO"
	StatusFinalized           Status = "FINALIZADO"
	StatusPartiallyApproved   Status = "PARCIALMENTE_APROVADO"
	StatusRejected            Status = "REPROVADO"
	StatusAwaitingRework      Status = "AGUARDANDO_RETRABALHO"
	StatusOpenToMarket        Status = "DISPONIVEL_PARA_OUTRAS"
	StatusCancelled           Status = "CANCELADO"
)

// IsTerminal reports whether no further transition may leave the status.
func (s Status) IsTerminal() bool {
	return s == StatusFinalized || s == StatusCancelled
}

// AssignmentType selects the supplier targeting strategy. Immutable after
// creation.
type AssignmentType string

const (
	AssignmentDirect  AssignmentType = "DIRECT"
	AssignmentBidding AssignmentType = "BIDDING"
	AssignmentHybrid  AssignmentType = "HYBRID"
)

// Origin distinguishes originals from rework children.
type Origin string

const (
	OriginOriginal Origin = "ORIGINAL"
	OriginRework   Origin = "REWORK"
)

// TargetStatus tracks one invited supplier's response on a BIDDING/HYBRID
// order.
type TargetStatus string

const (
	TargetPending  TargetStatus = "PENDING"
	TargetAccepted TargetStatus = "ACCEPTED"
	TargetRejected TargetStatus = "REJECTED"
)

// ReviewResult classifies a quality-review pass. Derived, never
// client-supplied.
type ReviewResult string

const (
	ResultApproved ReviewResult = "APPROVED"
	ResultPartial  ReviewResult = "PARTIAL"
	ResultRejected ReviewResult = "REJECTED"
)

// Order is the central aggregate. It exclusively owns its history, target
// rows, reviews and second-quality items; brand and supplier are referenced
// by company ID only.
type Order struct {
	ID             string
	DisplayID      string
	BrandID        int64
	SupplierID     *int64
	AssignmentType AssignmentType

	ProductRef  string
	Description string

	// Commercial terms in integer cents. TotalValueCents is always exactly
	// PlatformFeeCents + NetValueCents.
	Quantity          int
	PricePerUnitCents int64
	TotalValueCents   int64
	PlatformFeeCents  int64
	NetValueCents     int64

	Status            Status
	MaterialsProvided bool
	DeliveryDeadline  time.Time
	Notes             *string

	AcceptedAt      *time.Time
	AcceptedByID    *int64
	RejectionReason *string

	ParentOrderID  *string
	RevisionNumber int
	Origin         Origin

	// Review counters, monotonically incremented.
	TotalReviewCount   int
	ApprovalCount      int
	RejectionCount     int
	SecondQualityCount int

	CreatedAt time.Time
	UpdatedAt time.Time

	StatusHistory      []StatusHistoryEntry
	TargetSuppliers    []TargetSupplier
	Reviews            []Review
	SecondQualityItems []SecondQualityItem
}

// AssignedTo reports whether the order is currently assigned to the company.
func (o *Order) AssignedTo(companyID int64) bool {
	return o.SupplierID != nil && *o.SupplierID == companyID
}

// PendingTarget returns the PENDING target row for the company, if any.
func (o *Order) PendingTarget(companyID int64) *TargetSupplier {
	for i := range o.TargetSuppliers {
		t := &o.TargetSuppliers[i]
		if t.SupplierID == companyID && t.Status == TargetPending {
			return t
		}
	}
	return nil
}

// StatusHistoryEntry is an immutable audit record of one transition.
type StatusHistoryEntry struct {
	ID             string
	OrderID        string
	PreviousStatus *Status
	NewStatus      Status
	ActorID        int64
	ActorName      string
	Notes          *string
	CreatedAt      time.Time
}

// TargetSupplier is one invited supplier on a BIDDING/HYBRID order.
type TargetSupplier struct {
	ID          string
	OrderID     string
	SupplierID  int64
	Status      TargetStatus
	Reason      *string
	RespondedAt *time.Time
	CreatedAt   time.Time
}

// Review is one quality-review pass over the produced quantity.
type Review struct {
	ID                    string
	OrderID               string
	Type                  string
	Result                ReviewResult
	TotalQuantity         int
	ApprovedQuantity      int
	RejectedQuantity      int
	SecondQualityQuantity int
	Notes                 *string
	CreatedByID           int64
	CreatedAt             time.Time
	RejectedItems         []RejectedItem
}

// RejectedItem is one defect line inside a review.
type RejectedItem struct {
	ID                string
	ReviewID          string
	Reason            string
	Quantity          int
	DefectDescription string
	ReworkRequired    bool
	CreatedAt         time.Time
}

// SecondQualityItem records defect-discounted units. OriginalUnitValueCents
// is copied from the order's price at creation time and never re-derived.
type SecondQualityItem struct {
	ID                     string
	OrderID                string
	ReviewID               *string
	Description            string
	Quantity               int
	OriginalUnitValueCents int64
	DiscountPercentage     int
	CreatedAt              time.Time
}

// ComputeFinancials derives the commercial split from quantity and unit
// price. The platform fee is 10% of the total, rounded half up in cents, so
// total = fee + net holds exactly for every valid input.
func ComputeFinancials(quantity int, pricePerUnitCents int64) (total, fee, net int64) {
	total = int64(quantity) * pricePerUnitCents
	fee = (total + 5) / 10
	net = total - fee
	return total, fee, net
}
