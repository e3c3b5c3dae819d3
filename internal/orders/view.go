package orders

import (
	"time"

	"github.com/texlink/texlink/internal/membership"
)

// OrderView is the actor-scoped read model. Suppliers never see the platform
// fee: their totalValue and pricePerUnit are the fee-deducted net figures and
// platformFee is omitted from the payload.
type OrderView struct {
	ID             string         `json:"id"`
	DisplayID      string         `json:"displayId"`
	BrandID        int64          `json:"brandId"`
	SupplierID     *int64         `json:"supplierId,omitempty"`
	AssignmentType AssignmentType `json:"assignmentType"`

	ProductRef  string `json:"productRef"`
	Description string `json:"description"`

	Quantity          int    `json:"quantity"`
	PricePerUnitCents int64  `json:"pricePerUnitCents"`
	TotalValueCents   int64  `json:"totalValueCents"`
	PlatformFeeCents  *int64 `json:"platformFeeCents,omitempty"`
	NetValueCents     *int64 `json:"netValueCents,omitempty"`

	Status            Status     `json:"status"`
	StatusLabel       string     `json:"statusLabel"`
	MaterialsProvided bool       `json:"materialsProvided"`
	DeliveryDeadline  time.Time  `json:"deliveryDeadline"`
	Notes             *string    `json:"notes,omitempty"`
	AcceptedAt        *time.Time `json:"acceptedAt,omitempty"`
	RejectionReason   *string    `json:"rejectionReason,omitempty"`

	ParentOrderID  *string `json:"parentOrderId,omitempty"`
	RevisionNumber int     `json:"revisionNumber"`
	Origin         Origin  `json:"origin"`

	TotalReviewCount   int `json:"totalReviewCount"`
	ApprovalCount      int `json:"approvalCount"`
	RejectionCount     int `json:"rejectionCount"`
	SecondQualityCount int `json:"secondQualityCount"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	StatusHistory      []StatusHistoryEntry `json:"statusHistory,omitempty"`
	TargetSuppliers    []TargetSupplier     `json:"targetSuppliers,omitempty"`
	Reviews            []Review             `json:"reviews,omitempty"`
	SecondQualityItems []SecondQualityItem  `json:"secondQualityItems,omitempty"`
}

// ViewForActor projects an order for the given actor. Brands see the full
// commercial split; suppliers see net figures only and no target list beyond
// their own row.
func ViewForActor(o *Order, actor membership.Actor) *OrderView {
	v := &OrderView{
		ID:                 o.ID,
		DisplayID:          o.DisplayID,
		BrandID:            o.BrandID,
		SupplierID:         o.SupplierID,
		AssignmentType:     o.AssignmentType,
		ProductRef:         o.ProductRef,
		Description:        o.Description,
		Quantity:           o.Quantity,
		PricePerUnitCents:  o.PricePerUnitCents,
		TotalValueCents:    o.TotalValueCents,
		Status:             o.Status,
		StatusLabel:        StatusLabel(o.Status),
		MaterialsProvided:  o.MaterialsProvided,
		DeliveryDeadline:   o.DeliveryDeadline,
		Notes:              o.Notes,
		AcceptedAt:         o.AcceptedAt,
		RejectionReason:    o.RejectionReason,
		ParentOrderID:      o.ParentOrderID,
		RevisionNumber:     o.RevisionNumber,
		Origin:             o.Origin,
		TotalReviewCount:   o.TotalReviewCount,
		ApprovalCount:      o.ApprovalCount,
		RejectionCount:     o.RejectionCount,
		SecondQualityCount: o.SecondQualityCount,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		StatusHistory:      o.StatusHistory,
		Reviews:            o.Reviews,
		SecondQualityItems: o.SecondQualityItems,
	}

	if actor.IsBrand() && actor.CompanyID == o.BrandID {
		fee := o.PlatformFeeCents
		net := o.NetValueCents
		v.PlatformFeeCents = &fee
		v.NetValueCents = &net
		v.TargetSuppliers = o.TargetSuppliers
		return v
	}

	// Supplier projection: the fee-deducted amount is the only total the
	// supplier ever sees, and the per-unit price is rescaled to match.
	v.TotalValueCents = o.NetValueCents
	if o.Quantity > 0 {
		v.PricePerUnitCents = o.NetValueCents / int64(o.Quantity)
	}
	for _, t := range o.TargetSuppliers {
		if t.SupplierID == actor.CompanyID {
			v.TargetSuppliers = []TargetSupplier{t}
			break
		}
	}
	return v
}
