package orders

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/texlink/texlink/internal/membership"
	"github.com/texlink/texlink/internal/platform/httpx"
)

// Handler exposes the order lifecycle over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	auth     *membership.Middleware
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, auth *membership.Middleware) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		auth:     auth,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersCreate))
		r.Post("/", h.createOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersAccept))
		r.Post("/{id}/accept", h.acceptOrder)
		r.Post("/{id}/reject", h.rejectOrder)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersTransition))
		r.Post("/{id}/status", h.updateStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersReview))
		r.Post("/{id}/reviews", h.createReview)
		r.Post("/{id}/second-quality", h.addSecondQuality)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersRework))
		r.Post("/{id}/rework", h.createRework)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Require(membership.PermOrdersView))
		r.Get("/{id}", h.getOrder)
		r.Get("/{id}/transitions", h.getTransitions)
	})
}

type createOrderRequest struct {
	AssignmentType    string  `json:"assignmentType" validate:"required,oneof=DIRECT BIDDING HYBRID"`
	SupplierID        *int64  `json:"supplierId" validate:"omitempty,gt=0"`
	TargetSupplierIDs []int64 `json:"targetSupplierIds" validate:"omitempty,dive,gt=0"`
	ProductRef        string  `json:"productRef" validate:"required,max=120"`
	Description       string  `json:"description" validate:"required,max=2000"`
	Quantity          int     `json:"quantity" validate:"required,gt=0"`
	PricePerUnitCents int64   `json:"pricePerUnitCents" validate:"required,gt=0"`
	MaterialsProvided bool    `json:"materialsProvided"`
	DeliveryDeadline  *string `json:"deliveryDeadline" validate:"omitempty"`
	Notes             *string `json:"notes" validate:"omitempty,max=2000"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	deadline, err := parseDeadline(req.DeliveryDeadline)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deliveryDeadline must be RFC3339")
		return
	}

	order, err := h.service.Create(r.Context(), actor, CreateOrderInput{
		AssignmentType:    AssignmentType(req.AssignmentType),
		SupplierID:        req.SupplierID,
		TargetSupplierIDs: req.TargetSupplierIDs,
		ProductRef:        req.ProductRef,
		Description:       req.Description,
		Quantity:          req.Quantity,
		PricePerUnitCents: req.PricePerUnitCents,
		MaterialsProvided: req.MaterialsProvided,
		DeliveryDeadline:  deadline,
		Notes:             req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ViewForActor(order, actor))
}

func (h *Handler) acceptOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	order, err := h.service.Accept(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ViewForActor(order, actor))
}

type rejectOrderRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=2000"`
}

func (h *Handler) rejectOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req rejectOrderRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
			return
		}
	}
	order, err := h.service.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ViewForActor(order, actor))
}

type updateStatusRequest struct {
	Status          string  `json:"status" validate:"required"`
	Notes           *string `json:"notes" validate:"omitempty,max=2000"`
	RejectionReason *string `json:"rejectionReason" validate:"omitempty,max=2000"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req updateStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	order, err := h.service.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), UpdateStatusInput{
		Status:          Status(req.Status),
		Notes:           req.Notes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ViewForActor(order, actor))
}

type reviewItemRequest struct {
	Reason            string `json:"reason" validate:"required,max=200"`
	Quantity          int    `json:"quantity" validate:"required,gt=0"`
	DefectDescription string `json:"defectDescription" validate:"omitempty,max=2000"`
	ReworkRequired    bool   `json:"reworkRequired"`
}

type secondQualityItemRequest struct {
	Description        string `json:"description" validate:"required,max=500"`
	Quantity           int    `json:"quantity" validate:"required,gt=0"`
	DiscountPercentage int    `json:"discountPercentage" validate:"gte=0,lte=100"`
}

type createReviewRequest struct {
	Type                  string                     `json:"type" validate:"required,max=60"`
	TotalQuantity         int                        `json:"totalQuantity" validate:"required,gt=0"`
	ApprovedQuantity      int                        `json:"approvedQuantity" validate:"gte=0"`
	RejectedQuantity      int                        `json:"rejectedQuantity" validate:"gte=0"`
	SecondQualityQuantity int                        `json:"secondQualityQuantity" validate:"gte=0"`
	Notes                 *string                    `json:"notes" validate:"omitempty,max=2000"`
	RejectedItems         []reviewItemRequest        `json:"rejectedItems" validate:"omitempty,dive"`
	SecondQualityItems    []secondQualityItemRequest `json:"secondQualityItems" validate:"omitempty,dive"`
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createReviewRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	input := CreateReviewInput{
		Type:                  req.Type,
		TotalQuantity:         req.TotalQuantity,
		ApprovedQuantity:      req.ApprovedQuantity,
		RejectedQuantity:      req.RejectedQuantity,
		SecondQualityQuantity: req.SecondQualityQuantity,
		Notes:                 req.Notes,
	}
	for _, item := range req.RejectedItems {
		input.RejectedItems = append(input.RejectedItems, RejectedItemInput{
			Reason:            item.Reason,
			Quantity:          item.Quantity,
			DefectDescription: item.DefectDescription,
			ReworkRequired:    item.ReworkRequired,
		})
	}
	for _, item := range req.SecondQualityItems {
		input.SecondQualityItems = append(input.SecondQualityItems, SecondQualityItemInput{
			Description:        item.Description,
			Quantity:           item.Quantity,
			DiscountPercentage: item.DiscountPercentage,
		})
	}

	review, err := h.service.CreateReview(r.Context(), actor, chi.URLParam(r, "id"), input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, review)
}

type addSecondQualityRequest struct {
	Items []secondQualityItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (h *Handler) addSecondQuality(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req addSecondQualityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	inputs := make([]SecondQualityItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		inputs = append(inputs, SecondQualityItemInput{
			Description:        item.Description,
			Quantity:           item.Quantity,
			DiscountPercentage: item.DiscountPercentage,
		})
	}
	items, err := h.service.AddSecondQualityItems(r.Context(), actor, chi.URLParam(r, "id"), inputs)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, items)
}

type createReworkRequest struct {
	Quantity         int     `json:"quantity" validate:"gte=0"`
	DeliveryDeadline *string `json:"deliveryDeadline" validate:"omitempty"`
	Notes            *string `json:"notes" validate:"omitempty,max=2000"`
}

func (h *Handler) createRework(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	var req createReworkRequest
	if r.ContentLength > 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Payload", err.Error())
			return
		}
		if err := h.validate.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
			return
		}
	}
	deadline, err := parseDeadline(req.DeliveryDeadline)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "deliveryDeadline must be RFC3339")
		return
	}
	child, err := h.service.CreateChildOrder(r.Context(), actor, chi.URLParam(r, "id"), CreateReworkInput{
		Quantity:         req.Quantity,
		DeliveryDeadline: deadline,
		Notes:            req.Notes,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ViewForActor(child, actor))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	view, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) getTransitions(w http.ResponseWriter, r *http.Request) {
	actor, ok := membership.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor")
		return
	}
	list, err := h.service.AvailableTransitions(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func parseDeadline(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
