package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/texlink/texlink/internal/platform/db"
	"github.com/texlink/texlink/internal/shared"
)

// RepositoryPort describes persistence operations used by the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id string) (*Order, error)
}

// TxRepository exposes the transactional write surface. Every mutating
// operation of the service runs inside a single WithTx callback so an order,
// its history and its counters always change together or not at all.
type TxRepository interface {
	GetOrder(ctx context.Context, id string) (*Order, error)
	InsertOrder(ctx context.Context, o Order) error
	InsertHistory(ctx context.Context, entry StatusHistoryEntry) error
	InsertTarget(ctx context.Context, target TargetSupplier) error

	// UpdateOrderStatus writes to only when the stored status still equals
	// from, reporting whether the guarded write won.
	UpdateOrderStatus(ctx context.Context, id string, from, to Status) (bool, error)
	SetAcceptance(ctx context.Context, id string, supplierID, acceptedBy int64, at time.Time) error
	ClearAssignment(ctx context.Context, id string, reason *string) error
	SetRejectionReason(ctx context.Context, id string, reason *string) error

	UpdateTargetStatus(ctx context.Context, orderID string, supplierID int64, from, to TargetStatus, reason *string, at time.Time) (bool, error)
	RejectPendingTargets(ctx context.Context, orderID string, exceptSupplierID int64, at time.Time) error
	CountPendingTargets(ctx context.Context, orderID string) (int, error)

	InsertReview(ctx context.Context, review Review) error
	InsertRejectedItem(ctx context.Context, item RejectedItem) error
	InsertSecondQualityItem(ctx context.Context, item SecondQualityItem) error
	ApplyReviewCounters(ctx context.Context, orderID string, reviews, approvals, rejections, secondQuality int) error

	ListChildren(ctx context.Context, parentID string) ([]Order, error)
}

// Repository provides PostgreSQL backed persistence for orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	q querier
}

// WithTx wraps fn in a RepeatableRead transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{q: tx})
	})
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const orderColumns = `
	id, display_id, brand_id, supplier_id, assignment_type,
	product_ref, description,
	quantity, price_per_unit_cents, total_value_cents, platform_fee_cents, net_value_cents,
	status, materials_provided, delivery_deadline, notes,
	accepted_at, accepted_by_id, rejection_reason,
	parent_order_id, revision_number, origin,
	total_review_count, approval_count, rejection_count, second_quality_count,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(
		&o.ID, &o.DisplayID, &o.BrandID, &o.SupplierID, &o.AssignmentType,
		&o.ProductRef, &o.Description,
		&o.Quantity, &o.PricePerUnitCents, &o.TotalValueCents, &o.PlatformFeeCents, &o.NetValueCents,
		&o.Status, &o.MaterialsProvided, &o.DeliveryDeadline, &o.Notes,
		&o.AcceptedAt, &o.AcceptedByID, &o.RejectionReason,
		&o.ParentOrderID, &o.RevisionNumber, &o.Origin,
		&o.TotalReviewCount, &o.ApprovalCount, &o.RejectionCount, &o.SecondQualityCount,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// GetOrder loads the aggregate with its owned collections.
func (r *Repository) GetOrder(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, r.pool, id)
}

func (t *txRepo) GetOrder(ctx context.Context, id string) (*Order, error) {
	return getOrder(ctx, t.q, id)
}

func getOrder(ctx context.Context, q querier, id string) (*Order, error) {
	o, err := scanOrder(q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("orders: order %s: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("orders: get order: %w", err)
	}
	if o.StatusHistory, err = loadHistory(ctx, q, id); err != nil {
		return nil, err
	}
	if o.TargetSuppliers, err = loadTargets(ctx, q, id); err != nil {
		return nil, err
	}
	if o.Reviews, err = loadReviews(ctx, q, id); err != nil {
		return nil, err
	}
	if o.SecondQualityItems, err = loadSecondQualityItems(ctx, q, id); err != nil {
		return nil, err
	}
	return o, nil
}

func loadHistory(ctx context.Context, q querier, orderID string) ([]StatusHistoryEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, previous_status, new_status, actor_id, actor_name, notes, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load history: %w", err)
	}
	defer rows.Close()
	var out []StatusHistoryEntry
	for rows.Next() {
		var h StatusHistoryEntry
		if err := rows.Scan(&h.ID, &h.OrderID, &h.PreviousStatus, &h.NewStatus, &h.ActorID, &h.ActorName, &h.Notes, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func loadTargets(ctx context.Context, q querier, orderID string) ([]TargetSupplier, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, supplier_id, status, reason, responded_at, created_at
		FROM order_target_suppliers WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load targets: %w", err)
	}
	defer rows.Close()
	var out []TargetSupplier
	for rows.Next() {
		var t TargetSupplier
		if err := rows.Scan(&t.ID, &t.OrderID, &t.SupplierID, &t.Status, &t.Reason, &t.RespondedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func loadReviews(ctx context.Context, q querier, orderID string) ([]Review, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, review_type, result, total_quantity, approved_quantity,
		       rejected_quantity, second_quality_quantity, notes, created_by_id, created_at
		FROM order_reviews WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load reviews: %w", err)
	}
	defer rows.Close()
	var out []Review
	for rows.Next() {
		var v Review
		if err := rows.Scan(&v.ID, &v.OrderID, &v.Type, &v.Result, &v.TotalQuantity, &v.ApprovedQuantity,
			&v.RejectedQuantity, &v.SecondQualityQuantity, &v.Notes, &v.CreatedByID, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan review: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := loadRejectedItems(ctx, q, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].RejectedItems = items
	}
	return out, nil
}

func loadRejectedItems(ctx context.Context, q querier, reviewID string) ([]RejectedItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, review_id, reason, quantity, defect_description, rework_required, created_at
		FROM order_rejected_items WHERE review_id = $1 ORDER BY created_at, id`, reviewID)
	if err != nil {
		return nil, fmt.Errorf("orders: load rejected items: %w", err)
	}
	defer rows.Close()
	var out []RejectedItem
	for rows.Next() {
		var it RejectedItem
		if err := rows.Scan(&it.ID, &it.ReviewID, &it.Reason, &it.Quantity, &it.DefectDescription, &it.ReworkRequired, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan rejected item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadSecondQualityItems(ctx context.Context, q querier, orderID string) ([]SecondQualityItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, review_id, description, quantity, original_unit_value_cents, discount_percentage, created_at
		FROM order_second_quality_items WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: load second quality items: %w", err)
	}
	defer rows.Close()
	var out []SecondQualityItem
	for rows.Next() {
		var it SecondQualityItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ReviewID, &it.Description, &it.Quantity, &it.OriginalUnitValueCents, &it.DiscountPercentage, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan second quality item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (t *txRepo) InsertOrder(ctx context.Context, o Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28)`,
		o.ID, o.DisplayID, o.BrandID, o.SupplierID, o.AssignmentType,
		o.ProductRef, o.Description,
		o.Quantity, o.PricePerUnitCents, o.TotalValueCents, o.PlatformFeeCents, o.NetValueCents,
		o.Status, o.MaterialsProvided, o.DeliveryDeadline, o.Notes,
		o.AcceptedAt, o.AcceptedByID, o.RejectionReason,
		o.ParentOrderID, o.RevisionNumber, o.Origin,
		o.TotalReviewCount, o.ApprovalCount, o.RejectionCount, o.SecondQualityCount,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("orders: insert order %s: %w", o.DisplayID, shared.ErrConflict)
		}
		return fmt.Errorf("orders: insert order: %w", err)
	}
	return nil
}

func (t *txRepo) InsertHistory(ctx context.Context, entry StatusHistoryEntry) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_status_history (id, order_id, previous_status, new_status, actor_id, actor_name, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID, entry.OrderID, entry.PreviousStatus, entry.NewStatus, entry.ActorID, entry.ActorName, entry.Notes, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: insert history: %w", err)
	}
	return nil
}

func (t *txRepo) InsertTarget(ctx context.Context, target TargetSupplier) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_target_suppliers (id, order_id, supplier_id, status, reason, responded_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		target.ID, target.OrderID, target.SupplierID, target.Status, target.Reason, target.RespondedAt, target.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("orders: target supplier %d: %w", target.SupplierID, shared.ErrConflict)
		}
		return fmt.Errorf("orders: insert target: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE orders SET status = $3, updated_at = now() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("orders: update status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) SetAcceptance(ctx context.Context, id string, supplierID, acceptedBy int64, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		UPDATE orders SET supplier_id = $2, accepted_by_id = $3, accepted_at = $4, rejection_reason = NULL, updated_at = now()
		WHERE id = $1`,
		id, supplierID, acceptedBy, at,
	)
	if err != nil {
		return fmt.Errorf("orders: set acceptance: %w", err)
	}
	return nil
}

func (t *txRepo) ClearAssignment(ctx context.Context, id string, reason *string) error {
	_, err := t.q.Exec(ctx, `
		UPDATE orders SET supplier_id = NULL, rejection_reason = $2, updated_at = now() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("orders: clear assignment: %w", err)
	}
	return nil
}

func (t *txRepo) SetRejectionReason(ctx context.Context, id string, reason *string) error {
	_, err := t.q.Exec(ctx, `
		UPDATE orders SET rejection_reason = $2, updated_at = now() WHERE id = $1`,
		id, reason,
	)
	if err != nil {
		return fmt.Errorf("orders: set rejection reason: %w", err)
	}
	return nil
}

func (t *txRepo) UpdateTargetStatus(ctx context.Context, orderID string, supplierID int64, from, to TargetStatus, reason *string, at time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE order_target_suppliers SET status = $4, reason = $5, responded_at = $6
		WHERE order_id = $1 AND supplier_id = $2 AND status = $3`,
		orderID, supplierID, from, to, reason, at,
	)
	if err != nil {
		return false, fmt.Errorf("orders: update target status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepo) RejectPendingTargets(ctx context.Context, orderID string, exceptSupplierID int64, at time.Time) error {
	_, err := t.q.Exec(ctx, `
		UPDATE order_target_suppliers SET status = $4, responded_at = $3
		WHERE order_id = $1 AND supplier_id <> $2 AND status = $5`,
		orderID, exceptSupplierID, at, TargetRejected, TargetPending,
	)
	if err != nil {
		return fmt.Errorf("orders: reject pending targets: %w", err)
	}
	return nil
}

func (t *txRepo) CountPendingTargets(ctx context.Context, orderID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `
		SELECT count(*) FROM order_target_suppliers WHERE order_id = $1 AND status = $2`,
		orderID, TargetPending,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("orders: count pending targets: %w", err)
	}
	return n, nil
}

func (t *txRepo) InsertReview(ctx context.Context, review Review) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_reviews (id, order_id, review_type, result, total_quantity, approved_quantity,
			rejected_quantity, second_quality_quantity, notes, created_by_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		review.ID, review.OrderID, review.Type, review.Result, review.TotalQuantity, review.ApprovedQuantity,
		review.RejectedQuantity, review.SecondQualityQuantity, review.Notes, review.CreatedByID, review.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: insert review: %w", err)
	}
	return nil
}

func (t *txRepo) InsertRejectedItem(ctx context.Context, item RejectedItem) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_rejected_items (id, review_id, reason, quantity, defect_description, rework_required, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		item.ID, item.ReviewID, item.Reason, item.Quantity, item.DefectDescription, item.ReworkRequired, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: insert rejected item: %w", err)
	}
	return nil
}

func (t *txRepo) InsertSecondQualityItem(ctx context.Context, item SecondQualityItem) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_second_quality_items (id, order_id, review_id, description, quantity, original_unit_value_cents, discount_percentage, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		item.ID, item.OrderID, item.ReviewID, item.Description, item.Quantity, item.OriginalUnitValueCents, item.DiscountPercentage, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("orders: insert second quality item: %w", err)
	}
	return nil
}

func (t *txRepo) ApplyReviewCounters(ctx context.Context, orderID string, reviews, approvals, rejections, secondQuality int) error {
	_, err := t.q.Exec(ctx, `
		UPDATE orders SET
			total_review_count = total_review_count + $2,
			approval_count = approval_count + $3,
			rejection_count = rejection_count + $4,
			second_quality_count = second_quality_count + $5,
			updated_at = now()
		WHERE id = $1`,
		orderID, reviews, approvals, rejections, secondQuality,
	)
	if err != nil {
		return fmt.Errorf("orders: apply review counters: %w", err)
	}
	return nil
}

func (t *txRepo) ListChildren(ctx context.Context, parentID string) ([]Order, error) {
	rows, err := t.q.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE parent_order_id = $1`, parentID)
	if err != nil {
		return nil, fmt.Errorf("orders: list children: %w", err)
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("orders: scan child: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}
