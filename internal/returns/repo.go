package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	"github.com/novamart/orderflow/pkg/pagination"
)

// Repository exposes persistence operations for return requests.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a return repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) ReturnRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new pending request. The partial unique index rejects a
// second non-rejected request for the same order.
func (r *Repository) Create(ctx context.Context, request *models.ReturnRequest) (*models.ReturnRequest, error) {
	if err := r.db.WithContext(ctx).Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

// FindByID loads a request.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindOpenByOrder returns the order's non-rejected request, if any.
func (r *Repository) FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error) {
	var request models.ReturnRequest
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status != ?", orderID, enums.ReturnStatusRejected).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ListPending returns the operator queue newest-first with cursor pagination.
func (r *Repository) ListPending(ctx context.Context, params pagination.Params) ([]models.ReturnRequest, string, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("status = ?", enums.ReturnStatusPending).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, "", err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.ReturnRequest
	if err := query.Find(&rows).Error; err != nil {
		return nil, "", err
	}

	nextCursor := ""
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		nextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return rows, nextCursor, nil
}

// UpdateStatus mutates only the status column.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReturnStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// SaveRefundResult attaches a confirmed refund and clears any prior failure.
func (r *Repository) SaveRefundResult(ctx context.Context, id uuid.UUID, providerRefundID string, amountCents int) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"refund_provider_id":  providerRefundID,
			"refund_amount_cents": amountCents,
			"failure_message":     nil,
		}).Error
}

// SaveFailure records the provider's message for a rolled-back attempt.
func (r *Repository) SaveFailure(ctx context.Context, id uuid.UUID, message string) error {
	return r.db.WithContext(ctx).
		Model(&models.ReturnRequest{}).
		Where("id = ?", id).
		Update("failure_message", message).Error
}
