package returns

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/novamart/orderflow/pkg/db/models"
	"github.com/novamart/orderflow/pkg/enums"
	"github.com/novamart/orderflow/pkg/pagination"
)

// ReturnRepository defines the persistence surface for return requests.
// Refund columns are written only through SaveRefundResult and SaveFailure.
type ReturnRepository interface {
	WithTx(tx *gorm.DB) ReturnRepository
	Create(ctx context.Context, request *models.ReturnRequest) (*models.ReturnRequest, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReturnRequest, error)
	FindOpenByOrder(ctx context.Context, orderID uuid.UUID) (*models.ReturnRequest, error)
	ListPending(ctx context.Context, params pagination.Params) ([]models.ReturnRequest, string, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReturnStatus) error
	SaveRefundResult(ctx context.Context, id uuid.UUID, providerRefundID string, amountCents int) error
	SaveFailure(ctx context.Context, id uuid.UUID, message string) error
}
