package repositories

import (
	"context"
	"time"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CapRepository persists catalog products and owns every stock mutation.
type CapRepository interface {
	Insert(ctx context.Context, cap domain.Cap) error
	Update(ctx context.Context, cap domain.Cap) error
	FindByID(ctx context.Context, capID string) (domain.Cap, error)
	List(ctx context.Context, filter CapListFilter) (domain.CursorPage[domain.Cap], error)
	ListFeatured(ctx context.Context, limit int) ([]domain.Cap, error)

	// DeductStock decrements stock for every line in one transaction. Either
	// all lines are applied or none are; an insufficient line aborts the
	// whole batch with InventoryErrorInsufficientStock naming the cap.
	DeductStock(ctx context.Context, orderID string, lines []StockLine) error
	// CreditStock restores stock for every line in one transaction.
	CreditStock(ctx context.Context, orderID string, lines []StockLine) error
}

// CapListFilter narrows catalog list queries.
type CapListFilter struct {
	Category string
	Brand    string
	Pager    domain.Pagination
}

// StockLine addresses one cap and the quantity to move.
type StockLine struct {
	CapID    string
	Quantity int
}

// OrderListFilter narrows order list queries.
type OrderListFilter struct {
	UserID string
	Status *domain.OrderStatus
	Pager  domain.Pagination
}

// OrderRepository persists order headers with their embedded line items.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Delete(ctx context.Context, orderID string) error

	// UpdateStatus transitions the order inside a transaction that re-reads
	// the document, so concurrent transitions serialize per order. The
	// mutate callback sees the current stored order and returns the updated
	// header, or an error to abort.
	UpdateStatus(ctx context.Context, orderID string, mutate func(current domain.Order) (domain.Order, error)) (domain.Order, error)

	// UpdateStatusWithStock applies the same guarded mutation as UpdateStatus
	// and deducts the given stock lines in the same transaction. The order
	// write and every stock decrement commit together or not at all; a short
	// or missing line aborts with an InventoryError and leaves the order
	// untouched.
	UpdateStatusWithStock(ctx context.Context, orderID string, mutate func(current domain.Order) (domain.Order, error), deduct []StockLine) (domain.Order, error)
}

// PaymentRepository persists gateway payment records.
type PaymentRepository interface {
	Insert(ctx context.Context, payment domain.Payment) error
	Update(ctx context.Context, payment domain.Payment) error
	FindByID(ctx context.Context, paymentID string) (domain.Payment, error)
	FindByExternalID(ctx context.Context, externalID string) (domain.Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.Payment, error)
}

// SyncJobListFilter narrows sync job list queries.
type SyncJobListFilter struct {
	Status *domain.SyncJobStatus
	Pager  domain.Pagination
}

// SyncJobRepository persists fulfilment sync jobs.
type SyncJobRepository interface {
	Insert(ctx context.Context, job domain.SyncJob) error
	Update(ctx context.Context, job domain.SyncJob) error
	FindByID(ctx context.Context, jobID string) (domain.SyncJob, error)
	// ListPending returns up to limit pending jobs with attempts below their
	// cap, oldest first.
	ListPending(ctx context.Context, limit int) ([]domain.SyncJob, error)
	// ListFailed returns failed jobs eligible for an operator retry.
	ListFailed(ctx context.Context, limit int) ([]domain.SyncJob, error)
	List(ctx context.Context, filter SyncJobListFilter) (domain.CursorPage[domain.SyncJob], error)
}

// UserRepository persists account records keyed by id with a unique email.
type UserRepository interface {
	Insert(ctx context.Context, user domain.User) error
	FindByID(ctx context.Context, userID string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
}

// HealthCheckResult captures the status of a dependency probe.
type HealthCheckResult struct {
	Component string
	Healthy   bool
	Detail    string
	CheckedAt time.Time
}

// HealthRepository verifies connectivity of backing dependencies.
type HealthRepository interface {
	Check(ctx context.Context) ([]HealthCheckResult, error)
}
