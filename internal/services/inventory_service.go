package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	eventInventoryDeduct = "inventory.deduct"
	eventInventoryCredit = "inventory.credit"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates a requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryCapNotFound indicates a line referenced a cap that does not exist.
	ErrInventoryCapNotFound = errors.New("inventory: cap not found")
)

// InsufficientStockDetail names the cap that aborted a stock movement. It
// unwraps to ErrInventoryInsufficientStock so callers can match either the
// sentinel via errors.Is or the detail via errors.As.
type InsufficientStockDetail struct {
	CapID string
}

func (e *InsufficientStockDetail) Error() string {
	return fmt.Sprintf("%v: cap %s", ErrInventoryInsufficientStock, e.CapID)
}

func (e *InsufficientStockDetail) Unwrap() error {
	return ErrInventoryInsufficientStock
}

// InventoryServiceDeps bundles the collaborators required to construct an inventory service.
type InventoryServiceDeps struct {
	Caps   repositories.CapRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type inventoryService struct {
	caps   repositories.CapRepository
	logger func(context.Context, string, map[string]any)
}

// NewInventoryService wires dependencies into a concrete InventoryService implementation.
func NewInventoryService(deps InventoryServiceDeps) (InventoryService, error) {
	if deps.Caps == nil {
		return nil, errors.New("inventory service: cap repository is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &inventoryService{
		caps:   deps.Caps,
		logger: logger,
	}, nil
}

func (s *inventoryService) Deduct(ctx context.Context, orderID string, lines []repositories.StockLine) error {
	if err := validateStockLines(orderID, lines); err != nil {
		return err
	}

	if err := s.caps.DeductStock(ctx, orderID, lines); err != nil {
		mapped := mapStockMovementError(err)
		s.logger(ctx, eventInventoryDeduct+".failed", map[string]any{
			"order": orderID,
			"lines": len(lines),
			"error": err.Error(),
		})
		return mapped
	}

	s.logger(ctx, eventInventoryDeduct, map[string]any{
		"order": orderID,
		"lines": len(lines),
	})
	return nil
}

func (s *inventoryService) Credit(ctx context.Context, orderID string, lines []repositories.StockLine) error {
	if err := validateStockLines(orderID, lines); err != nil {
		return err
	}

	if err := s.caps.CreditStock(ctx, orderID, lines); err != nil {
		mapped := mapStockMovementError(err)
		s.logger(ctx, eventInventoryCredit+".failed", map[string]any{
			"order": orderID,
			"lines": len(lines),
			"error": err.Error(),
		})
		return mapped
	}

	s.logger(ctx, eventInventoryCredit, map[string]any{
		"order": orderID,
		"lines": len(lines),
	})
	return nil
}

func validateStockLines(orderID string, lines []repositories.StockLine) error {
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("%w: order id is required", ErrInventoryInvalidInput)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%w: at least one line is required", ErrInventoryInvalidInput)
	}
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		capID := strings.TrimSpace(line.CapID)
		if capID == "" {
			return fmt.Errorf("%w: line cap id is required", ErrInventoryInvalidInput)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for cap %s must be positive", ErrInventoryInvalidInput, capID)
		}
		if seen[capID] {
			return fmt.Errorf("%w: duplicate line for cap %s", ErrInventoryInvalidInput, capID)
		}
		seen[capID] = true
	}
	return nil
}

// mapStockMovementError converts repository stock failures into service
// sentinels. Shared with the order service, which moves stock through the
// order repository's combined transaction.
func mapStockMovementError(err error) error {
	if err == nil {
		return nil
	}

	var invErr *repositories.InventoryError
	if errors.As(err, &invErr) {
		switch invErr.Code {
		case repositories.InventoryErrorInsufficientStock:
			return &InsufficientStockDetail{CapID: invErr.CapID}
		case repositories.InventoryErrorStockNotFound:
			return fmt.Errorf("%w: %v", ErrInventoryCapNotFound, err)
		}
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", ErrInventoryCapNotFound, err)
	}
	return err
}
