package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

const (
	capIDPrefix          = "cap_"
	maxCapNameLength     = 140
	maxCapDescription    = 4000
	defaultCapCurrency   = "SAR"
	defaultFeaturedLimit = 10
)

var (
	// ErrCatalogInvalidInput signals the caller provided invalid cap data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogCapNotFound indicates the cap does not exist.
	ErrCatalogCapNotFound = errors.New("catalog: cap not found")
	// ErrCatalogConflict indicates a write raced with a concurrent change.
	ErrCatalogConflict = errors.New("catalog: conflict")
)

// CatalogServiceDeps bundles the collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Caps        repositories.CapRepository
	Currency    string
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	caps      repositories.CapRepository
	currency  string
	clock     func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
	sanitizer *bluemonday.Policy
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Caps == nil {
		return nil, errors.New("catalog service: cap repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCapCurrency
	}

	return &catalogService{
		caps:     deps.Caps,
		currency: currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		logger:    logger,
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) CreateCap(ctx context.Context, cmd CreateCapCommand) (Cap, error) {
	name := s.sanitizeText(cmd.Name)
	if name == "" {
		return Cap{}, fmt.Errorf("%w: name is required", ErrCatalogInvalidInput)
	}
	if len(name) > maxCapNameLength {
		return Cap{}, fmt.Errorf("%w: name exceeds %d characters", ErrCatalogInvalidInput, maxCapNameLength)
	}
	if cmd.Price <= 0 {
		return Cap{}, fmt.Errorf("%w: price must be positive", ErrCatalogInvalidInput)
	}
	if cmd.StockQuantity < 0 {
		return Cap{}, fmt.Errorf("%w: stock quantity cannot be negative", ErrCatalogInvalidInput)
	}

	description := s.sanitizeText(cmd.Description)
	descriptionAr := s.sanitizeText(cmd.DescriptionAr)
	if len(description) > maxCapDescription || len(descriptionAr) > maxCapDescription {
		return Cap{}, fmt.Errorf("%w: description exceeds %d characters", ErrCatalogInvalidInput, maxCapDescription)
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if len(currency) != 3 {
		return Cap{}, fmt.Errorf("%w: currency must be a three letter code", ErrCatalogInvalidInput)
	}

	now := s.clock()
	cap := Cap{
		ID:            capIDPrefix + s.newID(),
		Name:          name,
		NameAr:        s.sanitizeText(cmd.NameAr),
		Description:   description,
		DescriptionAr: descriptionAr,
		Price:         cmd.Price,
		Currency:      currency,
		ImageURL:      strings.TrimSpace(cmd.ImageURL),
		Category:      strings.TrimSpace(cmd.Category),
		Brand:         strings.TrimSpace(cmd.Brand),
		Color:         strings.TrimSpace(cmd.Color),
		Size:          strings.TrimSpace(cmd.Size),
		StockQuantity: cmd.StockQuantity,
		IsFeatured:    cmd.IsFeatured,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.caps.Insert(ctx, cap); err != nil {
		return Cap{}, s.mapRepositoryError(err)
	}

	s.logger(ctx, "catalog.cap.created", map[string]any{"cap": cap.ID})
	return cap, nil
}

func (s *catalogService) GetCap(ctx context.Context, capID string) (Cap, error) {
	capID = strings.TrimSpace(capID)
	if capID == "" {
		return Cap{}, fmt.Errorf("%w: cap id is required", ErrCatalogInvalidInput)
	}

	cap, err := s.caps.FindByID(ctx, capID)
	if err != nil {
		return Cap{}, s.mapRepositoryError(err)
	}
	return cap, nil
}

func (s *catalogService) ListCaps(ctx context.Context, query CapListQuery) (domain.CursorPage[Cap], error) {
	page, err := s.caps.List(ctx, repositories.CapListFilter{
		Category: strings.TrimSpace(query.Category),
		Brand:    strings.TrimSpace(query.Brand),
		Pager:    query.Pager,
	})
	if err != nil {
		return domain.CursorPage[Cap]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) ListFeatured(ctx context.Context) ([]Cap, error) {
	caps, err := s.caps.ListFeatured(ctx, defaultFeaturedLimit)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return caps, nil
}

func (s *catalogService) sanitizeText(value string) string {
	return strings.TrimSpace(s.sanitizer.Sanitize(value))
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogCapNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrCatalogConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
