package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	domain "github.com/Rakanrepo/slevenback/internal/domain"
	"github.com/Rakanrepo/slevenback/internal/repositories"
)

type memoryCapRepo struct {
	mu            sync.Mutex
	caps          map[string]domain.Cap
	lastFilter    repositories.CapListFilter
	featuredLimit int
}

func newMemoryCapRepo() *memoryCapRepo {
	return &memoryCapRepo{caps: map[string]domain.Cap{}}
}

func (m *memoryCapRepo) Insert(_ context.Context, cap domain.Cap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caps[cap.ID]; ok {
		return conflictErr("cap exists")
	}
	m.caps[cap.ID] = cap
	return nil
}

func (m *memoryCapRepo) Update(_ context.Context, cap domain.Cap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.caps[cap.ID]; !ok {
		return notFoundErr("cap missing")
	}
	m.caps[cap.ID] = cap
	return nil
}

func (m *memoryCapRepo) FindByID(_ context.Context, capID string) (domain.Cap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cap, ok := m.caps[capID]
	if !ok {
		return domain.Cap{}, notFoundErr("cap missing")
	}
	return cap, nil
}

func (m *memoryCapRepo) List(_ context.Context, filter repositories.CapListFilter) (domain.CursorPage[domain.Cap], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var items []domain.Cap
	for _, cap := range m.caps {
		if filter.Category != "" && cap.Category != filter.Category {
			continue
		}
		if filter.Brand != "" && cap.Brand != filter.Brand {
			continue
		}
		items = append(items, cap)
	}
	return domain.CursorPage[domain.Cap]{Items: items}, nil
}

func (m *memoryCapRepo) ListFeatured(_ context.Context, limit int) ([]domain.Cap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.featuredLimit = limit
	var featured []domain.Cap
	for _, cap := range m.caps {
		if cap.IsFeatured {
			featured = append(featured, cap)
		}
	}
	return featured, nil
}

func (m *memoryCapRepo) DeductStock(context.Context, string, []repositories.StockLine) error {
	return errors.New("not implemented")
}

func (m *memoryCapRepo) CreditStock(context.Context, string, []repositories.StockLine) error {
	return errors.New("not implemented")
}

func newCatalogTestService(t *testing.T, repo *memoryCapRepo) CatalogService {
	t.Helper()
	counter := 0
	svc, err := NewCatalogService(CatalogServiceDeps{
		Caps: repo,
		Clock: func() time.Time {
			return time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
		},
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("TEST%06d", counter)
		},
	})
	if err != nil {
		t.Fatalf("failed to build catalog service: %v", err)
	}
	return svc
}

func validCapCommand() CreateCapCommand {
	return CreateCapCommand{
		Name:          "Navy Classic",
		NameAr:        "كلاسيك كحلي",
		Description:   "Six panel wool cap.",
		Price:         12950,
		Currency:      "sar",
		Category:      "classic",
		Brand:         "Sleven",
		Color:         "navy",
		Size:          "M",
		StockQuantity: 10,
		IsFeatured:    true,
	}
}

func TestCatalogServiceCreateCap(t *testing.T) {
	repo := newMemoryCapRepo()
	svc := newCatalogTestService(t, repo)

	cap, err := svc.CreateCap(context.Background(), validCapCommand())
	if err != nil {
		t.Fatalf("create cap: %v", err)
	}
	if !strings.HasPrefix(cap.ID, "cap_") {
		t.Fatalf("expected cap_ id, got %q", cap.ID)
	}
	if cap.Currency != "SAR" {
		t.Fatalf("expected uppercased currency, got %q", cap.Currency)
	}
	if cap.Price != 12950 || cap.StockQuantity != 10 {
		t.Fatalf("unexpected cap: %#v", cap)
	}
	if _, err := repo.FindByID(context.Background(), cap.ID); err != nil {
		t.Fatalf("cap not persisted: %v", err)
	}
}

func TestCatalogServiceCreateCapStripsMarkup(t *testing.T) {
	svc := newCatalogTestService(t, newMemoryCapRepo())

	cmd := validCapCommand()
	cmd.Name = `Navy <script>alert("x")</script> Classic`
	cmd.Description = `<b>Wool</b> cap`

	cap, err := svc.CreateCap(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create cap: %v", err)
	}
	if strings.Contains(cap.Name, "<") || strings.Contains(cap.Name, "script") {
		t.Fatalf("expected sanitized name, got %q", cap.Name)
	}
	if cap.Description != "Wool cap" {
		t.Fatalf("expected tags stripped from description, got %q", cap.Description)
	}
}

func TestCatalogServiceCreateCapValidation(t *testing.T) {
	svc := newCatalogTestService(t, newMemoryCapRepo())

	cases := map[string]func(*CreateCapCommand){
		"empty name":       func(c *CreateCapCommand) { c.Name = "   " },
		"zero price":       func(c *CreateCapCommand) { c.Price = 0 },
		"negative price":   func(c *CreateCapCommand) { c.Price = -100 },
		"negative stock":   func(c *CreateCapCommand) { c.StockQuantity = -1 },
		"bad currency":     func(c *CreateCapCommand) { c.Currency = "RIYAL" },
		"name too long":    func(c *CreateCapCommand) { c.Name = strings.Repeat("x", 141) },
		"desc too long":    func(c *CreateCapCommand) { c.Description = strings.Repeat("x", 4001) },
		"markup only name": func(c *CreateCapCommand) { c.Name = "<script></script>" },
	}
	for name, mutate := range cases {
		cmd := validCapCommand()
		mutate(&cmd)
		if _, err := svc.CreateCap(context.Background(), cmd); !errors.Is(err, ErrCatalogInvalidInput) {
			t.Fatalf("%s: expected ErrCatalogInvalidInput, got %v", name, err)
		}
	}
}

func TestCatalogServiceCreateCapDefaultsCurrency(t *testing.T) {
	svc := newCatalogTestService(t, newMemoryCapRepo())

	cmd := validCapCommand()
	cmd.Currency = ""
	cap, err := svc.CreateCap(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create cap: %v", err)
	}
	if cap.Currency != "SAR" {
		t.Fatalf("expected default SAR, got %q", cap.Currency)
	}
}

func TestCatalogServiceListCapsForwardsFilter(t *testing.T) {
	repo := newMemoryCapRepo()
	svc := newCatalogTestService(t, repo)

	if _, err := svc.CreateCap(context.Background(), validCapCommand()); err != nil {
		t.Fatalf("seed cap: %v", err)
	}

	page, err := svc.ListCaps(context.Background(), CapListQuery{
		Category: " classic ",
		Brand:    "Sleven",
		Pager:    Pagination{PageSize: 5},
	})
	if err != nil {
		t.Fatalf("list caps: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 cap, got %d", len(page.Items))
	}
	if repo.lastFilter.Category != "classic" || repo.lastFilter.Brand != "Sleven" {
		t.Fatalf("unexpected filter: %#v", repo.lastFilter)
	}
	if repo.lastFilter.Pager.PageSize != 5 {
		t.Fatalf("expected page size forwarded, got %d", repo.lastFilter.Pager.PageSize)
	}
}

func TestCatalogServiceListFeatured(t *testing.T) {
	repo := newMemoryCapRepo()
	svc := newCatalogTestService(t, repo)

	if _, err := svc.CreateCap(context.Background(), validCapCommand()); err != nil {
		t.Fatalf("seed cap: %v", err)
	}
	plain := validCapCommand()
	plain.Name = "Plain Black"
	plain.IsFeatured = false
	if _, err := svc.CreateCap(context.Background(), plain); err != nil {
		t.Fatalf("seed cap: %v", err)
	}

	featured, err := svc.ListFeatured(context.Background())
	if err != nil {
		t.Fatalf("list featured: %v", err)
	}
	if len(featured) != 1 {
		t.Fatalf("expected 1 featured cap, got %d", len(featured))
	}
	if repo.featuredLimit <= 0 {
		t.Fatalf("expected a positive featured limit, got %d", repo.featuredLimit)
	}
}

func TestCatalogServiceGetCap(t *testing.T) {
	repo := newMemoryCapRepo()
	svc := newCatalogTestService(t, repo)

	created, err := svc.CreateCap(context.Background(), validCapCommand())
	if err != nil {
		t.Fatalf("seed cap: %v", err)
	}

	cap, err := svc.GetCap(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("get cap: %v", err)
	}
	if cap.Name != created.Name {
		t.Fatalf("unexpected cap: %#v", cap)
	}

	if _, err := svc.GetCap(context.Background(), "cap_missing"); !errors.Is(err, ErrCatalogCapNotFound) {
		t.Fatalf("expected ErrCatalogCapNotFound, got %v", err)
	}
	if _, err := svc.GetCap(context.Background(), ""); !errors.Is(err, ErrCatalogInvalidInput) {
		t.Fatalf("expected ErrCatalogInvalidInput, got %v", err)
	}
}
