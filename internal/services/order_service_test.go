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

type repoError struct {
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repoError) Error() string       { return e.msg }
func (e *repoError) IsNotFound() bool    { return e.notFound }
func (e *repoError) IsConflict() bool    { return e.conflict }
func (e *repoError) IsUnavailable() bool { return e.unavailable }

func notFoundErr(msg string) error    { return &repoError{msg: msg, notFound: true} }
func conflictErr(msg string) error    { return &repoError{msg: msg, conflict: true} }
func unavailableErr(msg string) error { return &repoError{msg: msg, unavailable: true} }

type memoryOrderRepo struct {
	mu     sync.Mutex
	orders map[string]domain.Order

	// stock mirrors cap availability so the combined transition-and-deduct
	// path behaves like the real transactional repository.
	stock   map[string]int
	settles [][]repositories.StockLine

	// failTransitionTo aborts UpdateStatus after the mutate callback when the
	// resulting status matches, simulating a lost write.
	failTransitionTo domain.OrderStatus
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders: map[string]domain.Order{},
		stock:  map[string]int{},
	}
}

func (m *memoryOrderRepo) stockOf(capID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stock[capID]
}

func (m *memoryOrderRepo) Insert(_ context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[order.ID]; ok {
		return conflictErr("order exists")
	}
	m.orders[order.ID] = order
	return nil
}

func (m *memoryOrderRepo) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order missing")
	}
	return order, nil
}

func (m *memoryOrderRepo) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []domain.Order
	for _, order := range m.orders {
		if filter.UserID != "" && order.UserID != filter.UserID {
			continue
		}
		if filter.Status != nil && order.Status != *filter.Status {
			continue
		}
		items = append(items, order)
	}
	return domain.CursorPage[domain.Order]{Items: items}, nil
}

func (m *memoryOrderRepo) Delete(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[orderID]; !ok {
		return notFoundErr("order missing")
	}
	delete(m.orders, orderID)
	return nil
}

func (m *memoryOrderRepo) UpdateStatus(_ context.Context, orderID string, mutate func(domain.Order) (domain.Order, error)) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order missing")
	}
	updated, err := mutate(current)
	if err != nil {
		return domain.Order{}, err
	}
	if m.failTransitionTo != "" && updated.Status == m.failTransitionTo && current.Status != updated.Status {
		return domain.Order{}, unavailableErr("write contention")
	}
	m.orders[orderID] = updated
	return updated, nil
}

func (m *memoryOrderRepo) UpdateStatusWithStock(_ context.Context, orderID string, mutate func(domain.Order) (domain.Order, error), deduct []repositories.StockLine) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, notFoundErr("order missing")
	}
	updated, err := mutate(current)
	if err != nil {
		return domain.Order{}, err
	}
	if m.failTransitionTo != "" && updated.Status == m.failTransitionTo && current.Status != updated.Status {
		return domain.Order{}, unavailableErr("write contention")
	}
	for _, line := range deduct {
		have, ok := m.stock[line.CapID]
		if !ok {
			return domain.Order{}, repositories.NewInventoryError(
				repositories.InventoryErrorStockNotFound, line.CapID, "cap missing", nil)
		}
		if have < line.Quantity {
			return domain.Order{}, repositories.NewInventoryError(
				repositories.InventoryErrorInsufficientStock, line.CapID, "insufficient stock", nil)
		}
	}
	for _, line := range deduct {
		m.stock[line.CapID] -= line.Quantity
	}
	if len(deduct) > 0 {
		m.settles = append(m.settles, deduct)
	}
	m.orders[orderID] = updated
	return updated, nil
}

type stubCapFinder struct {
	caps map[string]domain.Cap
}

func (s *stubCapFinder) Insert(context.Context, domain.Cap) error { return errors.New("not implemented") }
func (s *stubCapFinder) Update(context.Context, domain.Cap) error { return errors.New("not implemented") }

func (s *stubCapFinder) FindByID(_ context.Context, capID string) (domain.Cap, error) {
	cap, ok := s.caps[capID]
	if !ok {
		return domain.Cap{}, notFoundErr("cap missing")
	}
	return cap, nil
}

func (s *stubCapFinder) List(context.Context, repositories.CapListFilter) (domain.CursorPage[domain.Cap], error) {
	return domain.CursorPage[domain.Cap]{}, nil
}

func (s *stubCapFinder) ListFeatured(context.Context, int) ([]domain.Cap, error) {
	return nil, nil
}

func (s *stubCapFinder) DeductStock(context.Context, string, []repositories.StockLine) error {
	return errors.New("not implemented")
}

func (s *stubCapFinder) CreditStock(context.Context, string, []repositories.StockLine) error {
	return errors.New("not implemented")
}

type recordingInventory struct {
	mu         sync.Mutex
	deducts    [][]repositories.StockLine
	credits    [][]repositories.StockLine
	deductErr  error
	creditErr  error
}

func (r *recordingInventory) Deduct(_ context.Context, _ string, lines []repositories.StockLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deductErr != nil {
		return r.deductErr
	}
	r.deducts = append(r.deducts, lines)
	return nil
}

func (r *recordingInventory) Credit(_ context.Context, _ string, lines []repositories.StockLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.creditErr != nil {
		return r.creditErr
	}
	r.credits = append(r.credits, lines)
	return nil
}

type recordingSync struct {
	mu         sync.Mutex
	enqueued   []SyncJob
	paymentIDs []string
	enqueueErr error
}

func (r *recordingSync) Enqueue(_ context.Context, order Order, paymentID string) (SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enqueueErr != nil {
		return SyncJob{}, r.enqueueErr
	}
	job := SyncJob{ID: fmt.Sprintf("sj_%d", len(r.enqueued)+1), OrderID: order.ID}
	r.enqueued = append(r.enqueued, job)
	r.paymentIDs = append(r.paymentIDs, paymentID)
	return job, nil
}

func (r *recordingSync) ProcessPending(context.Context, int) (SyncSweepResult, error) {
	return SyncSweepResult{}, nil
}

func (r *recordingSync) RetryFailed(context.Context) (int, error) { return 0, nil }

func (r *recordingSync) ListJobs(context.Context, SyncJobListQuery) (domain.CursorPage[SyncJob], error) {
	return domain.CursorPage[SyncJob]{}, nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []string
	sendErr error
}

func (r *recordingNotifier) SendInvoice(_ context.Context, order Order, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sendErr != nil {
		return r.sendErr
	}
	r.sent = append(r.sent, order.ID)
	return nil
}

type orderTestEnv struct {
	repo      *memoryOrderRepo
	inventory *recordingInventory
	sync      *recordingSync
	notifier  *recordingNotifier
	service   OrderService
}

func newOrderTestEnv(t *testing.T) *orderTestEnv {
	t.Helper()
	env := &orderTestEnv{
		repo:      newMemoryOrderRepo(),
		inventory: &recordingInventory{},
		sync:      &recordingSync{},
		notifier:  &recordingNotifier{},
	}

	caps := &stubCapFinder{caps: map[string]domain.Cap{
		"cap_1": {ID: "cap_1", Name: "Navy Classic", Price: 12950, Currency: "SAR", StockQuantity: 10},
		"cap_2": {ID: "cap_2", Name: "Desert Sand", Price: 9900, Currency: "SAR", StockQuantity: 5},
	}}
	env.repo.stock = map[string]int{"cap_1": 10, "cap_2": 5}

	counter := 0
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:    env.repo,
		Caps:      caps,
		Inventory: env.inventory,
		Sync:      env.sync,
		Notifier:  env.notifier,
		Clock: func() time.Time {
			return time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
		},
		IDGenerator: func() string {
			counter++
			return fmt.Sprintf("TEST%06d", counter)
		},
	})
	if err != nil {
		t.Fatalf("failed to build order service: %v", err)
	}
	env.service = svc
	return env
}

func (e *orderTestEnv) createOrder(t *testing.T, paymentType domain.PaymentType) Order {
	t.Helper()
	order, err := e.service.Create(context.Background(), CreateOrderCommand{
		UserID:      "usr_1",
		PaymentType: paymentType,
		Items: []CreateOrderLine{
			{CapID: "cap_1", Quantity: 2},
			{CapID: "cap_2", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}

func TestOrderServiceCreateComputesTotalsServerSide(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	if !strings.HasPrefix(order.ID, "ord_") {
		t.Fatalf("expected ord_ prefix, got %q", order.ID)
	}
	if order.Status != domain.OrderStatusPending {
		t.Fatalf("expected pending status, got %q", order.Status)
	}
	wantTotal := int64(12950*2 + 9900)
	if order.TotalAmount != wantTotal {
		t.Fatalf("expected total %d, got %d", wantTotal, order.TotalAmount)
	}
	if order.Currency != "SAR" {
		t.Fatalf("expected SAR currency, got %q", order.Currency)
	}
	if len(order.Items) != 2 || order.Items[0].Subtotal != 25900 {
		t.Fatalf("unexpected items: %#v", order.Items)
	}
	if len(env.repo.settles) != 0 {
		t.Fatalf("card orders must not deduct stock at creation, got %d deductions", len(env.repo.settles))
	}
}

func TestOrderServiceCreateUnknownCap(t *testing.T) {
	env := newOrderTestEnv(t)
	_, err := env.service.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_1",
		Items:  []CreateOrderLine{{CapID: "cap_ghost", Quantity: 1}},
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceCreatePayOnArrivalFastPath(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypePayOnArrival)

	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing status, got %q", order.Status)
	}
	if len(env.repo.settles) != 1 {
		t.Fatalf("expected one stock deduction, got %d", len(env.repo.settles))
	}
	if got := env.repo.stockOf("cap_1"); got != 8 {
		t.Fatalf("expected cap_1 stock 8 after deduction, got %d", got)
	}
	if len(env.sync.enqueued) != 1 {
		t.Fatalf("expected one sync job, got %d", len(env.sync.enqueued))
	}
	if len(env.notifier.sent) != 1 {
		t.Fatalf("expected one invoice, got %d", len(env.notifier.sent))
	}
}

func TestOrderServiceMarkPaidDeductsOnce(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	paid, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID, PaymentID: "pay_1"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing after settlement, got %q", paid.Status)
	}
	if paid.PaidAt == nil {
		t.Fatal("expected PaidAt to be set")
	}
	if len(env.repo.settles) != 1 {
		t.Fatalf("expected one deduction, got %d", len(env.repo.settles))
	}
	if len(env.sync.paymentIDs) != 1 || env.sync.paymentIDs[0] != "pay_1" {
		t.Fatalf("expected sync enqueue with pay_1, got %#v", env.sync.paymentIDs)
	}

	// Redelivered confirmation must not deduct again.
	again, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID, PaymentID: "pay_1"})
	if err != nil {
		t.Fatalf("duplicate mark paid: %v", err)
	}
	if again.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %q", again.Status)
	}
	if len(env.repo.settles) != 1 {
		t.Fatalf("duplicate settlement deducted stock again: %d deductions", len(env.repo.settles))
	}
	if len(env.sync.enqueued) != 1 {
		t.Fatalf("duplicate settlement enqueued again: %d jobs", len(env.sync.enqueued))
	}
}

func TestOrderServiceMarkPaidInsufficientStock(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	env.repo.stock["cap_1"] = 1 // order wants 2
	_, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID})
	if !errors.Is(err, ErrOrderConflict) {
		t.Fatalf("expected ErrOrderConflict, got %v", err)
	}
	if !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected ErrInventoryInsufficientStock in the chain, got %v", err)
	}
	if len(env.sync.enqueued) != 0 {
		t.Fatal("no sync job may be queued when stock deduction fails")
	}
	// The aborted settle moves nothing for the other lines either.
	if got := env.repo.stockOf("cap_2"); got != 5 {
		t.Fatalf("expected cap_2 stock untouched at 5, got %d", got)
	}
	stored, err := env.repo.FindByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("reload order: %v", err)
	}
	if stored.Status != domain.OrderStatusPaid {
		t.Fatalf("expected order left at paid for a later retry, got %q", stored.Status)
	}
}

func TestOrderServiceMarkPaidLostWriteMovesNoStock(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	env.repo.failTransitionTo = domain.OrderStatusProcessing
	_, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID})
	if err == nil {
		t.Fatal("expected an error when the processing write fails")
	}
	if len(env.repo.settles) != 0 {
		t.Fatalf("a failed transition must not move stock, got %d settles", len(env.repo.settles))
	}
	if got := env.repo.stockOf("cap_1"); got != 10 {
		t.Fatalf("expected cap_1 stock untouched at 10, got %d", got)
	}
}

func TestOrderServiceMarkPaidResumesPaidOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	// Simulate a settlement that wrote paid and stopped before fulfilment.
	env.repo.mu.Lock()
	stored := env.repo.orders[order.ID]
	paidAt := stored.UpdatedAt
	stored.Status = domain.OrderStatusPaid
	stored.PaidAt = &paidAt
	env.repo.orders[order.ID] = stored
	env.repo.mu.Unlock()

	resumed, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID, PaymentID: "pay_1"})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if resumed.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing, got %q", resumed.Status)
	}
	if len(env.repo.settles) != 1 {
		t.Fatalf("expected one deduction, got %d", len(env.repo.settles))
	}
	if len(env.sync.enqueued) != 1 {
		t.Fatalf("expected one sync job, got %d", len(env.sync.enqueued))
	}
}

func TestOrderServiceConcurrentSettlesDoNotOversell(t *testing.T) {
	env := newOrderTestEnv(t)
	env.repo.stock["cap_1"] = 1

	makeOrder := func(userID string) Order {
		t.Helper()
		order, err := env.service.Create(context.Background(), CreateOrderCommand{
			UserID: userID,
			Items:  []CreateOrderLine{{CapID: "cap_1", Quantity: 1}},
		})
		if err != nil {
			t.Fatalf("create order: %v", err)
		}
		return order
	}
	first := makeOrder("usr_1")
	second := makeOrder("usr_2")

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: orderID})
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	var settled, conflicted int
	for err := range results {
		switch {
		case err == nil:
			settled++
		case errors.Is(err, ErrOrderConflict) && errors.Is(err, ErrInventoryInsufficientStock):
			conflicted++
		default:
			t.Fatalf("unexpected settle error: %v", err)
		}
	}
	if settled != 1 || conflicted != 1 {
		t.Fatalf("expected exactly one settle and one conflict, got %d/%d", settled, conflicted)
	}
	if got := env.repo.stockOf("cap_1"); got != 0 {
		t.Fatalf("expected cap_1 stock drained to 0, got %d", got)
	}
	if len(env.repo.settles) != 1 {
		t.Fatalf("expected exactly one deduction, got %d", len(env.repo.settles))
	}
}

func TestOrderServiceNotifierFailureDoesNotFailOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	env.notifier.sendErr = errors.New("mail relay down")
	order := env.createOrder(t, domain.PaymentTypeCard)

	paid, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing despite mail failure, got %q", paid.Status)
	}
}

func TestOrderServiceSyncEnqueueFailureDoesNotFailOrder(t *testing.T) {
	env := newOrderTestEnv(t)
	env.sync.enqueueErr = errors.New("queue unavailable")
	order := env.createOrder(t, domain.PaymentTypeCard)

	paid, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing despite enqueue failure, got %q", paid.Status)
	}
}

func TestOrderServiceUpdateStatusFailedRestocks(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)
	if _, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	failed, err := env.service.UpdateStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusFailed,
		Reason:       "courier lost shipment",
	})
	if err != nil {
		t.Fatalf("update status: %v", err)
	}
	if failed.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed, got %q", failed.Status)
	}
	if len(env.inventory.credits) != 1 {
		t.Fatalf("expected one restock, got %d", len(env.inventory.credits))
	}
}

func TestOrderServiceUpdateStatusRejectsNonOperatorTargets(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	_, err := env.service.UpdateStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusPaid,
	})
	if !errors.Is(err, ErrOrderInvalidInput) {
		t.Fatalf("expected ErrOrderInvalidInput, got %v", err)
	}
}

func TestOrderServiceTerminalStatusIsFinal(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)
	if _, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if _, err := env.service.UpdateStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusCompleted,
	}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	_, err := env.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActingRole: domain.UserRoleAdmin})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState cancelling a completed order, got %v", err)
	}
	_, err = env.service.UpdateStatus(context.Background(), OrderStatusTransitionCommand{
		OrderID:      order.ID,
		TargetStatus: domain.OrderStatusFailed,
	})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState failing a completed order, got %v", err)
	}
}

func TestOrderServiceCancelFromProcessingRestocks(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)
	if _, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	cancelled, err := env.service.Cancel(context.Background(), CancelOrderCommand{
		OrderID:      order.ID,
		ActingUserID: "usr_1",
		Reason:       "changed my mind",
	})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}
	if cancelled.CancelReason == nil || *cancelled.CancelReason != "changed my mind" {
		t.Fatalf("expected cancel reason recorded, got %#v", cancelled.CancelReason)
	}
	if len(env.inventory.credits) != 1 {
		t.Fatalf("expected one restock, got %d", len(env.inventory.credits))
	}

	// Cancelling twice is a no-op, not a second restock.
	if _, err := env.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActingUserID: "usr_1"}); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if len(env.inventory.credits) != 1 {
		t.Fatalf("duplicate cancel restocked again: %d credits", len(env.inventory.credits))
	}
}

func TestOrderServiceCancelPendingDoesNotRestock(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	if _, err := env.service.Cancel(context.Background(), CancelOrderCommand{OrderID: order.ID, ActingUserID: "usr_1"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if len(env.inventory.credits) != 0 {
		t.Fatalf("pending orders hold no stock, got %d credits", len(env.inventory.credits))
	}
}

func TestOrderServiceGetScopesToOwner(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	_, err := env.service.Get(context.Background(), order.ID, OrderReadOptions{ActingUserID: "usr_2", ActingRole: domain.UserRoleCustomer})
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound for foreign order, got %v", err)
	}

	got, err := env.service.Get(context.Background(), order.ID, OrderReadOptions{ActingUserID: "usr_9", ActingRole: domain.UserRoleAdmin})
	if err != nil {
		t.Fatalf("admin read: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("unexpected order: %#v", got)
	}
}

func TestOrderServiceListForcesOwnScopeForCustomers(t *testing.T) {
	env := newOrderTestEnv(t)
	env.createOrder(t, domain.PaymentTypeCard)

	_, err := env.service.Create(context.Background(), CreateOrderCommand{
		UserID: "usr_2",
		Items:  []CreateOrderLine{{CapID: "cap_1", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create second order: %v", err)
	}

	page, err := env.service.List(context.Background(), OrderListQuery{
		ActingUserID: "usr_1",
		ActingRole:   domain.UserRoleCustomer,
		UserID:       "usr_2",
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, order := range page.Items {
		if order.UserID != "usr_1" {
			t.Fatalf("customer listing leaked order of %q", order.UserID)
		}
	}
}

func TestOrderServiceDeleteOnlyPending(t *testing.T) {
	env := newOrderTestEnv(t)
	order := env.createOrder(t, domain.PaymentTypeCard)

	if err := env.service.Delete(context.Background(), DeleteOrderCommand{OrderID: order.ID, ActingUserID: "usr_1"}); err != nil {
		t.Fatalf("delete pending: %v", err)
	}

	order = env.createOrder(t, domain.PaymentTypeCard)
	if _, err := env.service.MarkPaid(context.Background(), MarkPaidCommand{OrderID: order.ID}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	err := env.service.Delete(context.Background(), DeleteOrderCommand{OrderID: order.ID, ActingUserID: "usr_1"})
	if !errors.Is(err, ErrOrderInvalidState) {
		t.Fatalf("expected ErrOrderInvalidState, got %v", err)
	}
}
