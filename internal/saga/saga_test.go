package saga

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/loopers/commerce-core/internal/domain"
	"github.com/loopers/commerce-core/internal/eventbus"
	"github.com/loopers/commerce-core/internal/store"
)

// fakeTx is a no-op store.TxController; the fakes in this file never issue
// raw SQL, so it only needs to satisfy the interface.
type fakeTx struct{}

func (fakeTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row { return nil }
func (fakeTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return nil, nil
}
func (fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

type fakeDB struct{}

func (fakeDB) BeginTx(ctx context.Context, opts *sql.TxOptions) (store.TxController, error) {
	return fakeTx{}, nil
}

type fakeUsers struct {
	byExternalID map[string]*domain.User
	byID         map[int64]*domain.User
}

func (f *fakeUsers) LockForUpdate(ctx context.Context, tx store.Tx, externalUserID string) (*domain.User, error) {
	u, ok := f.byExternalID[externalUserID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}
func (f *fakeUsers) LockForUpdateByID(ctx context.Context, tx store.Tx, userID int64) (*domain.User, error) {
	u, ok := f.byID[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return u, nil
}
func (f *fakeUsers) FindByID(ctx context.Context, tx store.Tx, userID int64) (*domain.User, error) {
	return f.LockForUpdateByID(ctx, tx, userID)
}
func (f *fakeUsers) Save(ctx context.Context, tx store.Tx, u *domain.User) error {
	f.byID[u.ID] = u
	f.byExternalID[u.ExternalUserID] = u
	return nil
}

type fakeProducts struct {
	byID map[int64]*domain.Product
}

func (f *fakeProducts) LockForUpdate(ctx context.Context, tx store.Tx, productID int64) (*domain.Product, error) {
	p, ok := f.byID[productID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}
func (f *fakeProducts) Save(ctx context.Context, tx store.Tx, p *domain.Product) error {
	f.byID[p.ID] = p
	return nil
}
func (f *fakeProducts) FindByIDs(ctx context.Context, tx store.Tx, ids []int64) ([]*domain.Product, error) {
	var out []*domain.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}
func (f *fakeProducts) FindOrderedByLikeCount(ctx context.Context, offset, limit int) ([]*domain.Product, error) {
	return nil, nil
}

type fakeCoupons struct {
	byCode       map[string]*domain.Coupon
	userCoupons  map[int64]*domain.UserCoupon // keyed by UserCoupon.ID
}

func (f *fakeCoupons) FindCouponByCode(ctx context.Context, tx store.Tx, code string) (*domain.Coupon, error) {
	c, ok := f.byCode[code]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return c, nil
}
func (f *fakeCoupons) FindUserCoupon(ctx context.Context, tx store.Tx, userID, couponID int64) (*domain.UserCoupon, error) {
	for _, uc := range f.userCoupons {
		if uc.UserID == userID && uc.CouponID == couponID {
			return uc, nil
		}
	}
	return nil, sql.ErrNoRows
}
func (f *fakeCoupons) SaveUserCoupon(ctx context.Context, tx store.Tx, uc *domain.UserCoupon, previousVersion int64) error {
	existing, ok := f.userCoupons[uc.ID]
	if ok && existing.Version != previousVersion {
		return sql.ErrNoRows
	}
	uc.Version++
	f.userCoupons[uc.ID] = uc
	return nil
}

type fakeOrders struct {
	nextID int64
	byID   map[int64]*domain.Order
}

func newFakeOrders() *fakeOrders { return &fakeOrders{byID: make(map[int64]*domain.Order)} }

func (f *fakeOrders) Save(ctx context.Context, tx store.Tx, o *domain.Order) (int64, error) {
	f.nextID++
	o.ID = f.nextID
	f.byID[o.ID] = o
	return o.ID, nil
}
func (f *fakeOrders) UpdateStatus(ctx context.Context, tx store.Tx, orderID int64, status domain.OrderStatus) error {
	o, ok := f.byID[orderID]
	if !ok {
		return sql.ErrNoRows
	}
	o.Status = status
	return nil
}
func (f *fakeOrders) FindByID(ctx context.Context, tx store.Tx, orderID int64) (*domain.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return o, nil
}
func (f *fakeOrders) FindPending(ctx context.Context) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, o := range f.byID {
		if o.Status == domain.OrderPending {
			out = append(out, o)
		}
	}
	return out, nil
}

type fakePayments struct {
	nextID    int64
	byID      map[int64]*domain.Payment
	byOrderID map[int64]*domain.Payment
}

func newFakePayments() *fakePayments {
	return &fakePayments{byID: make(map[int64]*domain.Payment), byOrderID: make(map[int64]*domain.Payment)}
}

func (f *fakePayments) Save(ctx context.Context, tx store.Tx, p *domain.Payment) (int64, error) {
	f.nextID++
	p.ID = f.nextID
	f.byID[p.ID] = p
	f.byOrderID[p.OrderID] = p
	return p.ID, nil
}
func (f *fakePayments) UpdateStatus(ctx context.Context, tx store.Tx, paymentID int64, status domain.PaymentStatus, transactionKey *string) error {
	p, ok := f.byID[paymentID]
	if !ok {
		return sql.ErrNoRows
	}
	p.Status = status
	if transactionKey != nil {
		p.TransactionKey = transactionKey
	}
	return nil
}
func (f *fakePayments) FindByOrderID(ctx context.Context, tx store.Tx, orderID int64) (*domain.Payment, error) {
	p, ok := f.byOrderID[orderID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return p, nil
}

type fakeOutbox struct {
	appended []*domain.OutboxEvent
}

func (f *fakeOutbox) Append(ctx context.Context, tx store.Tx, ev *domain.OutboxEvent) error {
	f.appended = append(f.appended, ev)
	return nil
}
func (f *fakeOutbox) NextVersion(ctx context.Context, tx store.Tx, aggregateID int64, aggregateType string) (int64, error) {
	return int64(len(f.appended) + 1), nil
}
func (f *fakeOutbox) ClaimPending(ctx context.Context, limit int) ([]*domain.OutboxEvent, func(), error) {
	return nil, func() {}, nil
}
func (f *fakeOutbox) MarkPublished(ctx context.Context, ids []int64) error { return nil }
func (f *fakeOutbox) MarkFailed(ctx context.Context, ids []int64) error    { return nil }

// harness wires every fake into an Orchestrator with a nil gateway.Client;
// tests call createOrderOnce, requestPaymentAsync and the
// completion/compensation methods directly rather than CreateOrder, and
// payment_flow_test.go installs a real client before calling
// requestPaymentAsync.
type harness struct {
	orch     *Orchestrator
	users    *fakeUsers
	products *fakeProducts
	coupons  *fakeCoupons
	orders   *fakeOrders
	payments *fakePayments
	outbox   *fakeOutbox
}

func newHarness() *harness {
	h := &harness{
		users:    &fakeUsers{byExternalID: make(map[string]*domain.User), byID: make(map[int64]*domain.User)},
		products: &fakeProducts{byID: make(map[int64]*domain.Product)},
		coupons:  &fakeCoupons{byCode: make(map[string]*domain.Coupon), userCoupons: make(map[int64]*domain.UserCoupon)},
		orders:   newFakeOrders(),
		payments: newFakePayments(),
		outbox:   &fakeOutbox{},
	}
	bus := eventbus.New(zerolog.Nop(), 1)
	h.orch = New(fakeDB{}, h.users, h.products, h.coupons, h.orders, h.payments, h.outbox, bus, nil, zerolog.Nop())
	return h
}
