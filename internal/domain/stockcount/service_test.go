package stockcount

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/catalog"
	"lotledger/internal/domain/damage"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/lot"
	"lotledger/pkg/numerator"
)

// --- test doubles ---

type nopTxManager struct{}

func (nopTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type seqRow struct{ val int64 }

func (r *seqRow) Scan(dest ...any) error {
	if ptr, ok := dest[0].(*int64); ok {
		*ptr = r.val
	}
	return nil
}

type seqQuerier struct{ current int64 }

func (q *seqQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	inc := int64(1)
	if len(args) == 2 {
		if v, ok := args[1].(int64); ok {
			inc = v
		}
	}
	q.current += inc
	return &seqRow{val: q.current}
}

type fakeCountRepo struct {
	counts map[id.ID]*Count
}

func newFakeCountRepo() *fakeCountRepo {
	return &fakeCountRepo{counts: make(map[id.ID]*Count)}
}

func copyCount(c *Count) *Count {
	cp := *c
	cp.Lines = make([]Line, len(c.Lines))
	for i, l := range c.Lines {
		cp.Lines[i] = l
		if l.SystemQuantity != nil {
			v := *l.SystemQuantity
			cp.Lines[i].SystemQuantity = &v
		}
		if l.Variance != nil {
			v := *l.Variance
			cp.Lines[i].Variance = &v
		}
	}
	return &cp
}

func (f *fakeCountRepo) Create(_ context.Context, c *Count) error {
	f.counts[c.ID] = copyCount(c)
	return nil
}

func (f *fakeCountRepo) GetByID(_ context.Context, countID id.ID) (*Count, error) {
	c, ok := f.counts[countID]
	if !ok {
		return nil, apperror.NewNotFound("stock count", countID)
	}
	return copyCount(c), nil
}

func (f *fakeCountRepo) GetByIDForUpdate(ctx context.Context, countID id.ID) (*Count, error) {
	return f.GetByID(ctx, countID)
}

func (f *fakeCountRepo) List(_ context.Context, _ ListFilter) ([]Count, error) {
	var out []Count
	for _, c := range f.counts {
		out = append(out, *copyCount(c))
	}
	return out, nil
}

func (f *fakeCountRepo) UpdateLineResult(_ context.Context, lineID id.ID, system, variance types.Quantity) error {
	for _, c := range f.counts {
		for i := range c.Lines {
			if c.Lines[i].ID == lineID {
				s, v := system, variance
				c.Lines[i].SystemQuantity = &s
				c.Lines[i].Variance = &v
				return nil
			}
		}
	}
	return apperror.NewNotFound("stock count line", lineID)
}

func (f *fakeCountRepo) UpdateStatus(_ context.Context, countID id.ID, from, to Status, _ time.Time) error {
	c, ok := f.counts[countID]
	if !ok || c.Status != from {
		return apperror.NewConcurrentModification("stock count", countID)
	}
	c.Status = to
	return nil
}

type fakeLotRepo struct {
	lots      map[id.ID]*lot.Lot
	suppliers map[id.ID]*id.ID
}

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{
		lots:      make(map[id.ID]*lot.Lot),
		suppliers: make(map[id.ID]*id.ID),
	}
}

func (f *fakeLotRepo) Create(_ context.Context, l *lot.Lot) error {
	cp := *l
	f.lots[l.ID] = &cp
	return nil
}

func (f *fakeLotRepo) GetByID(_ context.Context, lotID id.ID) (*lot.Lot, error) {
	l, ok := f.lots[lotID]
	if !ok {
		return nil, apperror.NewNotFound("lot", lotID)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLotRepo) openSorted(productID id.ID) []lot.Lot {
	var out []lot.Lot
	for _, l := range f.lots {
		if l.ProductID == productID && l.QuantityRemaining.IsPositive() {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out
}

func (f *fakeLotRepo) SelectOpenForUpdate(_ context.Context, productID id.ID) ([]lot.Lot, error) {
	return f.openSorted(productID), nil
}

func (f *fakeLotRepo) NewestOpenForUpdate(_ context.Context, productID id.ID) (*lot.Lot, error) {
	open := f.openSorted(productID)
	if len(open) == 0 {
		return nil, apperror.NewNotFound("lot", productID)
	}
	newest := open[len(open)-1]
	return &newest, nil
}

func (f *fakeLotRepo) Decrement(_ context.Context, lotID id.ID, delta types.Quantity) error {
	l, ok := f.lots[lotID]
	if !ok || l.QuantityRemaining < delta {
		return apperror.NewConcurrentModification("lot", lotID)
	}
	l.QuantityRemaining -= delta
	return nil
}

func (f *fakeLotRepo) Increment(_ context.Context, lotID id.ID, delta types.Quantity) error {
	l, ok := f.lots[lotID]
	if !ok {
		return apperror.NewNotFound("lot", lotID)
	}
	l.QuantityRemaining += delta
	return nil
}

func (f *fakeLotRepo) RemainingByProduct(_ context.Context, productID id.ID) (types.Quantity, error) {
	var total types.Quantity
	for _, l := range f.lots {
		if l.ProductID == productID {
			total += l.QuantityRemaining
		}
	}
	return total, nil
}

func (f *fakeLotRepo) ListByProduct(_ context.Context, productID id.ID) ([]lot.Lot, error) {
	return f.openSorted(productID), nil
}

func (f *fakeLotRepo) SupplierOf(_ context.Context, lotID id.ID) (*id.ID, error) {
	return f.suppliers[lotID], nil
}

type fakeLedgerRepo struct {
	entries []ledger.Entry
	nextID  int64
}

func (f *fakeLedgerRepo) Append(_ context.Context, e *ledger.Entry) error {
	f.nextID++
	e.EntryID = f.nextID
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeLedgerRepo) LatestBalance(_ context.Context, productID id.ID) (types.Quantity, error) {
	for i := len(f.entries) - 1; i >= 0; i-- {
		if f.entries[i].ProductID == productID {
			return f.entries[i].BalanceAfter, nil
		}
	}
	return 0, nil
}

func (f *fakeLedgerRepo) BalanceAt(_ context.Context, productID id.ID, t time.Time) (types.Quantity, error) {
	var balance types.Quantity
	for _, e := range f.entries {
		if e.ProductID == productID && !e.OccurredAt.After(t) {
			balance = e.BalanceAfter
		}
	}
	return balance, nil
}

func (f *fakeLedgerRepo) ListByProduct(_ context.Context, productID id.ID, _ ledger.Filter) ([]ledger.Entry, error) {
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.ProductID == productID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeLedgerRepo) LockProduct(_ context.Context, _ id.ID) error { return nil }

func (f *fakeLedgerRepo) byKind(kind ledger.Kind) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range f.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type fakeProductRepo struct {
	products map[id.ID]*catalog.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[id.ID]*catalog.Product)}
}

func (f *fakeProductRepo) Create(_ context.Context, p *catalog.Product) error {
	cp := *p
	f.products[p.ID] = &cp
	return nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, productID id.ID) (*catalog.Product, error) {
	p, ok := f.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID)
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) GetByCode(_ context.Context, code string) (*catalog.Product, error) {
	for _, p := range f.products {
		if p.Code == code {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("product", code)
}

func (f *fakeProductRepo) List(_ context.Context, _, _ int) ([]catalog.Product, error) {
	return nil, nil
}

type fakeDamageRepo struct {
	records map[id.ID]*damage.Record
}

func newFakeDamageRepo() *fakeDamageRepo {
	return &fakeDamageRepo{records: make(map[id.ID]*damage.Record)}
}

func (f *fakeDamageRepo) Create(_ context.Context, r *damage.Record) error {
	cp := *r
	f.records[r.ID] = &cp
	return nil
}

func (f *fakeDamageRepo) ListPendingForUpdate(ctx context.Context) ([]damage.Record, error) {
	return f.ListPending(ctx)
}

func (f *fakeDamageRepo) ListPending(_ context.Context) ([]damage.Record, error) {
	var out []damage.Record
	for _, r := range f.records {
		if r.Status == damage.StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeDamageRepo) MarkQueued(_ context.Context, recordIDs []id.ID, returnOrderID id.ID) error {
	for _, rid := range recordIDs {
		r, ok := f.records[rid]
		if !ok {
			return apperror.NewNotFound("damage record", rid)
		}
		r.Status = damage.StatusQueued
		orderID := returnOrderID
		r.ReturnOrderID = &orderID
	}
	return nil
}

func (f *fakeDamageRepo) ExistsBySource(_ context.Context, kind damage.SourceKind, sourceID id.ID) (bool, error) {
	for _, r := range f.records {
		if r.SourceKind == kind && r.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeDamageRepo) all() []damage.Record {
	var out []damage.Record
	for _, r := range f.records {
		out = append(out, *r)
	}
	return out
}

type fakeReturns struct {
	calls int
}

func (f *fakeReturns) CreateSupplierReturn(_ context.Context, _ id.ID, _ []damage.ReturnLine) (id.ID, error) {
	f.calls++
	return id.New(), nil
}

// --- fixture ---

type fixture struct {
	service  *Service
	repo     *fakeCountRepo
	lots     *fakeLotRepo
	ledger   *fakeLedgerRepo
	products *fakeProductRepo
	damages  *fakeDamageRepo
	returns  *fakeReturns
}

func newFixture() *fixture {
	repo := newFakeCountRepo()
	lots := newFakeLotRepo()
	ledgerRepo := &fakeLedgerRepo{}
	products := newFakeProductRepo()
	damages := newFakeDamageRepo()
	returns := &fakeReturns{}

	service := NewService(
		repo,
		lots,
		ledger.NewService(ledgerRepo),
		products,
		damage.NewService(damages, returns, nopTxManager{}),
		numerator.New(&seqQuerier{}),
		nopTxManager{},
	)

	return &fixture{
		service:  service,
		repo:     repo,
		lots:     lots,
		ledger:   ledgerRepo,
		products: products,
		damages:  damages,
		returns:  returns,
	}
}

func (f *fixture) addProduct() catalog.Product {
	p := catalog.Product{
		ID:   id.New(),
		Code: "WDG",
		Name: "Widget",
		Unit: "pcs",
	}
	_ = f.products.Create(context.Background(), &p)
	return p
}

func (f *fixture) addLot(productID id.ID, qtyUnits int64, unitCost string, receivedAt time.Time, supplierID *id.ID) lot.Lot {
	l := lot.Lot{
		ID:                id.New(),
		ProductID:         productID,
		QuantityReceived:  types.NewQuantityFromInt(qtyUnits),
		QuantityRemaining: types.NewQuantityFromInt(qtyUnits),
		UnitCost:          types.MustMoney(unitCost),
		ReceivedAt:        receivedAt,
	}
	_ = f.lots.Create(context.Background(), &l)
	f.lots.suppliers[l.ID] = supplierID
	return l
}

// submittedCount creates and submits a count with a single line.
func (f *fixture) submittedCount(t *testing.T, line LineInput) *Count {
	t.Helper()
	ctx := context.Background()
	c, err := f.service.Create(ctx, CreateInput{Lines: []LineInput{line}})
	require.NoError(t, err)
	c, err = f.service.Submit(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func qty(v int64) types.Quantity { return types.NewQuantityFromInt(v) }

// --- tests ---

func TestCreate_PendingCountWithNumber(t *testing.T) {
	f := newFixture()
	product := f.addProduct()

	c, err := f.service.Create(context.Background(), CreateInput{
		Lines: []LineInput{{ProductID: product.ID, ActualGood: qty(8)}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, c.Status)
	year := time.Now().Format("2006")
	assert.Equal(t, "SC-"+year+"-00001", c.Number)
}

func TestCreate_RejectsDuplicateProduct(t *testing.T) {
	f := newFixture()
	product := f.addProduct()

	_, err := f.service.Create(context.Background(), CreateInput{
		Lines: []LineInput{
			{ProductID: product.ID, ActualGood: qty(8)},
			{ProductID: product.ID, ActualGood: qty(2)},
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestApprove_RequiresSubmission(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	ctx := context.Background()

	c, err := f.service.Create(ctx, CreateInput{
		Lines: []LineInput{{ProductID: product.ID, ActualGood: qty(8)}},
	})
	require.NoError(t, err)

	_, err = f.service.Approve(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestApprove_DamageOnlyWhenTotalsMatch(t *testing.T) {
	// Counted 8 good + 2 damaged against a system quantity of 10: the damage
	// write-off covers the whole difference, so no adjustment entry appears.
	f := newFixture()
	product := f.addProduct()
	supplierID := id.New()
	l := f.addLot(product.ID, 10, "5", time.Now().UTC(), &supplierID)
	c := f.submittedCount(t, LineInput{
		ProductID:     product.ID,
		ActualGood:    qty(8),
		ActualDamaged: qty(2),
		Reason:        "shelf damage",
	})
	ctx := context.Background()

	done, err := f.service.Approve(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.ApprovedAt)

	require.Len(t, f.ledger.entries, 1)
	entry := f.ledger.entries[0]
	assert.Equal(t, ledger.KindDamage, entry.Kind)
	assert.Equal(t, qty(2).Neg(), entry.QuantityDelta)
	assert.Equal(t, ledger.RefStockCount, entry.ReferenceKind)

	kept, _ := f.lots.GetByID(ctx, l.ID)
	assert.Equal(t, qty(8), kept.QuantityRemaining)

	// Reported variance measures the good count against the full system
	// quantity, so the header shows what went missing overall.
	require.NotNil(t, done.Lines[0].SystemQuantity)
	assert.Equal(t, qty(10), *done.Lines[0].SystemQuantity)
	require.NotNil(t, done.Lines[0].Variance)
	assert.Equal(t, qty(-2), *done.Lines[0].Variance)

	records := f.damages.all()
	require.Len(t, records, 1)
	assert.Equal(t, damage.SourceStockCount, records[0].SourceKind)
	assert.Equal(t, qty(2), records[0].Quantity)
	require.NotNil(t, records[0].SupplierID)
	assert.Equal(t, supplierID, *records[0].SupplierID)
	// 2 units at cost 5 from the consumed lot.
	assert.True(t, types.MustMoney("10").Equal(records[0].Cost))
	assert.Equal(t, "shelf damage", records[0].Reason)
}

func TestApprove_ShortfallDeductsFIFO(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	older := f.addLot(product.ID, 4, "5", t0, nil)
	newer := f.addLot(product.ID, 6, "7", t0.Add(time.Hour), nil)
	c := f.submittedCount(t, LineInput{ProductID: product.ID, ActualGood: qty(5)})
	ctx := context.Background()

	done, err := f.service.Approve(ctx, c.ID)
	require.NoError(t, err)

	// Shortfall of 5 drains the older lot and one unit of the newer.
	olderLot, _ := f.lots.GetByID(ctx, older.ID)
	newerLot, _ := f.lots.GetByID(ctx, newer.ID)
	assert.True(t, olderLot.QuantityRemaining.IsZero())
	assert.Equal(t, qty(5), newerLot.QuantityRemaining)

	adjusts := f.ledger.byKind(ledger.KindAdjust)
	require.Len(t, adjusts, 1)
	assert.Equal(t, qty(-5), adjusts[0].QuantityDelta)
	assert.Nil(t, adjusts[0].LotID)

	assert.Equal(t, qty(-5), *done.Lines[0].Variance)
}

func TestApprove_SurplusOnNewestLot(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	t0 := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	f.addLot(product.ID, 4, "5", t0, nil)
	newest := f.addLot(product.ID, 6, "7", t0.Add(time.Hour), nil)
	c := f.submittedCount(t, LineInput{ProductID: product.ID, ActualGood: qty(12)})
	ctx := context.Background()

	done, err := f.service.Approve(ctx, c.ID)
	require.NoError(t, err)

	newestLot, _ := f.lots.GetByID(ctx, newest.ID)
	assert.Equal(t, qty(8), newestLot.QuantityRemaining)

	adjusts := f.ledger.byKind(ledger.KindAdjust)
	require.Len(t, adjusts, 1)
	assert.Equal(t, qty(2), adjusts[0].QuantityDelta)
	require.NotNil(t, adjusts[0].LotID)
	assert.Equal(t, newest.ID, *adjusts[0].LotID)

	assert.Equal(t, qty(2), *done.Lines[0].Variance)
}

func TestApprove_SurplusWithoutLotsCreatesZeroCostLot(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	c := f.submittedCount(t, LineInput{ProductID: product.ID, ActualGood: qty(3)})
	ctx := context.Background()

	_, err := f.service.Approve(ctx, c.ID)
	require.NoError(t, err)

	lots := f.lots.openSorted(product.ID)
	require.Len(t, lots, 1)
	assert.Equal(t, qty(3), lots[0].QuantityRemaining)
	assert.True(t, lots[0].UnitCost.IsZero())

	adjusts := f.ledger.byKind(ledger.KindAdjust)
	require.Len(t, adjusts, 1)
	assert.Equal(t, qty(3), adjusts[0].QuantityDelta)
}

func TestApprove_DamageExceedingSystemAborts(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	l := f.addLot(product.ID, 10, "5", time.Now().UTC(), nil)
	c := f.submittedCount(t, LineInput{
		ProductID:     product.ID,
		ActualGood:    qty(0),
		ActualDamaged: qty(12),
	})
	ctx := context.Background()

	_, err := f.service.Approve(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	kept, _ := f.lots.GetByID(ctx, l.ID)
	assert.Equal(t, qty(10), kept.QuantityRemaining)
	assert.Empty(t, f.ledger.entries)

	stored, _ := f.service.Get(ctx, c.ID)
	assert.Equal(t, StatusSubmitted, stored.Status)
}

func TestApprove_ThresholdDamageCreatesReturnOrder(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	supplierID := id.New()
	f.addLot(product.ID, 25, "5", time.Now().UTC(), &supplierID)
	c := f.submittedCount(t, LineInput{
		ProductID:     product.ID,
		ActualGood:    qty(5),
		ActualDamaged: qty(20),
	})

	_, err := f.service.Approve(context.Background(), c.ID)
	require.NoError(t, err)

	// 20 damaged units reach the batching threshold inside the approval.
	assert.Equal(t, 1, f.returns.calls)

	records := f.damages.all()
	require.Len(t, records, 1)
	assert.Equal(t, damage.StatusQueued, records[0].Status)
	require.NotNil(t, records[0].ReturnOrderID)
}

func TestApprove_UntraceableDamageStaysPending(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	f.addLot(product.ID, 25, "5", time.Now().UTC(), nil)
	c := f.submittedCount(t, LineInput{
		ProductID:     product.ID,
		ActualGood:    qty(5),
		ActualDamaged: qty(20),
	})

	_, err := f.service.Approve(context.Background(), c.ID)
	require.NoError(t, err)

	// No supplier on the consumed lot: nothing to batch, record stays pending.
	assert.Equal(t, 0, f.returns.calls)

	records := f.damages.all()
	require.Len(t, records, 1)
	assert.Equal(t, damage.StatusPending, records[0].Status)
	assert.Nil(t, records[0].SupplierID)
}

func TestSubmit_PendingOnly(t *testing.T) {
	f := newFixture()
	product := f.addProduct()
	ctx := context.Background()

	c, err := f.service.Create(ctx, CreateInput{
		Lines: []LineInput{{ProductID: product.ID, ActualGood: qty(8)}},
	})
	require.NoError(t, err)

	submitted, err := f.service.Submit(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.SubmittedAt)

	_, err = f.service.Submit(ctx, c.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyFinalized))
}
