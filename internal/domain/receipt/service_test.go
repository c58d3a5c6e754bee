package receipt

import (
	"context"
	"sort"
	"strings"
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
	"lotledger/internal/domain/serial"
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

type fakeReceiptRepo struct {
	receipts map[id.ID]*Receipt
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[id.ID]*Receipt)}
}

func copyReceipt(r *Receipt) *Receipt {
	cp := *r
	cp.Lines = make([]Line, len(r.Lines))
	for i, l := range r.Lines {
		cp.Lines[i] = l
		if l.QuantityActualGood != nil {
			v := *l.QuantityActualGood
			cp.Lines[i].QuantityActualGood = &v
		}
		if l.QuantityDamaged != nil {
			v := *l.QuantityDamaged
			cp.Lines[i].QuantityDamaged = &v
		}
	}
	return &cp
}

func (f *fakeReceiptRepo) Create(_ context.Context, r *Receipt) error {
	f.receipts[r.ID] = copyReceipt(r)
	return nil
}

func (f *fakeReceiptRepo) GetByID(_ context.Context, receiptID id.ID) (*Receipt, error) {
	r, ok := f.receipts[receiptID]
	if !ok {
		return nil, apperror.NewNotFound("receipt", receiptID)
	}
	return copyReceipt(r), nil
}

func (f *fakeReceiptRepo) GetByIDForUpdate(ctx context.Context, receiptID id.ID) (*Receipt, error) {
	return f.GetByID(ctx, receiptID)
}

func (f *fakeReceiptRepo) List(_ context.Context, _ ListFilter) ([]Receipt, error) {
	var out []Receipt
	for _, r := range f.receipts {
		out = append(out, *copyReceipt(r))
	}
	return out, nil
}

func (f *fakeReceiptRepo) UpdateLineActuals(_ context.Context, lineID id.ID, good, damaged types.Quantity) error {
	for _, r := range f.receipts {
		for i := range r.Lines {
			if r.Lines[i].ID == lineID {
				g, d := good, damaged
				r.Lines[i].QuantityActualGood = &g
				r.Lines[i].QuantityDamaged = &d
				return nil
			}
		}
	}
	return apperror.NewNotFound("receipt line", lineID)
}

func (f *fakeReceiptRepo) UpdateStatus(_ context.Context, receiptID id.ID, status Status, expectedVersion int) error {
	r, ok := f.receipts[receiptID]
	if !ok || r.Version != expectedVersion {
		return apperror.NewConcurrentModification("receipt", receiptID)
	}
	r.Status = status
	r.Version++
	return nil
}

// replacements returns synthesized replacement receipts for the original.
func (f *fakeReceiptRepo) replacements(originalID id.ID) []*Receipt {
	var out []*Receipt
	for _, r := range f.receipts {
		if r.ReplacementForID != nil && *r.ReplacementForID == originalID {
			out = append(out, copyReceipt(r))
		}
	}
	return out
}

type fakeLotRepo struct {
	lots map[id.ID]*lot.Lot
}

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{lots: make(map[id.ID]*lot.Lot)}
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

func (f *fakeLotRepo) SelectOpenForUpdate(_ context.Context, productID id.ID) ([]lot.Lot, error) {
	var out []lot.Lot
	for _, l := range f.lots {
		if l.ProductID == productID && l.QuantityRemaining.IsPositive() {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.Before(out[j].ReceivedAt) })
	return out, nil
}

func (f *fakeLotRepo) NewestOpenForUpdate(_ context.Context, productID id.ID) (*lot.Lot, error) {
	return nil, apperror.NewNotFound("lot", productID)
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

func (f *fakeLotRepo) ListByProduct(ctx context.Context, productID id.ID) ([]lot.Lot, error) {
	return f.SelectOpenForUpdate(ctx, productID)
}

func (f *fakeLotRepo) SupplierOf(_ context.Context, _ id.ID) (*id.ID, error) {
	return nil, nil
}

// byProduct returns the product's lots in received order.
func (f *fakeLotRepo) byProduct(productID id.ID) []lot.Lot {
	out, _ := f.SelectOpenForUpdate(context.Background(), productID)
	return out
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

type fakeSerialRepo struct {
	units map[id.ID]*serial.Unit
}

func newFakeSerialRepo() *fakeSerialRepo {
	return &fakeSerialRepo{units: make(map[id.ID]*serial.Unit)}
}

func (f *fakeSerialRepo) Mint(_ context.Context, units []serial.Unit) error {
	for _, u := range units {
		cp := u
		f.units[u.ID] = &cp
	}
	return nil
}

func (f *fakeSerialRepo) SelectAvailableForUpdate(_ context.Context, productID id.ID, limit int) ([]serial.Unit, error) {
	var out []serial.Unit
	for _, u := range f.units {
		if u.ProductID == productID && u.Status == serial.StatusInStock {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SerialCode < out[j].SerialCode })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSerialRepo) CountAvailable(_ context.Context, productID id.ID) (int, error) {
	count := 0
	for _, u := range f.units {
		if u.ProductID == productID && u.Status == serial.StatusInStock {
			count++
		}
	}
	return count, nil
}

func (f *fakeSerialRepo) MarkPicked(_ context.Context, unitID, allocationLineID id.ID) error {
	u, ok := f.units[unitID]
	if !ok || u.Status != serial.StatusInStock {
		return apperror.NewConcurrentModification("serial unit", unitID)
	}
	u.Status = serial.StatusPicked
	u.AllocationLineID = &allocationLineID
	return nil
}

func (f *fakeSerialRepo) CountByCodePrefix(_ context.Context, prefix string) (int, error) {
	count := 0
	for _, u := range f.units {
		if strings.HasPrefix(u.SerialCode, prefix+"-") {
			count++
		}
	}
	return count, nil
}

func (f *fakeSerialRepo) ListByAllocationLine(_ context.Context, _ id.ID) ([]serial.Unit, error) {
	return nil, nil
}

// codes returns all minted serial codes sorted.
func (f *fakeSerialRepo) codes() []string {
	var out []string
	for _, u := range f.units {
		out = append(out, u.SerialCode)
	}
	sort.Strings(out)
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

func (f *fakeDamageRepo) bySource(kind damage.SourceKind, sourceID id.ID) []damage.Record {
	var out []damage.Record
	for _, r := range f.records {
		if r.SourceKind == kind && r.SourceID == sourceID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DiscoveredAt.Before(out[j].DiscoveredAt) })
	return out
}

type returnCall struct {
	supplierID id.ID
	lines      []damage.ReturnLine
}

type fakeReturns struct {
	calls []returnCall
}

func (f *fakeReturns) CreateSupplierReturn(_ context.Context, supplierID id.ID, lines []damage.ReturnLine) (id.ID, error) {
	f.calls = append(f.calls, returnCall{supplierID: supplierID, lines: lines})
	return id.New(), nil
}

// --- fixture ---

type fixture struct {
	service  *Service
	repo     *fakeReceiptRepo
	lots     *fakeLotRepo
	serials  *fakeSerialRepo
	ledger   *fakeLedgerRepo
	products *fakeProductRepo
	damages  *fakeDamageRepo
	returns  *fakeReturns
}

func newFixture() *fixture {
	repo := newFakeReceiptRepo()
	lots := newFakeLotRepo()
	serials := newFakeSerialRepo()
	ledgerRepo := &fakeLedgerRepo{}
	products := newFakeProductRepo()
	damages := newFakeDamageRepo()
	returns := &fakeReturns{}

	damageService := damage.NewService(damages, returns, nopTxManager{})
	service := NewService(
		repo,
		lots,
		serial.NewService(serials),
		ledger.NewService(ledgerRepo),
		products,
		damageService,
		returns,
		numerator.New(&seqQuerier{}),
		nopTxManager{},
	)

	return &fixture{
		service:  service,
		repo:     repo,
		lots:     lots,
		serials:  serials,
		ledger:   ledgerRepo,
		products: products,
		damages:  damages,
		returns:  returns,
	}
}

func (f *fixture) addProduct(code string, serialized bool) catalog.Product {
	p := catalog.Product{
		ID:         id.New(),
		Code:       code,
		Name:       "Product " + code,
		Unit:       "pcs",
		Serialized: serialized,
	}
	_ = f.products.Create(context.Background(), &p)
	return p
}

func (f *fixture) draftReceipt(t *testing.T, supplierID id.ID, lines ...CreateLineInput) *Receipt {
	t.Helper()
	r, err := f.service.Create(context.Background(), CreateInput{
		SupplierID: supplierID,
		Lines:      lines,
	})
	require.NoError(t, err)
	return r
}

func qty(v int64) types.Quantity { return types.NewQuantityFromInt(v) }

// --- tests ---

func TestCreate_DraftWithStrictNumber(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)

	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("12.50"),
	})

	assert.Equal(t, StatusDraft, r.Status)
	year := time.Now().Format("2006")
	assert.Equal(t, "RC-"+year+"-00001", r.Number)
	require.Len(t, r.Lines, 1)
	assert.False(t, r.Lines[0].HasActuals())
}

func TestCreate_RejectsZeroExpected(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)

	_, err := f.service.Create(context.Background(), CreateInput{
		SupplierID: id.New(),
		Lines: []CreateLineInput{
			{ProductID: product.ID, QuantityExpected: qty(0), UnitPrice: types.MustMoney("1")},
		},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidQuantity))
}

func TestReconcile_FullGoodCompletesReceipt(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("12.50"),
	})

	done, err := f.service.Reconcile(context.Background(), r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	lots := f.lots.byProduct(product.ID)
	require.Len(t, lots, 1)
	assert.Equal(t, qty(10), lots[0].QuantityRemaining)
	assert.True(t, types.MustMoney("12.50").Equal(lots[0].UnitCost))
	require.NotNil(t, lots[0].SourceReceiptLineID)
	assert.Equal(t, r.Lines[0].ID, *lots[0].SourceReceiptLineID)

	require.Len(t, f.ledger.entries, 1)
	entry := f.ledger.entries[0]
	assert.Equal(t, ledger.KindIn, entry.Kind)
	assert.Equal(t, qty(10), entry.QuantityDelta)
	assert.Equal(t, qty(10), entry.BalanceAfter)
	assert.Equal(t, ledger.RefReceipt, entry.ReferenceKind)
	assert.Equal(t, r.ID, entry.ReferenceID)
}

func TestReconcile_CumulativeActualsCreateDeltaLots(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("5"),
	})
	ctx := context.Background()

	partial, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(4)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, partial.Status)

	// Cumulative total 10: only the delta of 6 becomes a new lot.
	done, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(10)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)

	lots := f.lots.byProduct(product.ID)
	require.Len(t, lots, 2)
	assert.Equal(t, qty(4), lots[0].QuantityReceived)
	assert.Equal(t, qty(6), lots[1].QuantityReceived)

	require.Len(t, f.ledger.entries, 2)
	assert.Equal(t, qty(10), f.ledger.entries[1].BalanceAfter)
}

func TestReconcile_SerialNumberingContinuesAcrossReconciles(t *testing.T) {
	f := newFixture()
	product := f.addProduct("CAM", true)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(5),
		UnitPrice:        types.MustMoney("100"),
	})
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(2)},
	})
	require.NoError(t, err)

	_, err = f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(5)},
	})
	require.NoError(t, err)

	prefix := serial.CodePrefix("CAM", r.Number)
	want := []string{
		prefix + "-0001",
		prefix + "-0002",
		prefix + "-0003",
		prefix + "-0004",
		prefix + "-0005",
	}
	assert.Equal(t, want, f.serials.codes())
}

func TestReconcile_DuplicateTotals(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("5"),
	})
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(4)},
	})
	require.NoError(t, err)

	_, err = f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(4)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeDuplicateReconciliation))
}

func TestReconcile_ActualsCannotDecrease(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("5"),
	})
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(6)},
	})
	require.NoError(t, err)

	_, err = f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(5)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestReconcile_OverExpectedRejected(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("5"),
	})

	_, err := f.service.Reconcile(context.Background(), r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(8), ActualDamaged: qty(3)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestReconcile_DamageSynthesizesReturnAndReplacementOnce(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	supplierID := id.New()
	r := f.draftReceipt(t, supplierID, CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(10),
		UnitPrice:        types.MustMoney("12.50"),
	})
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(5), ActualDamaged: qty(2), Reason: "crushed box"},
	})
	require.NoError(t, err)

	// Return order toward the supplier for the damaged delta.
	require.Len(t, f.returns.calls, 1)
	assert.Equal(t, supplierID, f.returns.calls[0].supplierID)
	require.Len(t, f.returns.calls[0].lines, 1)
	assert.Equal(t, qty(2), f.returns.calls[0].lines[0].Quantity)

	// Draft replacement receipt expecting the damaged quantity.
	replacements := f.repo.replacements(r.ID)
	require.Len(t, replacements, 1)
	assert.Equal(t, StatusDraft, replacements[0].Status)
	require.Len(t, replacements[0].Lines, 1)
	assert.Equal(t, qty(2), replacements[0].Lines[0].QuantityExpected)
	assert.True(t, types.MustMoney("12.50").Equal(replacements[0].Lines[0].UnitPrice))

	// The record is queued against the synthesized return order.
	records := f.damages.bySource(damage.SourceReceipt, r.ID)
	require.Len(t, records, 1)
	assert.Equal(t, damage.StatusQueued, records[0].Status)
	require.NotNil(t, records[0].ReturnOrderID)
	assert.Equal(t, "crushed box", records[0].Reason)
	// 12.50 * 2 = 25
	assert.True(t, types.MustMoney("25").Equal(records[0].Cost))

	// Further damage on the same receipt stays pending; no second synthesis.
	_, err = f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(5), ActualDamaged: qty(4)},
	})
	require.NoError(t, err)

	assert.Len(t, f.returns.calls, 1)
	assert.Len(t, f.repo.replacements(r.ID), 1)

	records = f.damages.bySource(damage.SourceReceipt, r.ID)
	require.Len(t, records, 2)
	pendingSeen := 0
	for _, rec := range records {
		if rec.Status == damage.StatusPending {
			pendingSeen++
			assert.Equal(t, qty(2), rec.Quantity)
		}
	}
	assert.Equal(t, 1, pendingSeen)
}

func TestReconcile_DamageOnSeveralLinesCoversAllInReturn(t *testing.T) {
	f := newFixture()
	widget := f.addProduct("WDG", false)
	bolt := f.addProduct("BLT", false)
	supplierID := id.New()
	r := f.draftReceipt(t, supplierID,
		CreateLineInput{ProductID: widget.ID, QuantityExpected: qty(10), UnitPrice: types.MustMoney("12.50")},
		CreateLineInput{ProductID: bolt.ID, QuantityExpected: qty(8), UnitPrice: types.MustMoney("3")},
	)

	_, err := f.service.Reconcile(context.Background(), r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(7), ActualDamaged: qty(3)},
		{LineID: r.Lines[1].ID, ActualGood: qty(4), ActualDamaged: qty(4)},
	})
	require.NoError(t, err)

	// One return order requesting both damaged lines back, 7 units total.
	require.Len(t, f.returns.calls, 1)
	lines := f.returns.calls[0].lines
	require.Len(t, lines, 2)
	returned := map[id.ID]types.Quantity{}
	var total types.Quantity
	for _, l := range lines {
		returned[l.ProductID] = l.Quantity
		total += l.Quantity
	}
	assert.Equal(t, qty(3), returned[widget.ID])
	assert.Equal(t, qty(4), returned[bolt.ID])
	assert.Equal(t, qty(7), total)

	// The replacement receipt mirrors both damaged lines at their prices.
	replacements := f.repo.replacements(r.ID)
	require.Len(t, replacements, 1)
	require.Len(t, replacements[0].Lines, 2)
	expected := map[id.ID]Line{}
	for _, l := range replacements[0].Lines {
		expected[l.ProductID] = l
	}
	assert.Equal(t, qty(3), expected[widget.ID].QuantityExpected)
	assert.True(t, types.MustMoney("12.50").Equal(expected[widget.ID].UnitPrice))
	assert.Equal(t, qty(4), expected[bolt.ID].QuantityExpected)
	assert.True(t, types.MustMoney("3").Equal(expected[bolt.ID].UnitPrice))

	// Both records are queued against the synthesized order.
	records := f.damages.bySource(damage.SourceReceipt, r.ID)
	require.Len(t, records, 2)
	for _, rec := range records {
		assert.Equal(t, damage.StatusQueued, rec.Status)
		require.NotNil(t, rec.ReturnOrderID)
	}
}

func TestReconcile_FinalizedReceiptRejected(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(3),
		UnitPrice:        types.MustMoney("5"),
	})
	ctx := context.Background()

	_, err := f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(3)},
	})
	require.NoError(t, err)

	_, err = f.service.Reconcile(ctx, r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(3)},
	})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyFinalized))
}

func TestReconcile_MultiLinePartialStatus(t *testing.T) {
	f := newFixture()
	first := f.addProduct("WDG", false)
	second := f.addProduct("BLT", false)
	r := f.draftReceipt(t, id.New(),
		CreateLineInput{ProductID: first.ID, QuantityExpected: qty(5), UnitPrice: types.MustMoney("1")},
		CreateLineInput{ProductID: second.ID, QuantityExpected: qty(5), UnitPrice: types.MustMoney("2")},
	)

	partial, err := f.service.Reconcile(context.Background(), r.ID, []LineActuals{
		{LineID: r.Lines[0].ID, ActualGood: qty(5)},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, partial.Status)
}

func TestCancel_DraftAndFinalized(t *testing.T) {
	f := newFixture()
	product := f.addProduct("WDG", false)
	r := f.draftReceipt(t, id.New(), CreateLineInput{
		ProductID:        product.ID,
		QuantityExpected: qty(3),
		UnitPrice:        types.MustMoney("5"),
	})
	ctx := context.Background()

	require.NoError(t, f.service.Cancel(ctx, r.ID))

	stored, err := f.service.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, stored.Status)

	err = f.service.Cancel(ctx, r.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeAlreadyFinalized))
}
