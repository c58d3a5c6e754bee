package damage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// --- test doubles ---

type nopTxManager struct{}

func (nopTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeRepo struct {
	records map[id.ID]*Record
	order   []id.ID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{records: make(map[id.ID]*Record)}
}

func (f *fakeRepo) Create(_ context.Context, r *Record) error {
	cp := *r
	f.records[r.ID] = &cp
	f.order = append(f.order, r.ID)
	return nil
}

func (f *fakeRepo) ListPendingForUpdate(ctx context.Context) ([]Record, error) {
	return f.ListPending(ctx)
}

func (f *fakeRepo) ListPending(_ context.Context) ([]Record, error) {
	var out []Record
	for _, rid := range f.order {
		if r := f.records[rid]; r.Status == StatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkQueued(_ context.Context, recordIDs []id.ID, returnOrderID id.ID) error {
	for _, rid := range recordIDs {
		r, ok := f.records[rid]
		if !ok {
			return apperror.NewNotFound("damage record", rid)
		}
		r.Status = StatusQueued
		orderID := returnOrderID
		r.ReturnOrderID = &orderID
	}
	return nil
}

func (f *fakeRepo) ExistsBySource(_ context.Context, kind SourceKind, sourceID id.ID) (bool, error) {
	for _, r := range f.records {
		if r.SourceKind == kind && r.SourceID == sourceID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) get(recordID id.ID) *Record {
	r := f.records[recordID]
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

type returnCall struct {
	supplierID id.ID
	lines      []ReturnLine
}

type fakeOrders struct {
	calls    []returnCall
	orderIDs []id.ID
}

func (f *fakeOrders) CreateSupplierReturn(_ context.Context, supplierID id.ID, lines []ReturnLine) (id.ID, error) {
	f.calls = append(f.calls, returnCall{supplierID: supplierID, lines: lines})
	orderID := id.New()
	f.orderIDs = append(f.orderIDs, orderID)
	return orderID, nil
}

// --- fixture ---

func newFixture() (*Service, *fakeRepo, *fakeOrders) {
	repo := newFakeRepo()
	orders := &fakeOrders{}
	return NewService(repo, orders, nopTxManager{}), repo, orders
}

func qty(v int64) types.Quantity { return types.NewQuantityFromInt(v) }

func record(t *testing.T, s *Service, supplierID *id.ID, productID id.ID, quantity int64) *Record {
	t.Helper()
	r, err := s.Record(context.Background(), RecordInput{
		ProductID:  productID,
		SupplierID: supplierID,
		Quantity:   qty(quantity),
		Cost:       types.MustMoney("10"),
		SourceKind: SourceStockCount,
		SourceID:   id.New(),
	}, nil)
	require.NoError(t, err)
	return r
}

// --- tests ---

func TestRecord_RejectsNonPositiveQuantity(t *testing.T) {
	s, _, _ := newFixture()

	_, err := s.Record(context.Background(), RecordInput{
		ProductID:  id.New(),
		Quantity:   qty(0),
		SourceKind: SourceStockCount,
		SourceID:   id.New(),
	}, nil)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidQuantity))
}

func TestRecord_QueuedWhenOrderGiven(t *testing.T) {
	s, repo, _ := newFixture()
	orderID := id.New()

	r, err := s.Record(context.Background(), RecordInput{
		ProductID:  id.New(),
		Quantity:   qty(3),
		SourceKind: SourceReceipt,
		SourceID:   id.New(),
	}, &orderID)
	require.NoError(t, err)

	assert.Equal(t, StatusQueued, r.Status)
	require.NotNil(t, r.ReturnOrderID)
	assert.Equal(t, orderID, *r.ReturnOrderID)

	stored := repo.get(r.ID)
	require.NotNil(t, stored)
	assert.Equal(t, StatusQueued, stored.Status)
}

func TestHasSource(t *testing.T) {
	s, _, _ := newFixture()
	ctx := context.Background()
	sourceID := id.New()

	found, err := s.HasSource(ctx, SourceReceipt, sourceID)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = s.Record(ctx, RecordInput{
		ProductID:  id.New(),
		Quantity:   qty(1),
		SourceKind: SourceReceipt,
		SourceID:   sourceID,
	}, nil)
	require.NoError(t, err)

	found, err = s.HasSource(ctx, SourceReceipt, sourceID)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCheckThresholds_AccumulatesAcrossRecords(t *testing.T) {
	s, repo, orders := newFixture()
	supplierID := id.New()
	productID := id.New()

	first := record(t, s, &supplierID, productID, 12)
	second := record(t, s, &supplierID, productID, 9)

	created, err := s.CheckThresholds(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.Len(t, orders.calls, 1)
	assert.Equal(t, supplierID, orders.calls[0].supplierID)
	require.Len(t, orders.calls[0].lines, 1)
	assert.Equal(t, productID, orders.calls[0].lines[0].ProductID)
	assert.Equal(t, qty(21), orders.calls[0].lines[0].Quantity)

	for _, r := range []*Record{first, second} {
		stored := repo.get(r.ID)
		assert.Equal(t, StatusQueued, stored.Status)
		require.NotNil(t, stored.ReturnOrderID)
		assert.Equal(t, created[0], *stored.ReturnOrderID)
	}
}

func TestCheckThresholds_BelowThresholdDoesNothing(t *testing.T) {
	s, repo, orders := newFixture()
	supplierID := id.New()

	r := record(t, s, &supplierID, id.New(), 19)

	created, err := s.CheckThresholds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, orders.calls)
	assert.Equal(t, StatusPending, repo.get(r.ID).Status)
}

func TestCheckThresholds_Reentrant(t *testing.T) {
	s, _, orders := newFixture()
	supplierID := id.New()
	record(t, s, &supplierID, id.New(), 25)
	ctx := context.Background()

	created, err := s.CheckThresholds(ctx)
	require.NoError(t, err)
	require.Len(t, created, 1)

	// Queued records are excluded, so a second sweep finds nothing.
	created, err = s.CheckThresholds(ctx)
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Len(t, orders.calls, 1)
}

func TestCheckThresholds_NilSupplierNeverBatched(t *testing.T) {
	s, repo, orders := newFixture()

	r := record(t, s, nil, id.New(), 100)

	created, err := s.CheckThresholds(context.Background())
	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, orders.calls)
	assert.Equal(t, StatusPending, repo.get(r.ID).Status)
}

func TestCheckThresholds_OneOrderPerSupplier(t *testing.T) {
	s, repo, orders := newFixture()
	supplierID := id.New()
	hammer := id.New()
	wrench := id.New()
	screws := id.New()

	record(t, s, &supplierID, hammer, 20)
	record(t, s, &supplierID, wrench, 30)
	below := record(t, s, &supplierID, screws, 5)

	created, err := s.CheckThresholds(context.Background())
	require.NoError(t, err)
	require.Len(t, created, 1)
	require.Len(t, orders.calls, 1)

	// One order covers both qualifying products; the below-threshold product
	// stays out of it.
	lines := orders.calls[0].lines
	require.Len(t, lines, 2)
	got := map[id.ID]types.Quantity{}
	for _, l := range lines {
		got[l.ProductID] = l.Quantity
	}
	assert.Equal(t, qty(20), got[hammer])
	assert.Equal(t, qty(30), got[wrench])

	assert.Equal(t, StatusPending, repo.get(below.ID).Status)
}

func TestCheckThresholds_SeparateSuppliers(t *testing.T) {
	s, _, orders := newFixture()
	first := id.New()
	second := id.New()
	productID := id.New()

	record(t, s, &first, productID, 20)
	record(t, s, &second, productID, 20)

	created, err := s.CheckThresholds(context.Background())
	require.NoError(t, err)
	assert.Len(t, created, 2)
	assert.Len(t, orders.calls, 2)
}

func TestPendingSummary_GroupsBySupplierAndProduct(t *testing.T) {
	s, _, _ := newFixture()
	supplierID := id.New()
	productID := id.New()

	record(t, s, &supplierID, productID, 3)
	record(t, s, &supplierID, productID, 4)
	record(t, s, nil, productID, 2)

	summary, err := s.PendingSummary(context.Background())
	require.NoError(t, err)
	require.Len(t, summary, 2)

	var traced, untraced *PendingSummaryLine
	for i := range summary {
		if summary[i].SupplierID != nil {
			traced = &summary[i]
		} else {
			untraced = &summary[i]
		}
	}
	require.NotNil(t, traced)
	require.NotNil(t, untraced)

	assert.Equal(t, qty(7), traced.Quantity)
	assert.Equal(t, 2, traced.Records)
	assert.True(t, types.MustMoney("20").Equal(traced.Cost))

	assert.Equal(t, qty(2), untraced.Quantity)
	assert.Equal(t, 1, untraced.Records)
}
