package store

import (
	"context"
	"testing"

	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/resolver"
	"invoice-reconciliation-service/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	return s
}

func seedInvoice(t *testing.T, s *Store) *models.VendorInvoice {
	t.Helper()

	invoice := &models.VendorInvoice{
		VendorID:   7,
		TotalMinor: 70000,
		OCR: models.OCRPayload{
			Confidence: 92,
			LineItems: []models.OCRLineItem{
				{Description: "Dumpster rental 30yd", Quantity: "1", UnitPrice: "450.00", Amount: "450.00"},
			},
		},
		LineItems: []*models.InvoiceLineItem{
			{
				Description:    "Dumpster rental 30yd",
				Quantity:       decimal.NewFromInt(1),
				UnitPriceMinor: 45000,
				AmountMinor:    45000,
			},
			{
				Description:    "Compactor haul fee",
				Quantity:       decimal.NewFromInt(2),
				UnitPriceMinor: 12500,
				AmountMinor:    25000,
			},
		},
	}

	require.NoError(t, s.CreateInvoice(context.Background(), invoice))
	return invoice
}

func seedPurchaseOrder(t *testing.T, s *Store, vendorID, clientID uint) *models.PurchaseOrder {
	t.Helper()

	po := &models.PurchaseOrder{
		VendorID: vendorID,
		ClientID: clientID,
		LineItems: []*models.POLineItem{
			{
				Description:          "Dumpster rental 30yd",
				Quantity:             decimal.NewFromInt(1),
				VendorUnitPriceMinor: 45000,
				ClientUnitPriceMinor: 52000,
				ServiceType:          "rolloff",
			},
		},
	}

	require.NoError(t, s.CreatePurchaseOrder(context.Background(), po))
	return po
}

func TestCreateAndGetInvoice(t *testing.T) {
	s := openTestStore(t)
	created := seedInvoice(t, s)

	require.NotZero(t, created.ID)
	require.NotZero(t, created.LineItems[0].ID)

	loaded, err := s.GetInvoice(context.Background(), created.ID)
	require.NoError(t, err)

	assert.Equal(t, created.ID, loaded.ID)
	assert.Equal(t, uint(7), loaded.VendorID)
	assert.Equal(t, models.StatusPending, loaded.Status)
	assert.Equal(t, 92.0, loaded.OCR.Confidence)
	require.Len(t, loaded.OCR.LineItems, 1)
	require.Len(t, loaded.LineItems, 2)
	assert.Equal(t, models.MatchStatusUnmatched, loaded.LineItems[0].MatchStatus)
	assert.True(t, loaded.LineItems[1].Quantity.Equal(decimal.NewFromInt(2)))
	assert.Less(t, loaded.LineItems[0].ID, loaded.LineItems[1].ID, "line items must come back ordered")
}

func TestGetInvoiceNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetInvoice(context.Background(), 404)
	assert.True(t, errors.IsNotFound(err), "expected NotFound, got %v", err)
}

func TestGetActiveLineItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seedPurchaseOrder(t, s, 7, 3)
	seedPurchaseOrder(t, s, 7, 4)
	seedPurchaseOrder(t, s, 9, 3) // different vendor

	all, err := s.GetActiveLineItems(ctx, 7, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	clientID := uint(3)
	scoped, err := s.GetActiveLineItems(ctx, 7, &clientID)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "rolloff", scoped[0].ServiceType)
	assert.Equal(t, int64(45000), scoped[0].VendorUnitPriceMinor)
}

func TestGetActiveLineItemsSkipsInactive(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	po := seedPurchaseOrder(t, s, 7, 3)
	require.NoError(t, s.db.Model(&purchaseOrderRow{}).
		Where("id = ?", po.ID).
		Update("active", false).Error)

	items, err := s.GetActiveLineItems(ctx, 7, nil)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestLedgerRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	poID := uint(10)
	record := &models.MatchingRecord{
		RunID:             "run-1",
		InvoiceID:         1,
		InvoiceLineItemID: 1,
		POLineItemID:      &poID,
		Score:             0.9,
		Decision:          models.DecisionAccepted,
	}

	require.NoError(t, s.Append(ctx, record))
	require.NotZero(t, record.ID)
	require.False(t, record.CreatedAt.IsZero())

	records, err := s.RecordsForInvoice(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.DecisionAccepted, records[0].Decision)
	require.NotNil(t, records[0].POLineItemID)
	assert.Equal(t, uint(10), *records[0].POLineItemID)

	require.NoError(t, s.MarkSuperseded(ctx, record.ID))
	records, err = s.RecordsForInvoice(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionSuperseded, records[0].Decision)

	err = s.MarkSuperseded(ctx, 999)
	assert.True(t, errors.IsNotFound(err), "expected NotFound, got %v", err)
}

func TestCommitRunWritesEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	invoice := seedInvoice(t, s)
	poID := uint(10)

	invoice.Status = models.StatusUnderReview
	invoice.StatusNote = "auto-queued for review"
	invoice.FinalConfidence = 88.5
	invoice.LineItems[0].MatchStatus = models.MatchStatusMatched
	invoice.LineItems[0].MatchedPOLineItem = &poID
	invoice.LineItems[0].MatchScore = 0.92
	invoice.LineItems[1].MatchStatus = models.MatchStatusUnmatched

	delta := &resolver.LedgerDelta{
		Appends: []*models.MatchingRecord{
			{
				RunID:             "run-1",
				InvoiceID:         invoice.ID,
				InvoiceLineItemID: invoice.LineItems[0].ID,
				POLineItemID:      &poID,
				Score:             0.92,
				Decision:          models.DecisionAccepted,
			},
			{
				RunID:             "run-1",
				InvoiceID:         invoice.ID,
				InvoiceLineItemID: invoice.LineItems[1].ID,
				Decision:          models.DecisionRejected,
			},
		},
	}

	ids, err := s.CommitRun(ctx, &engine.RunCommit{Invoice: invoice, Delta: delta})
	require.NoError(t, err)
	assert.Len(t, ids, 2)

	loaded, err := s.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, loaded.Status)
	assert.Equal(t, 88.5, loaded.FinalConfidence)
	assert.Equal(t, models.MatchStatusMatched, loaded.LineItems[0].MatchStatus)
	require.NotNil(t, loaded.LineItems[0].MatchedPOLineItem)
	assert.Equal(t, uint(10), *loaded.LineItems[0].MatchedPOLineItem)
	assert.Equal(t, 0.92, loaded.LineItems[0].MatchScore)

	records, err := s.RecordsForInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestCommitRunSupersedes(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	invoice := seedInvoice(t, s)
	poID := uint(10)

	prior := &models.MatchingRecord{
		RunID:             "run-1",
		InvoiceID:         invoice.ID,
		InvoiceLineItemID: invoice.LineItems[0].ID,
		POLineItemID:      &poID,
		Score:             0.9,
		Decision:          models.DecisionAccepted,
	}
	require.NoError(t, s.Append(ctx, prior))

	newPO := uint(11)
	delta := &resolver.LedgerDelta{
		SupersedeIDs: []uint{prior.ID},
		Appends: []*models.MatchingRecord{
			{
				RunID:             "run-2",
				InvoiceID:         invoice.ID,
				InvoiceLineItemID: invoice.LineItems[0].ID,
				POLineItemID:      &newPO,
				Score:             0.95,
				Decision:          models.DecisionAccepted,
			},
		},
	}

	_, err := s.CommitRun(ctx, &engine.RunCommit{Invoice: invoice, Delta: delta})
	require.NoError(t, err)

	records, err := s.RecordsForInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, models.DecisionSuperseded, records[0].Decision)
	assert.Equal(t, models.DecisionAccepted, records[1].Decision)
}

func TestCommitRunEmptyDelta(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	invoice := seedInvoice(t, s)
	invoice.FinalConfidence = 75.0

	ids, err := s.CommitRun(ctx, &engine.RunCommit{Invoice: invoice, Delta: &resolver.LedgerDelta{}})
	require.NoError(t, err)
	assert.Empty(t, ids)

	loaded, err := s.GetInvoice(ctx, invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, 75.0, loaded.FinalConfidence)
}
