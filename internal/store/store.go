// Package store persists invoices, purchase orders and the matching ledger
// with GORM over sqlite. It implements every port the engine consumes, and
// commits the full write set of a reconciliation run inside one database
// transaction so a failed run is never partially visible.
package store

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"invoice-reconciliation-service/internal/engine"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// invoiceRow is the persisted form of a vendor invoice. The OCR payload is
// stored as a JSON document; it is opaque to every query the engine runs.
type invoiceRow struct {
	ID              uint   `gorm:"primaryKey"`
	VendorID        uint   `gorm:"not null;index"`
	ClientID        *uint  `gorm:"index"`
	InvoiceDate     time.Time
	DueDate         time.Time
	SubtotalMinor   int64
	TaxMinor        int64
	FeesMinor       int64
	TotalMinor      int64
	Status          string `gorm:"not null;default:'pending';index"`
	FinalConfidence float64
	StatusNote      string
	OCRPayload      string           `gorm:"type:text"`
	LineItems       []lineItemRow    `gorm:"foreignKey:InvoiceID"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (invoiceRow) TableName() string { return "vendor_invoices" }

type lineItemRow struct {
	ID                  uint `gorm:"primaryKey"`
	InvoiceID           uint `gorm:"not null;index"`
	Description         string
	Quantity            decimal.Decimal `gorm:"type:text"`
	UnitPriceMinor      int64
	AmountMinor         int64
	MatchStatus         string `gorm:"not null;default:'unmatched'"`
	MatchedPOLineItemID *uint
	MatchScore          float64
}

func (lineItemRow) TableName() string { return "invoice_line_items" }

type purchaseOrderRow struct {
	ID        uint `gorm:"primaryKey"`
	VendorID  uint `gorm:"not null;index"`
	ClientID  uint `gorm:"not null;index"`
	Active    bool `gorm:"not null;default:true;index"`
	LineItems []poLineItemRow `gorm:"foreignKey:PurchaseOrderID"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (purchaseOrderRow) TableName() string { return "purchase_orders" }

type poLineItemRow struct {
	ID                   uint `gorm:"primaryKey"`
	PurchaseOrderID      uint `gorm:"not null;index"`
	Description          string
	Quantity             decimal.Decimal `gorm:"type:text"`
	VendorUnitPriceMinor int64
	ClientUnitPriceMinor int64
	ServiceType          string `gorm:"index"`
	Notes                string
}

func (poLineItemRow) TableName() string { return "po_line_items" }

type matchingRecordRow struct {
	ID                uint   `gorm:"primaryKey"`
	RunID             string `gorm:"not null;index"`
	InvoiceID         uint   `gorm:"not null;index"`
	InvoiceLineItemID uint   `gorm:"not null;index"`
	POLineItemID      *uint
	Score             float64
	Decision          string `gorm:"not null"`
	CreatedAt         time.Time
}

func (matchingRecordRow) TableName() string { return "invoice_matching_records" }

// Store is the GORM-backed implementation of the engine's persistence ports
type Store struct {
	db  *gorm.DB
	log logger.Logger
}

// Open opens (or creates) a sqlite database at path and migrates the schema
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.StorageError("open_database", err)
	}

	return NewWithDB(db)
}

// NewWithDB wraps an existing GORM handle and migrates the schema
func NewWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(
		&invoiceRow{},
		&lineItemRow{},
		&purchaseOrderRow{},
		&poLineItemRow{},
		&matchingRecordRow{},
	); err != nil {
		return nil, errors.StorageError("migrate_schema", err)
	}

	return &Store{
		db:  db,
		log: logger.GetGlobalLogger().WithComponent("store"),
	}, nil
}

// GetInvoice implements engine.InvoiceStore
func (s *Store) GetInvoice(ctx context.Context, invoiceID uint) (*models.VendorInvoice, error) {
	var row invoiceRow
	err := s.db.WithContext(ctx).
		Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		First(&row, invoiceID).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.NotFound("invoice", invoiceID)
		}
		return nil, err
	}

	return rowToInvoice(&row)
}

// GetActiveLineItems implements engine.POStore. The read runs inside a
// transaction so the line items of all matching purchase orders form one
// consistent snapshot even while POs are edited concurrently.
func (s *Store) GetActiveLineItems(ctx context.Context, vendorID uint, clientID *uint) ([]*models.POLineItem, error) {
	var result []*models.POLineItem

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("vendor_id = ? AND active = ?", vendorID, true)
		if clientID != nil {
			query = query.Where("client_id = ?", *clientID)
		}

		var orders []purchaseOrderRow
		if err := query.
			Preload("LineItems", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
			Order("id ASC").
			Find(&orders).Error; err != nil {
			return err
		}

		for _, order := range orders {
			for _, li := range order.LineItems {
				result = append(result, poRowToLineItem(&li))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Append implements ledger.Store
func (s *Store) Append(ctx context.Context, record *models.MatchingRecord) error {
	row := recordToRow(record)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.StorageError("append_matching_record", err)
	}
	record.ID = row.ID
	record.CreatedAt = row.CreatedAt
	return nil
}

// MarkSuperseded implements ledger.Store
func (s *Store) MarkSuperseded(ctx context.Context, recordID uint) error {
	result := s.db.WithContext(ctx).
		Model(&matchingRecordRow{}).
		Where("id = ?", recordID).
		Update("decision", string(models.DecisionSuperseded))
	if result.Error != nil {
		return errors.StorageError("supersede_matching_record", result.Error)
	}
	if result.RowsAffected == 0 {
		return errors.NotFound("matching record", recordID)
	}
	return nil
}

// RecordsForInvoice implements ledger.Store, oldest first
func (s *Store) RecordsForInvoice(ctx context.Context, invoiceID uint) ([]*models.MatchingRecord, error) {
	var rows []matchingRecordRow
	if err := s.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]*models.MatchingRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rowToRecord(&rows[i]))
	}
	return records, nil
}

// CommitRun implements engine.RunWriter: the invoice's status, confidence
// and note, every line item's match fields, and the ledger delta are written
// in one transaction.
func (s *Store) CommitRun(ctx context.Context, commit *engine.RunCommit) ([]uint, error) {
	var recordIDs []uint

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice := commit.Invoice

		if err := tx.Model(&invoiceRow{}).
			Where("id = ?", invoice.ID).
			Updates(map[string]interface{}{
				"status":           invoice.Status.String(),
				"final_confidence": invoice.FinalConfidence,
				"status_note":      invoice.StatusNote,
			}).Error; err != nil {
			return err
		}

		for _, li := range invoice.LineItems {
			if err := tx.Model(&lineItemRow{}).
				Where("id = ?", li.ID).
				Updates(map[string]interface{}{
					"match_status":            li.MatchStatus.String(),
					"matched_po_line_item_id": li.MatchedPOLineItem,
					"match_score":             li.MatchScore,
				}).Error; err != nil {
				return err
			}
		}

		if commit.Delta != nil {
			for _, id := range commit.Delta.SupersedeIDs {
				if err := tx.Model(&matchingRecordRow{}).
					Where("id = ?", id).
					Update("decision", string(models.DecisionSuperseded)).Error; err != nil {
					return err
				}
			}

			for _, record := range commit.Delta.Appends {
				row := recordToRow(record)
				if err := tx.Create(row).Error; err != nil {
					return err
				}
				record.ID = row.ID
				record.CreatedAt = row.CreatedAt
				recordIDs = append(recordIDs, row.ID)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return recordIDs, nil
}

// CreateInvoice persists a new invoice with its line items and OCR payload.
// Used by the upload path and by file-driven CLI runs.
func (s *Store) CreateInvoice(ctx context.Context, invoice *models.VendorInvoice) error {
	row, err := invoiceToRow(invoice)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.StorageError("create_invoice", err)
	}

	invoice.ID = row.ID
	for i, li := range row.LineItems {
		invoice.LineItems[i].ID = li.ID
		invoice.LineItems[i].InvoiceID = row.ID
	}
	return nil
}

// CreatePurchaseOrder persists a purchase order with its line items
func (s *Store) CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error {
	row := purchaseOrderRow{
		ID:       po.ID,
		VendorID: po.VendorID,
		ClientID: po.ClientID,
		Active:   true,
	}
	for _, li := range po.LineItems {
		row.LineItems = append(row.LineItems, poLineItemRow{
			ID:                   li.ID,
			Description:          li.Description,
			Quantity:             li.Quantity,
			VendorUnitPriceMinor: li.VendorUnitPriceMinor,
			ClientUnitPriceMinor: li.ClientUnitPriceMinor,
			ServiceType:          li.ServiceType,
			Notes:                li.Notes,
		})
	}

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.StorageError("create_purchase_order", err)
	}

	po.ID = row.ID
	for i, li := range row.LineItems {
		po.LineItems[i].ID = li.ID
		po.LineItems[i].PurchaseOrderID = row.ID
	}
	return nil
}

// Row mapping

func rowToInvoice(row *invoiceRow) (*models.VendorInvoice, error) {
	invoice := &models.VendorInvoice{
		ID:              row.ID,
		VendorID:        row.VendorID,
		ClientID:        row.ClientID,
		InvoiceDate:     row.InvoiceDate,
		DueDate:         row.DueDate,
		SubtotalMinor:   row.SubtotalMinor,
		TaxMinor:        row.TaxMinor,
		FeesMinor:       row.FeesMinor,
		TotalMinor:      row.TotalMinor,
		Status:          models.InvoiceStatus(row.Status),
		FinalConfidence: row.FinalConfidence,
		StatusNote:      row.StatusNote,
	}

	if row.OCRPayload != "" {
		if err := json.Unmarshal([]byte(row.OCRPayload), &invoice.OCR); err != nil {
			return nil, errors.StorageError("decode_ocr_payload", err)
		}
	}

	for i := range row.LineItems {
		li := &row.LineItems[i]
		invoice.LineItems = append(invoice.LineItems, &models.InvoiceLineItem{
			ID:                li.ID,
			InvoiceID:         li.InvoiceID,
			Description:       li.Description,
			Quantity:          li.Quantity,
			UnitPriceMinor:    li.UnitPriceMinor,
			AmountMinor:       li.AmountMinor,
			MatchStatus:       models.MatchStatus(li.MatchStatus),
			MatchedPOLineItem: li.MatchedPOLineItemID,
			MatchScore:        li.MatchScore,
		})
	}

	return invoice, nil
}

func invoiceToRow(invoice *models.VendorInvoice) (*invoiceRow, error) {
	ocr, err := json.Marshal(invoice.OCR)
	if err != nil {
		return nil, errors.StorageError("encode_ocr_payload", err)
	}

	status := invoice.Status
	if status == "" {
		status = models.StatusPending
	}

	row := &invoiceRow{
		ID:              invoice.ID,
		VendorID:        invoice.VendorID,
		ClientID:        invoice.ClientID,
		InvoiceDate:     invoice.InvoiceDate,
		DueDate:         invoice.DueDate,
		SubtotalMinor:   invoice.SubtotalMinor,
		TaxMinor:        invoice.TaxMinor,
		FeesMinor:       invoice.FeesMinor,
		TotalMinor:      invoice.TotalMinor,
		Status:          status.String(),
		FinalConfidence: invoice.FinalConfidence,
		StatusNote:      invoice.StatusNote,
		OCRPayload:      string(ocr),
	}

	for _, li := range invoice.LineItems {
		matchStatus := li.MatchStatus
		if matchStatus == "" {
			matchStatus = models.MatchStatusUnmatched
		}
		row.LineItems = append(row.LineItems, lineItemRow{
			ID:             li.ID,
			Description:    li.Description,
			Quantity:       li.Quantity,
			UnitPriceMinor: li.UnitPriceMinor,
			AmountMinor:    li.AmountMinor,
			MatchStatus:    matchStatus.String(),
			MatchScore:     li.MatchScore,
		})
	}

	return row, nil
}

func poRowToLineItem(row *poLineItemRow) *models.POLineItem {
	return &models.POLineItem{
		ID:                   row.ID,
		PurchaseOrderID:      row.PurchaseOrderID,
		Description:          row.Description,
		Quantity:             row.Quantity,
		VendorUnitPriceMinor: row.VendorUnitPriceMinor,
		ClientUnitPriceMinor: row.ClientUnitPriceMinor,
		ServiceType:          row.ServiceType,
		Notes:                row.Notes,
	}
}

func recordToRow(record *models.MatchingRecord) *matchingRecordRow {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return &matchingRecordRow{
		ID:                record.ID,
		RunID:             record.RunID,
		InvoiceID:         record.InvoiceID,
		InvoiceLineItemID: record.InvoiceLineItemID,
		POLineItemID:      record.POLineItemID,
		Score:             record.Score,
		Decision:          string(record.Decision),
		CreatedAt:         createdAt,
	}
}

func rowToRecord(row *matchingRecordRow) *models.MatchingRecord {
	return &models.MatchingRecord{
		ID:                row.ID,
		RunID:             row.RunID,
		InvoiceID:         row.InvoiceID,
		InvoiceLineItemID: row.InvoiceLineItemID,
		POLineItemID:      row.POLineItemID,
		Score:             row.Score,
		Decision:          models.MatchDecision(row.Decision),
		CreatedAt:         row.CreatedAt,
	}
}
