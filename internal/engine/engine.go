// Package engine orchestrates one reconciliation run:
// normalize -> match -> resolve -> aggregate -> lifecycle -> persist.
//
// A run is a single logical transaction. The per-invoice advisory lock is
// held from before the first read until after the commit and released on
// every exit path; all writes of a run (invoice status and confidence, line
// item match fields, ledger delta) go through one store commit, so a failed
// run leaves the invoice exactly as it found it.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync/atomic"
	"time"

	"invoice-reconciliation-service/internal/confidence"
	"invoice-reconciliation-service/internal/ledger"
	"invoice-reconciliation-service/internal/lifecycle"
	"invoice-reconciliation-service/internal/matcher"
	"invoice-reconciliation-service/internal/models"
	"invoice-reconciliation-service/internal/normalizer"
	"invoice-reconciliation-service/internal/resolver"
	"invoice-reconciliation-service/pkg/errors"
	"invoice-reconciliation-service/pkg/logger"
)

// InvoiceStore is the read port for vendor invoices
type InvoiceStore interface {
	// GetInvoice loads an invoice with its line items and OCR payload
	GetInvoice(ctx context.Context, invoiceID uint) (*models.VendorInvoice, error)
}

// POStore is the read-only port for purchase order data. Implementations
// must return a consistent snapshot of the line items as of the call.
type POStore interface {
	GetActiveLineItems(ctx context.Context, vendorID uint, clientID *uint) ([]*models.POLineItem, error)
}

// RunCommit is the complete write set of one reconciliation run
type RunCommit struct {
	Invoice *models.VendorInvoice
	Delta   *resolver.LedgerDelta
}

// RunWriter atomically persists a run's write set and returns the IDs of
// the newly appended matching records
type RunWriter interface {
	CommitRun(ctx context.Context, commit *RunCommit) ([]uint, error)
}

// ReconciliationResult is what the engine hands back to its host system
type ReconciliationResult struct {
	InvoiceID         uint                 `json:"invoice_id"`
	RunID             string               `json:"run_id"`
	FinalConfidence   float64              `json:"final_confidence"`
	NewStatus         models.InvoiceStatus `json:"new_status"`
	AutoAdvanced      bool                 `json:"auto_advanced"`
	LineItemOutcomes  []models.LineOutcome `json:"line_item_outcomes"`
	MatchingRecordIDs []uint               `json:"matching_record_ids"`
}

// Config holds engine-level tunables
type Config struct {
	// UpstreamTimeout bounds each external read (invoice, PO store,
	// ledger). On expiry the run fails retryably and writes nothing.
	UpstreamTimeout time.Duration `json:"upstream_timeout"`

	// Matching carries the candidate matcher and classification tunables
	Matching *matcher.Config `json:"matching"`
}

// DefaultConfig returns the production engine configuration
func DefaultConfig() *Config {
	return &Config{
		UpstreamTimeout: 10 * time.Second,
		Matching:        matcher.DefaultConfig(),
	}
}

// Validate checks the engine configuration
func (c *Config) Validate() error {
	if c.UpstreamTimeout <= 0 {
		return errors.ConfigError(fmt.Sprintf("upstream timeout must be positive: %s", c.UpstreamTimeout))
	}
	if c.Matching == nil {
		return errors.ConfigError("matching configuration is required")
	}
	return c.Matching.Validate()
}

// Engine runs reconciliation for vendor invoices
type Engine struct {
	config     *Config
	invoices   InvoiceStore
	purchases  POStore
	ledger     ledger.Store
	writer     RunWriter
	normalizer *normalizer.Normalizer
	matcher    *matcher.Engine
	resolver   *resolver.Resolver
	aggregator *confidence.Aggregator
	lifecycle  *lifecycle.Machine
	locks      *lockRegistry
	log        logger.Logger
	runCounter uint64
}

// New creates an Engine over the given ports
func New(config *Config, invoices InvoiceStore, purchases POStore, ledgerStore ledger.Store, writer RunWriter) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Engine{
		config:     config,
		invoices:   invoices,
		purchases:  purchases,
		ledger:     ledgerStore,
		writer:     writer,
		normalizer: normalizer.New(),
		matcher:    matcher.NewEngine(config.Matching),
		resolver:   resolver.New(config.Matching),
		aggregator: confidence.NewAggregator(),
		lifecycle:  lifecycle.NewMachine(),
		locks:      newLockRegistry(),
		log:        logger.GetGlobalLogger().WithComponent("reconciliation_engine"),
	}, nil
}

// ReconcileInvoice executes one reconciliation run for the invoice.
// Failure modes: NotFound, ConcurrentRunInProgress, UpstreamTimeout.
func (e *Engine) ReconcileInvoice(ctx context.Context, invoiceID uint) (*ReconciliationResult, error) {
	if !e.locks.tryAcquire(invoiceID) {
		return nil, errors.ConcurrentRunInProgress(invoiceID)
	}
	defer e.locks.release(invoiceID)

	runID := e.newRunID(invoiceID)
	log := e.log.WithFields(logger.Fields{
		"invoice_id": invoiceID,
		"run_id":     runID,
	})
	log.Info("Starting reconciliation run")

	invoice, poLineItems, priorRecords, err := e.loadInputs(ctx, invoiceID)
	if err != nil {
		log.WithError(err).Error("Failed to load reconciliation inputs")
		return nil, err
	}

	invoiceLines, poLines := e.normalize(invoice, poLineItems)

	candidates := e.matcher.CandidateSets(invoiceLines, poLines)
	outcomes := e.resolver.Resolve(invoiceLines, candidates)

	delta := resolver.Diff(runID, invoiceID, outcomes, ledger.CurrentView(priorRecords))

	finalConfidence := e.aggregator.FinalConfidence(invoice.OCR.Confidence, outcomes)
	gatePassed := e.aggregator.PassesReviewGate(finalConfidence, outcomes)

	e.applyOutcomes(invoice, outcomes)
	invoice.FinalConfidence = finalConfidence

	autoAdvanced, err := e.lifecycle.AutoAdvance(invoice, gatePassed)
	if err != nil {
		return nil, err
	}

	recordIDs, err := e.writer.CommitRun(ctx, &RunCommit{Invoice: invoice, Delta: delta})
	if err != nil {
		log.WithError(err).Error("Failed to commit reconciliation run")
		return nil, errors.StorageError("commit_run", err)
	}

	log.WithFields(logger.Fields{
		"final_confidence": finalConfidence,
		"new_status":       invoice.Status.String(),
		"auto_advanced":    autoAdvanced,
		"records_appended": len(recordIDs),
	}).Info("Reconciliation run completed")

	return &ReconciliationResult{
		InvoiceID:         invoiceID,
		RunID:             runID,
		FinalConfidence:   finalConfidence,
		NewStatus:         invoice.Status,
		AutoAdvanced:      autoAdvanced,
		LineItemOutcomes:  outcomes,
		MatchingRecordIDs: recordIDs,
	}, nil
}

// loadInputs performs the bounded external reads for a run
func (e *Engine) loadInputs(ctx context.Context, invoiceID uint) (*models.VendorInvoice, []*models.POLineItem, []*models.MatchingRecord, error) {
	invoice, err := e.boundedInvoiceRead(ctx, invoiceID)
	if err != nil {
		return nil, nil, nil, err
	}

	poCtx, cancel := context.WithTimeout(ctx, e.config.UpstreamTimeout)
	defer cancel()
	poLineItems, err := e.purchases.GetActiveLineItems(poCtx, invoice.VendorID, invoice.ClientID)
	if err != nil {
		return nil, nil, nil, e.classifyUpstreamError("po_store_read", err)
	}

	ledgerCtx, cancel := context.WithTimeout(ctx, e.config.UpstreamTimeout)
	defer cancel()
	priorRecords, err := e.ledger.RecordsForInvoice(ledgerCtx, invoiceID)
	if err != nil {
		return nil, nil, nil, e.classifyUpstreamError("ledger_read", err)
	}

	return invoice, poLineItems, priorRecords, nil
}

func (e *Engine) boundedInvoiceRead(ctx context.Context, invoiceID uint) (*models.VendorInvoice, error) {
	readCtx, cancel := context.WithTimeout(ctx, e.config.UpstreamTimeout)
	defer cancel()

	invoice, err := e.invoices.GetInvoice(readCtx, invoiceID)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, err
		}
		return nil, e.classifyUpstreamError("invoice_read", err)
	}

	return invoice, nil
}

// classifyUpstreamError maps deadline expiry onto the retryable timeout
// error; anything else is a storage failure
func (e *Engine) classifyUpstreamError(operation string, err error) error {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.UpstreamTimeout(operation, err)
	}
	return errors.StorageError(operation, err)
}

// normalize canonicalizes both sides of the match. OCR raw lines align with
// invoice line items positionally when the extraction produced one raw line
// per item; otherwise structured fields stand alone.
func (e *Engine) normalize(invoice *models.VendorInvoice, poLineItems []*models.POLineItem) ([]*normalizer.CanonicalLine, []*normalizer.CanonicalLine) {
	invoiceLines := make([]*normalizer.CanonicalLine, 0, len(invoice.LineItems))
	for i, li := range invoice.LineItems {
		var raw *models.OCRLineItem
		if i < len(invoice.OCR.LineItems) {
			raw = &invoice.OCR.LineItems[i]
		}
		invoiceLines = append(invoiceLines, e.normalizer.NormalizeInvoiceLine(li, raw))
	}

	poLines := make([]*normalizer.CanonicalLine, 0, len(poLineItems))
	for _, po := range poLineItems {
		poLines = append(poLines, e.normalizer.NormalizePOLine(po))
	}

	return invoiceLines, poLines
}

// applyOutcomes writes the resolver's classification onto the invoice's
// line items (in memory; persistence happens in the single run commit)
func (e *Engine) applyOutcomes(invoice *models.VendorInvoice, outcomes []models.LineOutcome) {
	byID := make(map[uint]models.LineOutcome, len(outcomes))
	for _, outcome := range outcomes {
		byID[outcome.InvoiceLineItemID] = outcome
	}

	for _, li := range invoice.LineItems {
		outcome, ok := byID[li.ID]
		if !ok {
			continue
		}
		li.MatchStatus = outcome.MatchStatus()
		li.MatchScore = outcome.Score
		li.MatchedPOLineItem = nil
		if outcome.Assigned() {
			li.MatchedPOLineItem = outcome.POLineItemID
		}
	}
}

// newRunID produces a unique identifier for one resolver run
func (e *Engine) newRunID(invoiceID uint) string {
	seq := atomic.AddUint64(&e.runCounter, 1)
	return fmt.Sprintf("run-%d-%d-%d", invoiceID, time.Now().UTC().UnixNano(), seq)
}
