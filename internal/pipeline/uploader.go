// Package pipeline coordinates conversion uploads: it builds records
// from raw items, partitions them into batches, sends each batch through
// the retry engine, and reconciles upstream partial-failure responses
// back to per-item results in original input order.
package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/payload"
	"github.com/ignite/conversion-relay/internal/pkg/logger"
	"github.com/ignite/conversion-relay/internal/retry"
)

// Mode selects how the coordinator handles failures.
//
// fail-fast aborts the whole run on the first error. continue-on-error
// marks a failed batch's items failed on our side and keeps going.
// partial-failure additionally asks the platform to accept valid entries
// within a batch and attributes per-entry rejections back by index; for
// whole-batch errors it behaves like continue-on-error.
type Mode string

const (
	ModeFailFast        Mode = "fail-fast"
	ModeContinueOnError Mode = "continue-on-error"
	ModePartialFailure  Mode = "partial-failure"
)

// NoBatch marks results that never reached a batch upload (build
// failures, dedup skips, single-item mode).
const NoBatch = -1

// Options configures one run.
type Options struct {
	BatchingEnabled bool
	BatchSize       int
	Mode            Mode
	ValidateOnly    bool
	// ContinueOnFail is the caller's per-item failure policy for the
	// single-item path (batching disabled).
	ContinueOnFail bool
}

// haltOnItemError reports whether a pre-upload item failure aborts the
// run: fail-fast mode when batching, the ContinueOnFail policy when not.
func (o Options) haltOnItemError() bool {
	if o.BatchingEnabled {
		return o.Mode == ModeFailFast
	}
	return !o.ContinueOnFail
}

// ItemResult is the outcome for one input item, in original item order.
type ItemResult struct {
	Index      int                   `json:"index"`
	Success    bool                  `json:"success"`
	Message    string                `json:"message"`
	Batch      int                   `json:"batch"`
	Conversion *ads.ConversionRecord `json:"conversion,omitempty"`
	ErrorKind  string                `json:"errorKind,omitempty"`
	HTTPCode   int                   `json:"httpCode,omitempty"`
	APICode    string                `json:"apiCode,omitempty"`
}

// ConversionUploader is the single transport dependency of the
// coordinator.
type ConversionUploader interface {
	UploadConversions(ctx context.Context, accountID string, req ads.UploadRequest) (*ads.UploadResponse, error)
}

// DedupCache tracks already-uploaded order ids. Advisory only: cache
// errors are logged and ignored, upstream idempotency stays the source
// of truth.
type DedupCache interface {
	Seen(ctx context.Context, accountID, orderID string) (bool, error)
	Mark(ctx context.Context, accountID, orderID string) error
}

// Uploader runs the upload pipeline. Items within a run are processed
// sequentially; batch N+1 is only sent after batch N resolved.
type Uploader struct {
	client   ConversionUploader
	builder  *payload.Builder
	retryCfg retry.Config
	dedup    DedupCache // nil when disabled
}

// New creates an Uploader.
func New(client ConversionUploader, builder *payload.Builder, retryCfg retry.Config) *Uploader {
	return &Uploader{client: client, builder: builder, retryCfg: retryCfg}
}

// SetDedup enables order-id deduplication.
func (u *Uploader) SetDedup(cache DedupCache) { u.dedup = cache }

// Run executes one upload run and returns one result per input item,
// index-aligned with items. A returned error means the run was aborted
// (account resolution failure, or fail-fast); it is always a typed
// *ads.Error.
func (u *Uploader) Run(ctx context.Context, acct payload.AccountContext, items []payload.RawConversion, opts Options) ([]ItemResult, error) {
	if opts.Mode == "" {
		opts.Mode = ModePartialFailure
	}

	accountID, err := acct.Resolve()
	if err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	logger.Info("starting conversion upload run",
		"run_id", runID,
		"account", accountID,
		"items", len(items),
		"mode", string(opts.Mode),
		"batching", opts.BatchingEnabled,
		"validate_only", opts.ValidateOnly)

	results := make([]ItemResult, len(items))
	var records []ads.ConversionRecord
	var indices []int

	for i, item := range items {
		rec, err := u.builder.Build(item, acct)
		if err != nil {
			ae := asTyped(err)
			if opts.haltOnItemError() {
				return nil, ae
			}
			results[i] = failureResult(i, NoBatch, nil, ae)
			continue
		}

		if skip := u.alreadyUploaded(ctx, accountID, rec); skip {
			results[i] = ItemResult{
				Index:      i,
				Success:    true,
				Batch:      NoBatch,
				Message:    "order id already uploaded recently; skipped as duplicate",
				Conversion: rec,
			}
			continue
		}

		records = append(records, *rec)
		indices = append(indices, i)
	}

	if opts.BatchingEnabled {
		err = u.runBatched(ctx, accountID, records, indices, opts, results)
	} else {
		err = u.runSingle(ctx, accountID, records, indices, opts, results)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("conversion upload run finished", "run_id", runID, "items", len(items))
	return results, nil
}

// runBatched uploads the records batch by batch, attributing partial
// failures back to original item indices through the plan's side table.
func (u *Uploader) runBatched(ctx context.Context, accountID string, records []ads.ConversionRecord, indices []int, opts Options, results []ItemResult) error {
	plan := planBatches(records, indices, clampBatchSize(opts.BatchSize))

	for b := 0; b < plan.NumBatches(); b++ {
		batch, origin := plan.Batch(b)

		req := ads.UploadRequest{Conversions: batch, ValidateOnly: opts.ValidateOnly}
		if opts.Mode == ModePartialFailure {
			req.PartialFailurePolicy = ads.PartialFailurePolicyContinue
		}

		resp, err := u.uploadWithRetry(ctx, accountID, req)
		if err != nil {
			ae := asTyped(err)
			if opts.Mode == ModeFailFast {
				return ae
			}
			// Whole batch failed: every item in it gets a failure result,
			// later batches still run.
			for pos, orig := range origin {
				results[orig] = failureResult(orig, b, &batch[pos], ae)
			}
			continue
		}

		failed := resp.PartialFailureError.FailedPositions()
		for pos, orig := range origin {
			rec := batch[pos]
			if msg, bad := failed[pos]; bad {
				results[orig] = ItemResult{
					Index:      orig,
					Success:    false,
					Batch:      b,
					Message:    msg,
					Conversion: &rec,
					ErrorKind:  ads.KindValidation.String(),
				}
				continue
			}
			results[orig] = ItemResult{
				Index:      orig,
				Success:    true,
				Batch:      b,
				Message:    uploadedMessage(opts),
				Conversion: &rec,
			}
			u.markUploaded(ctx, accountID, rec, opts)
		}
	}
	return nil
}

// runSingle is the fallback path with batching disabled: one upload call
// per record through the same retry engine.
func (u *Uploader) runSingle(ctx context.Context, accountID string, records []ads.ConversionRecord, indices []int, opts Options, results []ItemResult) error {
	for pos, rec := range records {
		orig := indices[pos]

		req := ads.UploadRequest{
			Conversions:  []ads.ConversionRecord{rec},
			ValidateOnly: opts.ValidateOnly,
		}

		resp, err := u.uploadWithRetry(ctx, accountID, req)
		if err != nil {
			ae := asTyped(err)
			if !opts.ContinueOnFail {
				return ae
			}
			results[orig] = failureResult(orig, NoBatch, &records[pos], ae)
			continue
		}

		if failed := resp.PartialFailureError.FailedPositions(); len(failed) > 0 {
			results[orig] = ItemResult{
				Index:      orig,
				Success:    false,
				Batch:      NoBatch,
				Message:    failed[0],
				Conversion: &records[pos],
				ErrorKind:  ads.KindValidation.String(),
			}
			continue
		}

		results[orig] = ItemResult{
			Index:      orig,
			Success:    true,
			Batch:      NoBatch,
			Message:    uploadedMessage(opts),
			Conversion: &records[pos],
		}
		u.markUploaded(ctx, accountID, rec, opts)
	}
	return nil
}

func (u *Uploader) uploadWithRetry(ctx context.Context, accountID string, req ads.UploadRequest) (*ads.UploadResponse, error) {
	var resp *ads.UploadResponse
	err := retry.Do(ctx, u.retryCfg, func(ctx context.Context) error {
		r, err := u.client.UploadConversions(ctx, accountID, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// alreadyUploaded consults the dedup cache; cache failures are treated
// as "not seen".
func (u *Uploader) alreadyUploaded(ctx context.Context, accountID string, rec *ads.ConversionRecord) bool {
	if u.dedup == nil || rec.OrderID == "" {
		return false
	}
	seen, err := u.dedup.Seen(ctx, accountID, rec.OrderID)
	if err != nil {
		logger.Warn("dedup cache lookup failed, proceeding with upload", "order_id", rec.OrderID, "error", err.Error())
		return false
	}
	return seen
}

func (u *Uploader) markUploaded(ctx context.Context, accountID string, rec ads.ConversionRecord, opts Options) {
	if u.dedup == nil || rec.OrderID == "" || opts.ValidateOnly {
		return
	}
	if err := u.dedup.Mark(ctx, accountID, rec.OrderID); err != nil {
		logger.Warn("dedup cache mark failed", "order_id", rec.OrderID, "error", err.Error())
	}
}

func uploadedMessage(opts Options) string {
	if opts.ValidateOnly {
		return "conversion validated (validate-only, not applied)"
	}
	return "conversion uploaded"
}

func failureResult(index, batch int, rec *ads.ConversionRecord, e *ads.Error) ItemResult {
	return ItemResult{
		Index:      index,
		Success:    false,
		Batch:      batch,
		Message:    e.Message,
		Conversion: rec,
		ErrorKind:  e.Kind.String(),
		HTTPCode:   e.HTTPCode,
		APICode:    e.APICode,
	}
}

// asTyped guarantees a *ads.Error even for errors that slipped through
// untyped.
func asTyped(err error) *ads.Error {
	var ae *ads.Error
	if errors.As(err, &ae) {
		return ae
	}
	return ads.ClassifyTransport(err)
}
