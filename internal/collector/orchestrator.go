// Package collector drives vocabulary items toward their quota of approved
// images: search, download, derivatives, scoring, decision and storage.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"image-collector/internal/blobstore"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/common/metrics"
	"image-collector/internal/common/observability"
	"image-collector/internal/generator"
	"image-collector/internal/imaging"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
	"image-collector/internal/quality"
	"image-collector/internal/sources"
)

// Scorer rates one downloaded image.
type Scorer interface {
	Score(facts quality.ImageFacts, sc quality.Context) (models.QualityScore, error)
}

// LicenseResolver looks up the license a source page declares.
type LicenseResolver interface {
	Resolve(ctx context.Context, pageURL string) (models.License, error)
}

// Deps are the collaborators of an Orchestrator. Generator, Licenses and
// Observability may be nil.
type Deps struct {
	Store         itemstore.Store
	Locker        itemstore.Locker
	Sources       map[string]sources.ImageSourceClient
	Derivatives   *imaging.DerivativeGenerator
	Scorer        Scorer
	Policy        quality.DecisionPolicy
	Blobs         blobstore.BlobStore
	Generator     generator.ImageGenerator
	Licenses      LicenseResolver
	Observability *observability.Observability
	Logger        logger.Logger
}

type Orchestrator struct {
	cfg   Config
	deps  Deps
	log   logger.Logger
	now   func() time.Time
	newID func() string
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Derivatives == nil {
		deps.Derivatives = imaging.NewDerivativeGenerator(nil, 0)
	}
	if deps.Scorer == nil {
		deps.Scorer = quality.NewScorer()
	}
	if deps.Policy == (quality.DecisionPolicy{}) {
		deps.Policy = quality.DefaultPolicy()
	}
	if deps.Locker == nil {
		deps.Locker = itemstore.NewMemoryLocker()
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNoOpLogger()
	}
	return &Orchestrator{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		log:   deps.Logger.WithFields(map[string]interface{}{"component": "collector"}),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Result summarises one collect call.
type Result struct {
	Key               models.ItemKey    `json:"key"`
	Status            models.ItemStatus `json:"status"`
	TargetCount       int               `json:"targetCount"`
	ApprovedCount     int               `json:"approvedCount"`
	RejectedCount     int               `json:"rejectedCount"`
	ManualReviewCount int               `json:"manualReviewCount"`
	CollectedCount    int               `json:"collectedCount"`
	NewCandidates     int               `json:"newCandidates"`
	SearchAttempts    int               `json:"searchAttempts"`
	NextAttempt       *time.Time        `json:"nextAttempt,omitempty"`
	Skipped           bool              `json:"skipped,omitempty"`
}

// run is the state of one collect call. It owns item until the final save.
type run struct {
	item    *models.Item
	opts    resolved
	policy  quality.DecisionPolicy
	hashes  []uint64
	seen    map[string]struct{}
	added   int
	log     logger.Logger
	started time.Time
}

func (r *run) approved() int {
	return r.item.CountByStatus(models.CandidateApproved)
}

func (r *run) satisfied() bool {
	return r.approved() >= r.opts.targetCount
}

// Collect runs one collection attempt for the item at key.
//
// Candidate-level failures are absorbed into the item's error log. A failure
// of the run itself marks the item failed and returns a retryable
// ItemCollectionFailed error; exhausting maxRetries returns a terminal one
// alongside the result.
func (o *Orchestrator) Collect(ctx context.Context, key models.ItemKey, opts Options) (*Result, error) {
	release, err := o.deps.Locker.Acquire(ctx, key, o.cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			o.log.Warn("Failed to release item lock", map[string]interface{}{"item": key.String(), "error": err.Error()})
		}
	}()

	item, err := o.deps.Store.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	r := &run{
		item:    item,
		opts:    o.cfg.resolve(opts),
		seen:    map[string]struct{}{},
		log:     o.log.WithFields(map[string]interface{}{"item": key.String()}),
		started: o.now(),
	}
	r.policy = o.deps.Policy.WithMinQuality(r.opts.minQualityScore)

	if item.Status() == models.ItemStatusCompleted && !r.opts.forceRestart {
		r.log.Debug("Item already completed, skipping", nil)
		return o.result(r, true), nil
	}

	o.begin(r)
	if err := o.deps.Store.Save(ctx, r.item); err != nil {
		return nil, fmt.Errorf("save collecting state: %w", err)
	}
	r.log.Info("Collection started", map[string]interface{}{
		"targetCount":    r.opts.targetCount,
		"searchAttempts": r.item.Progress.SearchAttempts,
		"sources":        r.opts.sources,
	})

	if err := o.acquire(ctx, r); err != nil {
		return o.abort(r, err)
	}

	termErr := o.finalize(r)
	if err := o.deps.Store.Save(context.WithoutCancel(ctx), r.item); err != nil {
		return nil, fmt.Errorf("save collection result: %w", err)
	}
	o.record(ctx, r)
	return o.result(r, false), termErr
}

func (o *Orchestrator) begin(r *run) {
	p := r.item.Progress
	if p == nil {
		p = models.NewCollectionProgress(r.opts.targetCount)
		r.item.Progress = p
	}
	if r.opts.forceRestart {
		p.SearchAttempts = 0
		p.CompletedAt = nil
	}
	now := o.now().UTC()
	p.Status = models.ItemStatusCollecting
	p.TargetCount = r.opts.targetCount
	p.SearchAttempts++
	p.LastAttempt = &now
	p.NextAttempt = nil

	for i := range r.item.Images {
		c := &r.item.Images[i]
		if c.PerceptualHash != 0 {
			r.hashes = append(r.hashes, c.PerceptualHash)
		}
		if c.OriginURL != "" {
			r.seen[c.OriginURL] = struct{}{}
		}
	}
	p.Recompute(r.item.Images)
}

// acquire runs the search, acquisition and fallback phases. Panics are
// turned into errors so one broken item never takes down its worker.
func (o *Orchestrator) acquire(ctx context.Context, r *run) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("collection panicked: %v", rec)
		}
	}()

	if !r.satisfied() {
		pool, err := o.search(ctx, r)
		if err != nil {
			return err
		}
		for _, pc := range pool {
			if r.satisfied() {
				break
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			o.process(ctx, r, pc.input())
		}
	}

	if !r.satisfied() && r.opts.useAIGeneration && o.deps.Generator != nil {
		if err := o.fallback(ctx, r); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// abort marks the item failed after an unexpected error in the run.
func (o *Orchestrator) abort(r *run, cause error) (*Result, error) {
	p := r.item.Progress
	o.recordError(r, "", cause)
	p.Recompute(r.item.Images)
	o.ensurePrimary(r.item)
	p.Status = models.ItemStatusFailed
	r.log.Error("Collection aborted", map[string]interface{}{"error": cause.Error()})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.deps.Store.Save(ctx, r.item); err != nil {
		r.log.Error("Failed to persist aborted item", map[string]interface{}{"error": err.Error()})
	}
	o.record(ctx, r)
	return o.result(r, false), apperrors.NewItemCollectionFailedError(r.item.Key.String(), cause, false)
}

// finalize derives the item status. It returns a terminal error when the
// item ran out of attempts.
func (o *Orchestrator) finalize(r *run) error {
	p := r.item.Progress
	p.Recompute(r.item.Images)
	o.ensurePrimary(r.item)
	now := o.now().UTC()

	switch {
	case p.ApprovedCount >= r.opts.targetCount:
		p.Status = models.ItemStatusCompleted
		p.CompletedAt = &now
		p.NextAttempt = nil
	case p.SearchAttempts >= r.opts.maxRetries:
		p.Status = models.ItemStatusFailed
		p.NextAttempt = nil
	default:
		next := now.Add(o.cfg.RetryInterval)
		p.Status = models.ItemStatusPending
		p.NextAttempt = &next
	}

	r.log.Info("Collection finished", map[string]interface{}{
		"status":        p.Status,
		"approvedCount": p.ApprovedCount,
		"targetCount":   r.opts.targetCount,
		"newCandidates": r.added,
	})

	if p.Status == models.ItemStatusFailed {
		return apperrors.NewItemCollectionFailedError(r.item.Key.String(),
			fmt.Errorf("%d of %d approved after %d attempts", p.ApprovedCount, r.opts.targetCount, p.SearchAttempts), true)
	}
	return nil
}

func (o *Orchestrator) record(ctx context.Context, r *run) {
	status := string(r.item.Status())
	metrics.ItemsFinalized.WithLabelValues(r.item.Key.Category, status).Inc()
	o.deps.Observability.RecordRun(ctx, r.item.Key.Category, status, o.now().Sub(r.started), r.added)
}

// ensurePrimary keeps exactly one approved primary when any candidate is
// approved: stale flags are cleared and the first approved candidate is
// promoted if none holds the flag.
func (o *Orchestrator) ensurePrimary(item *models.Item) {
	primary := item.PrimaryIndex()
	for i := range item.Images {
		if i != primary {
			item.Images[i].IsPrimary = false
		}
	}
	if primary >= 0 {
		return
	}
	for i := range item.Images {
		if item.Images[i].Status == models.CandidateApproved {
			item.Images[i].IsPrimary = true
			return
		}
	}
}

func (o *Orchestrator) recordError(r *run, source string, err error) {
	code := apperrors.CodeOf(err)
	r.item.Progress.RecordError(models.CollectionError{
		At:      o.now().UTC(),
		Source:  source,
		Code:    string(code),
		Message: err.Error(),
	}, o.cfg.ErrorLogSize)
	if source != "" {
		metrics.CandidateErrors.WithLabelValues(source, string(code)).Inc()
	}
}

func (o *Orchestrator) result(r *run, skipped bool) *Result {
	p := r.item.Progress
	if p == nil {
		p = models.NewCollectionProgress(r.opts.targetCount)
	}
	res := &Result{
		Key:               r.item.Key,
		Status:            p.Status,
		TargetCount:       p.TargetCount,
		ApprovedCount:     p.ApprovedCount,
		RejectedCount:     p.RejectedCount,
		ManualReviewCount: p.ManualReviewCount,
		CollectedCount:    p.CollectedCount,
		NewCandidates:     r.added,
		SearchAttempts:    p.SearchAttempts,
		Skipped:           skipped,
	}
	if p.NextAttempt != nil {
		t := *p.NextAttempt
		res.NextAttempt = &t
	}
	return res
}

// IsTerminal reports whether err from Collect means the item gave up.
func IsTerminal(err error) bool {
	var se *apperrors.StandardError
	return errors.As(err, &se) && se.Code == apperrors.ErrCodeItemCollectionFailed && !se.Retryable
}
