package planner

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/errgroup"

	"image-collector/internal/common/config"
	apperrors "image-collector/internal/common/errors"
	"image-collector/internal/common/logger"
	"image-collector/internal/itemstore"
	"image-collector/internal/models"
	"image-collector/internal/scheduler"
)

// JobQueue is the part of the scheduler the planner drives.
type JobQueue interface {
	Enqueue(ctx context.Context, queue string, payload models.JobPayload, opts scheduler.JobOptions) (scheduler.JobHandle, error)
	WaitFor(ctx context.Context, queue, jobID string) (scheduler.Job, error)
	ActiveJobs(queue string) ([]scheduler.Job, error)
}

type Options struct {
	BatchSize  int
	BatchDelay time.Duration
	ItemQueue  string
	// CategoryQueue is inspected for other collections of the same category.
	CategoryQueue string
	// StaleAfter is how long an item may sit in collecting before it is
	// treated as abandoned and selected again. Zero never expires it.
	StaleAfter time.Duration
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		BatchSize:     cfg.Collection.BatchSize,
		BatchDelay:    config.GetDuration(cfg.Collection.BatchDelay),
		ItemQueue:     config.QueueCollectItem,
		CategoryQueue: config.QueueCollectCategory,
		StaleAfter:    config.GetDuration(cfg.Database.Redis.LockTTL),
	}
}

// BatchTicket is a planned category collection.
type BatchTicket struct {
	Category     string                  `json:"category"`
	Batches      [][]models.ItemKey      `json:"batches"`
	Total        int                     `json:"total"`
	ForceRestart bool                    `json:"forceRestart,omitempty"`
	Collect      models.CollectOverrides `json:"collect"`
}

type ItemOutcome struct {
	Key    string             `json:"key"`
	JobID  string             `json:"jobId"`
	State  scheduler.JobState `json:"state"`
	Status models.ItemStatus  `json:"status,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Report is the aggregate outcome of a batch run. Failed items do not fail
// the run.
type Report struct {
	Category   string        `json:"category"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Batches    int           `json:"batches"`
	Items      []ItemOutcome `json:"items"`
}

type Planner struct {
	store itemstore.Store
	queue JobQueue
	opts  Options
	log   logger.Logger
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(store itemstore.Store, queue JobQueue, opts Options, log logger.Logger) *Planner {
	if opts.BatchSize < 1 {
		opts.BatchSize = 3
	}
	if opts.ItemQueue == "" {
		opts.ItemQueue = config.QueueCollectItem
	}
	if opts.CategoryQueue == "" {
		opts.CategoryQueue = config.QueueCollectCategory
	}
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Planner{store: store, queue: queue, opts: opts, log: log, sleep: sleepCtx, now: time.Now}
}

// ItemJobID is the queue ID of the first collect-item job of key. Reusing it
// keeps one waiting or active job per item.
func ItemJobID(key models.ItemKey) string {
	return config.QueueCollectItem + ":" + key.String()
}

// Plan selects the items of a category request and splits them into batches.
// parentJobID, when set, is ignored by the active-collection check.
func (p *Planner) Plan(ctx context.Context, req models.CollectCategoryPayload, parentJobID string) (*BatchTicket, error) {
	items, err := p.store.ListByCategory(ctx, req.Category)
	if err != nil {
		return nil, err
	}

	var subset map[string]bool
	if len(req.ItemKeys) > 0 {
		subset = make(map[string]bool, len(req.ItemKeys))
		for _, k := range req.ItemKeys {
			subset[k] = true
		}
	}

	var selected []models.ItemKey
	for _, it := range items {
		if subset != nil && !subset[it.Key.String()] {
			continue
		}
		if p.selectable(it, req.ForceRestart) {
			selected = append(selected, it.Key)
		}
	}

	if len(selected) == 0 && !req.ForceRestart {
		active := p.collectionActive(req.Category, parentJobID)
		return nil, apperrors.NewNoPendingItemsError(req.Category, active)
	}

	size := req.BatchSize
	if size < 1 {
		size = p.opts.BatchSize
	}
	ticket := &BatchTicket{
		Category:     req.Category,
		Batches:      split(selected, size),
		Total:        len(selected),
		ForceRestart: req.ForceRestart,
		Collect:      req.Collect,
	}
	p.log.Info("Category collection planned", map[string]interface{}{
		"category": req.Category, "items": ticket.Total, "batches": len(ticket.Batches), "batchSize": size,
	})
	return ticket, nil
}

// selectable reports whether it should be collected. An item stuck in
// collecting is picked up again on force restart or once its last attempt is
// older than StaleAfter; the item lock still keeps runs from overlapping.
func (p *Planner) selectable(it *models.Item, force bool) bool {
	switch it.Status() {
	case "", models.ItemStatusPending:
		return true
	case models.ItemStatusCollecting:
		return force || p.abandoned(it)
	default:
		return force
	}
}

func (p *Planner) abandoned(it *models.Item) bool {
	if p.opts.StaleAfter <= 0 || it.Progress == nil || it.Progress.LastAttempt == nil {
		return false
	}
	return p.now().Sub(*it.Progress.LastAttempt) > p.opts.StaleAfter
}

func split(keys []models.ItemKey, size int) [][]models.ItemKey {
	batches := make([][]models.ItemKey, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end])
	}
	return batches
}

// collectionActive reports whether another category job or any item job of
// the category is running.
func (p *Planner) collectionActive(category, parentJobID string) bool {
	if jobs, err := p.queue.ActiveJobs(p.opts.CategoryQueue); err == nil {
		for _, j := range jobs {
			var payload models.CollectCategoryPayload
			if j.ID != parentJobID && j.Decode(&payload) == nil && payload.Category == category {
				return true
			}
		}
	}
	if jobs, err := p.queue.ActiveJobs(p.opts.ItemQueue); err == nil {
		for _, j := range jobs {
			var payload models.CollectItemPayload
			if j.Decode(&payload) == nil && payload.Category == category {
				return true
			}
		}
	}
	return false
}

// Run enqueues each batch and waits for all of its jobs before moving on.
// progress receives the running percentage of processed items.
func (p *Planner) Run(ctx context.Context, ticket *BatchTicket, progress scheduler.ProgressFunc) (*Report, error) {
	report := &Report{Category: ticket.Category, Total: ticket.Total, Items: make([]ItemOutcome, 0, ticket.Total)}
	log := p.log.WithFields(map[string]interface{}{"category": ticket.Category})

	for i, batch := range ticket.Batches {
		if i > 0 && p.opts.BatchDelay > 0 {
			if err := p.sleep(ctx, p.opts.BatchDelay); err != nil {
				return report, err
			}
		}

		outcomes, err := p.runBatch(ctx, ticket, batch)
		report.Items = append(report.Items, outcomes...)
		report.Batches++
		for _, o := range outcomes {
			report.Processed++
			if o.State == scheduler.StateCompleted {
				report.Successful++
			} else {
				report.Failed++
			}
		}
		if progress != nil && report.Total > 0 {
			progress(report.Processed * 100 / report.Total)
		}
		if err != nil {
			return report, err
		}
		log.Info("Batch finished", map[string]interface{}{
			"batch": i + 1, "of": len(ticket.Batches), "processed": report.Processed,
			"successful": report.Successful, "failed": report.Failed,
		})
	}
	return report, nil
}

func (p *Planner) runBatch(ctx context.Context, ticket *BatchTicket, batch []models.ItemKey) ([]ItemOutcome, error) {
	outcomes := make([]ItemOutcome, len(batch))
	g, gctx := errgroup.WithContext(ctx)

	for i, key := range batch {
		i, key := i, key
		outcomes[i] = ItemOutcome{Key: key.String(), JobID: ItemJobID(key)}

		payload := models.CollectItemPayload{
			Category:         key.Category,
			Letter:           key.Letter,
			ItemName:         key.Name,
			ForceRestart:     ticket.ForceRestart,
			CollectOverrides: ticket.Collect,
		}
		if _, err := p.queue.Enqueue(ctx, p.opts.ItemQueue, payload, scheduler.JobOptions{JobID: outcomes[i].JobID}); err != nil {
			outcomes[i].State = scheduler.StateFailed
			outcomes[i].Error = err.Error()
			continue
		}

		g.Go(func() error {
			job, err := p.queue.WaitFor(gctx, p.opts.ItemQueue, outcomes[i].JobID)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				outcomes[i].State = scheduler.StateFailed
				outcomes[i].Error = err.Error()
				return nil
			}
			outcomes[i].State = job.State
			outcomes[i].Error = job.FailedReason
			var res struct {
				Status models.ItemStatus `json:"status"`
			}
			if len(job.Result) > 0 && json.Unmarshal(job.Result, &res) == nil {
				outcomes[i].Status = res.Status
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
