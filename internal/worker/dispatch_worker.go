package worker

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/logger"
	"github.com/arkmail/dispatch/internal/pkg/metrics"
)

// Dispatcher runs the delivery pipeline for one campaign batch. Satisfied by
// *dispatch.Engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, campaignID string, subscriberIDs []string) ([]domain.DispatchResult, error)
}

// DispatchConfig tunes the worker pool.
type DispatchConfig struct {
	Workers      int           // parallel claim loops, default 4
	BatchSize    int           // rows per claim, default 50
	PollInterval time.Duration // idle wait between claims, default 2s
	MaxAttempts  int           // queue attempts before dead_letter, default 3
	StaleAfter   time.Duration // processing rows older than this get requeued, default 10m
}

func (c *DispatchConfig) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = 10 * time.Minute
	}
}

// DispatchWorker drains send_queue in claimed batches and hands them to the
// delivery engine campaign by campaign. Claims use FOR UPDATE SKIP LOCKED so
// any number of processes can run the same loop against one queue.
type DispatchWorker struct {
	db       *sql.DB
	engine   Dispatcher
	throttle *Throttle
	met      *metrics.Metrics
	cfg      DispatchConfig

	workerID string
	hostname string

	batches  int64
	sends    int64
	failures int64

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDispatchWorker wires a worker pool. throttle may be nil to disable
// domain pacing; met may be nil in tests.
func NewDispatchWorker(db *sql.DB, engine Dispatcher, throttle *Throttle, met *metrics.Metrics, cfg DispatchConfig) *DispatchWorker {
	cfg.applyDefaults()
	hostname, _ := os.Hostname()
	return &DispatchWorker{
		db:       db,
		engine:   engine,
		throttle: throttle,
		met:      met,
		cfg:      cfg,
		workerID: "dispatch-" + uuid.New().String()[:8],
		hostname: hostname,
	}
}

// ID returns the registry identifier of this worker process.
func (w *DispatchWorker) ID() string { return w.workerID }

// Start registers the worker and launches the claim loops, the heartbeat and
// the stale-claim janitor. Returns an error when already running.
func (w *DispatchWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("dispatch worker already running")
	}
	w.running = true
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	if err := w.register(ctx); err != nil {
		logger.Warn("worker registration failed", "worker_id", w.workerID, "error", err.Error())
	}

	for i := 0; i < w.cfg.Workers; i++ {
		w.wg.Add(1)
		go w.runLoop(ctx, i)
	}
	w.wg.Add(1)
	go w.heartbeatLoop(ctx)
	w.wg.Add(1)
	go w.janitorLoop(ctx)

	logger.Info("dispatch worker started",
		"worker_id", w.workerID,
		"loops", w.cfg.Workers,
		"batch_size", w.cfg.BatchSize)
	return nil
}

// Stop cancels the loops, waits for in-flight batches and marks the registry
// row stopped.
func (w *DispatchWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.deregister(ctx); err != nil {
		logger.Warn("worker deregistration failed", "worker_id", w.workerID, "error", err.Error())
	}
	logger.Info("dispatch worker stopped",
		"worker_id", w.workerID,
		"batches", atomic.LoadInt64(&w.batches),
		"sends", atomic.LoadInt64(&w.sends),
		"failures", atomic.LoadInt64(&w.failures))
}

func (w *DispatchWorker) runLoop(ctx context.Context, loop int) {
	defer w.wg.Done()

	logger.Debug("claim loop started", "worker_id", w.workerID, "loop", loop)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Keep claiming while the queue has work; fall back to the
			// poll interval once a claim comes back short.
			for {
				claimed, err := w.processOnce(ctx)
				if err != nil {
					logger.Error("batch processing failed", "worker_id", w.workerID, "error", err.Error())
					break
				}
				if claimed < w.cfg.BatchSize {
					break
				}
				if ctx.Err() != nil {
					return
				}
			}
		}
	}
}

// queueItem is one claimed send_queue row joined with the recipient address.
type queueItem struct {
	ID           string
	CampaignID   string
	SubscriberID string
	Attempts     int
	Email        string
}

// processOnce claims one batch and delivers it. Returns the claimed count.
func (w *DispatchWorker) processOnce(ctx context.Context) (int, error) {
	items, err := w.claimBatch(ctx)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, nil
	}

	if w.met != nil {
		w.met.QueueClaimed.Add(float64(len(items)))
	}
	start := time.Now()

	items = w.applyThrottle(ctx, items)
	w.deliverClaimed(ctx, items)

	atomic.AddInt64(&w.batches, 1)
	if w.met != nil {
		w.met.BatchDuration.Observe(time.Since(start).Seconds())
	}
	return len(items), nil
}

// claimBatch atomically moves up to BatchSize queued rows to processing and
// returns them with the recipient addresses the throttle needs.
func (w *DispatchWorker) claimBatch(ctx context.Context) ([]queueItem, error) {
	rows, err := w.db.QueryContext(ctx, `
		WITH claimed AS (
			UPDATE send_queue
			SET status = 'processing', claimed_by = $1, claimed_at = NOW()
			WHERE id IN (
				SELECT id FROM send_queue
				WHERE status = 'queued'
				ORDER BY created_at
				LIMIT $2
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id, campaign_id, subscriber_id, attempts
		)
		SELECT c.id, c.campaign_id, c.subscriber_id, c.attempts, s.email
		FROM claimed c
		JOIN subscribers s ON s.id = c.subscriber_id
		ORDER BY c.campaign_id, c.id
	`, w.workerID, w.cfg.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim batch: %w", err)
	}
	defer rows.Close()

	var items []queueItem
	for rows.Next() {
		var it queueItem
		if err := rows.Scan(&it.ID, &it.CampaignID, &it.SubscriberID, &it.Attempts, &it.Email); err != nil {
			return nil, fmt.Errorf("scan claimed row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// applyThrottle releases rows whose recipient domain is over the minute
// window back to queued, untouched, and returns the rest.
func (w *DispatchWorker) applyThrottle(ctx context.Context, items []queueItem) []queueItem {
	if w.throttle == nil {
		return items
	}

	kept := items[:0]
	var deferred []string
	for _, it := range items {
		if w.throttle.Allow(ctx, emailDomain(it.Email)) {
			kept = append(kept, it)
			continue
		}
		deferred = append(deferred, it.ID)
	}
	if len(deferred) == 0 {
		return kept
	}

	if w.met != nil {
		w.met.Throttled.Add(float64(len(deferred)))
	}
	if err := w.release(ctx, deferred); err != nil {
		logger.Warn("throttled rows not released", "worker_id", w.workerID, "error", err.Error())
	}
	return kept
}

// deliverClaimed groups the claimed rows by campaign, runs the engine per
// campaign and records each row's fate.
func (w *DispatchWorker) deliverClaimed(ctx context.Context, items []queueItem) {
	byCampaign := make(map[string][]queueItem)
	var order []string
	for _, it := range items {
		if _, seen := byCampaign[it.CampaignID]; !seen {
			order = append(order, it.CampaignID)
		}
		byCampaign[it.CampaignID] = append(byCampaign[it.CampaignID], it)
	}

	for _, campaignID := range order {
		batch := byCampaign[campaignID]
		subIDs := make([]string, len(batch))
		for i, it := range batch {
			subIDs[i] = it.SubscriberID
		}

		results, err := w.engine.Dispatch(ctx, campaignID, subIDs)
		if err != nil {
			// Campaign-level failures (missing campaign, bad template)
			// hit every row in the batch.
			for _, it := range batch {
				w.markFailed(ctx, it, err.Error())
			}
			continue
		}

		byRecipient := make(map[string]domain.DispatchResult, len(results))
		for _, r := range results {
			byRecipient[r.RecipientID] = r
		}

		for _, it := range batch {
			r, ok := byRecipient[it.SubscriberID]
			if !ok {
				w.markFailed(ctx, it, "recipient not loaded")
				continue
			}
			if w.met != nil {
				w.met.Deliveries.WithLabelValues(string(r.Outcome)).Inc()
			}
			switch r.Outcome {
			case domain.OutcomeFailed:
				w.markFailed(ctx, it, r.Error)
			default:
				// Sent, skipped and invalid rows are finished either way.
				w.markDone(ctx, it, r.Error)
				if r.Outcome == domain.OutcomeSent {
					atomic.AddInt64(&w.sends, 1)
				}
			}
		}

		w.maybeFinishCampaign(ctx, campaignID)
	}
}

func (w *DispatchWorker) markDone(ctx context.Context, it queueItem, note string) {
	_, err := w.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'done', last_error = $2
		WHERE id = $1
	`, it.ID, note)
	if err != nil {
		logger.Warn("queue row not marked done", "queue_id", it.ID, "error", err.Error())
	}
}

// markFailed requeues the row with a bumped attempt count, or dead-letters it
// once the attempts are spent.
func (w *DispatchWorker) markFailed(ctx context.Context, it queueItem, errMsg string) {
	atomic.AddInt64(&w.failures, 1)

	if it.Attempts+1 >= w.cfg.MaxAttempts {
		_, err := w.db.ExecContext(ctx, `
			UPDATE send_queue
			SET status = 'dead_letter', attempts = attempts + 1, last_error = $2
			WHERE id = $1
		`, it.ID, errMsg)
		if err != nil {
			logger.Warn("queue row not dead-lettered", "queue_id", it.ID, "error", err.Error())
			return
		}
		if w.met != nil {
			w.met.DeadLettered.Inc()
		}
		logger.Warn("queue row dead-lettered",
			"queue_id", it.ID,
			"campaign_id", it.CampaignID,
			"attempts", it.Attempts+1,
			"error", errMsg)
		return
	}

	_, err := w.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'queued', attempts = attempts + 1, last_error = $2,
		    claimed_by = '', claimed_at = NULL
		WHERE id = $1
	`, it.ID, errMsg)
	if err != nil {
		logger.Warn("queue row not requeued", "queue_id", it.ID, "error", err.Error())
	}
}

// release puts throttled rows back in the queue without charging an attempt.
func (w *DispatchWorker) release(ctx context.Context, ids []string) error {
	_, err := w.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'queued', claimed_by = '', claimed_at = NULL
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("release rows: %w", err)
	}
	return nil
}

// maybeFinishCampaign flips a sending campaign to sent once its queue has no
// open rows left. The NOT EXISTS guard and status predicate make the flip
// idempotent across racing workers.
func (w *DispatchWorker) maybeFinishCampaign(ctx context.Context, campaignID string) {
	res, err := w.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = 'sent', updated_at = NOW()
		WHERE id = $1
		  AND status = 'sending'
		  AND NOT EXISTS (
			SELECT 1 FROM send_queue
			WHERE campaign_id = $1 AND status IN ('queued', 'processing')
		  )
	`, campaignID)
	if err != nil {
		logger.Warn("campaign completion check failed", "campaign_id", campaignID, "error", err.Error())
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("campaign fully delivered", "campaign_id", campaignID)
	}
}

func (w *DispatchWorker) register(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO workers (id, hostname, status, started_at, last_heartbeat_at)
		VALUES ($1, $2, 'running', NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET hostname = EXCLUDED.hostname, status = 'running', last_heartbeat_at = NOW()
	`, w.workerID, w.hostname)
	return err
}

func (w *DispatchWorker) deregister(ctx context.Context) error {
	_, err := w.db.ExecContext(ctx, `
		UPDATE workers
		SET status = 'stopped', last_heartbeat_at = NOW(),
		    batches = $2, sends = $3, failures = $4
		WHERE id = $1
	`, w.workerID,
		atomic.LoadInt64(&w.batches),
		atomic.LoadInt64(&w.sends),
		atomic.LoadInt64(&w.failures))
	return err
}

func (w *DispatchWorker) heartbeatLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, err := w.db.ExecContext(ctx, `
				UPDATE workers
				SET last_heartbeat_at = NOW(), batches = $2, sends = $3, failures = $4
				WHERE id = $1
			`, w.workerID,
				atomic.LoadInt64(&w.batches),
				atomic.LoadInt64(&w.sends),
				atomic.LoadInt64(&w.failures))
			if err != nil {
				logger.Warn("heartbeat failed", "worker_id", w.workerID, "error", err.Error())
			}
		}
	}
}

// janitorLoop requeues rows whose claim went stale, so a crashed worker's
// batch re-enters the queue instead of sitting in processing forever.
func (w *DispatchWorker) janitorLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.requeueStale(ctx)
		}
	}
}

func (w *DispatchWorker) requeueStale(ctx context.Context) {
	res, err := w.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'queued', claimed_by = '', claimed_at = NULL,
		    attempts = attempts + 1
		WHERE status = 'processing'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts < $2
	`, w.cfg.StaleAfter.String(), w.cfg.MaxAttempts)
	if err != nil {
		logger.Warn("stale requeue failed", "worker_id", w.workerID, "error", err.Error())
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Info("requeued stale claims", "worker_id", w.workerID, "rows", n)
	}

	res, err = w.db.ExecContext(ctx, `
		UPDATE send_queue
		SET status = 'dead_letter'
		WHERE status = 'processing'
		  AND claimed_at < NOW() - $1::interval
		  AND attempts >= $2
	`, w.cfg.StaleAfter.String(), w.cfg.MaxAttempts)
	if err != nil {
		logger.Warn("stale dead-letter failed", "worker_id", w.workerID, "error", err.Error())
	} else if n, _ := res.RowsAffected(); n > 0 {
		logger.Warn("dead-lettered stale claims", "worker_id", w.workerID, "rows", n)
		if w.met != nil {
			w.met.DeadLettered.Add(float64(n))
		}
	}
}

// emailDomain returns the lowercased part after the last @.
func emailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
