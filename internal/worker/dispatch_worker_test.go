package worker

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/pkg/metrics"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	return db, mock, func() { db.Close() }
}

type dispatchCall struct {
	campaignID    string
	subscriberIDs []string
}

type fakeDispatcher struct {
	results map[string][]domain.DispatchResult
	errs    map[string]error
	calls   []dispatchCall
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, campaignID string, subscriberIDs []string) ([]domain.DispatchResult, error) {
	f.calls = append(f.calls, dispatchCall{campaignID: campaignID, subscriberIDs: subscriberIDs})
	if err, ok := f.errs[campaignID]; ok {
		return nil, err
	}
	return f.results[campaignID], nil
}

func TestDispatchWorkerStartStop(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("INSERT INTO workers").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE workers").WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{
		Workers:      2,
		PollInterval: time.Hour,
	})

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	w.mu.Lock()
	running := w.running
	w.mu.Unlock()
	if !running {
		t.Error("worker should be running after Start()")
	}

	if err := w.Start(context.Background()); err == nil {
		t.Error("double Start() should return error")
	}

	w.Stop()

	w.mu.Lock()
	running = w.running
	w.mu.Unlock()
	if running {
		t.Error("worker should not be running after Stop()")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDispatchConfigDefaults(t *testing.T) {
	db, _, cleanup := setupTestDB(t)
	defer cleanup()

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{})
	if w.cfg.Workers != 4 || w.cfg.BatchSize != 50 || w.cfg.MaxAttempts != 3 {
		t.Errorf("defaults not applied: %+v", w.cfg)
	}
	if w.workerID == "" || w.workerID == "dispatch-" {
		t.Errorf("worker id not generated: %q", w.workerID)
	}
}

func TestClaimBatchScansRows(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "campaign_id", "subscriber_id", "attempts", "email"}).
		AddRow("q-1", "camp-1", "sub-a", 0, "a@example.com").
		AddRow("q-2", "camp-1", "sub-b", 2, "b@example.org")
	mock.ExpectQuery("WITH claimed AS").
		WillReturnRows(rows)

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{BatchSize: 10})

	items, err := w.claimBatch(context.Background())
	if err != nil {
		t.Fatalf("claimBatch: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "q-1" || items[0].Email != "a@example.com" || items[0].Attempts != 0 {
		t.Errorf("first item mismatch: %+v", items[0])
	}
	if items[1].SubscriberID != "sub-b" || items[1].Attempts != 2 {
		t.Errorf("second item mismatch: %+v", items[1])
	}
}

func TestMarkFailedRequeuesUnderLimit(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`SET status = 'queued', attempts = attempts \+ 1`).
		WithArgs("q-1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{MaxAttempts: 3})
	w.markFailed(context.Background(), queueItem{ID: "q-1", Attempts: 0}, "boom")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if w.failures != 1 {
		t.Errorf("failures counter = %d, want 1", w.failures)
	}
}

func TestMarkFailedDeadLettersAtLimit(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`SET status = 'dead_letter', attempts = attempts \+ 1`).
		WithArgs("q-1", "boom").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{MaxAttempts: 3})
	w.markFailed(context.Background(), queueItem{ID: "q-1", Attempts: 2}, "boom")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeliverClaimedRoutesOutcomes(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	fd := &fakeDispatcher{
		results: map[string][]domain.DispatchResult{
			"camp-1": {
				{RecipientID: "sub-a", Outcome: domain.OutcomeSent, TrackingToken: "tok-a"},
				{RecipientID: "sub-b", Outcome: domain.OutcomeFailed, Error: "relay down"},
				{RecipientID: "sub-c", Outcome: domain.OutcomeSkipped, Error: "address suppressed"},
			},
		},
	}

	// sub-a sent, sub-b requeued, sub-c done, sub-d never loaded.
	mock.ExpectExec(`SET status = 'done'`).
		WithArgs("q-a", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'queued', attempts = attempts \+ 1`).
		WithArgs("q-b", "relay down").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'done'`).
		WithArgs("q-c", "address suppressed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'queued', attempts = attempts \+ 1`).
		WithArgs("q-d", "recipient not loaded").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	met := metrics.New(prometheus.NewRegistry())
	w := NewDispatchWorker(db, fd, nil, met, DispatchConfig{MaxAttempts: 3})

	items := []queueItem{
		{ID: "q-a", CampaignID: "camp-1", SubscriberID: "sub-a", Email: "a@example.com"},
		{ID: "q-b", CampaignID: "camp-1", SubscriberID: "sub-b", Email: "b@example.com"},
		{ID: "q-c", CampaignID: "camp-1", SubscriberID: "sub-c", Email: "c@example.com"},
		{ID: "q-d", CampaignID: "camp-1", SubscriberID: "sub-d", Email: "d@example.com"},
	}
	w.deliverClaimed(context.Background(), items)

	if len(fd.calls) != 1 {
		t.Fatalf("expected 1 engine call, got %d", len(fd.calls))
	}
	call := fd.calls[0]
	if call.campaignID != "camp-1" {
		t.Errorf("campaign = %q", call.campaignID)
	}
	want := []string{"sub-a", "sub-b", "sub-c", "sub-d"}
	if len(call.subscriberIDs) != len(want) {
		t.Fatalf("subscriberIDs = %v", call.subscriberIDs)
	}
	for i, id := range want {
		if call.subscriberIDs[i] != id {
			t.Errorf("subscriberIDs[%d] = %q, want %q", i, call.subscriberIDs[i], id)
		}
	}

	if w.sends != 1 {
		t.Errorf("sends counter = %d, want 1", w.sends)
	}
	if w.failures != 2 {
		t.Errorf("failures counter = %d, want 2", w.failures)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDeliverClaimedCampaignErrorFailsAll(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	fd := &fakeDispatcher{
		errs: map[string]error{"camp-1": errors.New("campaign not found")},
	}

	mock.ExpectExec(`SET status = 'dead_letter'`).
		WithArgs("q-a", "campaign not found").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`SET status = 'dead_letter'`).
		WithArgs("q-b", "campaign not found").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDispatchWorker(db, fd, nil, nil, DispatchConfig{MaxAttempts: 3})
	items := []queueItem{
		{ID: "q-a", CampaignID: "camp-1", SubscriberID: "sub-a", Attempts: 2},
		{ID: "q-b", CampaignID: "camp-1", SubscriberID: "sub-b", Attempts: 2},
	}
	w.deliverClaimed(context.Background(), items)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if w.failures != 2 {
		t.Errorf("failures counter = %d, want 2", w.failures)
	}
}

func TestReleaseRestoresQueuedWithoutAttempt(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`SET status = 'queued', claimed_by = ''`).
		WithArgs(pq.Array([]string{"q-1", "q-2"})).
		WillReturnResult(sqlmock.NewResult(0, 2))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{})
	if err := w.release(context.Background(), []string{"q-1", "q-2"}); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestRequeueStaleTwoPassRecovery(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec(`SET status = 'queued', claimed_by = '', claimed_at = NULL`).
		WithArgs("10m0s", 3).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`SET status = 'dead_letter'`).
		WithArgs("10m0s", 3).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{
		MaxAttempts: 3,
		StaleAfter:  10 * time.Minute,
	})
	w.requeueStale(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestMaybeFinishCampaignIdempotent(t *testing.T) {
	db, mock, cleanup := setupTestDB(t)
	defer cleanup()

	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE campaigns").
		WithArgs("camp-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := NewDispatchWorker(db, &fakeDispatcher{}, nil, nil, DispatchConfig{})
	w.maybeFinishCampaign(context.Background(), "camp-1")
	w.maybeFinishCampaign(context.Background(), "camp-1")

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestEmailDomain(t *testing.T) {
	cases := []struct {
		email string
		want  string
	}{
		{"user@Example.COM", "example.com"},
		{"first.last@mail.example.org", "mail.example.org"},
		{"nodomain", ""},
		{"trailing@", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := emailDomain(tc.email); got != tc.want {
			t.Errorf("emailDomain(%q) = %q, want %q", tc.email, got, tc.want)
		}
	}
}
