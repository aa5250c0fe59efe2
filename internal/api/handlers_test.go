package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmail/dispatch/internal/domain"
	"github.com/arkmail/dispatch/internal/service/campaign"
	"github.com/arkmail/dispatch/internal/service/selector"
	"github.com/arkmail/dispatch/internal/service/suppression"
)

const (
	testCampaignID = "7f6c2f3e-8f3a-4bd0-9c84-2f6a6f1b4a10"
	testSubA       = "0a1b2c3d-4e5f-4a6b-8c7d-9e0f1a2b3c4d"
	testSubB       = "1b2c3d4e-5f6a-4b7c-8d9e-0f1a2b3c4d5e"
)

type fakeDispatcher struct {
	results     []domain.DispatchResult
	err         error
	gotCampaign string
	gotSubs     []string
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, campaignID string, subscriberIDs []string) ([]domain.DispatchResult, error) {
	f.gotCampaign = campaignID
	f.gotSubs = subscriberIDs
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeCampaigns struct {
	byID      map[string]*domain.Campaign
	created   *campaign.CreateInput
	updated   *campaign.UpdateFields
	deleted   []string
	queued    int
	queueErr  error
	stats     *campaign.Stats
	listTotal int
}

func (f *fakeCampaigns) Create(ctx context.Context, input campaign.CreateInput) (*domain.Campaign, error) {
	f.created = &input
	c := &domain.Campaign{ID: testCampaignID, Name: input.Name, Subject: input.Subject, FromEmail: input.FromEmail, Status: domain.CampaignDraft}
	return c, nil
}

func (f *fakeCampaigns) Get(ctx context.Context, id string) (*domain.Campaign, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, campaign.ErrNotFound
	}
	return c, nil
}

func (f *fakeCampaigns) List(ctx context.Context, fl campaign.ListFilter) ([]domain.Campaign, int, error) {
	var out []domain.Campaign
	for _, c := range f.byID {
		out = append(out, *c)
	}
	return out, f.listTotal, nil
}

func (f *fakeCampaigns) Update(ctx context.Context, id string, u campaign.UpdateFields) error {
	if _, ok := f.byID[id]; !ok {
		return campaign.ErrNotFound
	}
	f.updated = &u
	return nil
}

func (f *fakeCampaigns) Delete(ctx context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return campaign.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCampaigns) Queue(ctx context.Context, campaignID string, subscriberIDs []string) (int, error) {
	if f.queueErr != nil {
		return 0, f.queueErr
	}
	return f.queued, nil
}

func (f *fakeCampaigns) Stats(ctx context.Context, id string) (*campaign.Stats, error) {
	if f.stats == nil {
		return nil, campaign.ErrNotFound
	}
	return f.stats, nil
}

type fakePool struct {
	statuses []selector.ServerStatus
}

func (f *fakePool) Status() []selector.ServerStatus { return f.statuses }

type fakeSuppressions struct {
	entries    []domain.Suppression
	total      int
	stats      *suppression.Stats
	suppressed []string
	removed    []string
	lastReason domain.SuppressionReason
	lastSource domain.SuppressionSource
}

func (f *fakeSuppressions) List(ctx context.Context, fl suppression.ListFilter) ([]domain.Suppression, int, error) {
	return f.entries, f.total, nil
}

func (f *fakeSuppressions) GetStats(ctx context.Context) (*suppression.Stats, error) {
	return f.stats, nil
}

func (f *fakeSuppressions) Suppress(ctx context.Context, email string, reason domain.SuppressionReason, source domain.SuppressionSource, campaignID string) error {
	f.suppressed = append(f.suppressed, email)
	f.lastReason = reason
	f.lastSource = source
	return nil
}

func (f *fakeSuppressions) Remove(ctx context.Context, email string) error {
	for _, e := range f.entries {
		if e.Email == email {
			f.removed = append(f.removed, email)
			return nil
		}
	}
	return suppression.ErrNotFound
}

func setupTestRouter(d *fakeDispatcher, c *fakeCampaigns, p *fakePool, s *fakeSuppressions) http.Handler {
	if d == nil {
		d = &fakeDispatcher{}
	}
	if c == nil {
		c = &fakeCampaigns{byID: map[string]*domain.Campaign{}}
	}
	if p == nil {
		p = &fakePool{}
	}
	if s == nil {
		s = &fakeSuppressions{}
	}
	return SetupRoutes(NewHandlers(d, c, p, s))
}

func TestHealthCheck(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestDispatchReturnsPerRecipientResults(t *testing.T) {
	d := &fakeDispatcher{results: []domain.DispatchResult{
		{RecipientID: testSubA, Outcome: domain.OutcomeSent, TrackingToken: "tok-a"},
		{RecipientID: testSubB, Outcome: domain.OutcomeSkipped, Error: "address suppressed"},
	}}
	router := setupTestRouter(d, nil, nil, nil)

	payload := map[string]interface{}{
		"campaign_id":    testCampaignID,
		"subscriber_ids": []string{testSubA, testSubB},
	}
	buf, _ := json.Marshal(payload)

	req := httptest.NewRequest("POST", "/api/dispatch", bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testCampaignID, d.gotCampaign)
	assert.Equal(t, []string{testSubA, testSubB}, d.gotSubs)

	var body struct {
		CampaignID string                  `json:"campaign_id"`
		Results    []domain.DispatchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, domain.OutcomeSent, body.Results[0].Outcome)
	assert.Equal(t, "tok-a", body.Results[0].TrackingToken)
	assert.Equal(t, "address suppressed", body.Results[1].Error)
}

func TestDispatchRejectsMissingCampaign(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	buf, _ := json.Marshal(map[string]interface{}{"subscriber_ids": []string{testSubA}})
	req := httptest.NewRequest("POST", "/api/dispatch", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDispatchRejectsNonUUIDSubscribers(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	buf, _ := json.Marshal(map[string]interface{}{
		"campaign_id":    testCampaignID,
		"subscriber_ids": []string{"not-a-uuid"},
	})
	req := httptest.NewRequest("POST", "/api/dispatch", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDispatchMapsCampaignNotFound(t *testing.T) {
	d := &fakeDispatcher{err: campaign.ErrNotFound}
	router := setupTestRouter(d, nil, nil, nil)

	buf, _ := json.Marshal(map[string]interface{}{
		"campaign_id":    testCampaignID,
		"subscriber_ids": []string{testSubA},
	})
	req := httptest.NewRequest("POST", "/api/dispatch", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestQueueCampaignAccepted(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{}, queued: 1250}
	router := setupTestRouter(nil, c, nil, nil)

	req := httptest.NewRequest("POST", "/api/campaigns/"+testCampaignID+"/queue", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusAccepted, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(1250), body["queued"])
	assert.Equal(t, testCampaignID, body["campaign_id"])
}

func TestQueueCampaignConflictWhenSending(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{}, queueErr: campaign.ErrAlreadySending}
	router := setupTestRouter(nil, c, nil, nil)

	req := httptest.NewRequest("POST", "/api/campaigns/"+testCampaignID+"/queue", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestServersReportsPoolStatus(t *testing.T) {
	p := &fakePool{statuses: []selector.ServerStatus{
		{Server: domain.SMTPServer{ID: "relay-1", Host: "mta1.example.com"}, Score: 0.92, SuccessRate: 0.98},
		{Server: domain.SMTPServer{ID: "relay-2", Host: "mta2.example.com"}, Score: 0.71, SuccessRate: 0.84},
	}}
	router := setupTestRouter(nil, nil, p, nil)

	req := httptest.NewRequest("GET", "/api/servers", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Servers []selector.ServerStatus `json:"servers"`
		Count   int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, "relay-1", body.Servers[0].Server.ID)
}

func TestCreateCampaign(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{}}
	router := setupTestRouter(nil, c, nil, nil)

	buf, _ := json.Marshal(map[string]string{
		"name":       "August Promo",
		"subject":    "hello {firstname}",
		"from_email": "deals@arkmail.io",
		"from_name":  "Ark Deals",
		"html_body":  "<p>Hi</p>",
	})
	req := httptest.NewRequest("POST", "/api/campaigns", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	require.NotNil(t, c.created)
	assert.Equal(t, "August Promo", c.created.Name)
	assert.Equal(t, "deals@arkmail.io", c.created.FromEmail)
}

func TestCreateCampaignRejectsBadFromEmail(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	buf, _ := json.Marshal(map[string]string{
		"name":       "Bad",
		"subject":    "x",
		"from_email": "not-an-email",
	})
	req := httptest.NewRequest("POST", "/api/campaigns", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetCampaignNotFound(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	req := httptest.NewRequest("GET", "/api/campaigns/"+testCampaignID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUpdateCampaignReturnsFreshRow(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{
		testCampaignID: {ID: testCampaignID, Name: "Old", Subject: "old", FromEmail: "a@b.co", Status: domain.CampaignDraft},
	}}
	router := setupTestRouter(nil, c, nil, nil)

	buf, _ := json.Marshal(map[string]string{"name": "New Name"})
	req := httptest.NewRequest("PUT", "/api/campaigns/"+testCampaignID, bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, c.updated)
	require.NotNil(t, c.updated.Name)
	assert.Equal(t, "New Name", *c.updated.Name)
	assert.Nil(t, c.updated.Subject)
}

func TestDeleteCampaign(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{
		testCampaignID: {ID: testCampaignID, Status: domain.CampaignDraft},
	}}
	router := setupTestRouter(nil, c, nil, nil)

	req := httptest.NewRequest("DELETE", "/api/campaigns/"+testCampaignID, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{testCampaignID}, c.deleted)
}

func TestCampaignStats(t *testing.T) {
	c := &fakeCampaigns{byID: map[string]*domain.Campaign{}, stats: &campaign.Stats{
		CampaignID: testCampaignID,
		EmailsSent: 1000,
		Opens:      420,
		OpenRate:   42.0,
	}}
	router := setupTestRouter(nil, c, nil, nil)

	req := httptest.NewRequest("GET", "/api/campaigns/"+testCampaignID+"/stats", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body campaign.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, int64(1000), body.EmailsSent)
	assert.Equal(t, 42.0, body.OpenRate)
}

func TestSuppressDefaultsReasonAndSource(t *testing.T) {
	s := &fakeSuppressions{}
	router := setupTestRouter(nil, nil, nil, s)

	buf, _ := json.Marshal(map[string]string{"email": "gone@example.com"})
	req := httptest.NewRequest("POST", "/api/suppressions", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, []string{"gone@example.com"}, s.suppressed)
	assert.Equal(t, domain.ReasonManual, s.lastReason)
	assert.Equal(t, domain.SourceAPI, s.lastSource)
}

func TestSuppressRejectsUnknownReason(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	buf, _ := json.Marshal(map[string]string{"email": "gone@example.com", "reason": "felt-like-it"})
	req := httptest.NewRequest("POST", "/api/suppressions", bytes.NewReader(buf))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoveSuppression(t *testing.T) {
	s := &fakeSuppressions{entries: []domain.Suppression{{Email: "back@example.com"}}}
	router := setupTestRouter(nil, nil, nil, s)

	req := httptest.NewRequest("DELETE", "/api/suppressions/back@example.com", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, []string{"back@example.com"}, s.removed)
}

func TestRemoveSuppressionNotFound(t *testing.T) {
	router := setupTestRouter(nil, nil, nil, nil)

	req := httptest.NewRequest("DELETE", "/api/suppressions/never@example.com", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListSuppressionsPassesFilters(t *testing.T) {
	s := &fakeSuppressions{
		entries: []domain.Suppression{{Email: "a@example.com", Reason: domain.ReasonBounced}},
		total:   1,
	}
	router := setupTestRouter(nil, nil, nil, s)

	req := httptest.NewRequest("GET", "/api/suppressions?reason=bounced&limit=10", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Suppressions []domain.Suppression `json:"suppressions"`
		Total        int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Suppressions, 1)
	assert.Equal(t, "a@example.com", body.Suppressions[0].Email)
}
