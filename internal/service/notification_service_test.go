package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/notify"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
)

type stubNotificationStore struct {
	mu      sync.Mutex
	seq     int
	created []*models.NotificationLog
	updates map[string][]models.NotificationStatus
	failed  []models.NotificationLog
	pending []models.NotificationLog
}

func (s *stubNotificationStore) Create(ctx context.Context, log *models.NotificationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	log.ID = string(rune('a' + s.seq - 1))
	log.CreatedAt = time.Now()
	cp := *log
	s.created = append(s.created, &cp)
	return nil
}

func (s *stubNotificationStore) UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, message string, response json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updates == nil {
		s.updates = make(map[string][]models.NotificationStatus)
	}
	s.updates[id] = append(s.updates[id], status)
	return nil
}

func (s *stubNotificationStore) ListByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.NotificationLog, 0, len(s.created))
	for _, row := range s.created {
		out = append(out, *row)
	}
	return out, nil
}

func (s *stubNotificationStore) ListFailedByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error) {
	if len(s.failed) > limit {
		return s.failed[:limit], nil
	}
	return s.failed, nil
}

func (s *stubNotificationStore) ListPendingByLead(ctx context.Context, leadID string) ([]models.NotificationLog, error) {
	return s.pending, nil
}

func (s *stubNotificationStore) ListPendingLeadIDs(ctx context.Context, olderThan time.Duration) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, row := range s.pending {
		if !seen[row.LeadID] {
			seen[row.LeadID] = true
			out = append(out, row.LeadID)
		}
	}
	return out, nil
}

type stubDependents struct {
	items []models.Dependent
}

func (s *stubDependents) ListByLead(ctx context.Context, leadID string) ([]models.Dependent, error) {
	return s.items, nil
}

type stubActivities struct {
	mu      sync.Mutex
	entries []*models.ActivityLog
}

func (s *stubActivities) Create(ctx context.Context, entry *models.ActivityLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

type stubChannel struct {
	mu    sync.Mutex
	name  models.NotificationChannel
	err   error
	sends []models.NotificationPayload
}

func (s *stubChannel) Name() models.NotificationChannel { return s.name }

func (s *stubChannel) Send(ctx context.Context, payload models.NotificationPayload) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, payload)
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(`{"ok":true}`), nil
}

func (s *stubChannel) sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

type notificationFixture struct {
	svc        *NotificationService
	store      *stubNotificationStore
	activities *stubActivities
	email      *stubChannel
	whatsapp   *stubChannel
}

func newNotificationFixture() *notificationFixture {
	leads := &stubLeadReader{leads: map[string]*models.Lead{
		"lead-1": {
			ID: "lead-1", Name: "Maria Silva", Email: "maria@example.com",
			Phone: "+55 11 98888-7777", PlanType: models.PlanStandard,
			LeadStatus: models.StatusGreen, CurrentStep: models.StepApproval,
		},
	}}
	store := &stubNotificationStore{}
	activities := &stubActivities{}
	email := &stubChannel{name: models.ChannelEmail}
	whatsapp := &stubChannel{name: models.ChannelWhatsApp}
	svc := NewNotificationService(
		store, leads, &stubDependents{}, activities, nil,
		[]notify.Channel{email, whatsapp}, nil, time.Second, zap.NewNop(),
	)
	return &notificationFixture{svc: svc, store: store, activities: activities, email: email, whatsapp: whatsapp}
}

func TestSendEnrollmentNotificationsAllChannels(t *testing.T) {
	f := newNotificationFixture()

	result, err := f.svc.SendEnrollmentNotifications(context.Background(), "lead-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 2, result.TotalChannels)
	assert.Equal(t, 2, result.Successes)
	assert.Equal(t, 0, result.Failures)

	// one PENDING row per channel created before sending
	require.Len(t, f.store.created, 2)
	for _, row := range f.store.created {
		assert.Equal(t, models.NotificationPending, row.Status)
		assert.NotEmpty(t, row.Payload)
	}
	assert.Equal(t, 1, f.email.sent())
	assert.Equal(t, 1, f.whatsapp.sent())

	require.Len(t, f.activities.entries, 1)
	assert.Equal(t, models.ActivityNotificationSent, f.activities.entries[0].Type)
	assert.Equal(t, "Notificações enviadas: 2/2 canais", f.activities.entries[0].Description)
}

func TestSendEnrollmentNotificationsChannelFailureIsIsolated(t *testing.T) {
	f := newNotificationFixture()
	f.whatsapp.err = errors.New("graph api 401")

	result, err := f.svc.SendEnrollmentNotifications(context.Background(), "lead-1")
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Successes)
	assert.Equal(t, 1, result.Failures)

	// the healthy channel still delivered
	assert.Equal(t, 1, f.email.sent())

	statuses := map[models.NotificationStatus]int{}
	for _, r := range result.Results {
		statuses[r.Status]++
	}
	assert.Equal(t, 1, statuses[models.NotificationSent])
	assert.Equal(t, 1, statuses[models.NotificationError])
}

func TestSendEnrollmentNotificationsAllFail(t *testing.T) {
	f := newNotificationFixture()
	f.email.err = errors.New("smtp down")
	f.whatsapp.err = errors.New("graph api 500")

	result, err := f.svc.SendEnrollmentNotifications(context.Background(), "lead-1")
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Failures)
}

func TestSendEnrollmentNotificationsLeadNotFound(t *testing.T) {
	f := newNotificationFixture()

	_, err := f.svc.SendEnrollmentNotifications(context.Background(), "missing")
	require.Error(t, err)
	assert.Empty(t, f.store.created)
}

func TestResendFailedReplaysStoredPayloads(t *testing.T) {
	f := newNotificationFixture()
	payload, _ := json.Marshal(models.NotificationPayload{LeadID: "lead-1", Name: "Maria Silva"})
	f.store.failed = []models.NotificationLog{
		{ID: "n1", LeadID: "lead-1", Channel: models.ChannelEmail, Status: models.NotificationError, Payload: payload},
		{ID: "n2", LeadID: "lead-1", Channel: models.ChannelWhatsApp, Status: models.NotificationError, Payload: payload},
	}

	result, err := f.svc.ResendFailed(context.Background(), "lead-1")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalChannels)
	assert.Equal(t, 2, result.Successes)

	// each row went ERROR -> RETRYING -> SENT
	assert.Equal(t, []models.NotificationStatus{models.NotificationRetrying, models.NotificationSent}, f.store.updates["n1"])
	assert.Equal(t, []models.NotificationStatus{models.NotificationRetrying, models.NotificationSent}, f.store.updates["n2"])
}

func TestResendFailedCapsBatch(t *testing.T) {
	f := newNotificationFixture()
	payload, _ := json.Marshal(models.NotificationPayload{LeadID: "lead-1"})
	for i := 0; i < 15; i++ {
		f.store.failed = append(f.store.failed, models.NotificationLog{
			ID: string(rune('A' + i)), LeadID: "lead-1",
			Channel: models.ChannelEmail, Status: models.NotificationError, Payload: payload,
		})
	}

	result, err := f.svc.ResendFailed(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.Equal(t, maxResendBatch, result.TotalChannels)
}

func TestResendFailedNothingToRetry(t *testing.T) {
	f := newNotificationFixture()

	result, err := f.svc.ResendFailed(context.Background(), "lead-1")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Results)
}

func TestHandleApprovalJobFreshFanOut(t *testing.T) {
	f := newNotificationFixture()

	err := f.svc.HandleApprovalJob(context.Background(), jobs.Job{ID: "j1", Type: JobTypeApproval, Payload: "lead-1"})
	require.NoError(t, err)
	assert.Len(t, f.store.created, 2)
}

func TestHandleApprovalJobReplaysPendingRows(t *testing.T) {
	f := newNotificationFixture()
	payload, _ := json.Marshal(models.NotificationPayload{LeadID: "lead-1", Name: "Maria Silva"})
	f.store.pending = []models.NotificationLog{
		{ID: "p1", LeadID: "lead-1", Channel: models.ChannelEmail, Status: models.NotificationPending, Payload: payload},
	}

	err := f.svc.HandleApprovalJob(context.Background(), jobs.Job{ID: "j1", Type: JobTypeApproval, Payload: "lead-1"})
	require.NoError(t, err)

	// replays the outstanding row instead of creating fresh ones
	assert.Empty(t, f.store.created)
	assert.Equal(t, []models.NotificationStatus{models.NotificationSent}, f.store.updates["p1"])
	assert.Equal(t, 1, f.email.sent())
	assert.Equal(t, 0, f.whatsapp.sent())
}

func TestHandleApprovalJobRejectsBadPayload(t *testing.T) {
	f := newNotificationFixture()

	err := f.svc.HandleApprovalJob(context.Background(), jobs.Job{ID: "j1", Type: JobTypeApproval, Payload: 42})
	require.Error(t, err)
}

func TestRecoverPendingEnqueuesLeads(t *testing.T) {
	f := newNotificationFixture()
	f.store.pending = []models.NotificationLog{
		{ID: "p1", LeadID: "lead-1", Channel: models.ChannelEmail, Status: models.NotificationPending},
		{ID: "p2", LeadID: "lead-1", Channel: models.ChannelWhatsApp, Status: models.NotificationPending},
	}
	queue := &stubQueue{}

	err := f.svc.RecoverPending(context.Background(), time.Minute, queue)
	require.NoError(t, err)

	require.Len(t, queue.jobs, 1)
	assert.Equal(t, JobTypeApproval, queue.jobs[0].Type)
	assert.Equal(t, "lead-1", queue.jobs[0].Payload)
}

func TestTestChannelUnknown(t *testing.T) {
	f := newNotificationFixture()

	err := f.svc.TestChannel(context.Background(), models.NotificationChannel("PIGEON"))
	require.Error(t, err)
}

func TestTestChannelSendsSyntheticPayload(t *testing.T) {
	f := newNotificationFixture()

	err := f.svc.TestChannel(context.Background(), models.ChannelEmail)
	require.NoError(t, err)
	require.Equal(t, 1, f.email.sent())
	assert.Equal(t, "test", f.email.sends[0].LeadID)
}
