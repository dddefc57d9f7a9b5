package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/models"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/internal/notify"
	appErrors "github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/errors"
	"github.com/ldrseguros/plano-de-saude-sinvest-sub000/pkg/jobs"
)

// maxResendBatch caps how many failed attempts a single retry call replays.
const maxResendBatch = 10

type notificationStore interface {
	Create(ctx context.Context, log *models.NotificationLog) error
	UpdateStatus(ctx context.Context, id string, status models.NotificationStatus, message string, response json.RawMessage) error
	ListByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error)
	ListFailedByLead(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error)
	ListPendingByLead(ctx context.Context, leadID string) ([]models.NotificationLog, error)
	ListPendingLeadIDs(ctx context.Context, olderThan time.Duration) ([]string, error)
}

type dependentLister interface {
	ListByLead(ctx context.Context, leadID string) ([]models.Dependent, error)
}

type activityWriter interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
}

type documentProvider interface {
	EnsureEnrollmentPDF(ctx context.Context, leadID string) (*models.Document, []byte, string, error)
}

// ChannelResult reports the outcome of one channel in a fan-out.
type ChannelResult struct {
	Channel models.NotificationChannel `json:"channel"`
	LogID   string                     `json:"log_id"`
	Status  models.NotificationStatus  `json:"status"`
	Message string                     `json:"message,omitempty"`
}

// FanOutResult aggregates an all-settled fan-out. Success means at least one
// channel delivered.
type FanOutResult struct {
	Success       bool            `json:"success"`
	TotalChannels int             `json:"total_channels"`
	Successes     int             `json:"successes"`
	Failures      int             `json:"failures"`
	Results       []ChannelResult `json:"results"`
}

func summarize(results []ChannelResult) *FanOutResult {
	out := &FanOutResult{TotalChannels: len(results), Results: results}
	for _, r := range results {
		if r.Status == models.NotificationSent {
			out.Successes++
		} else {
			out.Failures++
		}
	}
	out.Success = out.Successes >= 1
	return out
}

// NotificationService fans approval notifications out to every configured
// channel. Channels are independent: one failing never short-circuits the
// others, and every attempt leaves a notification_logs row behind.
type NotificationService struct {
	logs        notificationStore
	leads       leadReader
	dependents  dependentLister
	activities  activityWriter
	documents   documentProvider
	channels    []notify.Channel
	metrics     *MetricsService
	sendTimeout time.Duration
	logger      *zap.Logger
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(logs notificationStore, leads leadReader, dependents dependentLister, activities activityWriter, documents documentProvider, channels []notify.Channel, metrics *MetricsService, sendTimeout time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &NotificationService{
		logs:        logs,
		leads:       leads,
		dependents:  dependents,
		activities:  activities,
		documents:   documents,
		channels:    channels,
		metrics:     metrics,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// SendEnrollmentNotifications builds the approval payload once and delivers
// it through every channel concurrently. It returns all-settled results; the
// error is non-nil only when the fan-out could not start at all.
func (s *NotificationService) SendEnrollmentNotifications(ctx context.Context, leadID string) (*FanOutResult, error) {
	payload, err := s.buildPayload(ctx, leadID)
	if err != nil {
		return nil, err
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode notification payload")
	}

	// One PENDING row per channel before any send: a crash between here and
	// the status update leaves a row the recovery sweep can replay.
	rows := make([]*models.NotificationLog, 0, len(s.channels))
	for _, ch := range s.channels {
		row := &models.NotificationLog{
			LeadID:  leadID,
			Channel: ch.Name(),
			Status:  models.NotificationPending,
			Payload: rawPayload,
		}
		if err := s.logs.Create(ctx, row); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record notification attempt")
		}
		rows = append(rows, row)
	}

	results := s.deliverAll(ctx, rows, *payload)
	s.recordActivity(ctx, leadID, results)
	return summarize(results), nil
}

// ResendFailed replays up to maxResendBatch of the lead's newest ERROR
// attempts using their stored payloads.
func (s *NotificationService) ResendFailed(ctx context.Context, leadID string) (*FanOutResult, error) {
	if _, err := s.leads.FindByID(ctx, leadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	failed, err := s.logs.ListFailedByLead(ctx, leadID, maxResendBatch)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list failed notifications")
	}
	if len(failed) == 0 {
		return &FanOutResult{Results: []ChannelResult{}}, nil
	}

	rows := make([]*models.NotificationLog, 0, len(failed))
	for i := range failed {
		row := &failed[i]
		if err := s.logs.UpdateStatus(ctx, row.ID, models.NotificationRetrying, "retrying", row.Response); err != nil {
			s.logger.Warn("failed to mark notification retrying", zap.String("log_id", row.ID), zap.Error(err))
			continue
		}
		rows = append(rows, row)
	}

	results := s.replay(ctx, rows)
	s.recordActivity(ctx, leadID, results)
	return summarize(results), nil
}

// History returns the lead's newest notification attempts.
func (s *NotificationService) History(ctx context.Context, leadID string, limit int) ([]models.NotificationLog, error) {
	if _, err := s.leads.FindByID(ctx, leadID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}
	logs, err := s.logs.ListByLead(ctx, leadID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return logs, nil
}

// HandleApprovalJob is the queue handler for approval fan-outs. Jobs enqueued
// on step completion carry the lead ID as payload; jobs replayed by the
// recovery sweep deliver the lead's outstanding PENDING rows instead of
// creating new ones.
func (s *NotificationService) HandleApprovalJob(ctx context.Context, job jobs.Job) error {
	leadID, ok := job.Payload.(string)
	if !ok || leadID == "" {
		return fmt.Errorf("approval job %s has no lead id", job.ID)
	}

	pending, err := s.logs.ListPendingByLead(ctx, leadID)
	if err != nil {
		return fmt.Errorf("load pending notifications for lead %s: %w", leadID, err)
	}
	if len(pending) > 0 {
		rows := make([]*models.NotificationLog, 0, len(pending))
		for i := range pending {
			rows = append(rows, &pending[i])
		}
		results := s.replay(ctx, rows)
		s.recordActivity(ctx, leadID, results)
		return nil
	}

	_, err = s.SendEnrollmentNotifications(ctx, leadID)
	return err
}

// RecoverPending re-enqueues leads whose PENDING rows predate the cutoff.
// Runs once at startup so dispatches lost to a crash are not dropped.
func (s *NotificationService) RecoverPending(ctx context.Context, olderThan time.Duration, queue jobDispatcher) error {
	leadIDs, err := s.logs.ListPendingLeadIDs(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("list pending notification leads: %w", err)
	}
	for _, leadID := range leadIDs {
		job := jobs.Job{ID: fmt.Sprintf("recover-%s", leadID), Type: JobTypeApproval, Payload: leadID}
		if err := queue.Enqueue(job); err != nil {
			s.logger.Error("failed to re-enqueue pending notification", zap.String("lead_id", leadID), zap.Error(err))
			continue
		}
		s.logger.Info("re-enqueued pending notification", zap.String("lead_id", leadID))
	}
	return nil
}

// TestChannel sends a synthetic payload through the named channel so
// operators can verify credentials without touching a real lead.
func (s *NotificationService) TestChannel(ctx context.Context, channel models.NotificationChannel) error {
	target := s.channelByName(channel)
	if target == nil {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown notification channel %q", channel))
	}
	payload := models.NotificationPayload{
		LeadID:          "test",
		Name:            "Teste de Configuração",
		Email:           "teste@brasilsaude.com.br",
		Phone:           "+55 11 99999-9999",
		PlanDescription: models.PlanDescription(models.PlanStandard, false, 0),
		MonthlyPrice:    models.MonthlyPrice(models.PlanStandard, false, 0),
		Date:            time.Now().Format("02/01/2006 15:04"),
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	if _, err := target.Send(sendCtx, payload); err != nil {
		return appErrors.Wrap(err, "NOTIFICATION_FAILED", appErrors.ErrInternal.Status, fmt.Sprintf("%s test send failed", channel))
	}
	return nil
}

func (s *NotificationService) buildPayload(ctx context.Context, leadID string) (*models.NotificationPayload, error) {
	lead, err := s.leads.FindByID(ctx, leadID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lead not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lead")
	}

	dependents, err := s.dependents.ListByLead(ctx, leadID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list dependents")
	}
	summaries := make([]models.DependentSummary, 0, len(dependents))
	for _, dep := range dependents {
		summaries = append(summaries, models.DependentSummary{Name: dep.Name, Relationship: dep.Relationship})
	}

	payload := &models.NotificationPayload{
		LeadID:          lead.ID,
		Name:            lead.Name,
		Email:           lead.Email,
		Phone:           lead.Phone,
		PlanDescription: models.PlanDescription(lead.PlanType, lead.HasDental, len(dependents)),
		MonthlyPrice:    models.MonthlyPrice(lead.PlanType, lead.HasDental, len(dependents)),
		Dependents:      summaries,
		Date:            time.Now().Format("02/01/2006 15:04"),
	}

	// The PDF is best-effort: a generation failure degrades the message to
	// text-only instead of blocking the fan-out.
	if s.documents != nil {
		doc, content, signedURL, err := s.documents.EnsureEnrollmentPDF(ctx, leadID)
		if err != nil {
			s.logger.Warn("failed to attach enrollment pdf", zap.String("lead_id", leadID), zap.Error(err))
		} else {
			payload.Attachment = content
			payload.AttachmentName = doc.DisplayName
			payload.DocumentURL = signedURL
		}
	}

	return payload, nil
}

// deliverAll runs one goroutine per row and waits for every one of them.
func (s *NotificationService) deliverAll(ctx context.Context, rows []*models.NotificationLog, payload models.NotificationPayload) []ChannelResult {
	results := make([]ChannelResult, len(rows))
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row *models.NotificationLog) {
			defer wg.Done()
			results[i] = s.deliver(ctx, row, payload)
		}(i, row)
	}
	wg.Wait()
	return results
}

// replay re-sends rows whose payloads were stored on a previous attempt.
func (s *NotificationService) replay(ctx context.Context, rows []*models.NotificationLog) []ChannelResult {
	results := make([]ChannelResult, len(rows))
	var wg sync.WaitGroup
	for i, row := range rows {
		wg.Add(1)
		go func(i int, row *models.NotificationLog) {
			defer wg.Done()
			var payload models.NotificationPayload
			if err := json.Unmarshal(row.Payload, &payload); err != nil {
				message := fmt.Sprintf("stored payload is not replayable: %v", err)
				s.finish(ctx, row, models.NotificationError, message, nil)
				results[i] = ChannelResult{Channel: row.Channel, LogID: row.ID, Status: models.NotificationError, Message: message}
				return
			}
			results[i] = s.deliver(ctx, row, payload)
		}(i, row)
	}
	wg.Wait()
	return results
}

func (s *NotificationService) deliver(ctx context.Context, row *models.NotificationLog, payload models.NotificationPayload) ChannelResult {
	channel := s.channelByName(row.Channel)
	if channel == nil {
		message := fmt.Sprintf("no channel registered for %s", row.Channel)
		s.finish(ctx, row, models.NotificationError, message, nil)
		return ChannelResult{Channel: row.Channel, LogID: row.ID, Status: models.NotificationError, Message: message}
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	response, err := channel.Send(sendCtx, payload)
	if err != nil {
		s.finish(ctx, row, models.NotificationError, err.Error(), response)
		if s.metrics != nil {
			s.metrics.RecordNotification(row.Channel, false)
		}
		s.logger.Error("notification delivery failed",
			zap.String("lead_id", row.LeadID),
			zap.String("channel", string(row.Channel)),
			zap.Error(err))
		return ChannelResult{Channel: row.Channel, LogID: row.ID, Status: models.NotificationError, Message: err.Error()}
	}

	s.finish(ctx, row, models.NotificationSent, "delivered", response)
	if s.metrics != nil {
		s.metrics.RecordNotification(row.Channel, true)
	}
	s.logger.Info("notification delivered",
		zap.String("lead_id", row.LeadID),
		zap.String("channel", string(row.Channel)))
	return ChannelResult{Channel: row.Channel, LogID: row.ID, Status: models.NotificationSent}
}

func (s *NotificationService) finish(ctx context.Context, row *models.NotificationLog, status models.NotificationStatus, message string, response json.RawMessage) {
	if err := s.logs.UpdateStatus(ctx, row.ID, status, message, response); err != nil {
		s.logger.Error("failed to update notification log",
			zap.String("log_id", row.ID),
			zap.String("status", string(status)),
			zap.Error(err))
	}
	row.Status = status
	row.Message = message
}

func (s *NotificationService) recordActivity(ctx context.Context, leadID string, results []ChannelResult) {
	if s.activities == nil || len(results) == 0 {
		return
	}
	sent := 0
	for _, r := range results {
		if r.Status == models.NotificationSent {
			sent++
		}
	}
	details, _ := json.Marshal(results)
	entry := &models.ActivityLog{
		LeadID:      leadID,
		Type:        models.ActivityNotificationSent,
		Description: fmt.Sprintf("Notificações enviadas: %d/%d canais", sent, len(results)),
		Details:     details,
	}
	if err := s.activities.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record notification activity", zap.String("lead_id", leadID), zap.Error(err))
	}
}

func (s *NotificationService) channelByName(name models.NotificationChannel) notify.Channel {
	for _, ch := range s.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}
