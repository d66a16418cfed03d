package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"finance-push-go/internal/models"
)

const (
	defaultDeliveryTimeout = 10 * time.Second
	defaultConcurrency     = 4
	defaultTTL             = 24 * 60 * 60
	maxErrorBody           = 512
)

// SubscriptionStore is the slice of storage the dispatcher needs.
type SubscriptionStore interface {
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]models.PushSubscription, error)
	DeleteSubscription(ctx context.Context, id int64) error
}

// HistoryRecorder appends notification history.
type HistoryRecorder interface {
	RecordHistory(ctx context.Context, entry models.HistoryEntry) error
}

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	TTL         int
	Urgency     webpush.Urgency
	Timeout     time.Duration
	Concurrency int
	Icon        string
	Badge       string
	DefaultURL  string
}

// Dispatcher fans a message out to every subscription of a user. It owns no
// goroutines between calls.
type Dispatcher struct {
	subs    SubscriptionStore
	history HistoryRecorder
	encoder *Encoder
	client  *http.Client
	cfg     DispatcherConfig
	now     func() time.Time
	log     *zap.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithDispatchClock sets the clock used to stamp history rows.
func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

func NewDispatcher(subs SubscriptionStore, history HistoryRecorder, encoder *Encoder, client *http.Client, cfg DispatcherConfig, log *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDeliveryTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Urgency == "" {
		cfg.Urgency = webpush.UrgencyNormal
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		subs:    subs,
		history: history,
		encoder: encoder,
		client:  client,
		cfg:     cfg,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type notificationPayload struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon,omitempty"`
	Badge string         `json:"badge,omitempty"`
	Data  map[string]any `json:"data"`
}

type attempt struct {
	outcome models.DeliveryOutcome
	status  int
	reason  string
}

// Send delivers msg to all of userID's subscriptions. Per-subscription
// failures land in the report; the returned error is only for failures to
// load subscriptions or to record history. Once subscriptions are loaded the
// fan-out runs to completion even if ctx is cancelled, bounded by the
// per-request timeout, so history never records a send that was cut short.
func (d *Dispatcher) Send(ctx context.Context, userID string, msg models.Message) (*models.DeliveryReport, error) {
	report := &models.DeliveryReport{Failures: []models.DeliveryFailure{}}

	subs, err := d.subs.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return report, fmt.Errorf("list subscriptions for %s: %w", userID, err)
	}
	if len(subs) == 0 {
		d.log.Debug("no push subscriptions", zap.String("user_id", userID))
		return report, nil
	}

	payload, err := d.buildPayload(msg)
	if err != nil {
		return report, err
	}

	unitCtx := context.WithoutCancel(ctx)
	results := make([]attempt, len(subs))
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for i, sub := range subs {
		g.Go(func() error {
			results[i] = d.deliver(unitCtx, sub, payload)
			return nil
		})
	}
	_ = g.Wait()

	report.Total = len(subs)
	for i, res := range results {
		sub := subs[i]
		log := d.log.With(
			zap.String("user_id", userID),
			zap.Int64("subscription_id", sub.ID),
			zap.String("endpoint_origin", EndpointOrigin(sub.Endpoint)),
			zap.String("outcome", string(res.outcome)),
		)
		deliveriesTotal.WithLabelValues(string(res.outcome)).Inc()

		switch res.outcome {
		case models.OutcomeDelivered:
			report.Sent++
			log.Debug("push delivered", zap.Int("status", res.status))
			continue
		case models.OutcomeGone:
			if err := d.subs.DeleteSubscription(unitCtx, sub.ID); err != nil {
				log.Error("failed to prune gone subscription", zap.Error(err))
			} else {
				report.Pruned++
				subscriptionsPruned.Inc()
				log.Info("pruned gone subscription", zap.Int("status", res.status))
			}
		default:
			log.Warn("push delivery failed", zap.Int("status", res.status), zap.String("reason", res.reason))
		}

		report.Failures = append(report.Failures, models.DeliveryFailure{
			SubscriptionID: sub.ID,
			Outcome:        res.outcome,
			StatusCode:     res.status,
			Reason:         res.reason,
		})
	}

	entry := models.HistoryEntry{
		UserID:   userID,
		Category: msg.Category(),
		SentAt:   d.now().UTC(),
		Title:    msg.Title,
		Body:     msg.Body,
	}
	if err := d.history.RecordHistory(unitCtx, entry); err != nil {
		return report, fmt.Errorf("record history for %s/%s: %w", userID, entry.Category, err)
	}

	d.log.Info("push fan-out complete",
		zap.String("user_id", userID),
		zap.String("category", string(entry.Category)),
		zap.Int("sent", report.Sent),
		zap.Int("total", report.Total),
		zap.Int("pruned", report.Pruned),
	)
	return report, nil
}

func (d *Dispatcher) buildPayload(msg models.Message) ([]byte, error) {
	url := msg.URL
	if url == "" {
		url = d.cfg.DefaultURL
	}
	data, err := models.EncodeData(msg.Data, url)
	if err != nil {
		return nil, err
	}
	return json.Marshal(notificationPayload{
		Title: msg.Title,
		Body:  msg.Body,
		Icon:  d.cfg.Icon,
		Badge: d.cfg.Badge,
		Data:  data,
	})
}

func (d *Dispatcher) deliver(ctx context.Context, sub models.PushSubscription, payload []byte) attempt {
	req, err := d.encoder.Build(sub, payload, d.cfg.TTL, d.cfg.Urgency)
	if err != nil {
		return attempt{outcome: models.OutcomeEncodingFailure, reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return attempt{outcome: models.OutcomeTransientFailure, reason: err.Error()}
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	deliveryDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = fmt.Sprintf("timed out after %s", d.cfg.Timeout)
		}
		return attempt{outcome: models.OutcomeTransientFailure, reason: reason}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return classify(resp.StatusCode, body)
}

// classify maps a push service response to an outcome. 404 and 410 mean the
// subscription will never work again.
func classify(status int, body []byte) attempt {
	switch {
	case status >= 200 && status < 300:
		return attempt{outcome: models.OutcomeDelivered, status: status}
	case status == http.StatusNotFound || status == http.StatusGone:
		return attempt{outcome: models.OutcomeGone, status: status, reason: http.StatusText(status)}
	}
	reason := strings.TrimSpace(string(body))
	if reason == "" {
		reason = http.StatusText(status)
	}
	return attempt{outcome: models.OutcomeTransientFailure, status: status, reason: reason}
}
