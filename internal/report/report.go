// Package report delivers run reports for tree syncs. It subscribes to
// the treesync lifecycle topics and forwards a rendered summary to an
// email relay service, a generic JSON webhook, or both.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/HerbHall/treeline/internal/treesync"
	"github.com/HerbHall/treeline/pkg/plugin"
	"go.uber.org/zap"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin          = (*Module)(nil)
	_ plugin.EventSubscriber = (*Module)(nil)
)

// RunHistory is the slice of the treesync plugin the report composer
// reads device change rows from.
type RunHistory interface {
	RunDevices(ctx context.Context, runID string) ([]treesync.RunDevice, error)
}

// EmailConfig points at the email relay service that turns report
// submissions into outbound mail.
type EmailConfig struct {
	URL string `mapstructure:"url"`
	Key string `mapstructure:"key"`
	To  string `mapstructure:"to"`
	CC  string `mapstructure:"cc"`
	BCC string `mapstructure:"bcc"`
}

// WebhookConfig points at a JSON webhook endpoint.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
}

// Config holds the report plugin configuration. Both targets are
// optional; with neither set the plugin drops every report.
type Config struct {
	Email   EmailConfig   `mapstructure:"email"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	Timeout time.Duration `mapstructure:"timeout"`
	Enabled bool          `mapstructure:"enabled"`
}

// DefaultConfig returns the report defaults.
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
		Enabled: true,
	}
}

// Module implements the report notifier plugin.
type Module struct {
	logger  *zap.Logger
	cfg     Config
	client  *http.Client
	email   *EmailClient
	plugins plugin.PluginResolver
	runs    RunHistory
}

// New creates a new report plugin instance.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "report",
		Version:      "1.0.0",
		Description:  "Delivers tree sync run reports by email relay or webhook",
		Dependencies: []string{"treesync"},
		Roles:        []string{"notification"},
		APIVersion:   plugin.APIVersionCurrent,
	}
}

func (m *Module) Init(_ context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	m.plugins = deps.Plugins

	m.cfg = DefaultConfig()
	if deps.Config != nil {
		if err := deps.Config.Unmarshal(&m.cfg); err != nil {
			return fmt.Errorf("parse report config: %w", err)
		}
	}

	m.client = &http.Client{Timeout: m.cfg.Timeout}

	if m.cfg.Email.URL != "" {
		m.email = NewEmailClient(m.cfg.Email.URL, m.cfg.Email.Key, m.client)
		if m.cfg.Email.To == "" {
			m.logger.Warn("email relay configured without a recipient; the relay will reject reports")
		}
	}
	if m.email == nil && m.cfg.Webhook.URL == "" {
		m.logger.Warn("no report targets configured; run reports will be dropped")
	}

	m.logger.Info("report module initialized",
		zap.Bool("email", m.email != nil),
		zap.Bool("webhook", m.cfg.Webhook.URL != ""),
		zap.Duration("timeout", m.cfg.Timeout),
		zap.Bool("enabled", m.cfg.Enabled),
	)
	return nil
}

func (m *Module) Start(_ context.Context) error {
	if m.plugins != nil {
		if p, ok := m.plugins.Resolve("treesync"); ok {
			if h, ok := p.(RunHistory); ok {
				m.runs = h
			}
		}
	}
	if m.runs == nil {
		m.logger.Debug("run history unavailable; reports omit per-device detail")
	}
	return nil
}

func (m *Module) Stop(_ context.Context) error {
	return nil
}

// Subscriptions implements plugin.EventSubscriber. Completed and failed
// runs share a handler; the payload's Error field tells them apart.
func (m *Module) Subscriptions() []plugin.Subscription {
	return []plugin.Subscription{
		{Topic: treesync.TopicRunCompleted, Handler: m.handleRun},
		{Topic: treesync.TopicRunFailed, Handler: m.handleRun},
		{Topic: treesync.TopicFieldCheckFailed, Handler: m.handleFieldCheck},
	}
}

func (m *Module) handleRun(ctx context.Context, event plugin.Event) {
	if !m.cfg.Enabled {
		return
	}
	run, ok := event.Payload.(treesync.RunEvent)
	if !ok {
		m.logger.Warn("unexpected payload on run topic", zap.String("topic", event.Topic))
		return
	}

	var devices []treesync.RunDevice
	if m.runs != nil && run.RunID != "" {
		var err error
		devices, err = m.runs.RunDevices(ctx, run.RunID)
		if err != nil {
			m.logger.Warn("load run devices for report",
				zap.String("run_id", run.RunID),
				zap.Error(err),
			)
		}
	}

	m.deliver(ctx, event, "tree-sync", runSubject(run), runBody(run, devices))
}

func (m *Module) handleFieldCheck(ctx context.Context, event plugin.Event) {
	if !m.cfg.Enabled {
		return
	}
	check, ok := event.Payload.(treesync.FieldCheckEvent)
	if !ok {
		m.logger.Warn("unexpected payload on field check topic", zap.String("topic", event.Topic))
		return
	}
	m.deliver(ctx, event, "field-check", fieldCheckSubject(check), fieldCheckBody(check))
}

// deliver fans one report out to every configured target. Delivery
// failures are logged, never propagated: a down relay must not affect
// the sync pipeline.
func (m *Module) deliver(ctx context.Context, event plugin.Event, name, subject, body string) {
	if m.email != nil {
		err := m.email.Send(ctx, EmailRequest{
			Subject:    subject,
			To:         m.cfg.Email.To,
			CC:         m.cfg.Email.CC,
			BCC:        m.cfg.Email.BCC,
			Body:       body,
			ReportName: name,
		})
		if err != nil {
			m.logger.Warn("email report delivery failed",
				zap.String("subject", subject),
				zap.Error(err),
			)
		} else {
			m.logger.Debug("email report delivered", zap.String("subject", subject))
		}
	}
	if m.cfg.Webhook.URL != "" {
		m.sendWebhook(ctx, event)
	}
}

// WebhookPayload is the JSON body sent to the webhook URL.
type WebhookPayload struct {
	Event     string `json:"event"`
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func (m *Module) sendWebhook(ctx context.Context, event plugin.Event) {
	payload := WebhookPayload{
		Event:     event.Topic,
		Source:    event.Source,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Payload,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error("failed to marshal webhook payload",
			zap.String("topic", event.Topic),
			zap.Error(err),
		)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Webhook.URL, bytes.NewReader(body))
	if err != nil {
		m.logger.Error("failed to create webhook request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Treeline-Report/1.0")

	resp, err := m.client.Do(req)
	if err != nil {
		m.logger.Warn("webhook delivery failed",
			zap.String("url", m.cfg.Webhook.URL),
			zap.String("topic", event.Topic),
			zap.Error(err),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		m.logger.Warn("webhook endpoint returned error",
			zap.String("url", m.cfg.Webhook.URL),
			zap.String("topic", event.Topic),
			zap.Int("status_code", resp.StatusCode),
		)
		return
	}

	m.logger.Debug("webhook delivered",
		zap.String("topic", event.Topic),
		zap.Int("status_code", resp.StatusCode),
	)
}
