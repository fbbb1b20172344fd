package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"match-alerts/internal/domain"
)

// EventPublisher pushes alert and pattern payloads onto NATS subjects so
// downstream consumers (websocket gateways, archive workers) can
// subscribe without coupling to the poll loop.
type EventPublisher struct {
	nc            *nats.Conn
	subjectPrefix string
	logger        zerolog.Logger
}

// NewEventPublisher connects to NATS and returns the publisher.
func NewEventPublisher(natsURL, subjectPrefix string, logger zerolog.Logger) (*EventPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	if subjectPrefix == "" {
		subjectPrefix = "match.alerts"
	}
	return &EventPublisher{
		nc:            nc,
		subjectPrefix: strings.TrimRight(subjectPrefix, "."),
		logger:        logger.With().Str("component", "alert_publisher").Logger(),
	}, nil
}

// Close drains the NATS connection.
func (p *EventPublisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	p.nc.Close()
}

type alertPayload struct {
	ID        string    `json:"id"`
	RuleID    int64     `json:"rule_id"`
	RuleName  string    `json:"rule_name"`
	FixtureID int64     `json:"fixture_id"`
	Match     string    `json:"match"`
	Minute    int       `json:"minute"`
	Message   string    `json:"message"`
	FiredAt   time.Time `json:"fired_at"`
}

// Notify publishes the alert on the user's subject, or the broadcast
// subject when the rule has no user.
func (p *EventPublisher) Notify(ctx context.Context, note Notification) error {
	subject := p.subjectPrefix + ".broadcast"
	if note.UserID != "" {
		subject = p.subjectPrefix + "." + note.UserID
	}

	body, err := json.Marshal(alertPayload{
		ID:        note.ID,
		RuleID:    note.RuleID,
		RuleName:  note.RuleName,
		FixtureID: note.FixtureID,
		Match:     note.Match,
		Minute:    note.Minute,
		Message:   note.Message,
		FiredAt:   note.FiredAt,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	if err := p.nc.Publish(subject, body); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}

	p.logger.Info().
		Str("notification_id", note.ID).
		Str("subject", subject).
		Msg("alert published")
	return nil
}

type patternPayload struct {
	FixtureID  int64     `json:"fixture_id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	Confidence float64   `json:"confidence"`
	Side       string    `json:"side"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	DetectedAt time.Time `json:"detected_at"`
}

// PublishPattern broadcasts a detected game pattern. Patterns are a
// separate stream from rule alerts and never go through SMS.
func (p *EventPublisher) PublishPattern(ctx context.Context, pattern domain.GamePattern) error {
	subject := p.subjectPrefix + ".patterns"

	body, err := json.Marshal(patternPayload{
		FixtureID:  pattern.FixtureID,
		Kind:       pattern.Kind.String(),
		Severity:   pattern.Severity.String(),
		Confidence: pattern.Confidence,
		Side:       pattern.Side.String(),
		StartedAt:  pattern.StartedAt,
		EndedAt:    pattern.EndedAt,
		DetectedAt: pattern.DetectedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal pattern payload: %w", err)
	}

	if err := p.nc.Publish(subject, body); err != nil {
		return fmt.Errorf("publish pattern: %w", err)
	}
	return nil
}

var _ Notifier = (*EventPublisher)(nil)
