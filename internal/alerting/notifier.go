package alerting

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notification carries one fired alert to the delivery channels.
type Notification struct {
	ID        string
	RuleID    int64
	RuleName  string
	FixtureID int64
	Match     string
	Minute    int
	Message   string
	UserID    string
	Phone     string
	FiredAt   time.Time
}

// NewNotification stamps a notification with a fresh delivery id.
func NewNotification(ruleID int64, ruleName string, fixtureID int64, match string, minute int, message, userID, phone string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		RuleID:    ruleID,
		RuleName:  ruleName,
		FixtureID: fixtureID,
		Match:     match,
		Minute:    minute,
		Message:   message,
		UserID:    userID,
		Phone:     phone,
		FiredAt:   time.Now().UTC(),
	}
}

// Notifier delivers one notification. Delivery is best effort: the core
// logs failures but never retries, and a failed dispatch does not undo
// the fire decision.
type Notifier interface {
	Notify(ctx context.Context, note Notification) error
}

// SMSNotifier pushes alert texts through a Twilio-compatible messages
// endpoint.
type SMSNotifier struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
	logger     zerolog.Logger
}

// NewSMSNotifier constructs the SMS channel.
func NewSMSNotifier(accountSID, authToken, from, baseURL string, timeout time.Duration, logger zerolog.Logger) *SMSNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.twilio.com"
	}

	return &SMSNotifier{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "alert_sms").Logger(),
	}
}

// Notify sends the rendered alert text to the notification's phone number.
func (n *SMSNotifier) Notify(ctx context.Context, note Notification) error {
	if note.Phone == "" {
		return fmt.Errorf("notification %s has no phone number", note.ID)
	}

	form := url.Values{}
	form.Set("To", note.Phone)
	form.Set("From", n.from)
	form.Set("Body", renderMessage(note))

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", n.baseURL, n.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(n.accountSID, n.authToken)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider status %d", resp.StatusCode)
	}

	n.logger.Info().
		Str("notification_id", note.ID).
		Int64("rule_id", note.RuleID).
		Int64("fixture_id", note.FixtureID).
		Msg("alert sent (SMS)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString(fmt.Sprintf("[%s]\n", note.RuleName))
	builder.WriteString(fmt.Sprintf("%s (%d')\n", note.Match, note.Minute))
	builder.WriteString(note.Message)
	return builder.String()
}

// MultiNotifier fans one notification out to every configured channel.
// Each channel failure is logged; the first error is returned so the
// caller can mark the fire record, but later channels still run.
type MultiNotifier struct {
	channels []Notifier
	logger   zerolog.Logger
}

// NewMultiNotifier constructs a fan-out over the given channels.
func NewMultiNotifier(logger zerolog.Logger, channels ...Notifier) *MultiNotifier {
	return &MultiNotifier{
		channels: channels,
		logger:   logger.With().Str("component", "alert_multi").Logger(),
	}
}

// Notify delivers to every channel, collecting the first failure.
func (n *MultiNotifier) Notify(ctx context.Context, note Notification) error {
	var firstErr error
	for _, ch := range n.channels {
		if err := ch.Notify(ctx, note); err != nil {
			n.logger.Error().Err(err).
				Str("notification_id", note.ID).
				Msg("channel dispatch failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

var _ Notifier = (*SMSNotifier)(nil)
var _ Notifier = (*MultiNotifier)(nil)
