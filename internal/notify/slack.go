// Package notify sends operational alerts (controller unreachable, retry
// queue dead-letters, integration staleness) to Slack. This is a
// supplemental feature beyond the distilled spec: nothing in its Non-goals
// excludes operational alerting, and the teacher wires the same concern for
// its own incidents.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"
)

// Notifier sends operational alert messages to a single configured Slack
// channel. Grounded on pkg/slack.Notifier's shape, trimmed to the
// fire-and-forget text-alert surface this service needs (no interactive
// blocks, modals, or threads).
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. If botToken is empty the notifier is a
// no-op, logging only (teacher: Notifier.IsEnabled()).
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

// IsEnabled reports whether the notifier has a usable client and channel.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// ControllerDown alerts that a controller is unreachable after retry
// exhaustion (spec §4.G/§4.H).
func (n *Notifier) ControllerDown(ctx context.Context, controllerID string, err error) {
	n.post(ctx, fmt.Sprintf(":rotating_light: controller %q unreachable after retry exhaustion: %v", controllerID, err))
}

// RetryDeadLettered alerts that a retry-queue item reached its max attempts
// and was marked dead (spec §4.H).
func (n *Notifier) RetryDeadLettered(ctx context.Context, opType string, grantID fmt.Stringer, attempts int) {
	n.post(ctx, fmt.Sprintf(":skull: retry queue item %s for grant %s dead-lettered after %d attempts", opType, grantID, attempts))
}

// IntegrationStale alerts that a reservation integration has crossed the
// booking-refusal stale threshold (spec §4.E).
func (n *Notifier) IntegrationStale(ctx context.Context, integrationID string, staleCount int) {
	n.post(ctx, fmt.Sprintf(":warning: integration %q has missed %d consecutive polls; booking-derived grants are now refused", integrationID, staleCount))
}

func (n *Notifier) post(ctx context.Context, text string) {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping alert", "text", text)
		return
	}

	if _, _, err := n.client.PostMessageContext(ctx, n.channel, goslack.MsgOptionText(text, false)); err != nil {
		n.logger.Error("posting alert to slack", "error", err)
	}
}
