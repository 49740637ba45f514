// Package notify provides notification services for orchestration events.
//
// Core types:
//   - Notifier: Interface for sending notifications
//   - Event: Notification event with type, message, and metadata
//   - EventType: Type of event (dispatch started, consensus reached, etc.)
//
// Implementations:
//   - SlackNotifier: Sends notifications to Slack webhooks
//   - WebhookNotifier: Sends notifications to generic webhooks
//   - LogNotifier: Logs notifications (for testing/debugging)
//   - MultiNotifier: Combines multiple notifiers
//   - NopNotifier: No-op notifier (for testing)
//
// Example usage:
//
//	notifier := notify.NewSlackNotifier(webhookURL,
//	    notify.WithSlackChannel("#orchestration"),
//	)
//	err := notifier.Notify(ctx, notify.Event{
//	    Type:    notify.EventOrchestrationCompleted,
//	    Message: "Task completed across 3 providers",
//	})
package notify
