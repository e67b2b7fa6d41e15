package alert

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event AlertEvent) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event AlertEvent) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event AlertEvent) ([]byte, error) {
	fields := []any{
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Caller uid:* %d", event.CallerUID)},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Level:* %s", orDash(event.Level))},
		map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Rule:* %s", orDash(event.Rule))},
	}
	if event.Package != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Package:* %s", event.Package)})
	}
	if len(event.Failed) > 0 {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Failed:* %s", strings.Join(event.Failed, ", "))})
	}
	if event.Reason != "" {
		fields = append(fields, map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Reason:* %s", event.Reason)})
	}

	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("usageguard: %s", event.Type),
				},
			},
			map[string]any{
				"type":   "section",
				"fields": fields,
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event AlertEvent) ([]byte, error) {
	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("usageguard %s: uid %d", event.Type, event.CallerUID),
			"severity": severityFor(event.Type),
			"source":   "usageguard",
			"custom_details": map[string]any{
				"request_id": event.RequestID,
				"caller_uid": event.CallerUID,
				"package":    event.Package,
				"level":      event.Level,
				"rule":       event.Rule,
				"failed":     event.Failed,
				"reason":     event.Reason,
			},
		},
	}
	return json.Marshal(payload)
}

func severityFor(eventType string) string {
	switch eventType {
	case EventReloadFailed:
		return "error"
	case EventProviderFailure:
		return "warning"
	default:
		return "info"
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
