package gcm

import (
	"github.com/dmitrymomot/pushkit/pkg/push"
)

// optionFields maps message options to their wire names. Keys missing here
// are not sent to the gateway.
var optionFields = map[string]string{
	"collapseKey":           "collapse_key",
	"priority":              "priority",
	"contentAvailable":      "content_available",
	"mutableContent":        "mutable_content",
	"delayWhileIdle":        "delay_while_idle",
	"timeToLive":            "time_to_live",
	"restrictedPackageName": "restricted_package_name",
	"dryRun":                "dry_run",
}

// buildPayload renders the request body. One recipient goes in "to", several
// in "registration_ids".
func buildPayload(msg push.Message, to []string, opts push.SendOptions) map[string]any {
	body := make(map[string]any, len(optionFields)+3)

	fields := push.MergeOptions(msg.Options, opts)
	for key, wire := range optionFields {
		if v, ok := fields[key]; ok && v != nil {
			body[wire] = v
		}
	}

	if len(to) == 1 {
		body["to"] = to[0]
	} else {
		body["registration_ids"] = to
	}
	if len(msg.Data) > 0 {
		body["data"] = msg.Data
	}
	if len(msg.Notification) > 0 {
		body["notification"] = msg.Notification
	}
	return body
}
