package tgui

import "strings"

// MaxDataBytes is Telegram's callback_data limit.
const MaxDataBytes = 64

// Data formats callback data as "scope:action" or "scope:action:payload".
// A payload that would overflow MaxDataBytes is cut on a rune boundary.
func Data(scope, action, payload string) string {
	head := strings.TrimSpace(scope) + ":" + strings.TrimSpace(action)
	if payload == "" {
		return head
	}
	out := head + ":" + payload
	for len(out) > MaxDataBytes {
		r := []rune(out)
		out = string(r[:len(r)-1])
	}
	return out
}

// ParseData splits callback data built by Data. ok is false when the data has
// no action part.
func ParseData(data string) (scope, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
