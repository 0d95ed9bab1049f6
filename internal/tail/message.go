package tail

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
)

// Message is one execution report from the tail socket (trace-v1)
type Message struct {
	Outcome        string      `json:"outcome"`
	ScriptName     string      `json:"scriptName,omitempty"`
	EventTimestamp int64       `json:"eventTimestamp"`
	Logs           []LogEntry  `json:"logs"`
	Exceptions     []Exception `json:"exceptions"`
	Event          *Event      `json:"event,omitempty"`
}

// LogEntry is one console.* call captured during the event
type LogEntry struct {
	Message   []interface{} `json:"message"`
	Level     string        `json:"level"`
	Timestamp int64         `json:"timestamp"`
}

// Exception is an uncaught error thrown during the event
type Exception struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Event carries the trigger: an HTTP request or a cron firing
type Event struct {
	Request       *RequestInfo  `json:"request,omitempty"`
	Response      *ResponseInfo `json:"response,omitempty"`
	Cron          string        `json:"cron,omitempty"`
	ScheduledTime int64         `json:"scheduledTime,omitempty"`
}

// RequestInfo describes the HTTP request that triggered the event
type RequestInfo struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

// ResponseInfo describes the worker's HTTP response
type ResponseInfo struct {
	Status int `json:"status"`
}

// renderPretty formats one message as a stamped summary line followed by
// indented log and exception lines
func renderPretty(msg *Message) string {
	var b strings.Builder

	stamp := time.Now().Format("15:04:05")
	if msg.EventTimestamp > 0 {
		stamp = time.UnixMilli(msg.EventTimestamp).Format("15:04:05")
	}

	outcome := msg.Outcome
	if outcome == "" {
		outcome = "unknown"
	}
	colored := color.RedString(outcome)
	if outcome == "ok" {
		colored = color.GreenString(outcome)
	}

	switch {
	case msg.Event != nil && msg.Event.Request != nil:
		status := ""
		if msg.Event.Response != nil {
			status = fmt.Sprintf(" %d", msg.Event.Response.Status)
		}
		fmt.Fprintf(&b, "[%s] %s %s%s %s\n", stamp, msg.Event.Request.Method, msg.Event.Request.URL, status, colored)
	case msg.Event != nil && msg.Event.Cron != "":
		fmt.Fprintf(&b, "[%s] cron %s %s\n", stamp, msg.Event.Cron, colored)
	default:
		fmt.Fprintf(&b, "[%s] event %s\n", stamp, colored)
	}

	for _, entry := range msg.Logs {
		fmt.Fprintf(&b, "  (%s) %s\n", entry.Level, formatLogParts(entry.Message))
	}
	for _, exc := range msg.Exceptions {
		fmt.Fprintf(&b, "  %s %s: %s\n", color.RedString("[x]"), exc.Name, exc.Message)
	}
	return b.String()
}

// formatLogParts joins console.log arguments the way a terminal console
// would: strings as-is, everything else as JSON
func formatLogParts(parts []interface{}) string {
	strs := make([]string, 0, len(parts))
	for _, part := range parts {
		switch v := part.(type) {
		case string:
			strs = append(strs, v)
		default:
			data, err := json.Marshal(v)
			if err != nil {
				strs = append(strs, fmt.Sprint(v))
				continue
			}
			strs = append(strs, string(data))
		}
	}
	return strings.Join(strs, " ")
}
