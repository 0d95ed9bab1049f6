package socket

import (
	"fmt"
	"os"
	"time"

	"workerwatch/internal/store"
	"workerwatch/internal/watcher/types"
)

// Socket actions understood by the daemon
const (
	ActionStatus  = "status"
	ActionStats   = "stats"
	ActionDeploy  = "deploy"
	ActionHistory = "history"
	ActionStop    = "stop"
)

// Controller is the running-session surface the socket exposes.
// *core.Session implements it.
type Controller interface {
	Stats() types.Stats
	TriggerDeploy(cause string)
	RequestStop()
	Store() *store.Store
	WorkerName() string
}

// SessionHandler routes socket commands to a watch session
type SessionHandler struct {
	session Controller
}

// NewSessionHandler creates a handler backed by the given session
func NewSessionHandler(session Controller) *SessionHandler {
	return &SessionHandler{session: session}
}

// HandleCommand processes one socket command
func (h *SessionHandler) HandleCommand(cmd types.Command) types.Response {
	switch cmd.Action {
	case ActionStatus:
		return h.handleStatus()
	case ActionStats:
		return h.handleStats()
	case ActionDeploy:
		return h.handleDeploy(cmd)
	case ActionHistory:
		return h.handleHistory(cmd)
	case ActionStop:
		return h.handleStop()
	default:
		return types.Response{
			Success: false,
			Error:   fmt.Sprintf("unknown action: %s", cmd.Action),
		}
	}
}

func (h *SessionHandler) handleStatus() types.Response {
	stats := h.session.Stats()
	worker := h.session.WorkerName()

	data := map[string]interface{}{
		"worker":    worker,
		"pid":       os.Getpid(),
		"attempts":  stats.Attempts,
		"in_flight": stats.InFlight,
		"pending":   stats.Pending,
	}
	if !stats.LastDeploy.IsZero() {
		data["last_deploy"] = stats.LastDeploy.Format(time.RFC3339)
	}

	return types.Response{
		Success: true,
		Message: fmt.Sprintf("watching %s", worker),
		Data:    data,
	}
}

func (h *SessionHandler) handleStats() types.Response {
	stats := h.session.Stats()

	data := map[string]interface{}{
		"attempts":     stats.Attempts,
		"successful":   stats.Successful,
		"failed":       stats.Failed,
		"success_rate": stats.SuccessRate(),
		"average_ms":   stats.AverageDuration().Milliseconds(),
		"total_ms":     stats.TotalTime.Milliseconds(),
		"in_flight":    stats.InFlight,
		"pending":      stats.Pending,
	}
	if !stats.LastDeploy.IsZero() {
		data["last_deploy"] = stats.LastDeploy.Format(time.RFC3339)
	}

	return types.Response{
		Success: true,
		Message: "deploy statistics retrieved",
		Data:    data,
	}
}

func (h *SessionHandler) handleDeploy(cmd types.Command) types.Response {
	cause := "socket"
	if cmd.Data != nil {
		if c, ok := cmd.Data["cause"].(string); ok && c != "" {
			cause = c
		}
	}

	h.session.TriggerDeploy(cause)
	return types.Response{
		Success: true,
		Message: "deploy requested",
	}
}

func (h *SessionHandler) handleHistory(cmd types.Command) types.Response {
	limit := 10
	if cmd.Data != nil {
		if l, ok := cmd.Data["limit"].(float64); ok && l > 0 {
			limit = int(l)
		}
	}

	deployments, err := h.session.Store().RecentDeployments(limit)
	if err != nil {
		return types.Response{
			Success: false,
			Error:   fmt.Sprintf("failed to read history: %v", err),
		}
	}

	list := make([]map[string]interface{}, 0, len(deployments))
	for _, d := range deployments {
		entry := map[string]interface{}{
			"seq":         d.Seq,
			"started_at":  d.StartedAt.Format(time.RFC3339),
			"duration_ms": d.Duration.Milliseconds(),
			"ok":          d.OK,
			"cause":       d.Cause,
		}
		if d.VersionID != "" {
			entry["version_id"] = d.VersionID
		}
		if len(d.URLs) > 0 {
			entry["urls"] = d.URLs
		}
		if d.Error != "" {
			entry["error"] = d.Error
		}
		list = append(list, entry)
	}

	return types.Response{
		Success: true,
		Message: fmt.Sprintf("retrieved %d deployments", len(list)),
		Data:    map[string]interface{}{"deployments": list},
	}
}

func (h *SessionHandler) handleStop() types.Response {
	h.session.RequestStop()
	return types.Response{
		Success: true,
		Message: "watch session stopping",
	}
}
