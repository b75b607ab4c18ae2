package mgmt

import (
	"github.com/Evoker-Industries/Janus/pkg/config"
	"github.com/Evoker-Industries/Janus/pkg/stats"
	"github.com/Evoker-Industries/Janus/pkg/upstream"
)

// Inbound command tags. Every inbound message carries a "type" field with
// one of these values.
const (
	CmdReloadConfig         = "ReloadConfig"
	CmdGetStatus            = "GetStatus"
	CmdGetConfig            = "GetConfig"
	CmdGetStats             = "GetStats"
	CmdListUpstreams        = "ListUpstreams"
	CmdSetUpstreamHealth    = "SetUpstreamHealth"
	CmdDeleteUpstreamTarget = "DeleteUpstreamTarget"
	CmdDisconnect           = "Disconnect"
)

// Reply tags.
const (
	ReplyReloaded  = "Reloaded"
	ReplyStatus    = "Status"
	ReplyConfig    = "Config"
	ReplyStats     = "Stats"
	ReplyUpstreams = "Upstreams"
	ReplyAck       = "Ack"
	ReplyError     = "Error"
)

// Broadcast notification tags.
const (
	NotifyConfigReloaded        = "ConfigReloaded"
	NotifyUpstreamHealthChanged = "UpstreamHealthChanged"
	NotifyTargetDeleted         = "TargetDeleted"
)

// Command is one inbound management message. Fields beyond Type are
// command-specific; unused fields are ignored.
type Command struct {
	// Type is the command tag.
	Type string `json:"type"`

	// ID is an optional client correlation ID echoed back in the reply.
	ID string `json:"id,omitempty"`

	// Upstream names the upstream for SetUpstreamHealth and
	// DeleteUpstreamTarget.
	Upstream string `json:"upstream,omitempty"`

	// Address names the target for SetUpstreamHealth and
	// DeleteUpstreamTarget.
	Address string `json:"address,omitempty"`

	// State is the health override for SetUpstreamHealth: "healthy",
	// "unhealthy", or "unknown".
	State string `json:"state,omitempty"`
}

// Reply is the direct response to one command. Exactly one Reply is sent
// per received command, tagged by type and correlated via ID.
type Reply struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`

	// Generation is the active configuration generation, present on
	// Reloaded and Status replies.
	Generation uint64 `json:"generation,omitempty"`

	Status    *StatusPayload            `json:"status,omitempty"`
	Config    *config.Config            `json:"config,omitempty"`
	Stats     *stats.Snapshot           `json:"stats,omitempty"`
	Upstreams []upstream.UpstreamStatus `json:"upstreams,omitempty"`

	// Error carries the failure description on Error replies.
	Error string `json:"error,omitempty"`
}

// StatusPayload is the GetStatus reply body.
type StatusPayload struct {
	Generation    uint64 `json:"generation"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Sessions      int    `json:"sessions"`
	Upstreams     int    `json:"upstreams"`
	TotalRequests int64  `json:"total_requests"`
}

// Notification is a broadcast sent to every other connected session after
// a state-changing command, so management clients converge without
// polling.
type Notification struct {
	Type string `json:"type"`

	// Session identifies the session that issued the mutation.
	Session string `json:"session,omitempty"`

	Generation uint64 `json:"generation,omitempty"`
	Upstream   string `json:"upstream,omitempty"`
	Address    string `json:"address,omitempty"`
	State      string `json:"state,omitempty"`
}

func errorReply(id, message string) Reply {
	return Reply{Type: ReplyError, ID: id, Error: message}
}
