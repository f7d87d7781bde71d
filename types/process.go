package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hexpgame/hexcron/internal/state"
)

type ProcessType string

const (
	ProcessScan     ProcessType = "scan"
	ProcessCrack    ProcessType = "crack"
	ProcessDownload ProcessType = "download"
	ProcessUpload   ProcessType = "upload"
	ProcessInstall  ProcessType = "install"
	ProcessDDoS     ProcessType = "ddos"
	ProcessMine     ProcessType = "mine"
	ProcessCollect  ProcessType = "collect"
	ProcessTransfer ProcessType = "transfer"
	ProcessLogForge ProcessType = "log_forge"
	ProcessResearch ProcessType = "research"
)

var AllProcessTypes = []ProcessType{
	ProcessScan, ProcessCrack, ProcessDownload, ProcessUpload, ProcessInstall, ProcessDDoS,
	ProcessMine, ProcessCollect, ProcessTransfer, ProcessLogForge, ProcessResearch,
}

func (t ProcessType) Valid() bool {
	for _, pt := range AllProcessTypes {
		if pt == t {
			return true
		}
	}
	return false
}

// Priority orders queued processes for admission. Higher values go first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	}
	return "unknown"
}

// Resources is an amount in the three reclaimable dimensions.
type Resources struct {
	CPU int64 `json:"cpu" yaml:"cpu"`
	RAM int64 `json:"ram" yaml:"ram"`
	NET int64 `json:"net" yaml:"net"`
}

func (r Resources) IsZero() bool {
	return r.CPU == 0 && r.RAM == 0 && r.NET == 0
}

func (r Resources) IsNegative() bool {
	return r.CPU < 0 || r.RAM < 0 || r.NET < 0
}

func (r Resources) Add(o Resources) Resources {
	return Resources{CPU: r.CPU + o.CPU, RAM: r.RAM + o.RAM, NET: r.NET + o.NET}
}

func (r Resources) Sub(o Resources) Resources {
	return Resources{CPU: r.CPU - o.CPU, RAM: r.RAM - o.RAM, NET: r.NET - o.NET}
}

// Shortfall returns the first dimension in which r cannot cover req.
func (r Resources) Shortfall(req Resources) (dimension string, requested, available int64, short bool) {
	switch {
	case req.CPU > r.CPU:
		return "cpu", req.CPU, r.CPU, true
	case req.RAM > r.RAM:
		return "ram", req.RAM, r.RAM, true
	case req.NET > r.NET:
		return "net", req.NET, r.NET, true
	}
	return "", 0, 0, false
}

// Reservation is the token handed out by the ledger. Releasing it twice is a no-op.
type Reservation struct {
	ID        uuid.UUID `json:"id"`
	ServerID  int64     `json:"server_id"`
	Resources Resources `json:"resources"`
	CreatedAt time.Time `json:"created_at"`
}

// ServerCapacity is a point-in-time view of one server's budget.
type ServerCapacity struct {
	ServerID         int64     `json:"server_id"`
	Total            Resources `json:"total"`
	Available        Resources `json:"available"`
	StorageTotal     int64     `json:"storage_total"`
	StorageAvailable int64     `json:"storage_available"`
	TakenAt          time.Time `json:"taken_at"`
}

// Reserved is what non-terminal processes currently hold on the server.
func (c ServerCapacity) Reserved() Resources {
	return c.Total.Sub(c.Available)
}

type Process struct {
	ID       uuid.UUID   `json:"id"`
	UserID   int64       `json:"user_id"`
	ServerID int64       `json:"server_id"`
	TargetID *int64      `json:"target_id,omitempty"`
	Type     ProcessType `json:"type"`
	Priority Priority    `json:"priority"`

	State    state.ProcessState `json:"state"`
	Progress float64            `json:"progress"`

	// Requested is what the process needs to run. It is reserved on admission.
	Requested Resources `json:"requested"`

	CPUUsed       int64      `json:"cpu_used"`
	RAMUsed       int64      `json:"ram_used"`
	NetUsed       int64      `json:"net_used"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`

	Duration            time.Duration `json:"duration"`
	TimeStarted         *time.Time    `json:"time_started,omitempty"`
	TimePaused          *time.Time    `json:"time_paused,omitempty"`
	TimeCompleted       *time.Time    `json:"time_completed,omitempty"`
	EstimatedCompletion *time.Time    `json:"estimated_completion,omitempty"`
	CancelRequestedAt   *time.Time    `json:"cancel_requested_at,omitempty"`

	// FailRequested is set by an external signal (counter-hack defense) while the
	// process runs. The completion sweeper turns it into a FAILED outcome.
	FailRequested *string         `json:"fail_requested,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resources returns what the process currently holds.
func (p *Process) Resources() Resources {
	return Resources{CPU: p.CPUUsed, RAM: p.RAMUsed, NET: p.NetUsed}
}

// Reservation rebuilds the ledger token held by the process, or nil when it holds none.
func (p *Process) Reservation() *Reservation {
	if p.ReservationID == nil {
		return nil
	}
	return &Reservation{
		ID:        *p.ReservationID,
		ServerID:  p.ServerID,
		Resources: p.Resources(),
	}
}

func (p *Process) Clone() *Process {
	c := *p
	if p.Payload != nil {
		c.Payload = append(json.RawMessage(nil), p.Payload...)
	}
	return &c
}
