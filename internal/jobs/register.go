package jobs

import (
	"time"

	"github.com/hexpgame/hexcron/internal/constants"
	"github.com/hexpgame/hexcron/internal/message_broaker"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/pkg/errors"
)

// DefaultSchedules is used for every job that has no configured override.
var DefaultSchedules = map[string]string{
	CompletionSweeperName:  "@every 5s",
	CancellationReaperName: "@every 1m",
	QueueAdmitterName:      "@every 10s",
	MissionGeneratorName:   "*/15 * * * *",
	WarDetectorName:        "*/10 * * * *",
	WarFinisherName:        "@every 5m",
	SessionCleanupName:     "@every 1m",
	PremiumExpiryName:      "@hourly",
	BackupTriggerName:      "0 4 * * *",
	RoundFinisherName:      "@every 1m",
	SafenetUpdateName:      "@every 5m",
}

// Dependencies are the handles the built-in jobs need. Optional ones may be nil,
// in which case the jobs using them are not registered.
type Dependencies struct {
	Processes store.ProcessStore
	Engine    ProcessEngine
	Policy    OutcomePolicy

	Rounds   store.RoundStore
	Finisher store.RoundFinisher
	Safenet  store.SafenetStore
	Missions store.MissionStore
	Wars     store.WarStore
	Sessions store.SessionStore
	Premium  store.PremiumStore

	Broker      message_broaker.MessageBroker
	BackupQueue string

	CancelTimeout    time.Duration
	SweepPageSize    int
	SweepConcurrency int
	AdmitBatch       int
	Timeouts         map[string]time.Duration
}

func (d Dependencies) jobs() map[string]scheduler.Job {
	pageSize := orDefault(d.SweepPageSize, constants.DefaultSweepPageSize)
	out := make(map[string]scheduler.Job)

	if d.Processes != nil && d.Engine != nil {
		cancelTimeout := d.CancelTimeout
		if cancelTimeout <= 0 {
			cancelTimeout = constants.DefaultCancelTimeout
		}
		out[CompletionSweeperName] = NewCompletionSweeper(d.Processes, d.Engine, d.Policy, pageSize,
			orDefault(d.SweepConcurrency, constants.DefaultSweepConcurrency))
		out[CancellationReaperName] = NewCancellationReaper(d.Processes, d.Engine, cancelTimeout, pageSize)
		out[QueueAdmitterName] = NewQueueAdmitter(d.Processes, d.Engine, orDefault(d.AdmitBatch, constants.DefaultAdmitBatch))
	}
	if d.Rounds != nil && d.Missions != nil {
		out[MissionGeneratorName] = NewMissionGenerator(d.Rounds, d.Missions, DefaultMissionTargets)
	}
	if d.Wars != nil {
		out[WarDetectorName] = NewWarDetector(d.Wars)
		out[WarFinisherName] = NewWarFinisher(d.Wars)
	}
	if d.Finisher != nil {
		out[RoundFinisherName] = NewRoundFinisher(d.Finisher)
	}
	if d.Safenet != nil {
		out[SafenetUpdateName] = NewSafenetUpdate(d.Safenet)
	}
	if d.Sessions != nil {
		out[SessionCleanupName] = NewSessionCleanup(d.Sessions)
	}
	if d.Premium != nil {
		out[PremiumExpiryName] = NewPremiumExpiry(d.Premium)
	}
	if d.Broker != nil && d.BackupQueue != "" {
		out[BackupTriggerName] = NewBackupTrigger(d.Broker, d.BackupQueue)
	}
	return out
}

// RegisterAll registers every job whose dependencies are present. schedules
// overrides DefaultSchedules per job name; names in disabled are left out.
// It returns the names that were registered.
func RegisterAll(reg *scheduler.Registry, deps Dependencies, schedules map[string]string, disabled []string) ([]string, error) {
	skip := make(map[string]bool, len(disabled))
	for _, name := range disabled {
		skip[name] = true
	}

	for name := range schedules {
		if _, ok := DefaultSchedules[name]; !ok {
			return nil, errors.Errorf("schedule given for unknown job %q", name)
		}
	}

	available := deps.jobs()
	var registered []string
	for _, name := range orderedNames() {
		job, ok := available[name]
		if !ok || skip[name] {
			continue
		}
		expr := DefaultSchedules[name]
		if override, ok := schedules[name]; ok {
			expr = override
		}
		var opts []scheduler.RegisterOption
		if timeout, ok := deps.Timeouts[name]; ok && timeout > 0 {
			opts = append(opts, scheduler.WithTimeout(timeout))
		}
		if err := reg.Register(name, expr, job, opts...); err != nil {
			return registered, errors.Wrapf(err, "register %s", name)
		}
		registered = append(registered, name)
	}
	return registered, nil
}

func orderedNames() []string {
	return []string{
		CompletionSweeperName,
		CancellationReaperName,
		QueueAdmitterName,
		MissionGeneratorName,
		WarDetectorName,
		WarFinisherName,
		SessionCleanupName,
		PremiumExpiryName,
		BackupTriggerName,
		RoundFinisherName,
		SafenetUpdateName,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
