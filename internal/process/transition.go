package process

import (
	"time"

	"github.com/hexpgame/hexcron/internal/state"
	"github.com/hexpgame/hexcron/internal/store"
	"github.com/hexpgame/hexcron/types"
)

// Apply moves p to the requested state and stamps the side effects of the edge.
// When the destination is terminal the held reservation is returned for release
// and the resource fields are zeroed, so the caller's store can write both in
// one unit of work. p is modified only when the edge is valid.
func Apply(p *types.Process, to state.ProcessState, now time.Time, reason string) (*types.Reservation, error) {
	next, err := state.Apply(p.State, to)
	if err != nil {
		return nil, err
	}

	at := now
	switch next {
	case state.Running:
		p.TimeStarted = &at
		due := now.Add(p.Duration)
		p.EstimatedCompletion = &due
		p.Progress = 0
	case state.Cancelling:
		p.CancelRequestedAt = &at
	case state.Completed:
		p.Progress = 100
	case state.Failed:
		msg := reason
		if msg == "" && p.FailRequested != nil {
			msg = *p.FailRequested
		}
		p.ErrorMessage = &msg
	}

	var release *types.Reservation
	if next.IsTerminal() {
		release = p.Reservation()
		p.TimeCompleted = &at
		p.CPUUsed, p.RAMUsed, p.NetUsed = 0, 0, 0
		p.ReservationID = nil
		if next != state.Completed && p.Progress >= 100 {
			p.Progress = MaxRunningProgress
		}
	}

	p.State = next
	p.UpdatedAt = now
	return release, nil
}

// attach records a fresh reservation on a process about to start.
// StartOn returns the admission step that moves a QUEUED process to RUNNING on r.
func StartOn(now time.Time) store.AdmitFunc {
	return func(p *types.Process, r *types.Reservation) error {
		attach(p, r)
		_, err := Apply(p, state.Running, now, "")
		return err
	}
}

func attach(p *types.Process, r *types.Reservation) {
	id := r.ID
	p.ReservationID = &id
	p.CPUUsed = r.Resources.CPU
	p.RAMUsed = r.Resources.RAM
	p.NetUsed = r.Resources.NET
}
