package types

import "time"

// Round is the current game round. Most generators only act while it is active.
type Round struct {
	ID        int64
	Active    bool
	StartedAt time.Time
	// EndsAt is nil while the round has no scheduled end.
	EndsAt *time.Time
}

// Due reports whether an active round has reached its scheduled end.
func (r Round) Due(now time.Time) bool {
	return r.Active && r.EndsAt != nil && !now.Before(*r.EndsAt)
}

// ClanAttack is one recorded hostile action between members of two clans.
type ClanAttack struct {
	ID           int64
	AttackerID   int64
	AttackerClan int64
	VictimID     int64
	VictimClan   int64
	ServerAttack bool
	AttackedAt   time.Time
}

// ClanPair is an unordered pair of clans, normalised so that Low < High.
type ClanPair struct {
	Low  int64
	High int64
}

func NewClanPair(a, b int64) ClanPair {
	if a < b {
		return ClanPair{Low: a, High: b}
	}
	return ClanPair{Low: b, High: a}
}

type War struct {
	ID        int64
	Clan1     int64
	Clan2     int64
	Score1    int64
	Score2    int64
	Bounty    int64
	StartedAt time.Time
	EndsAt    time.Time
}

// Winner returns the winning and losing clan. Ties go to the second clan.
func (w War) Winner() (winner, loser int64) {
	if w.Score1 > w.Score2 {
		return w.Clan1, w.Clan2
	}
	return w.Clan2, w.Clan1
}

// SafenetReason is why an IP landed on the SafeNet watch list.
type SafenetReason int

const (
	SafenetReasonDDoS SafenetReason = 1
)

func (r SafenetReason) String() string {
	switch r {
	case SafenetReasonDDoS:
		return "DDoS"
	default:
		return "Unknown"
	}
}

// SafenetEntry is one IP on the SafeNet watch list.
type SafenetEntry struct {
	IP     string
	Reason SafenetReason
	EndsAt time.Time
}
