package jobs

import (
	"testing"
	"time"

	"github.com/hexpgame/hexcron/internal/mocks"
	"github.com/hexpgame/hexcron/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAll(t *testing.T) {
	f := newFixture(t)
	games := &mocks.MockGameStore{}
	users := &mocks.MockUserStore{}
	deps := Dependencies{
		Processes:   f.store,
		Engine:      f.engine,
		Rounds:      games,
		Finisher:    games,
		Safenet:     &mocks.MockSafenetStore{},
		Missions:    games,
		Wars:        games,
		Sessions:    users,
		Premium:     users,
		Broker:      &mocks.MockMessageBroker{},
		BackupQueue: "hexcron.backups",
		Timeouts:    map[string]time.Duration{WarDetectorName: time.Minute},
	}

	reg := scheduler.NewRegistry()
	names, err := RegisterAll(reg, deps, map[string]string{SessionCleanupName: "30s"}, []string{PremiumExpiryName})
	require.NoError(t, err)
	assert.Len(t, names, 10)
	assert.Contains(t, names, RoundFinisherName)
	assert.Contains(t, names, SafenetUpdateName)
	assert.NotContains(t, names, PremiumExpiryName)

	byName := make(map[string]string)
	timeouts := make(map[string]string)
	for _, d := range reg.Descriptors() {
		byName[d.Name] = d.Schedule
		timeouts[d.Name] = d.Timeout
	}
	assert.Equal(t, "30s", byName[SessionCleanupName])
	assert.Equal(t, DefaultSchedules[CompletionSweeperName], byName[CompletionSweeperName])
	assert.Equal(t, "1m0s", timeouts[WarDetectorName])
}

func TestRegisterAll_MissingDependencies(t *testing.T) {
	reg := scheduler.NewRegistry()
	names, err := RegisterAll(reg, Dependencies{Sessions: &mocks.MockUserStore{}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{SessionCleanupName}, names)
}

func TestRegisterAll_RejectsUnknownOrBadSchedules(t *testing.T) {
	_, err := RegisterAll(scheduler.NewRegistry(), Dependencies{}, map[string]string{"nightly_reset": "@daily"}, nil)
	assert.Error(t, err)

	_, err = RegisterAll(scheduler.NewRegistry(), Dependencies{Sessions: &mocks.MockUserStore{}},
		map[string]string{SessionCleanupName: "whenever"}, nil)
	assert.Error(t, err)
}
