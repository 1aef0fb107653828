package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/manager"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/testutil"
)

func writeRoster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(t.Context())
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid roster", func(t *testing.T) {
		out, err := execute(t, "validate", "--roster", writeRoster(t, testutil.RosterYAML))
		require.NoError(t, err)
		assert.Contains(t, out, "2 units (1 Player, 1 Opponent)")
		assert.Contains(t, out, "map radius 6")
	})

	t.Run("invalid roster", func(t *testing.T) {
		_, err := execute(t, "validate", "--roster", writeRoster(t, "units: []\n"))
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := execute(t, "validate", "--roster", filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("roster flag required", func(t *testing.T) {
		_, err := execute(t, "validate")
		assert.Error(t, err)
	})
}

func TestSimulateAndReplay(t *testing.T) {
	roster := writeRoster(t, testutil.RosterYAML)
	db := filepath.Join(t.TempDir(), "journal.db")

	out, err := execute(t, "simulate", "--roster", roster, "--db", db, "--seed", "5")
	require.NoError(t, err)

	var sim simulation
	require.NoError(t, json.Unmarshal([]byte(out), &sim))
	assert.NotEmpty(t, sim.GameID)
	assert.True(t, sim.Result.Over)
	assert.LessOrEqual(t, sim.Turns, 10)
	assert.Greater(t, sim.Events, 2)

	t.Run("list", func(t *testing.T) {
		out, err := execute(t, "list", "--db", db)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(out, sim.GameID+"\t"))
	})

	t.Run("replay whole log", func(t *testing.T) {
		gs, err := runReplay(t.Context(), testutil.NopLogger(), db, sim.GameID, -1)
		require.NoError(t, err)
		fp, err := gs.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, sim.Fingerprint, fp)
		assert.True(t, gs.Ended())
	})

	t.Run("replay prefix", func(t *testing.T) {
		out, err := execute(t, "replay", "--db", db, "--game", sim.GameID, "--seq", "2")
		require.NoError(t, err)

		var gs map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &gs))
		assert.EqualValues(t, 2, gs["last_sequence"])
		assert.EqualValues(t, 1, gs["turn"])
		assert.Equal(t, "Initiative", gs["phase"])
	})

	t.Run("replay past the log", func(t *testing.T) {
		_, err := runReplay(t.Context(), testutil.NopLogger(), db, sim.GameID, sim.Events+1)
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("unknown game", func(t *testing.T) {
		_, err := execute(t, "replay", "--db", db, "--game", "missing")
		assert.ErrorIs(t, err, core.ErrSessionNotFound)
	})
}

func TestSimulateIsDeterministic(t *testing.T) {
	roster := writeRoster(t, testutil.RosterYAML)

	first, err := runSimulate(t.Context(), testutil.NopLogger(), simulateOptions{rosterPath: roster, maxTurns: 50})
	require.NoError(t, err)
	second, err := runSimulate(t.Context(), testutil.NopLogger(), simulateOptions{rosterPath: roster, maxTurns: 50})
	require.NoError(t, err)

	assert.Equal(t, first.Result, second.Result)
	assert.Equal(t, first.Events, second.Events)
	assert.Equal(t, first.Turns, second.Turns)
}

func TestCommitSkipped(t *testing.T) {
	sessions := manager.NewSessionManager(testutil.NopLogger())
	defer sessions.Close()

	r := testutil.DuelRoster()
	c, err := sessions.Create(t.Context(), r.Config, r.Units)
	require.NoError(t, err)

	// Initiative has no pending units
	assert.ErrorIs(t, commitSkipped(t.Context(), sessions, c.ID(), "alpha"), core.ErrPhaseGuard)

	require.NoError(t, advance(t, sessions, c.ID()))
	require.Equal(t, core.PhaseMovement, c.State().Phase)

	require.NoError(t, commitSkipped(t.Context(), sessions, c.ID(), "alpha"))
	alpha, ok := c.State().Unit("alpha")
	require.True(t, ok)
	assert.True(t, alpha.Locked())
	assert.Equal(t, core.MoveStationary, alpha.MovementType)

	assert.ErrorIs(t, commitSkipped(t.Context(), sessions, "missing", "alpha"), core.ErrSessionNotFound)
}

func advance(t *testing.T, sessions *manager.SessionManager, gameID string) error {
	t.Helper()
	_, err := sessions.Submit(t.Context(), gameID, manager.AnyVersion, "", (*session.Controller).AdvancePhase)
	return err
}
