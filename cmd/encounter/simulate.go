package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/manager"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/storage/sqlite"
)

type simulateOptions struct {
	rosterPath string
	seed       *int64
	dbPath     string
	maxTurns   int
}

// simulation is the summary printed once a simulated game ends
type simulation struct {
	GameID      string       `json:"game_id"`
	Turns       int          `json:"turns"`
	Events      int          `json:"events"`
	Rejected    int          `json:"rejected"`
	Result      rules.Result `json:"result"`
	Fingerprint string       `json:"fingerprint"`
}

func newSimulateCmd(logger func(*cobra.Command) zerolog.Logger) *cobra.Command {
	var (
		opts simulateOptions
		seed int64
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Play an encounter AI vs AI to completion",
		Long:  `Loads a roster, lets the AI play both sides until the game ends and prints the result. With --db every event is journaled to SQLite.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("seed") {
				opts.seed = &seed
			}
			sim, err := runSimulate(cmd.Context(), logger(cmd), opts)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sim)
		},
	}
	cmd.Flags().StringVar(&opts.rosterPath, "roster", "", "Roster YAML file")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Override the roster seed")
	cmd.Flags().StringVar(&opts.dbPath, "db", "", "SQLite journal path")
	cmd.Flags().IntVar(&opts.maxTurns, "max-turns", 200, "Abort when the game runs past this turn, 0 for no cap")
	_ = cmd.MarkFlagRequired("roster")
	return cmd
}

func runSimulate(ctx context.Context, logger zerolog.Logger, opts simulateOptions) (simulation, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	roster, err := encounter.LoadFile(opts.rosterPath)
	if err != nil {
		return simulation{}, err
	}
	roster.Normalize()
	if opts.seed != nil {
		roster.Config.Seed = *opts.seed
	}

	mopts := []manager.Option{manager.WithMaxSessions(1)}
	if opts.dbPath != "" {
		store, err := sqlite.Open(opts.dbPath, sqlite.WithLogger(logger))
		if err != nil {
			return simulation{}, err
		}
		defer store.Close()
		mopts = append(mopts, manager.WithEventStore(store))
	}
	sessions := manager.NewSessionManager(logger, mopts...)
	defer sessions.Close()

	c, err := sessions.Create(ctx, roster.Config, roster.Units)
	if err != nil {
		return simulation{}, err
	}
	sim := simulation{GameID: c.ID()}

	for !c.IsGameOver() {
		gs := c.State()
		if opts.maxTurns > 0 && gs.Turn > opts.maxTurns {
			return sim, fmt.Errorf("game %s still running after %d turns", c.ID(), opts.maxTurns)
		}

		first := gs.FirstMover
		if !first.Valid() {
			first = core.SidePlayer
		}
		for _, side := range []core.GameSide{first, first.Opponent()} {
			report, err := sessions.RunAITurn(ctx, c.ID(), side)
			if err != nil {
				return sim, fmt.Errorf("ai turn for %s: %w", side, err)
			}
			sim.Rejected += report.Rejected
			for _, id := range report.Skipped {
				if err := commitSkipped(ctx, sessions, c.ID(), id); err != nil {
					return sim, err
				}
			}
		}
		if c.IsGameOver() {
			break
		}
		if _, err := sessions.Submit(ctx, c.ID(), manager.AnyVersion, "", (*session.Controller).AdvancePhase); err != nil {
			return sim, fmt.Errorf("advance %s phase: %w", gs.Phase, err)
		}
	}

	gs := c.State()
	sim.Turns = gs.Turn
	sim.Events = c.Version()
	sim.Result = c.GetResult()
	if sim.Fingerprint, err = c.Fingerprint(); err != nil {
		return sim, err
	}

	logger.Info().
		Str("game_id", sim.GameID).
		Int("turns", sim.Turns).
		Int("events", sim.Events).
		Str("winner", sim.Result.Winner.String()).
		Str("reason", sim.Result.Reason).
		Msg("Simulation finished")
	return sim, nil
}

// commitSkipped locks a unit the AI gave up on so the phase can be left
func commitSkipped(ctx context.Context, sessions *manager.SessionManager, gameID, unitID string) error {
	_, err := sessions.Submit(ctx, gameID, manager.AnyVersion, "", func(c *session.Controller) ([]events.GameEvent, error) {
		if c.State().Phase == core.PhaseMovement {
			return c.LockMovement(unitID)
		}
		return c.Pass(unitID)
	})
	if err != nil {
		return fmt.Errorf("commit skipped unit %s: %w", unitID, err)
	}
	return nil
}
