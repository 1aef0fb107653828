// Package encounterserver exposes the session manager as the gRPC service
// mekencounter.v1.EncounterService.
package encounterserver

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/ai"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/encounter"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/events"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/manager"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/rules"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/session"
	"github.com/mitchelldurbincs/MekEncounter/internal/game/state"
)

// Server implements EncounterServiceServer on top of a SessionManager.
//
// Every mutating request carries game_id and may carry expected_seq (the log
// length the caller last saw) and idempotency_key. Mutating responses carry
// game_id, seq (the new log length), events, game_over and result.
type Server struct {
	manager *manager.SessionManager
	logger  zerolog.Logger
}

// NewServer creates a server over m
func NewServer(m *manager.SessionManager, logger zerolog.Logger) *Server {
	return &Server{
		manager: m,
		logger:  logger.With().Str("component", "EncounterServer").Logger(),
	}
}

var _ EncounterServiceServer = (*Server)(nil)

// SessionRequest addresses one session. ExpectedSeq is optional; without it
// the call skips the concurrency check.
type SessionRequest struct {
	GameID         string `mapstructure:"game_id"`
	ExpectedSeq    *int   `mapstructure:"expected_seq"`
	IdempotencyKey string `mapstructure:"idempotency_key"`
}

func (r SessionRequest) expected() int {
	if r.ExpectedSeq == nil {
		return manager.AnyVersion
	}
	return *r.ExpectedSeq
}

// UnitRequest addresses one unit of a session
type UnitRequest struct {
	SessionRequest `mapstructure:",squash"`
	UnitID         string `mapstructure:"unit_id"`
}

// CreateSessionRequest carries a roster as a document or as YAML
type CreateSessionRequest struct {
	Roster     *encounter.Roster `mapstructure:"roster"`
	RosterYAML string            `mapstructure:"roster_yaml"`
}

type MovementRequest struct {
	UnitRequest  `mapstructure:",squash"`
	Target       core.Hex          `mapstructure:"target"`
	Facing       core.Facing       `mapstructure:"facing"`
	MovementType core.MovementType `mapstructure:"movement_type"`
}

type AttackRequest struct {
	SessionRequest `mapstructure:",squash"`
	AttackerID     string   `mapstructure:"attacker_id"`
	TargetID       string   `mapstructure:"target_id"`
	WeaponIDs      []string `mapstructure:"weapon_ids"`
}

type PhysicalAttackRequest struct {
	SessionRequest `mapstructure:",squash"`
	AttackerID     string            `mapstructure:"attacker_id"`
	TargetID       string            `mapstructure:"target_id"`
	Kind           core.PhysicalKind `mapstructure:"kind"`
}

type SideRequest struct {
	SessionRequest `mapstructure:",squash"`
	Side           core.GameSide `mapstructure:"side"`
}

type GameRequest struct {
	GameID string `mapstructure:"game_id"`
}

// ReplayRequest asks for the state after the first Seq events
type ReplayRequest struct {
	GameID string `mapstructure:"game_id"`
	Seq    *int   `mapstructure:"seq"`
}

// MutationResponse is returned by every call that appends to or truncates
// the log
type MutationResponse struct {
	GameID   string             `json:"game_id"`
	Seq      int                `json:"seq"`
	Events   []events.GameEvent `json:"events"`
	GameOver bool               `json:"game_over"`
	Result   rules.Result       `json:"result"`
}

// StateResponse carries a snapshot and its fingerprint
type StateResponse struct {
	GameID      string           `json:"game_id"`
	Seq         int              `json:"seq"`
	Fingerprint string           `json:"fingerprint"`
	GameOver    bool             `json:"game_over"`
	Result      rules.Result     `json:"result"`
	State       *state.GameState `json:"state"`
}

type AITurnResponse struct {
	GameID   string    `json:"game_id"`
	Seq      int       `json:"seq"`
	GameOver bool      `json:"game_over"`
	Report   ai.Report `json:"report"`
}

// controller returns the live session, restoring it from the journal when
// it is not in memory
func (s *Server) controller(ctx context.Context, gameID string) (*session.Controller, error) {
	if gameID == "" {
		return nil, status.Error(codes.InvalidArgument, "game_id is required")
	}
	c, err := s.manager.Load(ctx, gameID)
	if err != nil {
		return nil, toStatus(err)
	}
	return c, nil
}

// submit runs fn through the manager and builds the mutation response
func (s *Server) submit(ctx context.Context, req SessionRequest, action string, fn manager.SubmitFunc) (*structpb.Struct, error) {
	c, err := s.controller(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	evts, err := s.manager.Submit(ctx, req.GameID, req.expected(), req.IdempotencyKey, fn)
	if err != nil {
		s.logger.Debug().
			Str("game_id", req.GameID).
			Str("action", action).
			Str("kind", core.ErrorKind(err)).
			Err(err).
			Msg("Action rejected")
		return nil, toStatus(err)
	}
	if evts == nil {
		evts = []events.GameEvent{}
	}
	return encodeResponse(MutationResponse{
		GameID:   req.GameID,
		Seq:      c.Version(),
		Events:   evts,
		GameOver: c.IsGameOver(),
		Result:   c.GetResult(),
	})
}

// CreateSession starts a session from roster (a roster document whose config
// defaults to encounter.DefaultConfig) or roster_yaml (the same document as
// YAML). Responds with the creation events.
func (s *Server) CreateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := CreateSessionRequest{Roster: &encounter.Roster{Config: encounter.DefaultConfig()}}
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}

	roster := req.Roster
	if req.RosterYAML != "" {
		r, err := encounter.Parse([]byte(req.RosterYAML))
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		roster = r
	}
	if len(roster.Units) == 0 {
		return nil, status.Error(codes.InvalidArgument, "roster or roster_yaml with units is required")
	}
	roster.Normalize()

	c, err := s.manager.Create(ctx, roster.Config, roster.Units)
	if err != nil {
		return nil, toStatus(err)
	}

	s.logger.Info().
		Str("game_id", c.ID()).
		Int("units", len(roster.Units)).
		Msg("Session created")

	return encodeResponse(MutationResponse{
		GameID:   c.ID(),
		Seq:      c.Version(),
		Events:   c.Events(),
		GameOver: c.IsGameOver(),
		Result:   c.GetResult(),
	})
}

// GetState returns the current snapshot with its fingerprint
func (s *Server) GetState(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GameRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	gs := c.State()
	fp, err := gs.Fingerprint()
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(StateResponse{
		GameID:      req.GameID,
		Seq:         gs.LastSequence,
		Fingerprint: fp,
		GameOver:    gs.Ended(),
		Result:      c.GetResult(),
		State:       gs,
	})
}

// GetAvailableActions lists the legal moves and targets of unit_id
func (s *Server) GetAvailableActions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UnitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	avail, err := c.GetAvailableActions(req.UnitID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(avail)
}

// RollInitiative rolls initiative for the current turn
func (s *Server) RollInitiative(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, "roll_initiative", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.RollInitiative()
	})
}

// AdvancePhase leaves the current phase
func (s *Server) AdvancePhase(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, "advance_phase", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.AdvancePhase()
	})
}

// ApplyMovement moves unit_id to target with facing and movement_type
func (s *Server) ApplyMovement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req MovementRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "move", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.ApplyMovement(req.UnitID, req.Target, req.Facing, req.MovementType)
	})
}

// LockMovement commits unit_id to standing still
func (s *Server) LockMovement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UnitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "lock", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.LockMovement(req.UnitID)
	})
}

// Pass commits unit_id without acting
func (s *Server) Pass(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UnitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "pass", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.Pass(req.UnitID)
	})
}

// Withdraw removes unit_id from the encounter
func (s *Server) Withdraw(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req UnitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "withdraw", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.Withdraw(req.UnitID)
	})
}

// ApplyAttack fires weapon_ids of attacker_id at target_id
func (s *Server) ApplyAttack(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req AttackRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "attack", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.ApplyAttack(req.AttackerID, req.TargetID, req.WeaponIDs)
	})
}

// ApplyPhysicalAttack makes a punch or kick of attacker_id at target_id
func (s *Server) ApplyPhysicalAttack(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req PhysicalAttackRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "physical", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.ApplyPhysicalAttack(req.AttackerID, req.TargetID, req.Kind)
	})
}

// RunAITurn lets the AI act for side in the current phase
func (s *Server) RunAITurn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SideRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	report, err := s.manager.RunAITurn(ctx, req.GameID, req.Side)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(AITurnResponse{
		GameID:   req.GameID,
		Seq:      c.Version(),
		GameOver: c.IsGameOver(),
		Report:   report,
	})
}

// Undo removes the last transaction. events lists what was removed.
func (s *Server) Undo(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req, "undo", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.Undo()
	})
}

// Replay reduces the first seq events of the log. Without seq it replays the
// whole log.
func (s *Server) Replay(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ReplayRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	c, err := s.controller(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	n := c.Version()
	if req.Seq != nil {
		n = *req.Seq
	}
	if n < 0 || n > c.Version() {
		return nil, status.Errorf(codes.InvalidArgument, "seq %d outside the log 0..%d", n, c.Version())
	}
	gs, err := c.ReplayTo(n)
	if err != nil {
		return nil, toStatus(err)
	}
	fp, err := gs.Fingerprint()
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeResponse(StateResponse{
		GameID:      req.GameID,
		Seq:         n,
		Fingerprint: fp,
		GameOver:    gs.Ended(),
		Result:      rules.Result{Over: gs.Ended(), Winner: gs.Winner, Reason: gs.EndReason},
		State:       gs,
	})
}

// Concede ends the game in favour of the opponent of side
func (s *Server) Concede(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req SideRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	return s.submit(ctx, req.SessionRequest, "concede", func(c *session.Controller) ([]events.GameEvent, error) {
		return c.Concede(req.Side)
	})
}
