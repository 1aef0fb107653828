package encounterserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mitchellh/mapstructure"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/mitchelldurbincs/MekEncounter/internal/game/core"
)

// decodeRequest decodes a Struct request into out. Enum fields accept their
// text names ("Player", "Run", "Kick").
func decodeRequest(in *structpb.Struct, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:  mapstructure.TextUnmarshallerHookFunc(),
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return status.Errorf(codes.Internal, "failed to build decoder: %v", err)
	}
	if err := dec.Decode(in.AsMap()); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// encodeResponse converts v to a Struct through its JSON form
func encodeResponse(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

// statusCode maps the engine's error taxonomy onto gRPC codes
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, core.ErrSessionNotFound), errors.Is(err, core.ErrUnitNotFound):
		return codes.NotFound
	case errors.Is(err, core.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, core.ErrPhaseGuard),
		errors.Is(err, core.ErrDoubleLock),
		errors.Is(err, core.ErrTerminalState),
		errors.Is(err, core.ErrNothingToUndo):
		return codes.FailedPrecondition
	case errors.Is(err, core.ErrConflict), errors.Is(err, core.ErrSequence):
		return codes.Aborted
	case errors.Is(err, core.ErrSessionLimit):
		return codes.ResourceExhausted
	case errors.Is(err, core.ErrReplayCorruption):
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// toStatus converts an engine error to a status error. Errors that already
// carry a status pass through.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(statusCode(err), err.Error())
}
