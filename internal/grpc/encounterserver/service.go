package encounterserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "mekencounter.v1.EncounterService"

// Method names
const (
	MethodCreateSession       = "CreateSession"
	MethodGetState            = "GetState"
	MethodGetAvailableActions = "GetAvailableActions"
	MethodRollInitiative      = "RollInitiative"
	MethodAdvancePhase        = "AdvancePhase"
	MethodApplyMovement       = "ApplyMovement"
	MethodLockMovement        = "LockMovement"
	MethodPass                = "Pass"
	MethodWithdraw            = "Withdraw"
	MethodApplyAttack         = "ApplyAttack"
	MethodApplyPhysicalAttack = "ApplyPhysicalAttack"
	MethodRunAITurn           = "RunAITurn"
	MethodUndo                = "Undo"
	MethodReplay              = "Replay"
	MethodConcede             = "Concede"
)

// EncounterServiceServer is the server API. Requests and responses are
// google.protobuf.Struct documents; the field names of each method are
// documented on Server.
type EncounterServiceServer interface {
	CreateSession(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetState(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAvailableActions(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RollInitiative(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AdvancePhase(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyMovement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LockMovement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Pass(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Withdraw(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyAttack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ApplyPhysicalAttack(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RunAITurn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Undo(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Replay(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Concede(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(EncounterServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func method(name string, call unaryMethod) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EncounterServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(EncounterServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// EncounterService_ServiceDesc describes the service for grpc.Server
var EncounterService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*EncounterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		method(MethodCreateSession, EncounterServiceServer.CreateSession),
		method(MethodGetState, EncounterServiceServer.GetState),
		method(MethodGetAvailableActions, EncounterServiceServer.GetAvailableActions),
		method(MethodRollInitiative, EncounterServiceServer.RollInitiative),
		method(MethodAdvancePhase, EncounterServiceServer.AdvancePhase),
		method(MethodApplyMovement, EncounterServiceServer.ApplyMovement),
		method(MethodLockMovement, EncounterServiceServer.LockMovement),
		method(MethodPass, EncounterServiceServer.Pass),
		method(MethodWithdraw, EncounterServiceServer.Withdraw),
		method(MethodApplyAttack, EncounterServiceServer.ApplyAttack),
		method(MethodApplyPhysicalAttack, EncounterServiceServer.ApplyPhysicalAttack),
		method(MethodRunAITurn, EncounterServiceServer.RunAITurn),
		method(MethodUndo, EncounterServiceServer.Undo),
		method(MethodReplay, EncounterServiceServer.Replay),
		method(MethodConcede, EncounterServiceServer.Concede),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mekencounter/v1/encounter.proto",
}

// RegisterEncounterServiceServer registers srv on s
func RegisterEncounterServiceServer(s grpc.ServiceRegistrar, srv EncounterServiceServer) {
	s.RegisterService(&EncounterService_ServiceDesc, srv)
}

// Client calls the service over an existing connection
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Invoke calls one method with a Struct request
func (c *Client) Invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if in == nil {
		in = new(structpb.Struct)
	}
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Call converts req to a Struct, invokes method and returns the response as
// a plain map
func (c *Client) Call(ctx context.Context, method string, req map[string]any, opts ...grpc.CallOption) (map[string]any, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out, err := c.Invoke(ctx, method, in, opts...)
	if err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
