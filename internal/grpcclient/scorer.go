// Package grpcclient talks to a model-serving sidecar that scores
// preprocessed tensors over gRPC.
package grpcclient

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/example/kopeknet/internal/classifier"
	"github.com/example/kopeknet/internal/logging"
)

const (
	serviceName = "kopeknet.scoring.v1.Scorer"
	scoreMethod = "/" + serviceName + "/Score"
)

// ScorerServer is implemented by sidecars that expose the Score RPC.
type ScorerServer interface {
	Score(ctx context.Context, input []float32) ([]float32, error)
}

// ScorerServiceDesc registers a ScorerServer on a *grpc.Server.
var ScorerServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ScorerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Score", Handler: scoreHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kopeknet/scoring/v1/scorer.proto",
}

func scoreHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		input, err := decodeFloats(req.(*wrapperspb.BytesValue).GetValue())
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		scores, err := srv.(ScorerServer).Score(ctx, input)
		if err != nil {
			return nil, err
		}
		return wrapperspb.Bytes(encodeFloats(scores)), nil
	}
	if interceptor == nil {
		return handler(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: scoreMethod}
	return interceptor(ctx, in, info, handler)
}

// Dial connects to the scorer at addr and returns a loader sharing the
// connection. The caller closes the connection.
func Dial(ctx context.Context, addr string, logger *zap.Logger) (*Loader, *grpc.ClientConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(
		dialCtx,
		addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
	)
	if err != nil {
		wrapped := logging.NewOperationError("grpcclient.dial_scorer", "", err)
		logger.Error("failed to dial scorer", zap.Error(wrapped), zap.String("addr", addr))
		return nil, nil, wrapped
	}
	return NewLoader(conn, logger), conn, nil
}

// Loader hands out remote models bound to one connection.
type Loader struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

// NewLoader wraps an existing connection.
func NewLoader(conn grpc.ClientConnInterface, logger *zap.Logger) *Loader {
	return &Loader{conn: conn, logger: logger.Named("grpc_scorer")}
}

// Load implements classifier.Loader. The connection is shared, so loading
// never fails on its own; unavailability surfaces from Run.
func (l *Loader) Load(ctx context.Context) (classifier.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &remoteModel{conn: l.conn, logger: l.logger}, nil
}

type remoteModel struct {
	conn   grpc.ClientConnInterface
	logger *zap.Logger
}

func (m *remoteModel) Run(ctx context.Context, input []float32) ([]float32, error) {
	out := new(wrapperspb.BytesValue)
	if err := m.conn.Invoke(ctx, scoreMethod, wrapperspb.Bytes(encodeFloats(input)), out); err != nil {
		wrapped := logging.NewOperationError("grpcclient.score", "", err)
		m.logger.Error("scorer call failed", zap.Error(wrapped))
		return nil, wrapped
	}
	return decodeFloats(out.GetValue())
}

func (m *remoteModel) Close() error {
	return nil
}
