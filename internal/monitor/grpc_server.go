package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GoSim-25-26J-441/simtune/pkg/logger"
)

// GRPCServer implements MonitorServer using a Store backend.
type GRPCServer struct {
	store *Store
	log   *slog.Logger
}

func NewGRPCServer(store *Store, log *slog.Logger) *GRPCServer {
	return &GRPCServer{store: store, log: logger.Or(log).With("component", "grpc")}
}

func (s *GRPCServer) GetProgress(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	p, err := s.store.Progress()
	if err != nil {
		return nil, storeStatus(err)
	}
	out, err := ProgressStruct(p)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

func (s *GRPCServer) StopRun(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.store.Stop(); err != nil {
		return nil, storeStatus(err)
	}
	s.log.Info("stop requested")
	return &emptypb.Empty{}, nil
}

// ProgressStruct converts p to a protobuf Struct through its JSON form
func ProgressStruct(p *Progress) (*structpb.Struct, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

func storeStatus(err error) error {
	switch {
	case errors.Is(err, ErrNoActiveRun):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrRunTerminal):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
