package status

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
	pb "github.com/oshokin/flatpak-updater/internal/pb/v1"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	GetStatus(ctx context.Context) *update.Status
	RequestUpdate(ctx context.Context, parentWindow string, actor string) error
}

// Server implements the StatusService gRPC API.
type Server struct {
	pb.UnimplementedStatusServiceServer

	// service provides the business logic for status operations.
	service Service
}

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// GetStatus returns the current watcher status.
func (s *Server) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	current := s.service.GetStatus(ctx)
	if current == nil {
		current = new(update.Status)
	}

	response, err := pb.StatusToStruct(current)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, "unable to encode status")
	}

	return response, nil
}

// RequestUpdate asks the watcher to install the pending update.
func (s *Server) RequestUpdate(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	if req == nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, "request is required")
	}

	parentWindow, actor := pb.ParseUpdateRequest(req)

	err := s.service.RequestUpdate(ctx, parentWindow, actor)

	switch {
	case err == nil:
		return new(emptypb.Empty), nil
	case errors.Is(err, update.ErrUpdateInProgress):
		return nil, grpcstatus.Error(codes.FailedPrecondition, err.Error())
	default:
		logger.ErrorKV(ctx, "Update request failed", "actor", actor, "error", err)

		return nil, grpcstatus.Error(codes.Internal, "unable to start update")
	}
}
