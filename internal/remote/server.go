package remote

import (
	"context"
	"log/slog"

	"github.com/ChuLiYu/slidetiles/internal/codec"
	"github.com/ChuLiYu/slidetiles/internal/worker"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server decodes blocks for remote executors on a local worker pool. It
// never caches results; caching stays with the caller's decoder.
type Server struct {
	pool     *worker.Pool
	registry *codec.Registry
	log      *slog.Logger
}

// NewServer returns a server running jobs on pool. registry only feeds the
// codec list reported by Status; nil means the default registry.
func NewServer(pool *worker.Pool, registry *codec.Registry) *Server {
	if registry == nil {
		registry = codec.Default()
	}
	return &Server{
		pool:     pool,
		registry: registry,
		log:      slog.With("component", "decode-server"),
	}
}

// NewGRPCServer returns a gRPC server with srv registered.
func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(wireCodec{}))
	s := grpc.NewServer(opts...)
	RegisterDecodeServer(s, srv)
	return s
}

func (s *Server) Decode(ctx context.Context, req *DecodeRequest) (*DecodeResponse, error) {
	if len(req.Input) == 0 {
		return nil, status.Error(codes.InvalidArgument, "empty decode input")
	}
	job := types.DecodeJob{
		ID:            types.JobID(req.JobID),
		Input:         req.Input,
		MaxOutputSize: int(req.MaxOutputSize),
		Codec:         types.CodecID(req.Codec),
	}
	res, err := s.pool.Submit(job).Wait(ctx)
	if err != nil {
		s.log.Debug("remote decode failed", "job", req.JobID, "codec", req.Codec, "err", err)
		return nil, toStatus(err)
	}
	return &DecodeResponse{Output: res.Output}, nil
}

func (s *Server) Status(context.Context, *StatusRequest) (*StatusResponse, error) {
	ids := s.registry.IDs()
	codecs := make([]string, len(ids))
	for i, id := range ids {
		codecs[i] = string(id)
	}
	return &StatusResponse{
		Workers: int64(s.pool.WorkerCount()),
		Queued:  int64(s.pool.QueueLen()),
		Codecs:  codecs,
	}, nil
}
