package remote

import (
	"context"
	"fmt"

	"github.com/ChuLiYu/slidetiles/internal/worker"
	"github.com/ChuLiYu/slidetiles/pkg/types"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Executor runs decode jobs on a remote Server. It implements worker.Executor.
type Executor struct {
	client *Client
	conn   *grpc.ClientConn // owned connection, nil when shared
}

// NewExecutor returns an executor over an existing connection. Close leaves
// cc open.
func NewExecutor(cc grpc.ClientConnInterface) *Executor {
	return &Executor{client: NewClient(cc)}
}

// Dial connects to a decode server at addr. Connections are insecure unless
// opts supply transport credentials.
func Dial(addr string, opts ...grpc.DialOption) (*Executor, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial decode server %s: %w", addr, err)
	}
	return &Executor{client: NewClient(conn), conn: conn}, nil
}

// Executors returns a factory giving every worker its own connection to addr.
func Executors(addr string, opts ...grpc.DialOption) worker.ExecutorFactory {
	return func(int) (worker.Executor, error) {
		return Dial(addr, opts...)
	}
}

func (e *Executor) Execute(ctx context.Context, job types.DecodeJob) ([]byte, error) {
	resp, err := e.client.Decode(ctx, &DecodeRequest{
		JobID:         string(job.ID),
		Codec:         string(job.Codec),
		MaxOutputSize: int64(job.MaxOutputSize),
		Input:         job.Input,
	})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp.Output, nil
}

// Status queries the remote pool.
func (e *Executor) Status(ctx context.Context) (*StatusResponse, error) {
	resp, err := e.client.Status(ctx, &StatusRequest{})
	if err != nil {
		return nil, fromStatus(err)
	}
	return resp, nil
}

func (e *Executor) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}
