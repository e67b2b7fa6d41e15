package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/usageguard/api/v1"
	"github.com/ppiankov/usageguard/internal/model"
)

// DefaultTimeout bounds each RPC.
const DefaultTimeout = 5 * time.Second

// RuleUnreachable is reported when the server could not be asked.
const RuleUnreachable = "failclosed.unreachable"

// Resolution is a remote resolve result.
type Resolution struct {
	RequestID string
	Level     model.AccessLevel
	Rule      string
	Failed    []string
	// Err is set when the level was not obtained from the server.
	Err error
}

// Client connects to a usageguard gRPC server. Every method is fail
// closed: an RPC error yields DEFAULT, false, or only the caller's own uid.
type Client struct {
	conn    *grpc.ClientConn
	client  pb.UsageAccessClient
	timeout time.Duration
}

// New creates a gRPC client for the given address.
func New(addr string) (*Client, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to usageguard server: %w", err)
	}
	return &Client{
		conn:    conn,
		client:  pb.NewUsageAccessClient(conn),
		timeout: DefaultTimeout,
	}, nil
}

// Resolve asks the server for the caller's access level.
func (c *Client) Resolve(ctx context.Context, id model.CallerIdentity) Resolution {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := structpb.NewStruct(callerFields(id))
	if err != nil {
		return unreachable(err)
	}
	resp, err := c.client.Resolve(ctx, in)
	if err != nil {
		return unreachable(err)
	}

	level, err := model.ParseAccessLevel(resp.Fields["level"].GetStringValue())
	if err != nil {
		return unreachable(err)
	}
	res := Resolution{
		RequestID: resp.Fields["request_id"].GetStringValue(),
		Level:     level,
		Rule:      resp.Fields["rule"].GetStringValue(),
	}
	for _, v := range resp.Fields["failed"].GetListValue().GetValues() {
		res.Failed = append(res.Failed, v.GetStringValue())
	}
	return res
}

// IsAccessible asks the server whether callerUID at level may see
// targetUID. Returns false with the error when the server cannot answer.
func (c *Client) IsAccessible(ctx context.Context, targetUID, callerUID int, level model.AccessLevel) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	in, err := structpb.NewStruct(map[string]any{
		"target_uid": targetUID,
		"caller_uid": callerUID,
		"level":      int(level),
	})
	if err != nil {
		return false, err
	}
	resp, err := c.client.Check(ctx, in)
	if err != nil {
		return false, fmt.Errorf("usageguard check: %w", err)
	}
	return resp.Fields["allowed"].GetBoolValue(), nil
}

// Filter asks the server which targets the caller may see. When the
// server cannot answer, only the caller's own uid survives, as DEFAULT
// would allow.
func (c *Client) Filter(ctx context.Context, id model.CallerIdentity, targets []int) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	fields := callerFields(id)
	fields["target_uids"] = pb.IntList(targets)
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return selfOnly(targets, id.UID), err
	}
	resp, err := c.client.Filter(ctx, in)
	if err != nil {
		return selfOnly(targets, id.UID), fmt.Errorf("usageguard filter: %w", err)
	}
	visible, err := pb.Ints(resp, "allowed_uids")
	if err != nil {
		return selfOnly(targets, id.UID), err
	}
	return visible, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func callerFields(id model.CallerIdentity) map[string]any {
	fields := map[string]any{
		"pid": id.PID,
		"uid": id.UID,
	}
	if id.Package != "" {
		fields["package"] = id.Package
	}
	return fields
}

func unreachable(err error) Resolution {
	return Resolution{
		Level: model.LevelDefault,
		Rule:  RuleUnreachable,
		Err:   err,
	}
}

func selfOnly(targets []int, caller int) []int {
	var out []int
	for _, t := range targets {
		if t == caller {
			out = append(out, t)
		}
	}
	return out
}
