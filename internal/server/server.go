package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	pb "github.com/ppiankov/usageguard/api/v1"
	"github.com/ppiankov/usageguard/internal/alert"
	"github.com/ppiankov/usageguard/internal/guard"
	"github.com/ppiankov/usageguard/internal/metrics"
	"github.com/ppiankov/usageguard/internal/model"
)

// Config holds gRPC server configuration.
type Config struct {
	Port         int
	MetricsAddr  string
	FactsPath    string
	FactsDB      string
	AuditLogPath string
	PerUserRange int
	// AlertsPath names a YAML file with webhook alert destinations.
	AlertsPath string
	Logger     *slog.Logger
}

// Server implements the UsageAccess gRPC service.
type Server struct {
	guard   *guard.Guard
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config

	grpcServer      *grpc.Server
	metricsServer   *http.Server
	shutdownTimeout time.Duration
}

// New creates a server with loaded identity facts.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := metrics.New()

	alerts, err := alert.LoadConfigs(cfg.AlertsPath)
	if err != nil {
		return nil, err
	}

	g, err := guard.New(guard.Config{
		FactsPath:    cfg.FactsPath,
		FactsDB:      cfg.FactsDB,
		AuditLogPath: cfg.AuditLogPath,
		PerUserRange: cfg.PerUserRange,
		Logger:       logger,
		Metrics:      m,
		Alerts:       alerts,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		guard:           g,
		metrics:         m,
		logger:          logger,
		cfg:             cfg,
		grpcServer:      grpc.NewServer(),
		shutdownTimeout: 5 * time.Second,
	}
	pb.RegisterUsageAccessServer(s.grpcServer, s)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		s.metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

// Guard returns the decision layer behind the service.
func (s *Server) Guard() *guard.Guard {
	return s.guard
}

// Serve starts the gRPC server on the configured port. Blocks until stopped.
func (s *Server) Serve() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", s.cfg.Port, err)
	}
	return s.ServeOn(lis)
}

// ServeOn starts the gRPC server on the given listener.
func (s *Server) ServeOn(lis net.Listener) error {
	if s.metricsServer != nil {
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}
	return s.grpcServer.Serve(lis)
}

// GracefulStop drains in-flight RPCs and stops both listeners.
func (s *Server) GracefulStop() {
	s.grpcServer.GracefulStop()
	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown failed", "error", err)
		}
	}
}

// Close releases the audit log and facts database.
func (s *Server) Close() error {
	return s.guard.Close()
}

// ReloadFacts swaps in the current facts file. Called by the hot-reloader.
func (s *Server) ReloadFacts() error {
	return s.guard.Reload()
}

func callerFromStruct(in *structpb.Struct) (model.CallerIdentity, error) {
	var id model.CallerIdentity
	var err error
	if id.PID, err = pb.Int(in, "pid", 0); err != nil {
		return id, err
	}
	if _, ok := in.GetFields()["uid"]; !ok {
		return id, errors.New("missing uid")
	}
	if id.UID, err = pb.Int(in, "uid", 0); err != nil {
		return id, err
	}
	if id.Package, err = pb.String(in, "package"); err != nil {
		return id, err
	}
	return id, nil
}

func failedNames(d guard.Decision) []string {
	if d.Facts == nil {
		return nil
	}
	names := make([]string, len(d.Facts.Failed))
	for i, f := range d.Facts.Failed {
		names[i] = string(f)
	}
	return names
}

// Resolve implements the Resolve RPC.
func (s *Server) Resolve(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := callerFromStruct(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "resolve: %v", err)
	}
	d := s.guard.Resolve(ctx, id)
	return structpb.NewStruct(map[string]any{
		"request_id": d.RequestID,
		"level":      d.Level.String(),
		"rule":       d.Rule,
		"failed":     pb.StringList(failedNames(d)),
	})
}

// Check implements the Check RPC. An unknown level name is rejected; a
// numeric level outside the defined range is evaluated as DEFAULT.
func (s *Server) Check(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	target, err := pb.Int(in, "target_uid", 0)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "check: %v", err)
	}
	caller, err := pb.Int(in, "caller_uid", 0)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "check: %v", err)
	}
	level, err := levelFromStruct(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "check: %v", err)
	}
	return structpb.NewStruct(map[string]any{
		"allowed": s.guard.Check(target, caller, level),
	})
}

// Filter implements the Filter RPC.
func (s *Server) Filter(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := callerFromStruct(in)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "filter: %v", err)
	}
	targets, err := pb.Ints(in, "target_uids")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "filter: %v", err)
	}
	d := s.guard.Filter(ctx, id, targets)
	return structpb.NewStruct(map[string]any{
		"request_id":   d.RequestID,
		"level":        d.Level.String(),
		"rule":         d.Rule,
		"allowed_uids": pb.IntList(d.Visible),
	})
}

func levelFromStruct(in *structpb.Struct) (model.AccessLevel, error) {
	v, ok := in.GetFields()["level"]
	if !ok {
		return model.LevelDefault, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_StringValue:
		return model.ParseAccessLevel(k.StringValue)
	case *structpb.Value_NumberValue:
		n, err := pb.Int(in, "level", 0)
		return model.AccessLevel(n), err
	default:
		return model.LevelDefault, errors.New(`field "level": expected name or number`)
	}
}
