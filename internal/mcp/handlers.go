package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/usageguard/internal/guard"
	"github.com/ppiankov/usageguard/internal/model"
)

// --- Input/Output types ---

// ResolveInput defines parameters for the usage_access_resolve tool.
type ResolveInput struct {
	PID     int    `json:"pid,omitempty" jsonschema:"calling process id"`
	UID     int    `json:"uid" jsonschema:"calling uid"`
	Package string `json:"package,omitempty" jsonschema:"calling package name, omit when unknown"`
}

// ResolveOutput contains the resolved level and the rule that decided it.
type ResolveOutput struct {
	RequestID string   `json:"request_id"`
	Level     string   `json:"level"`
	Rule      string   `json:"rule"`
	Failed    []string `json:"failed,omitempty"`
}

// CheckInput defines parameters for the usage_access_check tool.
type CheckInput struct {
	TargetUID int    `json:"target_uid" jsonschema:"uid whose usage data is requested"`
	CallerUID int    `json:"caller_uid" jsonschema:"requesting uid"`
	Level     string `json:"level" jsonschema:"caller access level (DEFAULT/USER/DEVICESUMMARY/DEVICE)"`
}

// CheckOutput contains the visibility decision.
type CheckOutput struct {
	Allowed bool   `json:"allowed"`
	Level   string `json:"level"`
}

// FilterInput defines parameters for the usage_access_filter tool.
type FilterInput struct {
	PID        int    `json:"pid,omitempty" jsonschema:"calling process id"`
	UID        int    `json:"uid" jsonschema:"calling uid"`
	Package    string `json:"package,omitempty" jsonschema:"calling package name, omit when unknown"`
	TargetUIDs []int  `json:"target_uids" jsonschema:"candidate uids"`
}

// FilterOutput lists the visible uids.
type FilterOutput struct {
	RequestID   string `json:"request_id"`
	Level       string `json:"level"`
	Rule        string `json:"rule"`
	AllowedUIDs []int  `json:"allowed_uids"`
}

// --- Handlers ---

func (s *Server) handleResolve(ctx context.Context, req *mcpsdk.CallToolRequest, input ResolveInput) (*mcpsdk.CallToolResult, ResolveOutput, error) {
	d := s.guard.Resolve(ctx, input.caller())
	return nil, resolveOutput(d), nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	level, err := model.ParseAccessLevel(input.Level)
	if err != nil {
		return nil, CheckOutput{}, fmt.Errorf("invalid level: %w", err)
	}
	return nil, CheckOutput{
		Allowed: s.guard.Check(input.TargetUID, input.CallerUID, level),
		Level:   level.String(),
	}, nil
}

func (s *Server) handleFilter(ctx context.Context, req *mcpsdk.CallToolRequest, input FilterInput) (*mcpsdk.CallToolResult, FilterOutput, error) {
	caller := model.CallerIdentity{PID: input.PID, UID: input.UID, Package: input.Package}
	d := s.guard.Filter(ctx, caller, input.TargetUIDs)
	visible := d.Visible
	if visible == nil {
		visible = []int{}
	}
	return nil, FilterOutput{
		RequestID:   d.RequestID,
		Level:       d.Level.String(),
		Rule:        d.Rule,
		AllowedUIDs: visible,
	}, nil
}

func (in ResolveInput) caller() model.CallerIdentity {
	return model.CallerIdentity{PID: in.PID, UID: in.UID, Package: in.Package}
}

func resolveOutput(d guard.Decision) ResolveOutput {
	out := ResolveOutput{
		RequestID: d.RequestID,
		Level:     d.Level.String(),
		Rule:      d.Rule,
	}
	if d.Facts != nil {
		for _, f := range d.Facts.Failed {
			out.Failed = append(out.Failed, string(f))
		}
	}
	return out
}
