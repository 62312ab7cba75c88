package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/insites-io/module-ai/internal/backend"
	"github.com/insites-io/module-ai/internal/config"
	"github.com/insites-io/module-ai/internal/rpc"
)

// protocolVersion is the MCP revision the proxy advertises.
const protocolVersion = "2024-11-05"

// instanceTools need the console credential set on top of the default one.
var instanceTools = map[string]bool{
	"validate_subdomain": true,
	"create_instance":    true,
}

// Backend is the subset of the execution service client the proxy uses.
type Backend interface {
	ListTools(ctx context.Context, creds backend.Credentials) (json.RawMessage, error)
	CallTool(ctx context.Context, name string, args map[string]any, creds backend.Credentials) (*backend.ToolResult, error)
}

// Proxy resolves MCP methods against the execution service.
type Proxy struct {
	cfg     config.ProxyConfig
	backend Backend
}

// New builds a proxy for the given configuration and backend.
func New(cfg config.ProxyConfig, b Backend) *Proxy {
	return &Proxy{cfg: cfg, backend: b}
}

// Register wires the proxy's methods onto d.
func (p *Proxy) Register(d *rpc.Dispatcher) {
	d.Handle("initialize", p.handleInitialize)
	d.Handle("tools/list", p.handleToolsList)
	d.Handle("tools/call", p.handleToolsCall)
	d.HandleNotification("notifications/cancelled", p.handleCancelled)
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      serverInfo     `json:"serverInfo"`
}

func (p *Proxy) handleInitialize(ctx context.Context, req *rpc.Request) (any, *rpc.Error) {
	return initializeResult{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ServerInfo:      serverInfo{Name: "crm-server", Version: "1.0.0"},
	}, nil
}

func (p *Proxy) handleToolsList(ctx context.Context, req *rpc.Request) (any, *rpc.Error) {
	if p.cfg.InstanceURL == "" || p.cfg.InstanceAPIKey == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidParams,
			"INSITES_INSTANCE_URL and INSITES_INSTANCE_API_KEY environment variables must be set")
	}
	tools, err := p.backend.ListTools(ctx, p.creds())
	if err != nil {
		return nil, asRPCError(err)
	}
	return map[string]any{"tools": tools}, nil
}

func (p *Proxy) handleToolsCall(ctx context.Context, req *rpc.Request) (any, *rpc.Error) {
	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, rpc.Errorf(rpc.CodeInvalidParams, fmt.Sprintf("Invalid params: %v", err))
		}
	}
	if params.Name == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidParams, "Missing 'name' parameter")
	}
	if p.cfg.InstanceURL == "" || p.cfg.InstanceAPIKey == "" {
		return nil, rpc.Errorf(rpc.CodeInvalidParams,
			"INSITES_INSTANCE_URL and INSITES_INSTANCE_API_KEY environment variables must be set for CRM tools")
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}
	if instanceTools[params.Name] {
		if p.cfg.ConsoleEmail == "" {
			return nil, rpc.Errorf(rpc.CodeInvalidParams,
				"CONSOLE_EMAIL environment variable must be set for instance management tools")
		}
		params.Arguments["console_email"] = p.cfg.ConsoleEmail
	}
	res, err := p.backend.CallTool(ctx, params.Name, params.Arguments, p.creds())
	if err != nil {
		return nil, asRPCError(err)
	}
	return res, nil
}

func (p *Proxy) handleCancelled(ctx context.Context, req *rpc.Request) (any, *rpc.Error) {
	return nil, nil
}

func (p *Proxy) creds() backend.Credentials {
	return backend.Credentials{
		InstanceURL:    p.cfg.InstanceURL,
		InstanceAPIKey: p.cfg.InstanceAPIKey,
		ConsoleEmail:   p.cfg.ConsoleEmail,
	}
}

// asRPCError maps backend failures to -32000 and anything unexpected to an
// internal error.
func asRPCError(err error) *rpc.Error {
	var berr *backend.Error
	if errors.As(err, &berr) {
		return rpc.Errorf(rpc.CodeServerError, berr.Error())
	}
	return rpc.Errorf(rpc.CodeInternalError, fmt.Sprintf("Internal error: %v", err))
}
