package mcp

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
)

// ToolDependencies carries the application the tools call into.
type ToolDependencies struct {
	App *cli.App
}

type toolGroup struct {
	name     string
	register func(*mcp.Server, ToolDependencies) error
}

var toolGroups = []toolGroup{
	{"core", registerCoreTools},
	{"batch", registerBatchTools},
	{"permission", registerPermissionTools},
	{"approval", registerApprovalTools},
	{"schedule", registerScheduleTools},
}

// RegisterCLITools registers one tool per CLI operation.
func RegisterCLITools(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return errors.New("server is required")
	}
	if deps.App == nil {
		return errors.New("app is required")
	}
	for _, group := range toolGroups {
		if err := group.register(srv, deps); err != nil {
			return fmt.Errorf("register %s tools: %w", group.name, err)
		}
	}
	return nil
}
