package mcp

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *mcp.Server {
	t.Helper()
	return mcp.NewServer(mcp.ServerInfo{
		Name:    "test",
		Version: "1.0.0",
		Capabilities: mcp.Capabilities{
			Tools:     true,
			Resources: true,
			Prompts:   true,
		},
	})
}

func TestRegisterCLITools_ListTools(t *testing.T) {
	srv := newTestServer(t)

	app := &cli.App{}
	require.NoError(t, RegisterCLITools(srv, ToolDependencies{App: app}))

	tc := testutil.NewTestClient(t, srv)
	defer tc.Close()

	tools, err := tc.ListTools()
	require.NoError(t, err)

	names := make(map[any]bool, len(tools))
	for _, tool := range tools {
		names[tool["name"]] = true
	}
	for _, name := range []string{
		"cli.health",
		"cli.version",
		"batch.run",
		"batch.show",
		"permission.check",
		"approval.show",
		"approval.list",
		"approval.decide",
		"schedule.import",
		"schedule.show",
	} {
		assert.True(t, names[name], "%s tool should be registered", name)
	}
}

func TestRegisterCLITools_RequiresServerAndApp(t *testing.T) {
	assert.EqualError(t, RegisterCLITools(nil, ToolDependencies{App: &cli.App{}}), "server is required")
	assert.EqualError(t, RegisterCLITools(newTestServer(t), ToolDependencies{}), "app is required")
}

func TestRegisterResourcesAndPrompts(t *testing.T) {
	srv := newTestServer(t)
	deps := ToolDependencies{App: &cli.App{}}

	require.NoError(t, RegisterResources(srv, deps))
	require.NoError(t, RegisterPrompts(srv, deps))

	assert.Error(t, RegisterResources(nil, deps))
	assert.Error(t, RegisterPrompts(nil, deps))
}

func TestParseUUID(t *testing.T) {
	_, err := parseUUID("")
	assert.EqualError(t, err, "case_id is required")

	_, err = parseUUID("not-a-uuid")
	assert.EqualError(t, err, `case_id "not-a-uuid" is not a UUID`)

	id, err := parseUUID("5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80")
	require.NoError(t, err)
	assert.Equal(t, "5b2f0c1e-8d4a-4a43-9a55-1f1c2f6d7e80", id.String())
}

func TestParseDate(t *testing.T) {
	fallback := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	day, err := parseDate("", fallback, nil)
	require.NoError(t, err)
	assert.Equal(t, fallback, day)

	day, err = parseDate("2026-03-04", fallback, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), day)

	_, err = parseDate("04/03/2026", fallback, nil)
	assert.EqualError(t, err, `date "04/03/2026" is not YYYY-MM-DD`)
}
