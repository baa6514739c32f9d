package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/carevisit/adapter/cli"
	adjustmentServices "github.com/felixgeelhaar/carevisit/internal/adjustment/application/services"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	internalApp "github.com/felixgeelhaar/carevisit/internal/app"
	"github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	"github.com/felixgeelhaar/carevisit/internal/approval/domain"
	permissionDomain "github.com/felixgeelhaar/carevisit/internal/permission/domain"
	"github.com/felixgeelhaar/carevisit/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

var registerOnce sync.Once

// setupPendingCase runs a batch whose only item moves to the next day. The cross-day move lands
// in the emergency tier, which opens a single supervisor step.
func setupPendingCase(t *testing.T) (*internalApp.Container, uuid.UUID) {
	t.Helper()

	cfg := &config.Config{
		AppEnv:         "test",
		DatabaseDriver: "sqlite",
		SQLitePath:     filepath.Join(t.TempDir(), "test.db"),
	}
	ctx := context.Background()
	container, err := internalApp.NewContainer(ctx, cfg, nil)
	require.NoError(t, err)
	container.Orchestrator.SetClock(func() time.Time { return now })
	container.Workflow.SetClock(func() time.Time { return now })

	cliApp := cli.NewApp(
		container.Orchestrator,
		container.GetBatchReportHandler,
		container.Evaluator,
		container.Workflow,
		container.GetCaseHandler,
		container.ListCasesHandler,
	)
	cliApp.SetClock(func() time.Time { return now })
	cli.SetApp(cliApp)
	t.Cleanup(func() {
		cli.SetApp(nil)
		container.Close()
	})

	report, err := container.Orchestrator.Run(ctx, adjustmentServices.RunBatchCommand{
		BatchID: "b-approval",
		Items: []adjustmentDomain.AdjustmentItem{{
			ID:             "v-1",
			SubjectName:    "Ada",
			OriginalWindow: adjustmentDomain.MustTimeWindow(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), 60),
			ProposedWindow: adjustmentDomain.MustTimeWindow(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC), 60),
			ServiceType:    "nursing",
		}},
		Requester: permissionDomain.Requester{ID: "rec-1", Role: "recorder"},
	})
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	require.Equal(t, adjustmentDomain.ItemAwaitingApproval, report.Items[0].Status)
	require.NotNil(t, report.Items[0].ApprovalCaseID)
	return container, *report.Items[0].ApprovalCaseID
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	registerOnce.Do(func() { cli.AddCommand(Cmd) })
	listStatus, listBatch, listLimit = "", "", 50
	decideApprove, decideReject, decideRole, decideActor, decideStep, decideComments = false, false, "", "", -1, ""

	root := cli.RootCommand()
	require.NoError(t, root.PersistentFlags().Set("json", "false"))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestListAndShow(t *testing.T) {
	_, caseID := setupPendingCase(t)

	out, err := execute(t, "approval", "list", "--status", "pending")
	require.NoError(t, err)
	assert.Contains(t, out, caseID.String())
	assert.Contains(t, out, "supervisor")

	out, err = execute(t, "approval", "list", "--batch", "other")
	require.NoError(t, err)
	assert.Contains(t, out, "No approval cases found.")

	out, err = execute(t, "approval", "show", caseID.String(), "--json")
	require.NoError(t, err)
	var dto queries.CaseDTO
	require.NoError(t, json.Unmarshal([]byte(out), &dto))
	assert.Equal(t, "emergency", dto.Tier)
	assert.Equal(t, "b-approval", dto.BatchID)
	require.Len(t, dto.Steps, 1)
	assert.True(t, dto.Steps[0].Urgent)
	assert.NotEmpty(t, dto.History)
}

func TestDecide_ApproveCommits(t *testing.T) {
	container, caseID := setupPendingCase(t)

	out, err := execute(t, "approval", "decide", caseID.String(), "--approve", "--role", "supervisor", "--actor", "sup-1", "-m", "ok")
	require.NoError(t, err)
	assert.Contains(t, out, "is approved")

	archived, err := container.ScheduleRepo.ArchivedCount(context.Background(), "b-approval")
	require.NoError(t, err)
	assert.Equal(t, 1, archived)

	out, err = execute(t, "approval", "show", caseID.String())
	require.NoError(t, err)
	assert.Contains(t, out, "[approved]")
	assert.Contains(t, out, "by sup-1")

	_, err = execute(t, "approval", "decide", caseID.String(), "--approve", "--role", "supervisor", "--actor", "sup-1")
	assert.ErrorIs(t, err, domain.ErrDuplicateDecision)
}

func TestDecide_Errors(t *testing.T) {
	_, caseID := setupPendingCase(t)

	_, err := execute(t, "approval", "decide", caseID.String(), "--approve", "--role", "medical_director", "--actor", "md-1")
	assert.ErrorIs(t, err, domain.ErrAuthorization)

	_, err = execute(t, "approval", "decide", caseID.String(), "--approve", "--reject", "--role", "supervisor", "--actor", "sup-1")
	assert.ErrorContains(t, err, "exactly one of --approve or --reject")

	_, err = execute(t, "approval", "decide", "not-a-uuid", "--reject", "--role", "supervisor", "--actor", "sup-1")
	assert.ErrorContains(t, err, "invalid case ID")

	_, err = execute(t, "approval", "show", uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrCaseNotFound)
}

func TestDecide_RejectLeavesScheduleUntouched(t *testing.T) {
	container, caseID := setupPendingCase(t)

	out, err := execute(t, "approval", "decide", caseID.String(), "--reject", "--role", "supervisor", "--actor", "sup-1")
	require.NoError(t, err)
	assert.Contains(t, out, "is rejected")

	archived, err := container.ScheduleRepo.ArchivedCount(context.Background(), "b-approval")
	require.NoError(t, err)
	assert.Zero(t, archived)
}
