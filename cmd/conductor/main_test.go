package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ShayCichocki/conductor/internal/config"
	"github.com/ShayCichocki/conductor/internal/inbox"
	"github.com/ShayCichocki/conductor/internal/orchestrator"
	"github.com/ShayCichocki/conductor/pkg/models"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := config.Default()
	c.Project.Name = "test"
	c.Persistence.Backend = config.BackendFile
	c.Persistence.Path = filepath.Join(t.TempDir(), "snapshots")
	c.Agents = []config.AgentConfig{
		{ID: "ops-1", Name: "Ops One", Type: "deploy", Skills: []string{"kubernetes"}, Capabilities: []string{"github", "slack"}},
		{ID: "ana-1", Name: "Analyst", Type: "analyze", Skills: []string{"sql"}},
	}
	require.NoError(t, c.Validate())
	return c
}

func TestSimulatedTools(t *testing.T) {
	ctx := context.Background()
	tc := config.ToolsConfig{Failing: []string{"slack"}}
	tools := simulatedTools(tc, testConfig(t).Agents)

	set, ok := tools.(orchestrator.ToolSet)
	require.True(t, ok)
	assert.Equal(t, []string{"github", "slack"}, set.Capabilities())

	res, err := tools.Invoke(ctx, "github", map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"capability": "github", "params": 1}, res)

	_, err = tools.Invoke(ctx, "slack", nil)
	assert.ErrorContains(t, err, "simulated outage")

	_, err = tools.Invoke(ctx, "jira", nil)
	assert.Error(t, err)
}

func TestSimulatedTools_RateLimited(t *testing.T) {
	tools := simulatedTools(config.ToolsConfig{RateLimit: 100, Burst: 2}, testConfig(t).Agents)
	_, ok := tools.(*orchestrator.RateLimitedTools)
	assert.True(t, ok)

	_, err := tools.Invoke(context.Background(), "github", nil)
	assert.NoError(t, err)
}

func TestSimulatedTools_LatencyHonoursContext(t *testing.T) {
	tools := simulatedTools(config.ToolsConfig{Latency: time.Hour}, testConfig(t).Agents)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tools.Invoke(ctx, "github", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimulatedWork(t *testing.T) {
	work := simulatedWork(config.ToolsConfig{})
	agent := &models.Agent{ID: "ops-1", Name: "Ops One"}

	res, err := work.Perform(context.Background(), &models.Task{ID: "t", Type: "deploy"}, agent)
	require.NoError(t, err)
	assert.Equal(t, "Ops One handled deploy", res)

	_, err = work.Perform(context.Background(), &models.Task{ID: "t", Type: "deploy", Payload: map[string]any{"fail": true}}, agent)
	assert.ErrorContains(t, err, "requested failure")
}

func TestRunBatch(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)
	c.Tools.Failing = []string{"slack"}
	logger := zaptest.NewLogger(t)

	a, err := openApp(ctx, c, logger, nil)
	require.NoError(t, err)
	defer a.Close()

	reqs := []orchestrator.TaskRequest{
		{Type: "deploy", RequiredSkills: []string{"kubernetes"}, RequiredCapabilities: []string{"github", "slack"}},
		{Type: "deploy", Payload: map[string]any{"fail": true}},
		{Type: "analyze"},
		{Type: "paint"},
	}
	tasks, stats, err := runBatch(ctx, a, reqs)
	require.NoError(t, err)
	require.Len(t, tasks, 4)

	assert.Equal(t, models.TaskStatusCompleted, tasks[0].Status)
	assert.Equal(t, "ops-1", tasks[0].AssignedAgentID)
	assert.Equal(t, models.TaskStatusFailed, tasks[1].Status)
	assert.Equal(t, models.TaskStatusCompleted, tasks[2].Status)
	assert.Equal(t, "ana-1", tasks[2].AssignedAgentID)
	assert.Equal(t, models.TaskStatusPending, tasks[3].Status)
	assert.Equal(t, 2, stats.Tasks[models.TaskStatusCompleted])
	assert.Equal(t, 1, stats.Tasks[models.TaskStatusFailed])
	assert.Equal(t, 1, stats.Tasks[models.TaskStatusPending])

	m := a.memory.Memory()
	assert.Len(t, m.Tasks, 3)
	require.Len(t, m.Agents, 2)

	var out bytes.Buffer
	printOutcomes(&out, tasks, stats)
	assert.Contains(t, out.String(), "Ops One handled deploy")
	assert.Contains(t, out.String(), "4 tasks: 2 completed, 1 failed, 1 pending")
}

func TestRunBatch_RejectsBadRequest(t *testing.T) {
	ctx := context.Background()
	a, err := openApp(ctx, testConfig(t), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = runBatch(ctx, a, []orchestrator.TaskRequest{{Type: "deploy"}, {Type: ""}})
	assert.ErrorContains(t, err, "task 2")
}

func TestSubmitAll_RejectedFileLeavesNoTasks(t *testing.T) {
	ctx := context.Background()
	a, err := openApp(ctx, testConfig(t), zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer a.Close()

	orch, err := a.newOrchestrator(nil)
	require.NoError(t, err)

	bad, err := inbox.ParseTasks([]byte(`
- id: rollout
  type: deploy
- id: report
`))
	require.NoError(t, err)
	assert.ErrorContains(t, submitAll(orch, bad), "task 2")
	assert.Empty(t, orch.Tasks())

	fixed, err := inbox.ParseTasks([]byte(`
- id: rollout
  type: deploy
- id: report
  type: analyze
`))
	require.NoError(t, err)
	require.NoError(t, submitAll(orch, fixed))
	assert.Len(t, orch.Tasks(), 2)
}

func TestOpenApp_PersistsMemory(t *testing.T) {
	ctx := context.Background()
	c := testConfig(t)

	a, err := openApp(ctx, c, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	id, err := a.memory.Learn(models.KnowledgeEntry{
		Category:   models.KnowledgeCategoryPattern,
		Title:      "Retry with jitter",
		Tags:       []string{"resilience"},
		Confidence: 0.8,
	})
	require.NoError(t, err)
	require.NoError(t, a.save(ctx))
	require.NoError(t, a.Close())

	b, err := openApp(ctx, c, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	defer b.Close()

	e, err := b.memory.Entry(id)
	require.NoError(t, err)
	assert.Equal(t, "Retry with jitter", e.Title)
	assert.Len(t, b.memory.ByTag("resilience"), 1)
}

func TestOpenApp_NoPersistence(t *testing.T) {
	c := testConfig(t)
	c.Persistence.Backend = config.BackendNone

	a, err := openApp(context.Background(), c, zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Nil(t, a.sink)
	assert.NoError(t, a.save(context.Background()))
	assert.NoError(t, a.Close())
}

func TestOpenApp_Metrics(t *testing.T) {
	c := testConfig(t)
	c.Metrics.Enabled = true
	c.Metrics.Namespace = "cmdtest"
	reg := prometheus.NewRegistry()

	a, err := openApp(context.Background(), c, zaptest.NewLogger(t), reg)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.metrics)

	_, err = a.memory.Learn(models.KnowledgeEntry{
		Category:   models.KnowledgeCategoryPitfall,
		Title:      "x",
		Confidence: 1,
	})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "cmdtest_knowledge_entries")
}

func TestPrintAgents(t *testing.T) {
	var out bytes.Buffer
	history := []models.AgentMemory{{AgentID: "ops-1", TasksCompleted: 3, TasksFailed: 1, TotalDurationMs: 400}}
	require.NoError(t, printAgents(&out, testConfig(t).Agents, history))

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[1]), "ops-1")
	assert.Contains(t, string(lines[1]), "github,slack")
	assert.Contains(t, string(lines[1]), "100")
	assert.Contains(t, string(lines[2]), "ana-1")

	out.Reset()
	require.NoError(t, printAgents(&out, nil, nil))
	assert.Contains(t, out.String(), "No agents configured")
}

func TestListRecentLearnings(t *testing.T) {
	var out bytes.Buffer
	listRecentLearnings(&out, nil, 10)
	assert.Contains(t, out.String(), "No learnings stored yet")

	entries := []models.KnowledgeEntry{
		{ID: "a", Title: "first", Category: models.KnowledgeCategoryPattern},
		{ID: "b", Title: "second", Category: models.KnowledgeCategoryPattern},
		{ID: "c", Title: "third", Category: models.KnowledgeCategoryPattern},
	}
	out.Reset()
	listRecentLearnings(&out, entries, 2)
	s := out.String()
	assert.Contains(t, s, "Recent learnings (2 of 3)")
	assert.Contains(t, s, "third")
	assert.Contains(t, s, "second")
	assert.NotContains(t, s, "first")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("third")), bytes.Index(out.Bytes(), []byte("second")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ééé...", truncate("éééééééé", 6))
}
