package processors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/opero/internal/models"
)

func TestAgentTasksProcessor_MixedResults(t *testing.T) {
	runner := &fakeAgentRunner{failIDs: map[string]bool{"t2": true}}
	processor := NewAgentTasksProcessor(runner, arbor.NewLogger())

	job := newJobFromPayload(t, models.JobTypeAgentTasks, &models.AgentTasksPayload{
		Tasks: []models.AgentTask{
			{ID: "t1", Description: "create hello.py"},
			{ID: "t2", Description: "break everything"},
			{ID: "t3", Description: "add tests"},
		},
	})
	updater := &recordingUpdater{}

	result, err := processor.Process(context.Background(), job, updater)
	require.NoError(t, err)

	summary := result["summary"].(map[string]interface{})
	assert.Equal(t, 3, summary["total"])
	assert.Equal(t, 2, summary["successful"])
	assert.Equal(t, 1, summary["failed"])
	assert.Equal(t, 0, summary["skipped"])

	records := result["results"].([]map[string]interface{})
	require.Len(t, records, 3)

	assert.Equal(t, "t1", records[0]["task_id"])
	assert.Equal(t, "completed", records[0]["status"])
	assert.Equal(t, true, records[0]["validator_ok"])
	assert.Equal(t, false, records[0]["blocked"])
	assert.Equal(t, []string{"create hello.py", "done"}, records[0]["messages"])

	assert.Equal(t, "t2", records[1]["task_id"])
	assert.Equal(t, "failed", records[1]["status"])
	assert.Equal(t, "agent exploded", records[1]["error"])
	assert.NotContains(t, records[1], "messages")

	assert.Equal(t, "t3", records[2]["task_id"])
	assert.Equal(t, "completed", records[2]["status"])

	progress := updater.progressValues()
	require.NotEmpty(t, progress)
	assert.Equal(t, 100.0, progress[len(progress)-1])
}

func TestAgentTasksProcessor_EmptyTasks(t *testing.T) {
	processor := NewAgentTasksProcessor(&fakeAgentRunner{}, arbor.NewLogger())
	job := newJobFromPayload(t, models.JobTypeAgentTasks, &models.AgentTasksPayload{})
	updater := &recordingUpdater{}

	result, err := processor.Process(context.Background(), job, updater)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"error": "No tasks provided"}, result)
	assert.Empty(t, updater.progressValues())
}

func TestAgentTasksProcessor_InvalidPayload(t *testing.T) {
	processor := NewAgentTasksProcessor(&fakeAgentRunner{}, arbor.NewLogger())
	job := models.NewJob(models.JobTypeAgentTasks, map[string]interface{}{"tasks": "nope"}, nil)

	_, err := processor.Process(context.Background(), job, &recordingUpdater{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid payload")
}

func TestAgentTasksProcessor_ConfigReachesRunner(t *testing.T) {
	runner := &fakeAgentRunner{}
	processor := NewAgentTasksProcessor(runner, arbor.NewLogger())

	job := newJobFromPayload(t, models.JobTypeAgentTasks, &models.AgentTasksPayload{
		Tasks:  []models.AgentTask{{ID: "t1", Description: "x"}},
		Config: map[string]interface{}{"model": "gemini-2.5-flash", "max_loops": 4},
	})

	_, err := processor.Process(context.Background(), job, &recordingUpdater{})
	require.NoError(t, err)

	require.Len(t, runner.configs, 1)
	assert.Equal(t, "gemini-2.5-flash", runner.configs[0]["model"])
}

func TestAgentTasksProcessor_MissingIDBecomesUnknown(t *testing.T) {
	processor := NewAgentTasksProcessor(&fakeAgentRunner{}, arbor.NewLogger())
	job := newJobFromPayload(t, models.JobTypeAgentTasks, &models.AgentTasksPayload{
		Tasks: []models.AgentTask{{Description: "no id"}},
	})

	result, err := processor.Process(context.Background(), job, &recordingUpdater{})
	require.NoError(t, err)

	records := result["results"].([]map[string]interface{})
	assert.Equal(t, "unknown", records[0]["task_id"])
}
