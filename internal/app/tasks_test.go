package app

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskCreateAndGet(t *testing.T) {
	m := NewTaskManager()

	task, isNew := m.Create("/logs/app.log", "compress")
	require.True(t, isNew)
	assert.Equal(t, TaskQueued, task.Status)
	assert.Equal(t, "compress", task.Operation)

	got := m.Get(task.TaskID)
	require.NotNil(t, got)
	assert.Equal(t, task.TaskID, got.TaskID)
}

func TestTaskPathLockBlocksDuplicate(t *testing.T) {
	m := NewTaskManager()

	first, isNew := m.Create("/logs/app.log", "compress")
	require.True(t, isNew)

	dup, isNew := m.Create("/logs/app.log", "compress")
	assert.False(t, isNew)
	assert.Equal(t, first.TaskID, dup.TaskID)
}

func TestTaskFinishReleasesLock(t *testing.T) {
	m := NewTaskManager()
	first, _ := m.Create("/logs/app.log", "index")
	m.SetRunning(first.TaskID)
	m.Finish(first.TaskID, map[string]any{"frames": 3}, nil)

	got := m.Get(first.TaskID)
	require.NotNil(t, got)
	assert.Equal(t, TaskCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.Equal(t, 3, got.Result["frames"])

	second, isNew := m.Create("/logs/app.log", "index")
	assert.True(t, isNew)
	assert.NotEqual(t, first.TaskID, second.TaskID)
}

func TestTaskFinishWithError(t *testing.T) {
	m := NewTaskManager()
	task, _ := m.Create("/logs/app.log", "compress")
	m.Finish(task.TaskID, nil, errors.New("disk full"))

	got := m.Get(task.TaskID)
	require.NotNil(t, got)
	assert.Equal(t, TaskFailed, got.Status)
	assert.Equal(t, "disk full", got.Error)
}

func TestTaskDifferentPathsRunConcurrently(t *testing.T) {
	m := NewTaskManager()
	_, isNewA := m.Create("/logs/a.log", "compress")
	_, isNewB := m.Create("/logs/b.log", "compress")
	assert.True(t, isNewA)
	assert.True(t, isNewB)
}

func TestTaskCleanupOldSparesActive(t *testing.T) {
	m := NewTaskManager()
	done, _ := m.Create("/logs/a.log", "compress")
	m.Finish(done.TaskID, nil, nil)
	active, _ := m.Create("/logs/b.log", "compress")

	time.Sleep(5 * time.Millisecond)
	removed := m.CleanupOld(time.Nanosecond)

	assert.Equal(t, 1, removed)
	assert.Nil(t, m.Get(done.TaskID))
	assert.NotNil(t, m.Get(active.TaskID))
	assert.Len(t, m.All(), 1)
}
