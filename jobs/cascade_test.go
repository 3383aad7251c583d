package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestCascadeJobSkipsMalformedPayload(t *testing.T) {
	job := NewCascadeJob(nil, nil)

	task := asynq.NewTask(TaskTypeRoleCascade, []byte("not-json"))
	err := job.Handle(context.Background(), task)
	require.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestRoleCascadeTaskCarriesPayload(t *testing.T) {
	task, err := NewRoleCascadeTask(RoleCascadePayload{RoleID: 7, RunID: "run-1"})
	require.NoError(t, err)
	require.Equal(t, TaskTypeRoleCascade, task.Type())
	require.JSONEq(t, `{"role_id":7,"run_id":"run-1"}`, string(task.Payload()))
}
