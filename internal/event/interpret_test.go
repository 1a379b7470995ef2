package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *FailureEvent {
	return &FailureEvent{
		Account: "123456789012",
		Detail: Detail{
			JobName:      "gen-prod-aqua-modis-01",
			JobID:        "9f3c2a1e",
			JobQueue:     "queue-gen-prod-aqua",
			StatusReason: "Essential container in task exited",
			Container: Container{
				Command: []string{"proc.sh", "--input", "/data/run_abc123.json"},
			},
		},
	}
}

func TestInterpret(t *testing.T) {
	t.Run("derives run identity", func(t *testing.T) {
		interp, err := Interpret(validEvent())
		require.NoError(t, err)

		assert.Equal(t, "gen-prod-aqua", interp.Identity.Prefix)
		assert.Equal(t, "aqua", interp.Identity.Dataset)
		assert.Equal(t, "abc123", interp.Identity.UniqueID)
	})

	t.Run("uses top-level status reason without attempts", func(t *testing.T) {
		interp, err := Interpret(validEvent())
		require.NoError(t, err)

		assert.Equal(t, "Essential container in task exited", interp.ErrorMessage)
		assert.Empty(t, interp.LogStream)
	})

	t.Run("first attempt wins when retries occurred", func(t *testing.T) {
		ev := validEvent()
		ev.Detail.Attempts = []Attempt{
			{
				StatusReason: "OutOfMemoryError: Container killed",
				Container:    AttemptContainer{LogStreamName: "gen-prod/default/abc"},
			},
			{StatusReason: "second attempt reason"},
		}

		interp, err := Interpret(ev)
		require.NoError(t, err)

		assert.Equal(t, "OutOfMemoryError: Container killed", interp.ErrorMessage)
		assert.Equal(t, "gen-prod/default/abc", interp.LogStream)
	})

	t.Run("contract violations", func(t *testing.T) {
		testCases := []struct {
			name   string
			mutate func(*FailureEvent)
			errMsg string
		}{
			{
				name:   "missing job name",
				mutate: func(ev *FailureEvent) { ev.Detail.JobName = "" },
				errMsg: "detail.jobName",
			},
			{
				name:   "missing job id",
				mutate: func(ev *FailureEvent) { ev.Detail.JobID = "" },
				errMsg: "detail.jobId",
			},
			{
				name:   "missing job queue",
				mutate: func(ev *FailureEvent) { ev.Detail.JobQueue = "" },
				errMsg: "detail.jobQueue",
			},
			{
				name:   "empty container command",
				mutate: func(ev *FailureEvent) { ev.Detail.Container.Command = nil },
				errMsg: "detail.container.command",
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				ev := validEvent()
				tc.mutate(ev)

				_, err := Interpret(ev)
				require.Error(t, err)
				assert.Contains(t, err.Error(), "contract violation")
				assert.Contains(t, err.Error(), tc.errMsg)
			})
		}
	})
}

func TestUniqueID(t *testing.T) {
	testCases := []struct {
		name    string
		command []string
		want    string
	}{
		{
			name:    "json input argument",
			command: []string{"proc.sh", "--input", "/data/run_abc123.json"},
			want:    "abc123",
		},
		{
			name:    "license returner fallback",
			command: []string{"return_licenses"},
			want:    "return_licenses",
		},
		{
			name:    "last json argument wins",
			command: []string{"proc.sh", "cfg_first.json", "/data/run_zz9.json"},
			want:    "zz9",
		},
		{
			name:    "stem without underscore used whole",
			command: []string{"proc.sh", "list.json"},
			want:    "list",
		},
		{
			name:    "json substring without extension",
			command: []string{"proc.sh", "jsonfeed_77"},
			want:    "77",
		},
		{
			name:    "empty id segment falls back to first token",
			command: []string{"proc.sh", "weird_.json"},
			want:    "proc.sh",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, UniqueID(tc.command))
		})
	}
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "gen-prod-aqua", Prefix("gen-prod-aqua-modis-01"))
	assert.Equal(t, "gen-prod", Prefix("gen-prod"))
	assert.Equal(t, "plain", Prefix("plain"))
}

func TestDataset(t *testing.T) {
	assert.Equal(t, "aqua", Dataset("queue-gen-prod-aqua"))
	assert.Equal(t, "queue", Dataset("queue"))
}

func TestEnvironment(t *testing.T) {
	assert.Equal(t, "AQUA", Environment("gen-prod-aqua"))
	assert.Equal(t, "GEN", Environment("gen"))
}
