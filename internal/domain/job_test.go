package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobRequest_Validate(t *testing.T) {
	valid := JobRequest{
		UserID:    "user-1",
		SourceKey: "uploads/user-1/f/video.mp4",
		ProjectID: "project-1",
		MaxClips:  3,
	}

	tests := []struct {
		name      string
		mutate    func(r *JobRequest)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid request",
			mutate:  func(r *JobRequest) {},
			wantErr: false,
		},
		{
			name:      "missing user_id",
			mutate:    func(r *JobRequest) { r.UserID = "" },
			wantErr:   true,
			errString: "user_id is required",
		},
		{
			name:      "missing s3_key",
			mutate:    func(r *JobRequest) { r.SourceKey = "" },
			wantErr:   true,
			errString: "s3_key is required",
		},
		{
			name:      "missing project_id",
			mutate:    func(r *JobRequest) { r.ProjectID = "" },
			wantErr:   true,
			errString: "project_id is required",
		},
		{
			name:      "negative max_clips",
			mutate:    func(r *JobRequest) { r.MaxClips = -1 },
			wantErr:   true,
			errString: "max_clips must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)

			err := req.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidRequest)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestJobRequest_Validate_AppliesMaxClipsDefault(t *testing.T) {
	req := JobRequest{
		UserID:    "user-1",
		SourceKey: "uploads/user-1/f/video.mp4",
		ProjectID: "project-1",
	}

	require.NoError(t, req.Validate())
	assert.Equal(t, DefaultMaxClips, req.MaxClips)
}

func TestWorkflowInstance_Terminal(t *testing.T) {
	assert.False(t, (&WorkflowInstance{Status: InstanceStatusRunning}).Terminal())
	assert.True(t, (&WorkflowInstance{Status: InstanceStatusSucceeded}).Terminal())
	assert.True(t, (&WorkflowInstance{Status: InstanceStatusFailed}).Terminal())
}
