package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestJob_Fail_RequeuesUnderMaxRetries(t *testing.T) {
	job := NewJob(uuid.New(), PriorityNormal, nil)
	now := time.Now().UTC()

	job.Fail(now, "boom")

	assert.Equal(t, JobRetrying, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.NotNil(t, job.ProcessAt)
}

func TestJob_Fail_TerminalAtMaxRetriesLeavesRetryCountEqualToMax(t *testing.T) {
	job := NewJob(uuid.New(), PriorityNormal, nil)
	job.MaxRetries = 3
	now := time.Now().UTC()

	job.Fail(now, "one")
	job.Fail(now, "two")
	job.Fail(now, "three")

	assert.Equal(t, JobFailed, job.Status)
	assert.Equal(t, 3, job.RetryCount)
	assert.NotNil(t, job.CompletedAt)
}
