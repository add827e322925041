package workers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// queueing behavior is testable without live workers by constructing the
// pool manually and never starting the consumer loop
func newIdlePrecomputer(queueSize int) *Precomputer {
	return &Precomputer{
		JobQueue: make(chan PrecomputeJob, queueSize),
		StopChan: make(chan struct{}),
		Pending:  make(map[string]bool),
	}
}

func TestQueueJob(t *testing.T) {
	t.Run("DeduplicatesPendingJobs", func(t *testing.T) {
		p := newIdlePrecomputer(10)
		job := PrecomputeJob{AnnotUUID: "annot-a", TaskType: TaskFeatures}

		assert.True(t, p.QueueJob(job))
		assert.False(t, p.QueueJob(job))
		assert.Len(t, p.JobQueue, 1)
	})

	t.Run("SameAnnotationDifferentTask", func(t *testing.T) {
		p := newIdlePrecomputer(10)

		assert.True(t, p.QueueJob(PrecomputeJob{AnnotUUID: "annot-a", TaskType: TaskChip}))
		assert.True(t, p.QueueJob(PrecomputeJob{AnnotUUID: "annot-a", TaskType: TaskFeatures}))
		assert.Len(t, p.JobQueue, 2)
	})

	t.Run("FullQueueDropsAndClearsPending", func(t *testing.T) {
		p := newIdlePrecomputer(1)

		assert.True(t, p.QueueJob(PrecomputeJob{AnnotUUID: "annot-a", TaskType: TaskChip}))
		dropped := PrecomputeJob{AnnotUUID: "annot-b", TaskType: TaskChip}
		assert.False(t, p.QueueJob(dropped))

		// the dropped job must be requeueable once there is room again
		<-p.JobQueue
		assert.True(t, p.QueueJob(dropped))
	})
}
