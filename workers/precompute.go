package workers

import (
	"fmt"
	"log"
	"sync"

	"github.com/camden-git/wildidbackend/services"
)

// Task type constants
const (
	TaskChip     = "chip"
	TaskFeatures = "features"
)

type PrecomputeJob struct {
	AnnotUUID string
	TaskType  string
}

// Precomputer runs artifact computation off the request path. Jobs are
// deduplicated while pending, so repeatedly queueing the same annotation is
// cheap.
type Precomputer struct {
	JobQueue  chan PrecomputeJob
	Artifacts *services.ArtifactService
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[string]bool
	Mutex     sync.Mutex
}

func NewPrecomputer(artifacts *services.ArtifactService, queueSize, numWorkers int) *Precomputer {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	p := &Precomputer{
		JobQueue:  make(chan PrecomputeJob, queueSize),
		Artifacts: artifacts,
		StopChan:  make(chan struct{}),
		Pending:   make(map[string]bool),
	}
	p.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.worker(i)
	}
	log.Printf("Started %d precompute worker(s) with queue size %d", numWorkers, queueSize)
	return p
}

func (p *Precomputer) worker(id int) {
	defer p.Wg.Done()

	log.Printf("Precompute worker %d started", id)
	for {
		select {
		case job, ok := <-p.JobQueue:
			if !ok {
				log.Printf("Precompute worker %d stopping: Job queue closed", id)
				return
			}

			pendingKey := fmt.Sprintf("%s:%s", job.AnnotUUID, job.TaskType)
			log.Printf("Worker %d: Received task '%s' for annotation %s", id, job.TaskType, job.AnnotUUID)

			switch job.TaskType {
			case TaskChip:
				p.processChipTask(job)
			case TaskFeatures:
				p.processFeaturesTask(job)
			default:
				log.Printf("Worker %d: ERROR unknown task type '%s' for %s", id, job.TaskType, job.AnnotUUID)
			}

			p.Mutex.Lock()
			delete(p.Pending, pendingKey)
			p.Mutex.Unlock()

		case <-p.StopChan:
			log.Printf("Precompute worker %d stopping: Stop signal received", id)
			return
		}
	}
}

func (p *Precomputer) processChipTask(job PrecomputeJob) {
	chipIDs, err := p.Artifacts.EnsureChips([]string{job.AnnotUUID})
	if err != nil {
		log.Printf("Worker: ERROR ensuring chip for %s: %v", job.AnnotUUID, err)
		return
	}
	if chipIDs[0] == nil {
		log.Printf("Worker: chip computation produced nothing for %s", job.AnnotUUID)
	}
}

func (p *Precomputer) processFeaturesTask(job PrecomputeJob) {
	chipIDs, err := p.Artifacts.EnsureChips([]string{job.AnnotUUID})
	if err != nil {
		log.Printf("Worker: ERROR ensuring chip for %s: %v", job.AnnotUUID, err)
		return
	}
	if chipIDs[0] == nil {
		log.Printf("Worker: no chip available for %s, skipping feature task", job.AnnotUUID)
		return
	}

	featureIDs, err := p.Artifacts.EnsureFeatureSets([]int64{*chipIDs[0]})
	if err != nil {
		log.Printf("Worker: ERROR ensuring features for %s: %v", job.AnnotUUID, err)
		return
	}
	if featureIDs[0] == nil {
		log.Printf("Worker: feature computation produced nothing for %s", job.AnnotUUID)
	}
}

// QueueJob queues a task unless the same annotation and task are already
// pending. Returns false when the job was dropped, either as a duplicate or
// because the queue is full.
func (p *Precomputer) QueueJob(job PrecomputeJob) bool {
	pendingKey := fmt.Sprintf("%s:%s", job.AnnotUUID, job.TaskType)

	p.Mutex.Lock()
	if p.Pending[pendingKey] {
		p.Mutex.Unlock()
		return false
	}
	p.Pending[pendingKey] = true
	p.Mutex.Unlock()

	select {
	case p.JobQueue <- job:
		return true
	default:
		log.Printf("WARNING: Precompute job queue full. Failed to queue task '%s' for: %s", job.TaskType, job.AnnotUUID)
		p.Mutex.Lock()
		delete(p.Pending, pendingKey)
		p.Mutex.Unlock()
		return false
	}
}

func (p *Precomputer) Stop() {
	log.Println("Stopping precompute workers...")
	close(p.StopChan)
	p.Wg.Wait()
	log.Println("All precompute workers stopped")
}
