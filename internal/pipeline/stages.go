package pipeline

import (
	"context"
	"fmt"
	"sync"

	"realty-aggregator/internal/dedup"
	"realty-aggregator/internal/jobqueue"
	"realty-aggregator/internal/models"
	"realty-aggregator/internal/photos"
	"realty-aggregator/internal/realtor"
	"realty-aggregator/internal/search"

	"gorm.io/gorm"
)

// Stage identifies one step of a pipeline run.
type Stage string

const (
	StageScraping     Stage = "scraping"
	StagePhotos       Stage = "photo_processing"
	StageDedup        Stage = "duplicate_processing"
	StageRealtors     Stage = "realtor_detection"
	StageIndexRefresh Stage = "index_refresh"
)

// StageOrder is the fixed execution order of a full run.
var StageOrder = []Stage{StageScraping, StagePhotos, StageDedup, StageRealtors, StageIndexRefresh}

// Runner drives one stage. Start must not block on the stage's actual work;
// the orchestrator polls Status until done reports true.
type Runner interface {
	Start(ctx context.Context) error
	Status(ctx context.Context) (done bool, detail map[string]interface{}, err error)
}

// Stopper is implemented by runners whose work outlives the run context and
// needs an explicit stop request when the pipeline is aborted.
type Stopper interface {
	Stop(ctx context.Context) error
}

// taskRunner adapts a blocking task function to the Runner interface by
// executing it on a goroutine.
type taskRunner struct {
	task func(ctx context.Context) (map[string]interface{}, error)

	mu      sync.Mutex
	running bool
	done    bool
	detail  map[string]interface{}
	err     error
}

// NewTaskRunner wraps a blocking task as a pollable stage.
func NewTaskRunner(task func(ctx context.Context) (map[string]interface{}, error)) Runner {
	return &taskRunner{task: task}
}

func (r *taskRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("stage already running")
	}
	r.running = true
	r.done = false
	r.detail = nil
	r.err = nil
	r.mu.Unlock()

	go func() {
		detail, err := r.task(ctx)
		r.mu.Lock()
		r.running = false
		r.done = true
		r.detail = detail
		r.err = err
		r.mu.Unlock()
	}()
	return nil
}

func (r *taskRunner) Status(ctx context.Context) (bool, map[string]interface{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done, r.detail, r.err
}

// scrapingRunner fans one job per configured source into the queue and
// reports done when every job has reached a terminal status.
type scrapingRunner struct {
	manager *jobqueue.Manager
	sources []string

	mu     sync.Mutex
	jobIDs []string
}

func NewScrapingRunner(manager *jobqueue.Manager, sources []string) Runner {
	return &scrapingRunner{manager: manager, sources: sources}
}

func (r *scrapingRunner) Start(ctx context.Context) error {
	jobs, err := r.manager.EnqueueAll(ctx, r.sources)
	if err != nil {
		return fmt.Errorf("failed to enqueue scraping jobs: %w", err)
	}

	ids := make([]string, 0, len(jobs))
	for _, j := range jobs {
		ids = append(ids, j.ID)
	}
	r.mu.Lock()
	r.jobIDs = ids
	r.mu.Unlock()
	return nil
}

// Stop requests cancellation of every job this run enqueued. Cancelling the
// run context does not reach the spider subprocesses; only a stop request on
// the job record does.
func (r *scrapingRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, len(r.jobIDs))
	copy(ids, r.jobIDs)
	r.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if _, err := r.manager.Stop(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *scrapingRunner) Status(ctx context.Context) (bool, map[string]interface{}, error) {
	r.mu.Lock()
	ids := r.jobIDs
	r.mu.Unlock()

	finished := 0
	failed := 0
	statuses := make(map[string]string, len(ids))
	for _, id := range ids {
		job, err := r.manager.GetJob(ctx, id)
		if err != nil {
			return false, nil, err
		}
		statuses[id] = job.Status
		if job.IsTerminal() {
			finished++
			if !job.Succeeded() && job.Status != models.JobStatusStopped {
				failed++
			}
		}
	}

	detail := map[string]interface{}{
		"total":    len(ids),
		"finished": finished,
		"failed":   failed,
		"jobs":     statuses,
	}
	return finished == len(ids), detail, nil
}

// NewPhotoRunner builds the photo fetch stage.
func NewPhotoRunner(fetcher *photos.Fetcher) Runner {
	return NewTaskRunner(func(ctx context.Context) (map[string]interface{}, error) {
		res, err := fetcher.ProcessPending(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"processed": res.Processed,
			"failed":    res.Failed,
		}, nil
	})
}

// NewDedupRunner builds the duplicate processing stage.
func NewDedupRunner(processor *dedup.Processor) Runner {
	return NewTaskRunner(func(ctx context.Context) (map[string]interface{}, error) {
		res, err := processor.ProcessAll(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"processed":  res.Processed,
			"duplicates": res.Duplicates,
			"new_unique": res.NewUnique,
			"errors":     res.Errors,
		}, nil
	})
}

// NewRealtorRunner builds the realtor detection stage.
func NewRealtorRunner(detector *realtor.Detector) Runner {
	return NewTaskRunner(func(ctx context.Context) (map[string]interface{}, error) {
		res, err := detector.Detect(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"realtors_found":   res.RealtorsFound,
			"realtors_removed": res.RealtorsRemoved,
			"listings_marked":  res.ListingsMarked,
		}, nil
	})
}

// NewIndexRefreshRunner builds the search reindex stage.
func NewIndexRefreshRunner(client *search.SearchClient, db *gorm.DB) Runner {
	return NewTaskRunner(func(ctx context.Context) (map[string]interface{}, error) {
		indexed, err := client.ReindexAll(db.WithContext(ctx))
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"indexed": indexed}, nil
	})
}
