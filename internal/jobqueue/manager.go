package jobqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

// ErrScrapingDisabled is returned by Enqueue when the scraping stage is
// switched off in configuration.
var ErrScrapingDisabled = errors.New("jobqueue: scraping is disabled")

// Manager is the producer side of the scrape queue. It creates job records,
// pushes task ids for workers to claim and answers status and log queries.
type Manager struct {
	store   Store
	cfg     config.QueueConfig
	enabled bool
}

func NewManager(store Store, cfg config.QueueConfig, scrapingEnabled bool) *Manager {
	return &Manager{store: store, cfg: cfg, enabled: scrapingEnabled}
}

// Enqueue creates a pending job for the named source config and hands it to
// the worker pool.
func (m *Manager) Enqueue(ctx context.Context, configName string) (*models.ScrapeJob, error) {
	if !m.enabled {
		return nil, ErrScrapingDisabled
	}

	spider, ok := m.cfg.ConfigToSpider[configName]
	if !ok {
		return nil, fmt.Errorf("jobqueue: unknown source config %q", configName)
	}

	job := &models.ScrapeJob{
		ID:        uuid.New().String(),
		Config:    configName,
		Spider:    spider,
		Status:    models.JobStatusPending,
		CreatedAt: time.Now(),
	}
	if err := m.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := m.store.LPush(ctx, tasksKey, job.ID); err != nil {
		return nil, fmt.Errorf("failed to push task: %w", err)
	}

	log.Printf("JobQueue: enqueued %s for config %s (spider %s)", job.ID, configName, spider)
	return job, nil
}

// EnqueueAll enqueues one job per source. Sources that fail to enqueue are
// skipped so one bad config does not block the rest of the run.
func (m *Manager) EnqueueAll(ctx context.Context, sources []string) ([]*models.ScrapeJob, error) {
	if !m.enabled {
		return nil, ErrScrapingDisabled
	}

	var jobs []*models.ScrapeJob
	for _, src := range sources {
		job, err := m.Enqueue(ctx, src)
		if err != nil {
			log.Printf("JobQueue: failed to enqueue %s: %v", src, err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// GetJob returns the stored record for a job id.
func (m *Manager) GetJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	raw, err := m.store.HGet(ctx, jobsKey, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("jobqueue: job %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}

	var job models.ScrapeJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

// Jobs returns every known job record, newest first.
func (m *Manager) Jobs(ctx context.Context) ([]*models.ScrapeJob, error) {
	all, err := m.store.HGetAll(ctx, jobsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*models.ScrapeJob, 0, len(all))
	for id, raw := range all {
		var job models.ScrapeJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			log.Printf("JobQueue: skipping undecodable job %s: %v", id, err)
			continue
		}
		jobs = append(jobs, &job)
	}
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs, nil
}

// Log returns up to limit most recent log lines for a job. limit <= 0 means
// all lines.
func (m *Manager) Log(ctx context.Context, id string, limit int) ([]string, error) {
	if _, err := m.GetJob(ctx, id); err != nil {
		return nil, err
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	lines, err := m.store.LRange(ctx, logKeyPrefix+id, start, -1)
	if err != nil {
		return nil, fmt.Errorf("failed to load job log: %w", err)
	}
	return lines, nil
}

// Stop requests cancellation of a job. Pending jobs are stopped directly;
// running jobs get a flag that the worker observes on its next check.
func (m *Manager) Stop(ctx context.Context, id string) (*models.ScrapeJob, error) {
	job, err := m.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	job.StopRequested = true
	if job.Status == models.JobStatusPending {
		now := time.Now()
		job.Status = models.JobStatusStopped
		job.FinishedAt = &now
	}
	if err := m.SaveJob(ctx, job); err != nil {
		return nil, err
	}

	log.Printf("JobQueue: stop requested for %s (status %s)", id, job.Status)
	return job, nil
}

// StopAll requests cancellation of every non-terminal job.
func (m *Manager) StopAll(ctx context.Context) (int, error) {
	jobs, err := m.Jobs(ctx)
	if err != nil {
		return 0, err
	}

	stopped := 0
	for _, job := range jobs {
		if job.IsTerminal() {
			continue
		}
		if _, err := m.Stop(ctx, job.ID); err != nil {
			log.Printf("JobQueue: failed to stop %s: %v", job.ID, err)
			continue
		}
		stopped++
	}
	return stopped, nil
}

// Remove deletes a terminal job record together with its log. Active jobs
// must be stopped first.
func (m *Manager) Remove(ctx context.Context, id string) error {
	job, err := m.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("jobqueue: job %s is %s, stop it before removing", id, job.Status)
	}

	if err := m.store.Del(ctx, logKeyPrefix+id); err != nil {
		return fmt.Errorf("failed to delete job log: %w", err)
	}
	if err := m.store.HDel(ctx, jobsKey, id); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", id, err)
	}
	log.Printf("JobQueue: removed %s", id)
	return nil
}

// SaveJob persists the job record. Shared with the worker, which updates the
// same record through its lifecycle.
func (m *Manager) SaveJob(ctx context.Context, job *models.ScrapeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := m.store.HSet(ctx, jobsKey, job.ID, string(data)); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
