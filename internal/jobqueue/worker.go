package jobqueue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"realty-aggregator/internal/config"
	"realty-aggregator/internal/models"
)

const claimTimeout = 5 * time.Second

// Worker is the consumer side of the scrape queue. It claims task ids,
// spawns the spider process for each and reports progress back through the
// shared job record and log list.
type Worker struct {
	store Store
	cfg   config.QueueConfig
}

func NewWorker(store Store, cfg config.QueueConfig) *Worker {
	return &Worker{store: store, cfg: cfg}
}

// Run claims and executes jobs until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("Worker: started, polling %s", tasksKey)
	for {
		select {
		case <-ctx.Done():
			log.Printf("Worker: shutting down")
			return ctx.Err()
		default:
		}

		id, err := w.store.BRPop(ctx, claimTimeout, tasksKey)
		if err != nil {
			if errors.Is(err, ErrNotFound) || errors.Is(err, context.Canceled) {
				continue
			}
			log.Printf("Worker: claim failed: %v", err)
			time.Sleep(claimTimeout)
			continue
		}

		if err := w.runJob(ctx, id); err != nil {
			log.Printf("Worker: job %s failed: %v", id, err)
		}
	}
}

// runJob executes one claimed job to a terminal status.
func (w *Worker) runJob(ctx context.Context, id string) error {
	job, err := w.loadJob(ctx, id)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		// Stopされた後にキューから取り出した場合
		return nil
	}
	if job.StopRequested {
		return w.finishJob(ctx, job, models.JobStatusStopped, nil)
	}

	now := time.Now()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	if err := w.saveJob(ctx, job); err != nil {
		return err
	}
	w.appendLog(ctx, job.ID, fmt.Sprintf("worker: starting spider %s (config %s)", job.Spider, job.Config))

	cmd := exec.Command(w.cfg.SpiderCommand, "crawl", job.Spider, "-a", "config="+job.Config)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return w.finishJob(ctx, job, models.JobStatusFailed, nil)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		w.appendLog(ctx, job.ID, fmt.Sprintf("worker: failed to start process: %v", err))
		return w.finishJob(ctx, job, models.JobStatusFailed, nil)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.streamOutput(ctx, job.ID, stdout)
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	stopped := w.supervise(ctx, job.ID, cmd, done)
	wg.Wait()

	rc := 0
	if cmd.ProcessState != nil {
		rc = cmd.ProcessState.ExitCode()
	}

	status := w.terminalStatus(ctx, job.ID, rc, stopped)
	return w.finishJob(ctx, job, status, &rc)
}

// supervise waits for process exit while checking the stop flag. On a stop
// request the process gets SIGTERM and, after the grace period, SIGKILL.
// Returns true when the job was stopped rather than having exited on its own.
func (w *Worker) supervise(ctx context.Context, id string, cmd *exec.Cmd, done <-chan error) bool {
	check := time.NewTicker(w.cfg.GetStopCheckInterval())
	defer check.Stop()

	for {
		select {
		case <-done:
			return false
		case <-ctx.Done():
			w.terminate(cmd, done)
			return true
		case <-check.C:
			job, err := w.loadJob(ctx, id)
			if err != nil {
				log.Printf("Worker: stop check for %s failed: %v", id, err)
				continue
			}
			if job.StopRequested {
				w.appendLog(ctx, id, "worker: stop requested, terminating")
				w.terminate(cmd, done)
				return true
			}
		}
	}
}

func (w *Worker) terminate(cmd *exec.Cmd, done <-chan error) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-done:
	case <-time.After(w.cfg.GetKillGrace()):
		_ = cmd.Process.Kill()
		<-done
	}
}

// streamOutput appends each process output line to the job's log list.
func (w *Worker) streamOutput(ctx context.Context, id string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		w.appendLog(ctx, id, scanner.Text())
	}
}

// terminalStatus maps the exit outcome to a job status, downgrading clean
// and failed runs alike when the log shows parsing errors.
func (w *Worker) terminalStatus(ctx context.Context, id string, returnCode int, stopped bool) string {
	if stopped {
		return models.JobStatusStopped
	}

	hadParsingErrors := w.logHasParsingErrors(ctx, id)
	if returnCode == 0 {
		if hadParsingErrors {
			return models.JobStatusFinishedWithParsingErrors
		}
		return models.JobStatusFinished
	}
	if hadParsingErrors {
		return models.JobStatusFailedWithParsingErrors
	}
	return models.JobStatusFailed
}

func (w *Worker) logHasParsingErrors(ctx context.Context, id string) bool {
	if len(w.cfg.ParsingErrorPatterns) == 0 {
		return false
	}
	lines, err := w.store.LRange(ctx, logKeyPrefix+id, 0, -1)
	if err != nil {
		log.Printf("Worker: failed to scan log of %s: %v", id, err)
		return false
	}
	for _, line := range lines {
		for _, pattern := range w.cfg.ParsingErrorPatterns {
			if strings.Contains(line, pattern) {
				return true
			}
		}
	}
	return false
}

func (w *Worker) finishJob(ctx context.Context, job *models.ScrapeJob, status string, returnCode *int) error {
	// シャットダウン中でも最終状態は書き残す
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), claimTimeout)
		defer cancel()
	}
	now := time.Now()
	job.Status = status
	job.FinishedAt = &now
	job.ReturnCode = returnCode
	w.appendLog(ctx, job.ID, "worker: job "+status)
	log.Printf("Worker: job %s %s", job.ID, status)
	return w.saveJob(ctx, job)
}

func (w *Worker) loadJob(ctx context.Context, id string) (*models.ScrapeJob, error) {
	raw, err := w.store.HGet(ctx, jobsKey, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", id, err)
	}
	var job models.ScrapeJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
	}
	return &job, nil
}

func (w *Worker) saveJob(ctx context.Context, job *models.ScrapeJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	return w.store.HSet(ctx, jobsKey, job.ID, string(data))
}

func (w *Worker) appendLog(ctx context.Context, id, line string) {
	if err := w.store.RPush(ctx, logKeyPrefix+id, line); err != nil {
		log.Printf("Worker: failed to append log for %s: %v", id, err)
	}
}
