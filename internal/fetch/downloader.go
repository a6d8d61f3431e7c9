package fetch

import (
	"context"
	"czmlstream/internal/logger"
	"czmlstream/internal/models"
	"sync"
)

// DownloadTask is one queued fetch. The result is delivered on Result.
type DownloadTask struct {
	Request models.FetchRequest
	Result  chan<- DownloadResult
}

// DownloadResult carries the outcome of a DownloadTask.
type DownloadResult struct {
	Task  DownloadTask
	Data  []byte
	Error error
}

// Downloader runs fetches on a fixed pool of workers.
type Downloader struct {
	fetcher Fetcher
	logger  logger.Logger
	queue   chan DownloadTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloader creates a downloader and starts its workers.
func NewDownloader(fetcher Fetcher, log logger.Logger, workers int) *Downloader {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Downloader{
		fetcher: fetcher,
		logger:  log,
		queue:   make(chan DownloadTask, 64),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// QueueDownload hands a task to the workers without blocking the caller.
func (d *Downloader) QueueDownload(task DownloadTask) {
	select {
	case d.queue <- task:
	default:
		// Queue is full; park the hand-off on its own goroutine.
		go func() {
			select {
			case d.queue <- task:
			case <-d.ctx.Done():
			}
		}()
	}
}

// Stop cancels in-flight fetches and waits for the workers to exit.
func (d *Downloader) Stop() {
	d.cancel()
	d.wg.Wait()
}

func (d *Downloader) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.ctx.Done():
			d.logger.Debugf("Download worker %d stopped.", id)
			return
		case task := <-d.queue:
			d.run(task)
		}
	}
}

func (d *Downloader) run(task DownloadTask) {
	req := task.Request
	d.logger.Debugf("Worker fetching %s (request %s, generation %d)", req.Source, req.ID, req.Generation)

	data, err := d.fetcher.Fetch(d.ctx, req.Source)
	result := DownloadResult{Task: task, Data: data, Error: err}

	select {
	case task.Result <- result:
	case <-d.ctx.Done():
	}
}
