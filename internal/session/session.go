package session

import (
	"context"
	"czmlstream/internal/clock"
	"czmlstream/internal/config"
	"czmlstream/internal/czml"
	"czmlstream/internal/fetch"
	"czmlstream/internal/loader"
	"czmlstream/internal/logger"
	"czmlstream/internal/models"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrNotRunning is returned by queries made before Start or after Stop.
var ErrNotRunning = errors.New("session is not running")

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Name        string
	Offset      float64
	StartTime   time.Time
	CurrentTime time.Time
	Animating   bool
	Generation  uint64
	Tracked     string
	// Entities lists the merged entity ids in first-seen order.
	Entities []string
	Segments []loader.SegmentStatus
	// Failures counts fetch or merge failures since start.
	Failures int
	// Discarded counts completions dropped because a reset overtook them.
	Discarded int
}

// Option customizes a Session.
type Option func(*Session)

// WithObserver forwards every status change to o, on the session's event loop.
func WithObserver(o loader.Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithNow replaces the wall clock used to advance the simulated clock.
func WithNow(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session owns one stream: its clock, data source and loader. Every piece of
// that state is touched only by the session's event loop goroutine; other
// goroutines reach it through the exported methods, which queue a command.
type Session struct {
	Name   string
	Logger logger.Logger

	clock      *clock.Clock
	source     *czml.DataSource
	loader     *loader.Loader
	downloader *fetch.Downloader

	trackedProperty string
	tickInterval    time.Duration
	adoptDocClock   bool
	observer        loader.Observer
	now             func() time.Time

	resultsChan chan fetch.DownloadResult
	commands    chan func()

	// Loop-owned state
	lastStatusText string
	failures       int
	discarded      int

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New wires a session from configuration. Fetches go through fetcher.
func New(log logger.Logger, cfg *config.Config, fetcher fetch.Fetcher, opts ...Option) (*Session, error) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Name:            cfg.Name,
		Logger:          log,
		source:          czml.NewDataSource(log),
		trackedProperty: cfg.TrackedProperty,
		tickInterval:    cfg.TickInterval,
		adoptDocClock:   cfg.Clock.FromDocument,
		now:             time.Now,
		resultsChan:     make(chan fetch.DownloadResult, 100),
		commands:        make(chan func()),
		ctx:             ctx,
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.clock = clock.New(clock.Settings{
		Start:      cfg.Clock.Start,
		Stop:       cfg.Clock.Stop,
		Multiplier: cfg.Clock.Multiplier,
		Range:      cfg.Clock.Range,
	})

	l, err := loader.New(log, s.source, loader.RequesterFunc(s.request), cfg.Segments(), loader.Options{
		Preload:   cfg.Preload,
		TrackedID: cfg.TrackedEntity,
		Observer:  loader.ObserverFunc(s.statusChanged),
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create loader for session '%s': %w", cfg.Name, err)
	}
	s.loader = l
	s.downloader = fetch.NewDownloader(fetcher, log, cfg.Source.Workers)
	return s, nil
}

// Start kicks off the event loop and requests the first segment.
func (s *Session) Start() {
	s.Logger.Infof("Starting session %s: %d segments, preload %gs, tick %s",
		s.Name, len(s.loader.Segments()), s.loader.Preload(), s.tickInterval)
	s.running.Store(true)
	go s.loop()
}

// Stop ends the event loop and the download workers. In-flight fetches are abandoned.
func (s *Session) Stop() {
	s.Logger.Infof("Stopping session %s", s.Name)
	wasRunning := s.running.Swap(false)
	s.cancel()
	s.downloader.Stop()
	if wasRunning {
		<-s.done
	}
}

func (s *Session) loop() {
	defer close(s.done)

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	s.clock.Tick(s.now())
	s.loader.Start()

	for {
		select {
		case <-s.ctx.Done():
			s.Logger.Infof("Event loop for %s stopped.", s.Name)
			return
		case <-ticker.C:
			s.tick()
		case result := <-s.resultsChan:
			s.handleResult(result)
		case cmd := <-s.commands:
			cmd()
		}
	}
}

// request is the loader's Requester. It runs on the loop and never blocks.
func (s *Session) request(req models.FetchRequest) {
	s.downloader.QueueDownload(fetch.DownloadTask{Request: req, Result: s.resultsChan})
}

func (s *Session) tick() {
	offset := s.clock.Tick(s.now())
	s.loader.OnTick(offset)

	if s.trackedProperty == "" {
		return
	}
	if v, ok := s.loader.SampleTrackedProperty(s.clock.CurrentTime(), s.trackedProperty); ok {
		s.Logger.Debugf("%s at offset %.1f: %.2f", s.trackedProperty, offset, v.Float())
	}
}

func (s *Session) handleResult(result fetch.DownloadResult) {
	err := s.loader.Complete(result.Task.Request, result.Data, result.Error)
	switch {
	case errors.Is(err, loader.ErrStaleCompletion):
		s.discarded++
		return
	case err != nil:
		s.failures++
		return
	}

	if s.adoptDocClock {
		if dc, ok := s.source.Clock(); ok {
			s.adoptDocumentClock(dc)
		}
	}
}

// adoptDocumentClock switches to the first document clock seen, keeping the
// current offset and the paused or running state.
func (s *Session) adoptDocumentClock(dc czml.DocumentClock) {
	policy, err := clock.ParseRange(dc.Range)
	if err != nil {
		s.Logger.Warnf("Ignoring document clock range: %v", err)
	}
	offset := s.clock.Offset()
	animating := s.clock.Animating()
	s.clock = clock.New(clock.Settings{
		Start:      dc.Start,
		Stop:       dc.Stop,
		Multiplier: dc.Multiplier,
		Range:      policy,
	})
	s.clock.Seek(offset)
	s.clock.SetAnimating(animating)
	s.clock.Tick(s.now())
	s.adoptDocClock = false
	s.Logger.Infof("Adopted document clock starting %s, multiplier %g", dc.Start.Format(time.RFC3339), dc.Multiplier)
}

func (s *Session) statusChanged(statuses []loader.SegmentStatus) {
	text := loader.FormatStatus(statuses)
	if text != s.lastStatusText {
		s.lastStatusText = text
		s.Logger.Infof("Segment status for %s:\n%s", s.Name, text)
	}
	if s.observer != nil {
		s.observer.StatusChanged(statuses)
	}
}

// do runs fn on the event loop and waits for it to finish.
func (s *Session) do(fn func()) error {
	if !s.running.Load() {
		return ErrNotRunning
	}
	finished := make(chan struct{})
	select {
	case s.commands <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrNotRunning
	}
	<-finished
	return nil
}

// Reset rewinds the clock and restarts loading from the first segment.
func (s *Session) Reset() error {
	return s.do(func() {
		s.clock.Reset()
		s.clock.Tick(s.now())
		s.loader.Reset()
	})
}

// Seek jumps the clock to offset seconds and evaluates the segment windows
// straight away, without waiting for the next tick.
func (s *Session) Seek(offset float64) error {
	return s.do(func() {
		s.clock.Seek(offset)
		s.loader.OnTick(s.clock.Offset())
	})
}

// SetAnimating pauses or resumes the clock.
func (s *Session) SetAnimating(animate bool) error {
	return s.do(func() {
		s.clock.SetAnimating(animate)
		s.clock.Tick(s.now())
	})
}

// Sample reads a property of the tracked entity at the current clock time.
func (s *Session) Sample(name string) (czml.Value, bool, error) {
	var (
		v  czml.Value
		ok bool
	)
	err := s.do(func() {
		v, ok = s.loader.SampleTrackedProperty(s.clock.CurrentTime(), name)
	})
	return v, ok, err
}

// TrackedProperty is the property sampled on every tick.
func (s *Session) TrackedProperty() string {
	return s.trackedProperty
}

// Snapshot captures the session state.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() {
		snap = Snapshot{
			Name:        s.Name,
			Offset:      s.clock.Offset(),
			StartTime:   s.clock.StartTime(),
			CurrentTime: s.clock.CurrentTime(),
			Animating:   s.clock.Animating(),
			Generation:  s.loader.Generation(),
			Segments:    s.loader.Status(),
			Failures:    s.failures,
			Discarded:   s.discarded,
		}
		if e, ok := s.loader.Tracked(); ok {
			snap.Tracked = e.ID
		}
		for _, e := range s.source.Entities() {
			snap.Entities = append(snap.Entities, e.ID)
		}
	})
	return snap, err
}
