// Package batch drives multiple downloads concurrently through a bounded
// worker pool, for callers that want to queue a batch of URLs instead of
// running veld.Downloader one at a time.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	veld "github.com/mohaanymo/veld"
)

// State is the lifecycle state of a queued Job.
type State int

const (
	StatePending State = iota
	StateParsing
	StateDownloading
	StateMuxing
	StateCompleted
	StateFailed
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateParsing:
		return "parsing"
	case StateDownloading:
		return "downloading"
	case StateMuxing:
		return "muxing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Job is one queued download, tracked from submission through completion.
type Job struct {
	ID       string
	URL      string
	FileName string
	Options  []veld.Option

	State       State
	Err         error
	Progress    Progress
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time

	Tracks         []*veld.Track
	SelectedTracks []*veld.Track

	downloader *veld.Downloader
	cancel     context.CancelFunc
	mu         sync.RWMutex
}

// Snapshot returns a copy of the job's mutable fields, safe to read
// concurrently with an in-flight download.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Job{
		ID:             j.ID,
		URL:            j.URL,
		FileName:       j.FileName,
		Options:        j.Options,
		State:          j.State,
		Err:            j.Err,
		Progress:       j.Progress,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
		Tracks:         j.Tracks,
		SelectedTracks: j.SelectedTracks,
	}
}

// Progress holds progress information for one job.
type Progress struct {
	TotalSegments     int
	CompletedSegments int
	DownloadedBytes   int64
	Speed             float64 // bytes per second
	ETA               time.Duration
	CurrentTrack      string
}

// Percent returns the download progress as a percentage.
func (p Progress) Percent() float64 {
	if p.TotalSegments == 0 {
		return 0
	}
	return float64(p.CompletedSegments) / float64(p.TotalSegments) * 100
}

// Manager runs queued jobs with bounded concurrency.
type Manager struct {
	title         string
	maxConcurrent int

	jobs      sync.Map // map[string]*Job
	jobOrder  []string
	orderMu   sync.RWMutex

	queue   chan *Job
	active  atomic.Int32
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	onStateChange func(job *Job)
	onProgress    func(job *Job)
	onComplete    func(job *Job)
	onError       func(job *Job, err error)

	defaultOptions []veld.Option
}

// Option configures a Manager.
type Option func(*Manager)

// WithTitle sets a display title for the manager (used by the TUI header).
func WithTitle(t string) Option {
	return func(m *Manager) { m.title = t }
}

// WithMaxConcurrent bounds the number of jobs downloading at once, clamped
// to [1, 20].
func WithMaxConcurrent(n int) Option {
	return func(m *Manager) {
		if n < 1 {
			n = 1
		}
		if n > 20 {
			n = 20
		}
		m.maxConcurrent = n
	}
}

// WithDefaultOptions sets veld.Options applied to every job ahead of its
// own per-job options.
func WithDefaultOptions(opts ...veld.Option) Option {
	return func(m *Manager) { m.defaultOptions = opts }
}

// WithOnStateChange registers a callback fired whenever a job's State changes.
func WithOnStateChange(fn func(job *Job)) Option {
	return func(m *Manager) { m.onStateChange = fn }
}

// WithOnProgress registers a callback fired on every progress update.
func WithOnProgress(fn func(job *Job)) Option {
	return func(m *Manager) { m.onProgress = fn }
}

// WithOnComplete registers a callback fired when a job finishes successfully.
func WithOnComplete(fn func(job *Job)) Option {
	return func(m *Manager) { m.onComplete = fn }
}

// WithOnError registers a callback fired when a job fails.
func WithOnError(fn func(job *Job, err error)) Option {
	return func(m *Manager) { m.onError = fn }
}

// NewManager creates a Manager with a 3-way concurrency default.
func NewManager(opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		maxConcurrent: 3,
		queue:         make(chan *Job, 1000),
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Title returns the manager's display title, if one was set.
func (m *Manager) Title() string { return m.title }

// Start launches the worker pool. Calling Start on an already-running
// Manager is a no-op.
func (m *Manager) Start() {
	if m.running.Swap(true) {
		return
	}
	for i := 0; i < m.maxConcurrent; i++ {
		m.wg.Add(1)
		go m.worker()
	}
}

// Stop drains the queue, cancels any in-flight downloads, and waits for
// workers to exit.
func (m *Manager) Stop() {
	if !m.running.Swap(false) {
		return
	}
	close(m.queue)
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for job := range m.queue {
		select {
		case <-m.ctx.Done():
			return
		default:
			m.active.Add(1)
			m.runJob(job)
			m.active.Add(-1)
		}
	}
}

// Submit queues a new download job. id must be unique among jobs currently
// tracked by the Manager.
func (m *Manager) Submit(id, url, filename string, opts ...veld.Option) (*Job, error) {
	if !m.running.Load() {
		return nil, fmt.Errorf("batch: manager not started, call Start() first")
	}
	if _, exists := m.jobs.Load(id); exists {
		return nil, fmt.Errorf("batch: job %q already queued", id)
	}

	allOpts := append(append([]veld.Option{}, m.defaultOptions...), opts...)
	job := &Job{
		ID:        id,
		URL:       url,
		FileName:  filename,
		Options:   allOpts,
		State:     StatePending,
		CreatedAt: time.Now(),
	}

	m.jobs.Store(id, job)
	m.orderMu.Lock()
	m.jobOrder = append(m.jobOrder, id)
	m.orderMu.Unlock()

	select {
	case m.queue <- job:
	default:
		return nil, fmt.Errorf("batch: queue is full")
	}
	return job, nil
}

// Job returns the job with the given ID, or nil if none is tracked.
func (m *Manager) Job(id string) *Job {
	if j, ok := m.jobs.Load(id); ok {
		return j.(*Job)
	}
	return nil
}

// Jobs returns all tracked jobs in submission order.
func (m *Manager) Jobs() []*Job {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	out := make([]*Job, 0, len(m.jobOrder))
	for _, id := range m.jobOrder {
		if j, ok := m.jobs.Load(id); ok {
			out = append(out, j.(*Job))
		}
	}
	return out
}

// ActiveJobs returns jobs currently parsing, downloading, or muxing.
func (m *Manager) ActiveJobs() []*Job {
	var active []*Job
	m.jobs.Range(func(_, value any) bool {
		job := value.(*Job)
		switch job.State {
		case StateDownloading, StateParsing, StateMuxing:
			active = append(active, job)
		}
		return true
	})
	return active
}

// Cancel cancels a specific job.
func (m *Manager) Cancel(id string) error {
	j, ok := m.jobs.Load(id)
	if !ok {
		return fmt.Errorf("batch: job %q not found", id)
	}
	job := j.(*Job)

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.State == StateCompleted || job.State == StateFailed {
		return fmt.Errorf("batch: job already finished")
	}
	if job.cancel != nil {
		job.cancel()
	}
	job.State = StateCanceled

	if m.onStateChange != nil {
		m.onStateChange(job)
	}
	return nil
}

// Remove drops a finished job from the tracked set.
func (m *Manager) Remove(id string) error {
	j, ok := m.jobs.Load(id)
	if !ok {
		return fmt.Errorf("batch: job %q not found", id)
	}
	job := j.(*Job)
	switch job.State {
	case StateDownloading, StateParsing, StateMuxing:
		return fmt.Errorf("batch: cannot remove an active job")
	}

	m.jobs.Delete(id)
	m.orderMu.Lock()
	for i, id2 := range m.jobOrder {
		if id2 == id {
			m.jobOrder = append(m.jobOrder[:i], m.jobOrder[i+1:]...)
			break
		}
	}
	m.orderMu.Unlock()
	return nil
}

// Stats summarizes the state of all tracked jobs.
type Stats struct {
	Total     int
	Pending   int
	Active    int
	Completed int
	Failed    int
	Canceled  int
}

// Stats computes the current job-state counts.
func (m *Manager) Stats() Stats {
	var s Stats
	m.jobs.Range(func(_, value any) bool {
		job := value.(*Job)
		s.Total++
		switch job.State {
		case StatePending:
			s.Pending++
		case StateDownloading, StateParsing, StateMuxing:
			s.Active++
		case StateCompleted:
			s.Completed++
		case StateFailed:
			s.Failed++
		case StateCanceled:
			s.Canceled++
		}
		return true
	})
	return s
}

// runJob drives a single job through parse, select, and download.
func (m *Manager) runJob(job *Job) {
	ctx, cancel := context.WithCancel(m.ctx)
	job.cancel = cancel
	defer cancel()

	job.mu.Lock()
	job.StartedAt = time.Now()
	job.State = StateParsing
	job.mu.Unlock()
	m.notify(job)

	opts := append([]veld.Option{
		veld.WithURL(job.URL),
		veld.WithFileName(job.FileName),
	}, job.Options...)

	d, err := veld.New(opts...)
	if err != nil {
		m.fail(job, fmt.Errorf("create downloader: %w", err))
		return
	}
	job.downloader = d
	defer d.Close()

	if err := d.Parse(ctx); err != nil {
		m.fail(job, fmt.Errorf("parse manifest: %w", err))
		return
	}

	job.mu.Lock()
	job.Tracks = d.Tracks()
	job.mu.Unlock()

	if err := d.SelectTracks(); err != nil {
		m.fail(job, fmt.Errorf("select tracks: %w", err))
		return
	}

	job.mu.Lock()
	job.SelectedTracks = d.SelectedTracks()
	job.State = StateDownloading

	total := 0
	for _, t := range job.SelectedTracks {
		total += t.SegmentCount()
	}
	job.Progress.TotalSegments = total
	job.mu.Unlock()
	m.notify(job)

	start := time.Now()
	done := make(chan struct{})
	go func() {
		defer close(done)
		completed := 0
		var bytes int64
		for p := range d.Progress() {
			if !p.Completed {
				continue
			}
			completed++
			bytes += p.BytesLoaded

			job.mu.Lock()
			job.Progress.CompletedSegments = completed
			job.Progress.DownloadedBytes = bytes

			if elapsed := time.Since(start).Seconds(); elapsed > 0 {
				job.Progress.Speed = float64(bytes) / elapsed
			}
			if remaining := job.Progress.TotalSegments - completed; job.Progress.Speed > 0 && completed > 0 {
				avg := float64(bytes) / float64(completed)
				job.Progress.ETA = time.Duration(float64(remaining) * avg / job.Progress.Speed * float64(time.Second))
			}
			job.Progress.CurrentTrack = p.TrackID
			job.mu.Unlock()

			if m.onProgress != nil {
				m.onProgress(job)
			}
		}
	}()

	err = d.Download(ctx)
	<-done
	if err != nil {
		if ctx.Err() != nil {
			job.mu.Lock()
			job.State = StateCanceled
			job.mu.Unlock()
			m.notify(job)
			return
		}
		m.fail(job, fmt.Errorf("download: %w", err))
		return
	}

	job.mu.Lock()
	job.State = StateCompleted
	job.CompletedAt = time.Now()
	job.mu.Unlock()
	m.notify(job)

	if m.onComplete != nil {
		m.onComplete(job)
	}
}

func (m *Manager) fail(job *Job, err error) {
	job.mu.Lock()
	job.State = StateFailed
	job.Err = err
	job.CompletedAt = time.Now()
	job.mu.Unlock()
	m.notify(job)

	if m.onError != nil {
		m.onError(job, err)
	}
}

func (m *Manager) notify(job *Job) {
	if m.onStateChange != nil {
		m.onStateChange(job)
	}
}

// WaitFor blocks until the named job reaches a terminal state, returning
// its error (nil on success).
func (m *Manager) WaitFor(id string) error {
	for {
		job := m.Job(id)
		if job == nil {
			return fmt.Errorf("batch: job %q not found", id)
		}

		job.mu.RLock()
		state := job.State
		err := job.Err
		job.mu.RUnlock()

		switch state {
		case StateCompleted:
			return nil
		case StateFailed:
			return err
		case StateCanceled:
			return fmt.Errorf("batch: job canceled")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

// WaitAll blocks until no jobs are pending or active.
func (m *Manager) WaitAll() {
	for {
		s := m.Stats()
		if s.Pending == 0 && s.Active == 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
}
