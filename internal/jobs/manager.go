package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/valpere/epubtran/internal"
	"github.com/valpere/epubtran/internal/config"
	"github.com/valpere/epubtran/internal/store"
)

// Submission is a book handed to the Manager.
type Submission struct {
	InputName  string
	Input      []byte
	TargetLang string
	Limits     config.LimitsConfig
	APIKey     string
}

// Manager runs every submitted job on its own goroutine. Jobs share
// nothing but the store.
type Manager struct {
	runner *Runner
	store  *store.Store

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	live map[string]*Job
}

// NewManager creates a Manager whose jobs stop when ctx is done or Shutdown
// is called.
func NewManager(ctx context.Context, runner *Runner, st *store.Store) *Manager {
	ctx, cancel := context.WithCancel(ctx)
	return &Manager{
		runner: runner,
		store:  st,
		ctx:    ctx,
		cancel: cancel,
		live:   make(map[string]*Job),
	}
}

// Submit records a pending job and starts it. Output files are named after
// the job id.
func (m *Manager) Submit(sub Submission) (internal.JobRecord, error) {
	if strings.TrimSpace(sub.TargetLang) == "" {
		return internal.JobRecord{}, fmt.Errorf("target language is required")
	}
	if len(sub.Input) == 0 {
		return internal.JobRecord{}, fmt.Errorf("input book is empty")
	}
	if errs := sub.Limits.Validate(); len(errs) > 0 {
		return internal.JobRecord{}, fmt.Errorf("invalid job limits: %w", errors.Join(errs...))
	}

	j, err := m.runner.Create(m.ctx, internal.JobRecord{
		InputName:  sub.InputName,
		TargetLang: strings.TrimSpace(sub.TargetLang),
	})
	if err != nil {
		return internal.JobRecord{}, err
	}

	m.mu.Lock()
	m.live[j.ID()] = j
	m.mu.Unlock()

	req := Request{Input: sub.Input, Limits: sub.Limits, APIKey: sub.APIKey, Name: j.ID()}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.live, j.ID())
			m.mu.Unlock()
		}()
		// failures are recorded on the job
		_ = m.runner.Run(m.ctx, j, req)
	}()

	return j.Snapshot(), nil
}

// Get returns the live view of a running job, or the stored record.
func (m *Manager) Get(ctx context.Context, id string) (internal.JobRecord, error) {
	m.mu.RLock()
	j, ok := m.live[id]
	m.mu.RUnlock()
	if ok {
		return j.Snapshot(), nil
	}

	rec, err := m.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return internal.JobRecord{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return internal.JobRecord{}, err
	}
	return *rec, nil
}

// List returns stored jobs, newest first.
func (m *Manager) List(ctx context.Context, limit int) ([]internal.JobRecord, error) {
	return m.store.ListJobs(ctx, limit)
}

// Wait blocks until every started job has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels running jobs and waits for them to record their state.
func (m *Manager) Shutdown() {
	m.cancel()
	m.wg.Wait()
}
