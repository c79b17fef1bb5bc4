package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/GoSim-25-26J-441/simtune/pkg/models"
)

var (
	ErrNoActiveRun = errors.New("no active run")
	ErrRunTerminal = errors.New("run already finished")
)

// DefaultHistoryLimit bounds the number of evaluations kept for /history
const DefaultHistoryLimit = 10000

// Progress is a point-in-time view of the current run
type Progress struct {
	Run    *models.Run        `json:"run"`
	Latest *models.Evaluation `json:"latest,omitempty"`
	Stats  *models.RunStats   `json:"stats,omitempty"`
}

// Store holds the progress of the run being optimized and fans
// evaluations out to stream subscribers.
type Store struct {
	mu      sync.RWMutex
	run     *models.Run
	latest  *models.Evaluation
	history *models.EvaluationLog
	stop    context.CancelFunc
	stats   func() *models.RunStats

	subs    map[int]chan models.Evaluation
	nextSub int
}

func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Store{
		history: models.NewEvaluationLog(historyLimit),
		subs:    make(map[int]chan models.Evaluation),
	}
}

// Begin registers run as the current run. stop cancels the optimization.
func (s *Store) Begin(run *models.Run, stop context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := run.Clone()
	if r.Status == "" {
		r.Status = models.RunStatusRunning
	}
	if r.StartTime.IsZero() {
		r.StartTime = time.Now().UTC()
	}
	s.run = r
	s.latest = nil
	s.stop = stop
}

// SetStatsSource installs the function that summarizes the metrics history
func (s *Store) SetStatsSource(fn func() *models.RunStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats = fn
}

// Observe records one evaluation of the current run
func (s *Store) Observe(ev models.Evaluation) {
	s.history.Append(ev)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		s.run.Evaluations = ev.Index
		f := ev.BestFitness
		s.run.BestFitness = &f
		if ev.Improved {
			s.run.BestX = append([]float64(nil), ev.X...)
		}
	}
	e := ev
	s.latest = &e
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// slow subscriber; drop
		}
	}
}

// Update applies fn to the current run under the store lock
func (s *Store) Update(fn func(run *models.Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil {
		fn(s.run)
	}
}

// Finish marks the current run terminal and closes every subscription
func (s *Store) Finish(status models.RunStatus, reason string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run != nil {
		s.run.Status = status
		s.run.StopReason = reason
		s.run.EndTime = time.Now().UTC()
		if err != nil {
			s.run.Error = err.Error()
		}
	}
	s.stop = nil
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// Progress returns a snapshot of the current run. The stats source runs
// after the store lock is released.
func (s *Store) Progress() (*Progress, error) {
	s.mu.RLock()
	if s.run == nil {
		s.mu.RUnlock()
		return nil, ErrNoActiveRun
	}
	p := &Progress{Run: s.run.Clone()}
	if s.latest != nil {
		e := *s.latest
		e.X = append([]float64(nil), s.latest.X...)
		p.Latest = &e
	}
	stats := s.stats
	s.mu.RUnlock()

	if stats != nil {
		p.Stats = stats()
	}
	return p, nil
}

// History returns up to limit most recent evaluations, oldest first
func (s *Store) History(limit int) []models.Evaluation {
	return s.history.Last(limit)
}

// Subscribe returns a channel receiving every subsequent evaluation and a
// function that cancels the subscription. The channel closes when the run
// finishes. Evaluations are dropped while the buffer is full.
func (s *Store) Subscribe(buffer int) (<-chan models.Evaluation, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan models.Evaluation, buffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != nil && s.run.Status.IsTerminal() {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				close(c)
				delete(s.subs, id)
			}
		})
	}
}

// Stop requests the current run to stop. The run keeps its best point and
// finishes as interrupted.
func (s *Store) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run == nil {
		return ErrNoActiveRun
	}
	if s.run.Status.IsTerminal() || s.stop == nil {
		return ErrRunTerminal
	}
	if s.run.Metadata == nil {
		s.run.Metadata = make(map[string]string)
	}
	s.run.Metadata["stop_requested"] = time.Now().UTC().Format(time.RFC3339)
	s.stop()
	return nil
}
