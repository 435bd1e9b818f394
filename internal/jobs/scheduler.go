package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Scheduler pushes periodic maintenance tasks onto the queue; the consumer
// does the work.
type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	spec  string
	log   zerolog.Logger
}

func NewScheduler(queue Enqueuer, spec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		queue: queue,
		spec:  spec,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.queue == nil || s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.enqueueSessionPurge); err != nil {
		return fmt.Errorf("schedule session purge %q: %w", s.spec, err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits up to five seconds for a running job.
func (s *Scheduler) Stop() {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) enqueueSessionPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.queue.Enqueue(ctx, Task{Type: TaskSessionsPurge}); err != nil {
		s.log.Error().Err(err).Msg("enqueue session purge failed")
	}
}
