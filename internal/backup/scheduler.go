package backup

import (
	"context"

	"github.com/robfig/cron/v3"

	"orchestrall-backup/internal/logging"
)

// Scheduler runs backup and retention jobs on cron schedules. A tick that
// fires while the previous run of the same job is still in flight is
// skipped, never queued, so slow backups cannot pile up behind each other.
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger
}

// NewScheduler creates a scheduler. Jobs are wrapped to recover from panics
// and to skip overlapping runs.
func NewScheduler(logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	cronLogger := &cronLogAdapter{logger: logger}
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cronLogger),
			cron.Recover(cronLogger),
		)),
		logger: logger,
	}
}

// AddJob registers fn under a cron expression. Errors returned by fn are
// logged; the schedule keeps firing.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Debugf("Scheduled job %s starting", name)
		if err := fn(context.Background()); err != nil {
			s.logger.Errorf("Scheduled job %s failed: %v", name, err)
			return
		}
		s.logger.Debugf("Scheduled job %s finished", name)
	})
	if err != nil {
		return NewValidationError("invalid cron expression for job "+name, err)
	}
	return nil
}

// Start begins firing schedules in a background goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// cronLogAdapter bridges the cron logger interface onto the engine logger.
type cronLogAdapter struct {
	logger *logging.Logger
}

func (a *cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.WithFields(fieldsFromPairs(keysAndValues)).Debug(msg)
}

func (a *cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	fields := fieldsFromPairs(keysAndValues)
	fields["error"] = err.Error()
	a.logger.WithFields(fields).Error(msg)
}

func fieldsFromPairs(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
