package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Clock abstracts time so cadence can be simulated in tests without
// wall-clock waits.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// TimeOfDay is a daily trigger point in local time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (also accepts a bare "HH").
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	value = strings.TrimSpace(value)
	parts := strings.SplitN(value, ":", 2)
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", value)
	}
	minute := 0
	if len(parts) == 2 {
		minute, err = strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", value)
		}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Job runs once a day at At. Run receives a context cancelled at shutdown.
type Job struct {
	Name string
	At   TimeOfDay
	Run  func(ctx context.Context)
}

// Scheduler drives named daily jobs on independent cadences: one goroutine
// per job, so a stuck run only delays that job's own next trigger.
type Scheduler struct {
	Logger *logrus.Logger
	Clock  Clock

	jobs []Job
	wg   sync.WaitGroup
}

func New(logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		Logger: logger,
		Clock:  realClock{},
	}
}

func (s *Scheduler) Add(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches every job loop. Cancel ctx to stop; Wait blocks until the
// loops have exited (in-flight runs finish their current unit first).
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}(job)
		s.Logger.WithFields(logrus.Fields{
			"field": "Scheduler",
			"job":   job.Name,
			"at":    job.At.String(),
		}).Info("job scheduled")
	}
}

func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	for {
		now := s.Clock.Now()
		wait := nextRun(now, job.At).Sub(now)

		select {
		case <-ctx.Done():
			return
		case <-s.Clock.After(wait):
		}

		s.runOnce(ctx, job)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.WithFields(logrus.Fields{
				"field": "Scheduler",
				"job":   job.Name,
				"panic": fmt.Sprint(r),
			}).Error("job panicked")
		}
	}()

	started := s.Clock.Now()
	job.Run(ctx)
	s.Logger.WithFields(logrus.Fields{
		"field":    "Scheduler",
		"job":      job.Name,
		"duration": s.Clock.Now().Sub(started).String(),
	}).Info("job finished")
}

// nextRun returns the next occurrence of at strictly after now.
func nextRun(now time.Time, at TimeOfDay) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), at.Hour, at.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
