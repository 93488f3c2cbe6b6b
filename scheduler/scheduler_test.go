package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logrustest "github.com/sirupsen/logrus/hooks/test"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestParseTimeOfDay(t *testing.T) {
	cases := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{in: "02:00", want: TimeOfDay{Hour: 2}},
		{in: "9:30", want: TimeOfDay{Hour: 9, Minute: 30}},
		{in: "23:59", want: TimeOfDay{Hour: 23, Minute: 59}},
		{in: "10", want: TimeOfDay{Hour: 10}},
		{in: " 10:00 ", want: TimeOfDay{Hour: 10}},
		{in: "24:00", wantErr: true},
		{in: "10:60", wantErr: true},
		{in: "ten", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, c := range cases {
		got, err := ParseTimeOfDay(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseTimeOfDay(%q): expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)

	later := nextRun(now, TimeOfDay{Hour: 10})
	if later.Day() != 1 || later.Hour() != 10 {
		t.Errorf("same-day trigger: got %v", later)
	}

	earlier := nextRun(now, TimeOfDay{Hour: 2})
	if earlier.Day() != 2 || earlier.Hour() != 2 {
		t.Errorf("past trigger should roll to tomorrow: got %v", earlier)
	}

	exact := nextRun(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), TimeOfDay{Hour: 10})
	if exact.Day() != 2 {
		t.Errorf("trigger at now should roll to tomorrow: got %v", exact)
	}
}

type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	afterCh chan time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	return c.afterCh
}

func (c *fakeClock) fire(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
	c.afterCh <- t
}

func TestScheduler_RunsJobOnTick(t *testing.T) {
	clock := &fakeClock{
		now:     time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
		afterCh: make(chan time.Time),
	}
	sched := New(testLogger())
	sched.Clock = clock

	ran := make(chan struct{}, 4)
	sched.Add(Job{
		Name: "test-job",
		At:   TimeOfDay{Hour: 2},
		Run:  func(ctx context.Context) { ran <- struct{}{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	clock.fire(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run after tick")
	}

	// Next day's tick fires again.
	clock.fire(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on second tick")
	}

	cancel()
	sched.Wait()
}

func TestScheduler_PanicDoesNotKillLoop(t *testing.T) {
	clock := &fakeClock{
		now:     time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
		afterCh: make(chan time.Time),
	}
	sched := New(testLogger())
	sched.Clock = clock

	calls := make(chan int, 4)
	n := 0
	sched.Add(Job{
		Name: "flaky-job",
		At:   TimeOfDay{Hour: 2},
		Run: func(ctx context.Context) {
			n++
			calls <- n
			if n == 1 {
				panic("boom")
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)

	clock.fire(time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC))
	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("first run never happened")
	}

	clock.fire(time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC))
	select {
	case got := <-calls:
		if got != 2 {
			t.Errorf("expected second call, got %d", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not survive the panic")
	}

	cancel()
	sched.Wait()
}

func TestRunOnce_DurationComesFromClock(t *testing.T) {
	logger, hook := logrustest.NewNullLogger()
	clock := &fakeClock{
		now:     time.Date(2026, 3, 1, 2, 0, 0, 0, time.UTC),
		afterCh: make(chan time.Time),
	}
	sched := New(logger)
	sched.Clock = clock

	sched.runOnce(context.Background(), Job{
		Name: "timed-job",
		Run: func(ctx context.Context) {
			clock.mu.Lock()
			clock.now = clock.now.Add(3 * time.Second)
			clock.mu.Unlock()
		},
	})

	var finished *logrus.Entry
	for _, entry := range hook.AllEntries() {
		if entry.Message == "job finished" {
			finished = entry
		}
	}
	if finished == nil {
		t.Fatal("no job finished entry logged")
	}
	if got := finished.Data["duration"]; got != "3s" {
		t.Errorf("duration = %v, want 3s", got)
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	clock := &fakeClock{
		now:     time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC),
		afterCh: make(chan time.Time),
	}
	sched := New(testLogger())
	sched.Clock = clock

	sched.Add(Job{
		Name: "idle-job",
		At:   TimeOfDay{Hour: 2},
		Run:  func(ctx context.Context) {},
	})

	ctx, cancel := context.WithCancel(context.Background())
	sched.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		sched.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
