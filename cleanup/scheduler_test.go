package cleanup

import (
	"context"
	"testing"
	"time"

	"github.com/mkoval/formgate/config"
)

func TestNextRun(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		hour     int
		interval int
		want     time.Time
	}{
		{
			name:     "before run hour, same day",
			now:      time.Date(2025, 3, 10, 2, 30, 0, 0, time.UTC),
			hour:     4,
			interval: 1,
			want:     time.Date(2025, 3, 10, 4, 0, 0, 0, time.UTC),
		},
		{
			name:     "at run hour, skips to next interval",
			now:      time.Date(2025, 3, 10, 4, 0, 1, 0, time.UTC),
			hour:     4,
			interval: 1,
			want:     time.Date(2025, 3, 11, 4, 0, 0, 0, time.UTC),
		},
		{
			name:     "after run hour, multi-day interval",
			now:      time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
			hour:     4,
			interval: 7,
			want:     time.Date(2025, 3, 17, 4, 0, 0, 0, time.UTC),
		},
		{
			name:     "midnight run hour",
			now:      time.Date(2025, 3, 10, 0, 30, 0, 0, time.UTC),
			hour:     0,
			interval: 1,
			want:     time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &Engine{
				cfg: config.Config{
					CleanupRunHour:      tt.hour,
					CleanupIntervalDays: tt.interval,
				},
				now: func() time.Time { return tt.now },
			}
			if got := e.nextRun(); !got.Equal(tt.want) {
				t.Fatalf("nextRun() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStartDisabledReturnsImmediately(t *testing.T) {
	e := &Engine{cfg: config.Config{CleanupEnabled: false}, now: time.Now}

	done := make(chan struct{})
	go func() {
		e.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled scheduler should return immediately")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	e := &Engine{
		cfg: config.Config{
			CleanupEnabled:      true,
			CleanupRunHour:      4,
			CleanupIntervalDays: 1,
		},
		now: time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}

func TestSleepCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if sleep(ctx, time.Hour) {
		t.Fatal("cancelled sleep should report false")
	}
	if sleep(ctx, 0) {
		t.Fatal("zero sleep on a cancelled context should report false")
	}
}
