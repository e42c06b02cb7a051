package schedule

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

func quiet() *log.Logger { return log.New(io.Discard) }

func TestAddRejectsBadSpec(t *testing.T) {
	s := New(Options{Logger: quiet()})
	if err := s.Add("bad", "not a schedule", func(context.Context) error { return nil }); err == nil {
		t.Error("Add() accepted an invalid spec")
	}
	if err := s.Add("ok", "@hourly", func(context.Context) error { return nil }); err != nil {
		t.Errorf("Add(@hourly) error: %v", err)
	}
	if len(s.Entries()) != 1 {
		t.Errorf("entries = %d, want 1", len(s.Entries()))
	}
}

func TestSkipIfStillRunning(t *testing.T) {
	s := New(Options{Logger: quiet()})

	var running, maxRunning, runs atomic.Int32
	release := make(chan struct{})
	job := func(ctx context.Context) error {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	if err := s.Add("reconcile", "@every 1s", job); err != nil {
		t.Fatal(err)
	}
	s.Start()
	time.Sleep(3500 * time.Millisecond)
	close(release)
	<-s.Stop().Done()

	if got := maxRunning.Load(); got != 1 {
		t.Errorf("max concurrent runs = %d, want 1", got)
	}
	if got := runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1 (overlapping ticks skipped)", got)
	}
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := New(Options{Logger: quiet()})
	started := make(chan struct{})
	var cancelled atomic.Bool
	err := s.Add("snapshot", "@every 1s", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})
	if err != nil {
		t.Fatal(err)
	}
	s.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("job never started")
	}
	<-s.Stop().Done()
	if !cancelled.Load() {
		t.Error("running job was not cancelled by Stop")
	}
}

func TestRunNowTimeout(t *testing.T) {
	s := New(Options{Logger: quiet(), Timeout: 20 * time.Millisecond})
	var got error
	s.RunNow("slow", func(ctx context.Context) error {
		<-ctx.Done()
		got = ctx.Err()
		return got
	})
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("ctx error = %v, want deadline exceeded", got)
	}
}
