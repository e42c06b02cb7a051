package cli

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestSpinnerDisabledIsNoop(t *testing.T) {
	s := newSpinner(context.Background(), "Working")
	var buf bytes.Buffer
	s.w, s.enabled = &buf, false
	s.Start()
	s.Stop()
	s.Stop()
	if buf.Len() != 0 {
		t.Errorf("disabled spinner wrote %q", buf.String())
	}
}

func TestSpinnerAnimatesAndClears(t *testing.T) {
	s := newSpinner(context.Background(), "Working")
	var buf bytes.Buffer
	s.w, s.enabled = &buf, true
	s.Start()
	time.Sleep(200 * time.Millisecond)
	s.Stop()

	if !bytes.Contains(buf.Bytes(), []byte("Working")) {
		t.Errorf("output %q missing message", buf.String())
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\r")) {
		t.Error("line not cleared on stop")
	}
}

func TestSpinnerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newSpinner(ctx, "Working")
	s.w, s.enabled = &bytes.Buffer{}, true
	s.Start()
	cancel()

	select {
	case <-s.stopped:
	case <-time.After(time.Second):
		t.Fatal("spinner did not stop after cancellation")
	}
	s.Stop()
}

func TestSpin(t *testing.T) {
	want := errors.New("boom")
	got, err := spin(context.Background(), "Working", func(context.Context) (int, error) {
		return 7, want
	})
	if got != 7 || !errors.Is(err, want) {
		t.Errorf("spin() = %d, %v", got, err)
	}
}
