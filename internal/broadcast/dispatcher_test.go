package broadcast

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDispatcher_RunsInOrder(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		d.Post(func() { got = append(got, i) })
	}
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("ran %d functions, want 100", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("got[%d] = %d, want %d", i, v, i)
		}
	}
}

func TestDispatcher_PostFromInsideARunningFunction(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	second := make(chan struct{})
	d.Post(func() {
		d.Post(func() { close(second) })
	})

	select {
	case <-second:
	case <-time.After(5 * time.Second):
		t.Fatal("nested Post never ran")
	}
}

func TestDispatcher_SurvivesPanics(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	ran := false
	d.Post(func() { panic("subscriber bug") })
	d.Post(func() { ran = true })
	if err := d.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if !ran {
		t.Error("function after a panic did not run")
	}
}

func TestDispatcher_CloseDrainsAndRejects(t *testing.T) {
	d := NewDispatcher()

	ran := 0
	for i := 0; i < 10; i++ {
		d.Post(func() { ran++ })
	}
	d.Close()
	d.Close() // idempotent

	if ran != 10 {
		t.Errorf("ran = %d, want 10", ran)
	}
	if d.Post(func() {}) {
		t.Error("Post() after Close = true, want false")
	}
	if err := d.Flush(context.Background()); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("Flush() after Close error = %v, want ErrDispatcherClosed", err)
	}
}

func TestDispatcher_FlushHonorsContext(t *testing.T) {
	d := NewDispatcher()
	defer d.Close()

	release := make(chan struct{})
	d.Post(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := d.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() error = %v, want deadline exceeded", err)
	}
}
