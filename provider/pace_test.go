package provider

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestPacerSpacesRequests(t *testing.T) {
	p := NewPacer(30 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// First send is immediate, the next two wait one interval each.
	if elapsed < 55*time.Millisecond {
		t.Errorf("three sends finished in %v, expected at least ~60ms", elapsed)
	}
}

func TestPacerSerializesConcurrentCallers(t *testing.T) {
	p := NewPacer(20 * time.Millisecond)

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Wait(context.Background())
		}()
	}
	wg.Wait()

	// Four concurrent callers reserve consecutive slots: 0, 20, 40, 60ms.
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("burst of 4 finished in %v, expected at least ~60ms", elapsed)
	}
}

func TestPacerNilAndDisabled(t *testing.T) {
	var p *Pacer
	if err := p.Wait(context.Background()); err != nil {
		t.Errorf("nil pacer should never wait or fail: %v", err)
	}

	disabled := NewPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := disabled.Wait(context.Background()); err != nil {
			t.Fatalf("disabled pacer failed: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("disabled pacer should not block, took %v", elapsed)
	}
}

func TestPacerCancelled(t *testing.T) {
	p := NewPacer(10 * time.Second)

	// Consume the immediate slot so the next wait would block.
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := p.Wait(ctx)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancelled wait took %v, expected prompt return", elapsed)
	}
}
