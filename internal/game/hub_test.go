package game

import (
	"sync"
	"testing"
	"time"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.clients == nil {
		t.Error("Hub clients map is nil")
	}
	if hub.broadcast == nil {
		t.Error("Hub broadcast channel is nil")
	}
	if hub.register == nil || hub.unregister == nil {
		t.Error("Hub registration channels are nil")
	}
}

func TestHub_GetClientCount(t *testing.T) {
	hub := NewHub()

	if count := hub.GetClientCount(); count != 0 {
		t.Errorf("GetClientCount() = %v, want 0", count)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer close(hub.broadcast)

	time.Sleep(10 * time.Millisecond)

	// Should not block even with no subscribers.
	hub.Broadcast(RevealEvent{
		Type: "round_revealed",
		Record: VerificationRecord{
			RoundID:    "round-1",
			ClientSeed: "clientseed123",
			Nonce:      1,
			GameType:   GameTypeDice,
		},
	})

	time.Sleep(10 * time.Millisecond)
}

func TestHub_BroadcastChannelFull(t *testing.T) {
	hub := NewHub()

	// The hub is not running, so the channel fills to capacity.
	for i := 0; i < 100; i++ {
		hub.Broadcast(RevealEvent{Type: "round_revealed"})
	}

	// The next broadcast must drop, never block.
	done := make(chan bool, 1)
	go func() {
		hub.Broadcast(RevealEvent{Type: "round_revealed"})
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Error("Broadcast() blocked when channel was full")
	}
}

func TestHub_ConcurrentBroadcasts(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer close(hub.broadcast)

	time.Sleep(10 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			hub.Broadcast(RevealEvent{
				Type:   "round_revealed",
				Record: VerificationRecord{Nonce: uint64(n)},
			})
		}(i)
	}

	done := make(chan bool)
	go func() {
		wg.Wait()
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Error("Concurrent broadcasts timed out")
	}
}

func BenchmarkHub_Broadcast(b *testing.B) {
	hub := NewHub()
	go hub.Run()
	defer close(hub.broadcast)

	time.Sleep(10 * time.Millisecond)

	event := RevealEvent{Type: "round_revealed"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		hub.Broadcast(event)
	}
}
