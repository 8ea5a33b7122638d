package playback

import (
	"context"
	"errors"
	"testing"

	"github.com/caretalk-labs/caretalk-core/internal/media"
)

func TestSecondPlayStopsFirst(t *testing.T) {
	player := &MockPlayer{}
	manager := NewManager(player)

	if err := manager.Play(context.Background(), media.Audio{Bytes: []byte("one")}); err != nil {
		t.Fatalf("play one: %v", err)
	}
	if err := manager.Play(context.Background(), media.Audio{Bytes: []byte("two")}); err != nil {
		t.Fatalf("play two: %v", err)
	}

	if len(player.Started) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(player.Started))
	}
	if !player.Started[0].Stopped() {
		t.Fatal("first clip must be stopped before the second starts")
	}
	if player.Started[1].Stopped() {
		t.Fatal("second clip should still be active")
	}
}

func TestStopHaltsActiveClip(t *testing.T) {
	player := &MockPlayer{}
	manager := NewManager(player)

	if err := manager.Play(context.Background(), media.Audio{Bytes: []byte("clip")}); err != nil {
		t.Fatalf("play: %v", err)
	}
	manager.Stop()
	if !player.Started[0].Stopped() {
		t.Fatal("expected clip stopped")
	}
	// Stop with no active clip is a no-op.
	manager.Stop()
}

func TestPlayErrorLeavesNoActiveHandle(t *testing.T) {
	player := &MockPlayer{PlayErr: errors.New("no output device")}
	manager := NewManager(player)

	if err := manager.Play(context.Background(), media.Audio{}); err == nil {
		t.Fatal("expected play error")
	}
	manager.Stop()
}
