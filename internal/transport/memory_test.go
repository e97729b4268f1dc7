package transport

import (
	"context"
	"testing"
	"time"

	"RebalanceChain/internal/consensus"
)

func receiveOne(t *testing.T, b Broadcaster) consensus.Envelope {
	t.Helper()
	select {
	case env := <-b.Receive():
		return env
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for envelope")
		return consensus.Envelope{}
	}
}

func TestMemoryHubBroadcastReachesAllMembers(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	a, err := hub.Join("agent-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := hub.Join("agent-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	env, err := consensus.Seal(consensus.RoundApiSelection, consensus.ApiSelectionPayload{
		AgentID:      "agent-a",
		ApiSelection: "coingecko",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Broadcast(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 广播送达所有参与方，包括发送者自己。
	got := receiveOne(t, a)
	if got.Sender != "agent-a" {
		t.Fatalf("unexpected sender: %s", got.Sender)
	}
	got = receiveOne(t, b)
	if got.Round != consensus.RoundApiSelection || got.Kind != consensus.KindApiSelection {
		t.Fatalf("unexpected envelope: %+v", got)
	}
}

func TestMemoryHubRejectsDuplicateJoin(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	if _, err := hub.Join("agent-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := hub.Join("agent-a"); err == nil {
		t.Fatalf("expected duplicate join to fail")
	}
}

func TestMemoryTransportCloseLeavesHub(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	a, err := hub.Join("agent-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 断开后可以重新以同一标识接入。
	if _, err := hub.Join("agent-a"); err != nil {
		t.Fatalf("unexpected error after rejoin: %v", err)
	}
}

func TestMemoryHubClosedBroadcastFails(t *testing.T) {
	hub := NewMemoryHub()
	a, err := hub.Join("agent-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hub.Close()

	env := consensus.Envelope{Round: consensus.RoundApiSelection}
	if err := a.Broadcast(context.Background(), env); err == nil {
		t.Fatalf("expected broadcast on closed hub to fail")
	}
}
