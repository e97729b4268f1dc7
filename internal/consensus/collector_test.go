package consensus

import (
	"testing"

	xerrors "RebalanceChain/internal/errors"
)

func TestQuorum(t *testing.T) {
	cases := []struct {
		n        int
		expected int
	}{
		{1, 1},
		{3, 3},
		{4, 3},
		{7, 5},
		{10, 7},
	}
	for _, tc := range cases {
		if got := Quorum(tc.n); got != tc.expected {
			t.Fatalf("Quorum(%d) = %d, expected %d", tc.n, got, tc.expected)
		}
	}
}

func selection(sender, api string) ApiSelectionPayload {
	return ApiSelectionPayload{AgentID: sender, ApiSelection: api}
}

func TestCollectorResubmissionReplaces(t *testing.T) {
	c := NewCollector(KindApiSelection, 3)

	if err := c.Submit(selection("agent-a", "coingecko")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := c.Submit(selection("agent-a", "coinmarketcap")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("unexpected count: %d", c.Count())
	}

	payloads := c.SortedPayloads()
	if payloads[0].(ApiSelectionPayload).ApiSelection != "coinmarketcap" {
		t.Fatalf("resubmission did not replace: %+v", payloads[0])
	}
}

func TestCollectorRejectsInvalidPayloads(t *testing.T) {
	c := NewCollector(KindApiSelection, 3)

	if err := c.Submit(nil); err == nil {
		t.Fatalf("expected error for nil payload")
	}
	if err := c.Submit(DataPullPayload{AgentID: "agent-a"}); err == nil {
		t.Fatalf("expected error for mismatched kind")
	}
	if err := c.Submit(selection("", "coingecko")); err == nil {
		t.Fatalf("expected error for missing sender")
	}
}

func TestCollectorThresholdAndWinner(t *testing.T) {
	// 4 个参与方, 法定人数 3。
	c := NewCollector(KindApiSelection, 4)

	_ = c.Submit(selection("agent-d", "coinmarketcap"))
	_ = c.Submit(selection("agent-b", "coinmarketcap"))
	if c.ThresholdReached() {
		t.Fatalf("threshold should not be reached with 2 votes")
	}
	if _, err := c.MostVotedPayload(); xerrors.CodeOf(err) != xerrors.CodeNoQuorum {
		t.Fatalf("expected no-quorum error, got %v", err)
	}

	_ = c.Submit(selection("agent-c", "coinmarketcap"))
	if !c.ThresholdReached() {
		t.Fatalf("threshold should be reached with 3 votes")
	}

	winner, err := c.MostVotedPayload()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 胜出类中按发送者字典序取第一个。
	if winner.Sender() != "agent-b" {
		t.Fatalf("unexpected winner sender: %s", winner.Sender())
	}
}

func TestCollectorSenderNotPartOfValueKey(t *testing.T) {
	a := selection("agent-a", "coingecko")
	b := selection("agent-b", "coingecko")
	if a.ValueKey() != b.ValueKey() {
		t.Fatalf("value keys differ across senders: %s != %s", a.ValueKey(), b.ValueKey())
	}
}

func TestCollectorMajorityPossible(t *testing.T) {
	c := NewCollector(KindApiSelection, 4)

	if !c.MajorityPossible() {
		t.Fatalf("empty collector should still allow a majority")
	}

	_ = c.Submit(selection("agent-a", "coingecko"))
	_ = c.Submit(selection("agent-b", "coingecko"))
	_ = c.Submit(selection("agent-c", "coinmarketcap"))
	if !c.MajorityPossible() {
		t.Fatalf("majority still possible with one pending vote")
	}

	// 2-2 平票, 全部票已收齐, 不可能再达到 3。
	_ = c.Submit(selection("agent-d", "coinmarketcap"))
	if c.MajorityPossible() {
		t.Fatalf("majority should be impossible on a 2-2 split")
	}
}
