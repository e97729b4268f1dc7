package consensus

import (
	"bytes"
	"testing"
)

func TestSynchronizedDataUpdateIsImmutable(t *testing.T) {
	base := NewSynchronizedData(map[string]any{KeyApiSelection: "coingecko"})
	next := base.Update(map[string]any{KeyApiSelection: "coinmarketcap", KeyTotalPortfolioValue: 100.0})

	if base.ApiSelection() != "coingecko" {
		t.Fatalf("base version mutated: %s", base.ApiSelection())
	}
	if next.ApiSelection() != "coinmarketcap" {
		t.Fatalf("unexpected updated selection: %s", next.ApiSelection())
	}
	if _, ok := base.TotalPortfolioValue(); ok {
		t.Fatalf("base version gained a key")
	}
	if base.Len() != 1 || next.Len() != 2 {
		t.Fatalf("unexpected lengths: %d, %d", base.Len(), next.Len())
	}
}

func TestSynchronizedDataSerializeDeterministic(t *testing.T) {
	a := NewSynchronizedData(map[string]any{
		KeyTokenValues:         `{"ETH":60}`,
		KeyTotalPortfolioValue: 60.0,
	})
	b := NewSynchronizedData(map[string]any{
		KeyTotalPortfolioValue: 60.0,
		KeyTokenValues:         `{"ETH":60}`,
	})

	first, err := a.Serialize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := b.Serialize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("serialization depends on insertion order:\n%s\n%s", first, second)
	}
	if a.Hash() != b.Hash() || a.Hash() == "" {
		t.Fatalf("unexpected hashes: %s, %s", a.Hash(), b.Hash())
	}
}

func TestSynchronizedDataSubset(t *testing.T) {
	data := NewSynchronizedData(map[string]any{
		KeyApiSelection: "coingecko",
		KeyTxSubmitter:  "tx_preparation_behaviour",
	})

	subset := data.Subset([]string{KeyApiSelection, KeyMostVotedTxHash})
	if len(subset) != 1 || subset[KeyApiSelection] != "coingecko" {
		t.Fatalf("unexpected subset: %+v", subset)
	}
}
