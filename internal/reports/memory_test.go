package reports

import (
	"context"
	"encoding/json"
	"testing"
)

func TestMemoryStorePutGet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	obj := map[string]any{"total_value": 100.0, "tokens": []string{"ETH", "USDC"}}
	contentID, err := store.Put(context.Background(), obj)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contentID == "" {
		t.Fatalf("expected non-empty content id")
	}

	raw, err := store.Get(context.Background(), contentID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("stored object is not valid json: %v", err)
	}
	if decoded["total_value"] != 100.0 {
		t.Fatalf("unexpected content: %+v", decoded)
	}
}

func TestMemoryStoreContentAddressing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	first, err := store.Put(context.Background(), map[string]string{"a": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.Put(context.Background(), map[string]string{"a": "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 相同内容得到相同标识。
	if first != second {
		t.Fatalf("content ids differ for identical objects: %s != %s", first, second)
	}

	other, err := store.Put(context.Background(), map[string]string{"a": "2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other == first {
		t.Fatalf("content ids collide for different objects")
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	if _, err := store.Get(context.Background(), "0xdeadbeef"); err == nil {
		t.Fatalf("expected error for missing content")
	}
}
