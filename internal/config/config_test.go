package config

import (
	"os"
	"path/filepath"
	"testing"

	xerrors "RebalanceChain/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rebalancer.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"agent": {"id": "agent-a"},
		"rebalancing": {
			"tokens": ["ETH", "USDC"],
			"target_percentages": [50, 50],
			"threshold": 5
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.Transport.Driver != "memory" || cfg.Reports.Driver != "memory" || cfg.Journal.Driver != "memory" {
		t.Fatalf("unexpected drivers: %+v", cfg)
	}
	if cfg.Agent.Participants != 1 || cfg.Agent.RoundTimeoutMS != 30000 {
		t.Fatalf("unexpected agent defaults: %+v", cfg.Agent)
	}
	if cfg.Rebalancing.ApiSelection != "coingecko" {
		t.Fatalf("unexpected api selection: %s", cfg.Rebalancing.ApiSelection)
	}
}

func TestLoadRejectsInvalidParams(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{
			"missing agent id",
			`{"rebalancing": {"tokens": ["ETH"], "target_percentages": [100], "threshold": 5}}`,
		},
		{
			"length mismatch",
			`{"agent": {"id": "a"}, "rebalancing": {"tokens": ["ETH", "USDC"], "target_percentages": [100], "threshold": 5}}`,
		},
		{
			"percentages not 100",
			`{"agent": {"id": "a"}, "rebalancing": {"tokens": ["ETH", "USDC"], "target_percentages": [60, 50], "threshold": 5}}`,
		},
		{
			"threshold out of range",
			`{"agent": {"id": "a"}, "rebalancing": {"tokens": ["ETH"], "target_percentages": [100], "threshold": 101}}`,
		},
		{
			"rabbitmq without url",
			`{"agent": {"id": "a"}, "transport": {"driver": "rabbitmq"},
			  "rebalancing": {"tokens": ["ETH"], "target_percentages": [100], "threshold": 5}}`,
		},
		{
			"unknown journal driver",
			`{"agent": {"id": "a"}, "journal": {"driver": "postgres"},
			  "rebalancing": {"tokens": ["ETH"], "target_percentages": [100], "threshold": 5}}`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.content)
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
				t.Fatalf("unexpected error code: %v", xerrors.CodeOf(err))
			}
		})
	}
}

func TestLoadResolvesFeedSpecPath(t *testing.T) {
	path := writeConfig(t, `{
		"agent": {"id": "agent-a"},
		"feeds": {"spec_path": "feeds.yaml"},
		"rebalancing": {
			"tokens": ["ETH"],
			"target_percentages": [100],
			"threshold": 5
		}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := filepath.Join(filepath.Dir(path), "feeds.yaml")
	if cfg.Feeds.SpecPath != expected {
		t.Fatalf("unexpected spec path: %s", cfg.Feeds.SpecPath)
	}
}
