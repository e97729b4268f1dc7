package portfolio

import (
	"math"
	"testing"

	xerrors "RebalanceChain/internal/errors"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestValidateParams(t *testing.T) {
	valid := Params{
		Tokens:            []string{"ETH", "USDC"},
		TargetPercentages: []float64{50, 50},
		Threshold:         5,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []struct {
		name   string
		params Params
	}{
		{"empty tokens", Params{TargetPercentages: []float64{100}, Threshold: 5}},
		{"length mismatch", Params{Tokens: []string{"ETH", "USDC"}, TargetPercentages: []float64{100}, Threshold: 5}},
		{"sum not 100", Params{Tokens: []string{"ETH", "USDC"}, TargetPercentages: []float64{60, 50}, Threshold: 5}},
		{"negative percentage", Params{Tokens: []string{"ETH", "USDC"}, TargetPercentages: []float64{-10, 110}, Threshold: 5}},
		{"threshold negative", Params{Tokens: []string{"ETH"}, TargetPercentages: []float64{100}, Threshold: -1}},
		{"threshold above 100", Params{Tokens: []string{"ETH"}, TargetPercentages: []float64{100}, Threshold: 101}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.params.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if xerrors.CodeOf(err) != xerrors.CodeConfigInvalid {
				t.Fatalf("expected config error code, got %v", xerrors.CodeOf(err))
			}
		})
	}
}

func TestCalculateAllocation(t *testing.T) {
	values, total, err := CalculateAllocation(
		map[string]float64{"A": 10, "B": 0},
		map[string]float64{"A": 2, "B": 5},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !almostEqual(total, 20) {
		t.Fatalf("unexpected total: %v", total)
	}
	if !almostEqual(values["A"], 20) {
		t.Fatalf("unexpected value for A: %v", values["A"])
	}
	// 零余额但价格可得的代币按价值 0 计入。
	v, ok := values["B"]
	if !ok || !almostEqual(v, 0) {
		t.Fatalf("expected B included at value 0, got %v (present=%v)", v, ok)
	}
}

func TestCalculateAllocationSkipsMissingPrice(t *testing.T) {
	values, total, err := CalculateAllocation(
		map[string]float64{"A": 10, "C": 7},
		map[string]float64{"A": 2},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := values["C"]; ok {
		t.Fatalf("expected C skipped without price")
	}
	if !almostEqual(total, 20) {
		t.Fatalf("unexpected total: %v", total)
	}
}

func TestCalculateAllocationEmptyPortfolio(t *testing.T) {
	_, _, err := CalculateAllocation(
		map[string]float64{"A": 10},
		map[string]float64{"B": 5},
	)
	if err == nil {
		t.Fatalf("expected empty portfolio error")
	}
	if xerrors.CodeOf(err) != xerrors.CodeEmptyPortfolio {
		t.Fatalf("expected empty portfolio code, got %v", xerrors.CodeOf(err))
	}
}

func TestCalculateRebalancingActions(t *testing.T) {
	tokenValues := map[string]float64{"A": 60, "B": 40}
	params := Params{
		Tokens:            []string{"A", "B"},
		TargetPercentages: []float64{50, 50},
		Threshold:         5,
	}
	prices := map[string]float64{"A": 2, "B": 5}

	actions := CalculateRebalancingActions(tokenValues, 100, params, prices)
	if len(actions) != 2 {
		t.Fatalf("expected both tokens included, got %v", actions)
	}
	// A: 偏离 +20%, 目标价值 50, 价格 2 → 25。
	if !almostEqual(actions["A"], 25) {
		t.Fatalf("unexpected target amount for A: %v", actions["A"])
	}
	// B: 偏离 -20%, 目标价值 50, 价格 5 → 10。
	if !almostEqual(actions["B"], 10) {
		t.Fatalf("unexpected target amount for B: %v", actions["B"])
	}
}

func TestCalculateRebalancingActionsWithinThreshold(t *testing.T) {
	tokenValues := map[string]float64{"A": 60, "B": 40}
	params := Params{
		Tokens:            []string{"A", "B"},
		TargetPercentages: []float64{50, 50},
		Threshold:         25,
	}
	prices := map[string]float64{"A": 2, "B": 5}

	actions := CalculateRebalancingActions(tokenValues, 100, params, prices)
	if len(actions) != 0 {
		t.Fatalf("expected no actions, got %v", actions)
	}
}

func TestBuildReport(t *testing.T) {
	balances := map[string]float64{"A": 30, "B": 8}
	prices := map[string]float64{"A": 2, "B": 5}
	tokenValues := map[string]float64{"A": 60, "B": 40}
	params := Params{
		Tokens:            []string{"A", "B"},
		TargetPercentages: []float64{50, 50},
		Threshold:         5,
	}
	actions := CalculateRebalancingActions(tokenValues, 100, params, prices)

	report := BuildReport("run-1", balances, prices, tokenValues, 100, params, actions)
	if report.ID == "" {
		t.Fatalf("expected report id")
	}
	if report.RunID != "run-1" {
		t.Fatalf("unexpected run id: %s", report.RunID)
	}
	if len(report.Rows) != 2 {
		t.Fatalf("unexpected row count: %d", len(report.Rows))
	}
	// 行按代币名排序。
	if report.Rows[0].Token != "A" || report.Rows[1].Token != "B" {
		t.Fatalf("unexpected row order: %+v", report.Rows)
	}
	a := report.Rows[0]
	if !almostEqual(a.CurrentPct, 60) || !almostEqual(a.DeviationPct, 20) || !almostEqual(a.TargetAmount, 25) {
		t.Fatalf("unexpected row for A: %+v", a)
	}
}
