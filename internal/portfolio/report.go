package portfolio

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ReportRow 是单个代币的调仓快照行。
type ReportRow struct {
	Token        string  `json:"token"`
	Balance      float64 `json:"balance"`
	Price        float64 `json:"price"`
	Value        float64 `json:"value"`
	CurrentPct   float64 `json:"current_pct"`
	TargetPct    float64 `json:"target_pct"`
	DeviationPct float64 `json:"deviation_pct"`
	// TargetAmount 为零表示偏离在阈值内，无需调仓。
	TargetAmount float64 `json:"target_amount,omitempty"`
}

// Report 是一次决策运行的完整调仓快照，按内容标识存入报告仓库。
// 快照是临时产物，除序列化摘要外不进入同步状态。
type Report struct {
	ID         string      `json:"id"`
	RunID      string      `json:"run_id"`
	CreatedAt  time.Time   `json:"created_at"`
	TotalValue float64     `json:"total_value"`
	Threshold  float64     `json:"threshold"`
	Rows       []ReportRow `json:"rows"`
}

// BuildReport 用估值结果和调仓动作组装快照，行按代币名排序。
func BuildReport(
	runID string,
	balances, prices, tokenValues map[string]float64,
	total float64,
	params Params,
	actions map[string]float64,
) Report {
	tokens := make([]string, 0, len(tokenValues))
	for token := range tokenValues {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	rows := make([]ReportRow, 0, len(tokens))
	for _, token := range tokens {
		value := tokenValues[token]
		row := ReportRow{
			Token:        token,
			Balance:      balances[token],
			Price:        prices[token],
			Value:        value,
			CurrentPct:   value / total * 100,
			TargetAmount: actions[token],
		}
		if targetPct, ok := params.TargetOf(token); ok {
			row.TargetPct = targetPct
			targetValue := targetPct / 100 * total
			if targetValue != 0 {
				row.DeviationPct = (value - targetValue) / targetValue * 100
			}
		}
		rows = append(rows, row)
	}

	return Report{
		ID:         uuid.NewString(),
		RunID:      runID,
		CreatedAt:  time.Now().UTC(),
		TotalValue: total,
		Threshold:  params.Threshold,
		Rows:       rows,
	}
}
