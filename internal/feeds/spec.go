// Package feeds 负责从外部价格源获取代币的美元价格。
// 价格源的请求形状由 YAML 定义描述，客户端只负责执行与取值。
package feeds

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FeedDefinitions 对应 configs/feeds.yaml 的结构。
type FeedDefinitions struct {
	Feeds map[string]FeedDefinition `yaml:"feeds"`
}

// FeedDefinition 描述单个价格源的请求形状。
// URL、Parameters 与 ResponsePath 中的 {id} 在请求时替换为
// SymbolIDs 映射出的提供方标识，{symbol} 替换为原始代币符号。
type FeedDefinition struct {
	URL          string            `yaml:"url"`
	Parameters   map[string]string `yaml:"parameters"`
	Headers      map[string]string `yaml:"headers"`
	ResponsePath string            `yaml:"response_path"`
	// APIKeyHeader 非空时, 运行期密钥通过该请求头传递。
	APIKeyHeader string            `yaml:"api_key_header"`
	SymbolIDs    map[string]string `yaml:"symbol_ids"`
	Description  string            `yaml:"description"`
}

// LoadFeedDefinitions 解析价格源定义文件。路径为空时返回内置默认定义。
func LoadFeedDefinitions(path string) (FeedDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultFeedDefinitions(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return FeedDefinitions{}, fmt.Errorf("读取价格源配置失败: %w", err)
	}

	var defs FeedDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return FeedDefinitions{}, fmt.Errorf("解析价格源配置失败: %w", err)
	}
	if defs.Feeds == nil {
		defs.Feeds = map[string]FeedDefinition{}
	}
	return defs, nil
}

// DefaultFeedDefinitions 返回两个内置价格源的定义。
func DefaultFeedDefinitions() FeedDefinitions {
	return FeedDefinitions{
		Feeds: map[string]FeedDefinition{
			"coingecko": {
				URL: "https://api.coingecko.com/api/v3/simple/price",
				Parameters: map[string]string{
					"ids":           "{id}",
					"vs_currencies": "usd",
				},
				ResponsePath: "{id}.usd",
				APIKeyHeader: "x-cg-api-key",
				SymbolIDs: map[string]string{
					"ETH":  "ethereum",
					"USDC": "usd-coin",
				},
				Description: "Coingecko simple price endpoint",
			},
			"coinmarketcap": {
				URL: "https://pro-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest",
				Parameters: map[string]string{
					"symbol":  "{symbol}",
					"convert": "USD",
				},
				ResponsePath: "data.{symbol}.quote.USD.price",
				APIKeyHeader: "X-CMC_PRO_API_KEY",
				SymbolIDs: map[string]string{
					"ETH":  "ETH",
					"USDC": "USDC",
				},
				Description: "CoinMarketCap latest quotes endpoint",
			},
		},
	}
}
