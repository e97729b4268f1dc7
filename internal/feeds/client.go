package feeds

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	xerrors "RebalanceChain/internal/errors"
)

const defaultTimeout = 10 * time.Second

// PriceSource 返回代币符号对应的美元价格。
type PriceSource interface {
	Price(ctx context.Context, symbol string) (float64, error)
}

// ClientConfig 描述构建价格源客户端所需的信息。
type ClientConfig struct {
	Definition FeedDefinition
	APIKey     string
	Timeout    time.Duration
}

// Client 按 FeedDefinition 执行 HTTP 价格查询。
type Client struct {
	def        FeedDefinition
	apiKey     string
	httpClient *http.Client
}

// NewClient 根据配置创建价格源客户端。
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.Definition.URL) == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "价格源定义缺少 URL")
	}
	if strings.TrimSpace(cfg.Definition.ResponsePath) == "" {
		return nil, xerrors.New(xerrors.CodeConfigInvalid, "价格源定义缺少响应路径")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		def:    cfg.Definition,
		apiKey: strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Price 查询代币符号的美元价格。符号不在定义的映射中时
// 返回不支持错误，HTTP 或解析失败返回价格源不可用错误。
func (c *Client) Price(ctx context.Context, symbol string) (float64, error) {
	id, ok := c.def.SymbolIDs[symbol]
	if !ok {
		return 0, xerrors.New(xerrors.CodeSymbolUnsupported,
			fmt.Sprintf("价格源不支持的代币符号: %s", symbol))
	}

	endpoint, err := c.buildURL(id, symbol)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "构建价格请求失败")
	}
	for key, value := range c.def.Headers {
		req.Header.Set(key, value)
	}
	if c.def.APIKeyHeader != "" && c.apiKey != "" {
		req.Header.Set(c.def.APIKeyHeader, c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "请求价格源失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return 0, xerrors.New(xerrors.CodeFeedUnavailable,
			fmt.Sprintf("价格源返回错误状态 %d", resp.StatusCode))
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return 0, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "解析价格源响应失败")
	}

	path := c.substitute(c.def.ResponsePath, id, symbol)
	price, err := walkPath(decoded, path)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeFeedUnavailable, err, "响应中找不到价格字段")
	}
	return price, nil
}

func (c *Client) buildURL(id, symbol string) (string, error) {
	u, err := url.Parse(c.def.URL)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeConfigInvalid, err, "价格源 URL 不合法")
	}
	query := u.Query()
	for key, value := range c.def.Parameters {
		query.Set(key, c.substitute(value, id, symbol))
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func (c *Client) substitute(template, id, symbol string) string {
	out := strings.ReplaceAll(template, "{id}", id)
	return strings.ReplaceAll(out, "{symbol}", symbol)
}

// walkPath 沿点分路径深入 JSON 对象，叶子必须是数值。
func walkPath(doc map[string]any, path string) (float64, error) {
	segments := strings.Split(path, ".")
	var current any = doc
	for _, segment := range segments {
		obj, ok := current.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("路径 %q 中 %q 处不是对象", path, segment)
		}
		current, ok = obj[segment]
		if !ok {
			return 0, fmt.Errorf("路径 %q 缺少字段 %q", path, segment)
		}
	}
	price, ok := current.(float64)
	if !ok {
		return 0, fmt.Errorf("路径 %q 的叶子不是数值", path)
	}
	return price, nil
}
