// Package metrics 以 Prometheus 文本格式暴露运行指标：
// 状态查询接口的请求计数与时延直方图，以及工作流的回合流转计数。
package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type requestKey struct {
	handler string
	method  string
	code    string
}

type transitionKey struct {
	from  string
	event string
	to    string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu          sync.Mutex
	requests    map[requestKey]uint64
	latency     map[string]*histogram
	transitions map[transitionKey]uint64
}

var defaultCollector = &collector{
	requests:    make(map[requestKey]uint64),
	latency:     make(map[string]*histogram),
	transitions: make(map[transitionKey]uint64),
}

// ObserveHTTPRequest 记录一次状态查询请求。
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	defaultCollector.observeRequest(handler, method, status, duration)
}

// ObserveRoundTransition 记录一次状态机流转。
func ObserveRoundTransition(from, event, to string) {
	defaultCollector.mu.Lock()
	defaultCollector.transitions[transitionKey{from: from, event: event, to: to}]++
	defaultCollector.mu.Unlock()
}

func (c *collector) observeRequest(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[requestKey{handler: handler, method: method, code: strconv.Itoa(status)}]++

	hist := c.latency[handler]
	if hist == nil {
		hist = newHistogram()
		c.latency[handler] = hist
	}
	hist.observe(duration.Seconds())
}

func newHistogram() *histogram {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler 以 Prometheus 文本格式输出全部指标。
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, defaultCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP rebalance_http_requests_total Total number of status API requests processed.\n")
	builder.WriteString("# TYPE rebalance_http_requests_total counter\n")
	for _, key := range sortedRequestKeys(c.requests) {
		builder.WriteString(fmt.Sprintf("rebalance_http_requests_total{handler=%q,method=%q,code=%q} %d\n",
			key.handler, key.method, key.code, c.requests[key]))
	}

	builder.WriteString("# HELP rebalance_http_request_duration_seconds Status API request duration in seconds.\n")
	builder.WriteString("# TYPE rebalance_http_request_duration_seconds histogram\n")
	handlers := make([]string, 0, len(c.latency))
	for handler := range c.latency {
		handlers = append(handlers, handler)
	}
	sort.Strings(handlers)
	for _, handler := range handlers {
		hist := c.latency[handler]
		for idx, bound := range hist.buckets {
			builder.WriteString(fmt.Sprintf("rebalance_http_request_duration_seconds_bucket{handler=%q,le=%q} %d\n",
				handler, formatFloat(bound), hist.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("rebalance_http_request_duration_seconds_bucket{handler=%q,le=\"+Inf\"} %d\n",
			handler, hist.count))
		builder.WriteString(fmt.Sprintf("rebalance_http_request_duration_seconds_sum{handler=%q} %s\n",
			handler, formatFloat(hist.sum)))
		builder.WriteString(fmt.Sprintf("rebalance_http_request_duration_seconds_count{handler=%q} %d\n",
			handler, hist.count))
	}

	builder.WriteString("# HELP rebalance_round_transitions_total Total number of workflow round transitions.\n")
	builder.WriteString("# TYPE rebalance_round_transitions_total counter\n")
	for _, key := range sortedTransitionKeys(c.transitions) {
		builder.WriteString(fmt.Sprintf("rebalance_round_transitions_total{from=%q,event=%q,to=%q} %d\n",
			key.from, key.event, key.to, c.transitions[key]))
	}

	return builder.String()
}

func sortedRequestKeys(m map[requestKey]uint64) []requestKey {
	keys := make([]requestKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].handler != keys[j].handler {
			return keys[i].handler < keys[j].handler
		}
		if keys[i].method != keys[j].method {
			return keys[i].method < keys[j].method
		}
		return keys[i].code < keys[j].code
	})
	return keys
}

func sortedTransitionKeys(m map[transitionKey]uint64) []transitionKey {
	keys := make([]transitionKey, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].from != keys[j].from {
			return keys[i].from < keys[j].from
		}
		if keys[i].event != keys[j].event {
			return keys[i].event < keys[j].event
		}
		return keys[i].to < keys[j].to
	})
	return keys
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
