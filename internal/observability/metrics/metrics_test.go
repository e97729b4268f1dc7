package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerRendersObservations(t *testing.T) {
	ObserveHTTPRequest("status", http.MethodGet, http.StatusOK, 12*time.Millisecond)
	ObserveHTTPRequest("status", http.MethodGet, http.StatusOK, 30*time.Millisecond)
	ObserveRoundTransition("api_selection_round", "coingecko", "data_pull_round")

	recorder := httptest.NewRecorder()
	Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := recorder.Body.String()
	if !strings.Contains(body, `rebalance_http_requests_total{handler="status",method="GET",code="200"}`) {
		t.Fatalf("request counter missing:\n%s", body)
	}
	if !strings.Contains(body, `rebalance_http_request_duration_seconds_count{handler="status"}`) {
		t.Fatalf("latency histogram missing:\n%s", body)
	}
	if !strings.Contains(body,
		`rebalance_round_transitions_total{from="api_selection_round",event="coingecko",to="data_pull_round"} 1`) {
		t.Fatalf("transition counter missing:\n%s", body)
	}
}
