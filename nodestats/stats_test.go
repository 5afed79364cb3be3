package nodestats

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegistryIncAndScrape(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRegistry(reg)

	r.Inc(StatBootstrap, "asc_pull_ack", DirectionIn)
	r.Inc(StatBootstrap, "asc_pull_ack", DirectionIn)
	r.Set(StatNetwork, "connected_peers", 3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, `latticenode_events_total{detail="asc_pull_ack",direction="in",type="bootstrap"} 2`) {
		t.Fatalf("expected scraped counter value of 2, got body:\n%s", body)
	}
	if !strings.Contains(body, `latticenode_level{detail="connected_peers",type="network"} 3`) {
		t.Fatalf("expected scraped gauge value of 3, got body:\n%s", body)
	}
}
