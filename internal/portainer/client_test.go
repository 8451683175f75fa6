package portainer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCPUPercent(t *testing.T) {
	stats := ContainerStats{}
	stats.CPUStats.CPUUsage.TotalUsage = 2000
	stats.CPUStats.SystemCPUUsage = 10000
	stats.CPUStats.OnlineCPUs = 2
	stats.PreCPUStats.CPUUsage.TotalUsage = 1000
	stats.PreCPUStats.SystemCPUUsage = 9000

	got := CPUPercent(stats)
	want := (1000.0 / 1000.0) * 2 * 100.0
	if got != want {
		t.Errorf("CPUPercent() = %f, want %f", got, want)
	}
}

func TestCPUPercentZeroDelta(t *testing.T) {
	stats := ContainerStats{}
	if got := CPUPercent(stats); got != 0 {
		t.Errorf("CPUPercent(zero) = %f, want 0", got)
	}
}

func TestListEndpointsSendsAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/endpoints" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode([]Endpoint{{ID: 1, Name: "local"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-token")
	endpoints, err := c.ListEndpoints(context.Background())
	if err != nil {
		t.Fatalf("ListEndpoints: %v", err)
	}
	if len(endpoints) != 1 || endpoints[0].Name != "local" {
		t.Fatalf("unexpected endpoints: %+v", endpoints)
	}
}

func TestDoReturnsErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "token")
	_, err := c.ListEndpoints(context.Background())
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
}
