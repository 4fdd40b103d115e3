package diagnostics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

// =============================================================================
// Stubs
// =============================================================================

type stubResources struct {
	stats resource.Statistics
	calls int
}

func (s *stubResources) Statistics() resource.Statistics {
	s.calls++
	return s.stats
}

type stubFocus struct{ stats focus.Statistics }

func (s *stubFocus) Statistics() focus.Statistics { return s.stats }

type stubErrors struct{ stats recovery.Statistics }

func (s *stubErrors) Statistics() recovery.Statistics { return s.stats }

func newMonitor(res resource.Statistics, foc focus.Statistics, errs recovery.Statistics) (*Monitor, *stubResources) {
	rs := &stubResources{stats: res}
	m := NewMonitor(rs, &stubFocus{stats: foc}, &stubErrors{stats: errs}, Thresholds{})
	return m, rs
}

func normal() resource.Statistics {
	return resource.Statistics{PressureLevel: domain.PressureNormal.String()}
}

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	m, _ := newMonitor(normal(), focus.Statistics{Mode: domain.ModeCategoryPanel}, recovery.Statistics{})

	report := m.CheckHealth()
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Empty(t, report.Reasons)
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name string
		res  resource.Statistics
		foc  focus.Statistics
		errs recovery.Statistics
	}{
		{"high pressure", resource.Statistics{PressureLevel: domain.PressureHigh.String()}, focus.Statistics{}, recovery.Statistics{}},
		{"degraded mode", resource.Statistics{PressureLevel: domain.PressureNormal.String(), Degraded: true}, focus.Statistics{}, recovery.Statistics{}},
		{"error burst", normal(), focus.Statistics{}, recovery.Statistics{RecentErrors: 6, Window: 5 * time.Minute}},
		{"focus recovery", normal(), focus.Statistics{RecoveryAttempts: 2}, recovery.Statistics{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newMonitor(tt.res, tt.foc, tt.errs)
			report := m.CheckHealth()
			assert.Equal(t, StatusDegraded, report.Status)
			assert.NotEmpty(t, report.Reasons)
		})
	}
}

func TestMonitor_Critical(t *testing.T) {
	m, _ := newMonitor(
		resource.Statistics{PressureLevel: domain.PressureCritical.String(), Degraded: true},
		focus.Statistics{},
		recovery.Statistics{},
	)
	report := m.CheckHealth()
	assert.Equal(t, StatusCritical, report.Status)
	assert.Len(t, report.Reasons, 2)

	m, _ = newMonitor(normal(), focus.Statistics{}, recovery.Statistics{RecentErrors: 25})
	assert.Equal(t, StatusCritical, m.CheckHealth().Status)
}

func TestMonitor_CachesReport(t *testing.T) {
	m, rs := newMonitor(normal(), focus.Statistics{}, recovery.Statistics{})
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }

	m.CheckHealth()
	m.CheckHealth()
	assert.Equal(t, 1, rs.calls)

	now = now.Add(time.Second)
	m.CheckHealth()
	assert.Equal(t, 2, rs.calls)
}

func TestServer_Health(t *testing.T) {
	m, _ := newMonitor(normal(), focus.Statistics{}, recovery.Statistics{})
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestServer_HealthCritical(t *testing.T) {
	m, _ := newMonitor(resource.Statistics{PressureLevel: domain.PressureCritical.String()}, focus.Statistics{}, recovery.Statistics{})
	rec := httptest.NewRecorder()
	NewServer(m, 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Detailed(t *testing.T) {
	m, _ := newMonitor(
		resource.Statistics{PressureLevel: domain.PressureNormal.String(), Total: 3},
		focus.Statistics{Mode: domain.ModeChannelPanel, Source: domain.SourceChannelList, Focused: true},
		recovery.Statistics{TotalErrors: 2},
	)
	rec := httptest.NewRecorder()
	NewServer(m, 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 3, report.Resources.Total)
	assert.Equal(t, domain.ModeChannelPanel, report.Focus.Mode)
	assert.Equal(t, domain.SourceChannelList, report.Focus.Source)
	assert.Equal(t, 2, report.Errors.TotalErrors)
}

func TestServer_Metrics(t *testing.T) {
	m, _ := newMonitor(normal(), focus.Statistics{}, recovery.Statistics{})
	rec := httptest.NewRecorder()
	NewServer(m, 0).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
