package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/menuguard/internal/core/domain"
	"github.com/vietddude/menuguard/internal/diagnostics"
	"github.com/vietddude/menuguard/internal/focus"
	"github.com/vietddude/menuguard/internal/recovery"
	"github.com/vietddude/menuguard/internal/resource"
)

func TestFetchAndPrintReport(t *testing.T) {
	report := diagnostics.Report{
		Status:  diagnostics.StatusDegraded,
		Reasons: []string{"memory pressure HIGH"},
		Resources: resource.Statistics{
			Total:         2,
			ByType:        map[domain.ResourceType]int{domain.ResourceTimer: 1, domain.ResourceAnimation: 1},
			EstimatedSize: "1.0 KiB",
			PressureLevel: domain.PressureHigh.String(),
			Degraded:      true,
		},
		Focus:  focus.Statistics{Mode: domain.ModeChannelPanel, Source: domain.SourceChannelList},
		Errors: recovery.Statistics{TotalErrors: 3, Window: 5 * time.Minute, TopKinds: []recovery.KindCount{{Kind: recovery.KindOutOfMemory, Count: 2}}},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/detailed", r.URL.Path)
		_ = json.NewEncoder(w).Encode(report)
	}))
	defer srv.Close()

	got, err := fetchReport(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, diagnostics.StatusDegraded, got.Status)

	var buf bytes.Buffer
	printReport(&buf, got)
	out := buf.String()
	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "memory pressure HIGH")
	assert.Contains(t, out, "channel_panel")
	assert.Contains(t, out, "out_of_memory")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("animation")), bytes.Index(buf.Bytes(), []byte("timer")))
}

func TestFetchReport_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := fetchReport(context.Background(), srv.URL)
	assert.Error(t, err)
}
