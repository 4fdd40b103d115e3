package logging

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryLogger_RecordsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, NoColor: true, HistorySize: 10})

	l.Log(LevelInfo, "focus", "focus granted", "source", "category_list")
	l.LogWithContext(LevelWarn, "resource", "cleanup failed", map[string]any{"id": "r-1"})

	history := l.History()
	require.Len(t, history, 2)
	assert.Equal(t, "focus granted", history[0].Message)
	assert.Equal(t, "category_list", history[0].Fields["source"])
	assert.Equal(t, LevelWarn, history[1].Level)
	assert.Equal(t, "r-1", history[1].Fields["id"])
	assert.Contains(t, buf.String(), "cleanup failed")
}

func TestHistoryLogger_BoundedHistory(t *testing.T) {
	l := New(Config{Writer: &bytes.Buffer{}, NoColor: true, HistorySize: 3})

	for i := 0; i < 5; i++ {
		l.Log(LevelInfo, "t", fmt.Sprintf("msg-%d", i))
	}

	history := l.History()
	require.Len(t, history, 3)
	assert.Equal(t, "msg-2", history[0].Message)
	assert.Equal(t, "msg-4", history[2].Message)
}

func TestHistoryLogger_ConcurrentWritersStayBounded(t *testing.T) {
	l := New(Config{Writer: io.Discard, NoColor: true, HistorySize: 50})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				l.LogWithContext(LevelWarn, "pressure", "reclaimed", map[string]any{"worker": w, "n": i})
			}
		}(w)
	}
	wg.Wait()

	history := l.History()
	assert.Len(t, history, 50)
	for _, e := range history {
		assert.Equal(t, "pressure", e.Tag)
	}
}

func TestHistoryLogger_DefaultCapacity(t *testing.T) {
	l := New(Config{Writer: io.Discard, NoColor: true})
	for i := 0; i < 250; i++ {
		l.Log(LevelInfo, "t", fmt.Sprintf("msg-%d", i))
	}

	history := l.History()
	require.Len(t, history, 200)
	assert.Equal(t, "msg-50", history[0].Message)
	assert.Equal(t, "msg-249", history[199].Message)
}

func TestHistoryLogger_DebugToggle(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Writer: &buf, NoColor: true})

	l.Log(LevelDebug, "t", "hidden")
	assert.Empty(t, l.History())
	assert.NotContains(t, buf.String(), "hidden")

	l.SetDebug(true)
	assert.True(t, l.IsDebug())
	l.Log(LevelDebug, "t", "shown")
	require.Len(t, l.History(), 1)
	assert.Contains(t, buf.String(), "shown")
}

func TestTagged(t *testing.T) {
	l := Discard()
	log := WithTag(l, "recovery")

	log.Error("strategy failed", "strategy", "fallback")

	history := l.History()
	require.Len(t, history, 1)
	assert.Equal(t, "recovery", history[0].Tag)
	assert.Equal(t, LevelError, history[0].Level)
}
