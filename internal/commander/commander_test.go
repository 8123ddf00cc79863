package commander

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/grounded-agent/internal/symbol"
)

func testMessage() symbol.CommanderMessage {
	return symbol.CommanderMessage{
		ID:       "cm-1",
		Priority: symbol.PriorityHigh,
		Kind:     "escalation",
		Content:  "counterpart requested account credentials",
	}
}

func TestSendMessageAcknowledged(t *testing.T) {
	var got symbol.CommanderMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/messages", r.URL.Path)
		require.Equal(t, "Bearer sekrit", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, AuthToken: "sekrit"})
	require.NoError(t, err)

	ok, err := c.SendMessage(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cm-1", got.ID)
	assert.Equal(t, symbol.PriorityHigh, got.Priority)
}

func TestSendMessageRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"acknowledged": false, "reason": "duplicate"})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	ok, err := c.SendMessage(context.Background(), testMessage())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendMessageRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"acknowledged": true})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, MaxElapsed: 5 * time.Second})
	require.NoError(t, err)

	ok, err := c.SendMessage(context.Background(), testMessage())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestSendMessageClientErrorIsPermanent(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL, MaxElapsed: 5 * time.Second})
	require.NoError(t, err)

	_, err = c.SendMessage(context.Background(), testMessage())
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCheckForCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/commands", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"updates": []map[string]any{
				{"path": "config.veto_gate.auto_approve_threshold", "value": "0.8", "source": "operator"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	updates, err := c.CheckForCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, "config.veto_gate.auto_approve_threshold", updates[0].Path)
	assert.Equal(t, "operator", updates[0].Source)
}

func TestReportStatusStampsTime(t *testing.T) {
	var got StatusReport
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/status", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := NewClient(ClientOptions{BaseURL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, c.ReportStatus(context.Background(), StatusReport{
		SymbolID: "sym-report-1",
		Status:   symbol.StatusActive,
		Alert:    symbol.AlertYellow,
		Risk:     0.35,
	}))
	assert.Equal(t, "sym-report-1", got.SymbolID)
	assert.False(t, got.ReportedAt.IsZero())
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(ClientOptions{})
	require.Error(t, err)
}

func TestFakeDrainsCommands(t *testing.T) {
	f := NewFake()
	f.QueuedCmds = []symbol.FieldUpdate{{Path: "status", Value: "paused"}}

	cmds, err := f.CheckForCommands(context.Background())
	require.NoError(t, err)
	require.Len(t, cmds, 1)

	cmds, err = f.CheckForCommands(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cmds)
}
