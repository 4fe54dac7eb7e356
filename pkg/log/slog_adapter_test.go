package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestSlogAdapterMessageEvent(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	code := -61
	adapter.Log(Event{
		ConnectionID: "conn-1",
		Direction:    DirectionOut,
		Layer:        LayerIPC,
		Message: &MessageEvent{
			Type:   MessageTypeReply,
			ID:     9,
			Method: "GetChildren",
			Code:   &code,
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output: %v", err)
	}
	want := map[string]any{
		"conn_id":  "conn-1",
		"layer":    "IPC",
		"msg_type": "REPLY",
		"method":   "GetChildren",
		"code":     float64(-61),
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s: got %v, want %v", k, entry[k], v)
		}
	}
}

func TestSlogAdapterSkippedAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	adapter.Log(Event{StateChange: &StateChangeEvent{NewState: "UP"}})
	if buf.Len() != 0 {
		t.Errorf("unexpected output %q", buf.String())
	}
}
