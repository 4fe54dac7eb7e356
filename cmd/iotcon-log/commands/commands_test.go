package commands

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/iotcon/iotcon-go/pkg/log"
)

var ts = time.Date(2026, 3, 2, 10, 15, 32, 123456000, time.UTC)

func createTestLogFile(t *testing.T, events []log.Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test"+log.FileExtension)
	logger, err := log.NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	for _, e := range events {
		logger.Log(e)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return path
}

func sampleEvents() []log.Event {
	code := -61
	took := 3 * time.Millisecond
	return []log.Event{
		{
			Timestamp: ts, ConnectionID: "abc12345-6789", Direction: log.DirectionIn,
			Layer: log.LayerIPC, Category: log.CategoryMessage, LocalRole: log.RoleDaemon,
			Message: &log.MessageEvent{Type: log.MessageTypeCall, ID: 7, Method: "Get"},
		},
		{
			Timestamp: ts.Add(took), ConnectionID: "abc12345-6789", Direction: log.DirectionOut,
			Layer: log.LayerIPC, Category: log.CategoryMessage, LocalRole: log.RoleDaemon,
			Message: &log.MessageEvent{Type: log.MessageTypeReply, ID: 7, Method: "Get", Code: &code, ProcessingTime: &took},
		},
		{
			Timestamp: ts.Add(time.Second), ConnectionID: "abc12345-6789", Direction: log.DirectionOut,
			Layer: log.LayerDispatch, Category: log.CategoryMessage, LocalRole: log.RoleDaemon,
			Message: &log.MessageEvent{Type: log.MessageTypeSignal, Method: "GET_4", Ticket: 12, Payload: []byte(`{"rep":{"power":true}}`)},
		},
		{
			Timestamp: ts.Add(2 * time.Second), ConnectionID: "def67890", Direction: log.DirectionIn,
			Layer: log.LayerTransport, Category: log.CategoryError, LocalRole: log.RoleClient,
			Error: &log.ErrorEventData{Layer: log.LayerTransport, Message: "no route", Context: "do_request"},
		},
	}
}

func TestFormatEvent(t *testing.T) {
	var buf bytes.Buffer
	for _, e := range sampleEvents() {
		formatEvent(&buf, e)
	}
	output := buf.String()

	for _, want := range []string{
		"2026-03-02T10:15:32.123456Z",
		"[conn:abc12345]",
		"DAEMON IN  IPC CALL",
		"Method: Get",
		"Code: -61",
		"Duration: 3.000ms",
		"Ticket: 12",
		`Payload: {"rep":{"power":true}}`,
		"CLIENT IN  TRANSPORT Error",
		"Context: do_request",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func TestFormatPayloadBinary(t *testing.T) {
	if got := formatPayload([]byte{0xa1, 0x01}); got != "a101" {
		t.Errorf("formatPayload = %q, want hex", got)
	}
}

func TestParseFlags(t *testing.T) {
	if l, err := ParseLayerFlag("Dispatch"); err != nil || l != log.LayerDispatch {
		t.Errorf("ParseLayerFlag = %v, %v", l, err)
	}
	if _, err := ParseLayerFlag("wire"); err == nil {
		t.Error("expected error for unknown layer")
	}
	if d, err := ParseDirectionFlag("OUT"); err != nil || d != log.DirectionOut {
		t.Errorf("ParseDirectionFlag = %v, %v", d, err)
	}
	if c, err := ParseCategoryFlag("error"); err != nil || c != log.CategoryError {
		t.Errorf("ParseCategoryFlag = %v, %v", c, err)
	}
	if r, err := ParseRoleFlag("client"); err != nil || r != log.RoleClient {
		t.Errorf("ParseRoleFlag = %v, %v", r, err)
	}
	if _, err := ParseRoleFlag("peer"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestRunViewFilters(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	layer := log.LayerDispatch

	var buf bytes.Buffer
	if err := RunView(path, ViewFilter{Layer: &layer}, &buf); err != nil {
		t.Fatalf("RunView: %v", err)
	}
	output := buf.String()
	if !strings.Contains(output, "GET_4") {
		t.Errorf("expected dispatch signal, got:\n%s", output)
	}
	if strings.Contains(output, "CALL") {
		t.Errorf("ipc call should be filtered out, got:\n%s", output)
	}
}

func TestRunFilter(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out"+log.FileExtension)

	n, err := RunFilter(path, FilterOptions{Output: out, ConnID: "abc12345-6789", Method: "Get"})
	if err != nil {
		t.Fatalf("RunFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("filtered %d events, want 2", n)
	}

	if _, err := RunFilter(path, FilterOptions{Output: out, TimeStart: "yesterday"}); err == nil {
		t.Error("expected error for bad time")
	}
}

func TestRunExportCSV(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.csv")
	if err := RunExport(path, "csv", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	rows := readCSV(t, out)
	if len(rows) != 5 {
		t.Fatalf("got %d rows, want header plus 4", len(rows))
	}
	if rows[3][7] != "GET_4" || rows[3][8] != "12" {
		t.Errorf("signal row = %v", rows[3])
	}
	if err := RunExport(path, "xml", out); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRunExportJSONL(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	out := filepath.Join(t.TempDir(), "out.jsonl")
	if err := RunExport(path, "jsonl", out); err != nil {
		t.Fatalf("RunExport: %v", err)
	}
	data := readFile(t, out)
	if lines := strings.Count(data, "\n"); lines != 4 {
		t.Errorf("got %d lines, want 4", lines)
	}
	if !strings.Contains(data, `"ProcessingTime":3000000`) {
		t.Errorf("reply duration missing from export:\n%s", data)
	}
}

func TestRunStats(t *testing.T) {
	path := createTestLogFile(t, sampleEvents())
	var buf bytes.Buffer
	if err := RunStats(path, &buf); err != nil {
		t.Fatalf("RunStats: %v", err)
	}
	output := buf.String()
	for _, want := range []string{
		"Total Events: 4",
		"IPC:",
		"DISPATCH:",
		"Get:",
		"1 calls, 1 failed, slowest 3.000ms",
		"Connections: 2",
		"Errors: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("missing %q in:\n%s", want, output)
		}
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(readFile(t, path))).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}
