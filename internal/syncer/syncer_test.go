package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"kv21/api/internal/gsheet"
	"kv21/api/internal/progress"
	"kv21/api/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	snapshots   map[string]json.RawMessage
	updated     map[string]string
	topics      []store.Topic
	listErr     error
	listPanic   string
	progress    map[string]*float64
	snapshotErr func(name string) error
	writes      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: make(map[string]json.RawMessage),
		updated:   make(map[string]string),
		progress:  make(map[string]*float64),
	}
}

func (f *fakeStore) UpdateSheetSnapshot(ctx context.Context, name string, data json.RawMessage, updated string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshotErr != nil {
		if err := f.snapshotErr(name); err != nil {
			return err
		}
	}
	f.snapshots[name] = data
	f.updated[name] = updated
	f.writes++
	return nil
}

func (f *fakeStore) ListTopicsWithProgressSource(ctx context.Context) ([]store.Topic, error) {
	if f.listPanic != "" {
		panic(f.listPanic)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.topics, nil
}

func (f *fakeStore) UpdateTopicProgress(ctx context.Context, topicID string, value *float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress[topicID] = value
	return nil
}

func gvizTable(labels []string, rows [][]any) string {
	cols := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		cols = append(cols, map[string]any{"label": label})
	}
	tableRows := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		cells := make([]map[string]any, 0, len(row))
		for _, v := range row {
			cells = append(cells, map[string]any{"v": v})
		}
		tableRows = append(tableRows, map[string]any{"c": cells})
	}
	payload, err := json.Marshal(map[string]any{"table": map[string]any{"cols": cols, "rows": tableRows}})
	if err != nil {
		panic(err)
	}
	return "/*O_o*/\ngoogle.visualization.Query.setResponse(" + string(payload) + ");"
}

func gvizCell(value string) string {
	return gvizTable([]string{""}, [][]any{{value}})
}

func newTestSyncer(t *testing.T, st *fakeStore, handler http.HandlerFunc) *Syncer {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := gsheet.NewWithBase(server.URL, server.Client())
	s := New(client, progress.NewExtractor(client), st, "dashboard", log.New(&strings.Builder{}, "", 0))
	s.now = func() time.Time { return time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC) }
	return s
}

func topicLink(id string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/edit", id)
}

func TestSyncSheetsPartialFailure(t *testing.T) {
	st := newFakeStore()
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sheet") == "chitieu" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, gvizTable([]string{"Nội dung"}, [][]any{{"x"}}))
	})

	report := s.SyncSheets(context.Background())

	if report.Success {
		t.Error("expected overall failure with one broken tab")
	}
	if report.Summary.Total != 6 || report.Summary.Succeeded != 5 || report.Summary.Failed != 1 {
		t.Errorf("unexpected summary: %+v", report.Summary)
	}
	if len(report.Details) != 6 {
		t.Fatalf("expected a detail entry per tab, got %d", len(report.Details))
	}
	for _, d := range report.Details {
		if d.Tab == "chitieu" {
			if d.Success {
				t.Error("chitieu should have failed")
			}
			if d.Error != "Failed to fetch from Google Sheets: 500" {
				t.Errorf("unexpected error message: %q", d.Error)
			}
		} else if !d.Success {
			t.Errorf("tab %s unexpectedly failed: %s", d.Tab, d.Error)
		}
	}
}

func TestSyncSheetsMissingSnapshotRowFails(t *testing.T) {
	st := newFakeStore()
	st.snapshotErr = func(name string) error {
		if name == "chay" {
			return store.ErrSnapshotNotFound
		}
		return nil
	}
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"Nội dung"}, [][]any{{"x"}}))
	})

	report := s.SyncSheets(context.Background())
	if report.Success || report.Summary.Failed != 1 {
		t.Errorf("expected exactly one failed tab, got %+v", report.Summary)
	}
	for _, d := range report.Details {
		if d.Tab == "chay" && d.Error != "Data not found" {
			t.Errorf("unexpected error message: %q", d.Error)
		}
	}
}

func TestSyncSheetsIdempotent(t *testing.T) {
	st := newFakeStore()
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"Năm", "Số vụ"}, [][]any{{"2024", 12.0}}))
	})

	first := s.SyncSheets(context.Background())
	if !first.Success {
		t.Fatalf("first pass failed: %+v", first)
	}
	snapshot := string(st.snapshots["chay"])

	second := s.SyncSheets(context.Background())
	if !second.Success {
		t.Fatalf("second pass failed: %+v", second)
	}
	if got := string(st.snapshots["chay"]); got != snapshot {
		t.Errorf("repeated sync changed stored data:\nfirst:  %s\nsecond: %s", snapshot, got)
	}
}

func TestSyncTabTimestampFormat(t *testing.T) {
	st := newFakeStore()
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"a"}, [][]any{{"x"}}))
	})

	if report := s.SyncSheets(context.Background()); !report.Success {
		t.Fatalf("sync failed: %+v", report)
	}
	// 10:30 UTC is 17:30 in Asia/Ho_Chi_Minh.
	if got := st.updated["chay"]; got != "17:30 05/03/2024" {
		t.Errorf("unexpected timestamp: %q", got)
	}
}

func TestSyncTabEmptyTableKeepsSnapshot(t *testing.T) {
	st := newFakeStore()
	st.snapshots["chay"] = json.RawMessage(`[{"Năm":"2024","Số vụ":12}]`)
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"Năm", "Số vụ"}, nil))
	})

	report := s.SyncSheets(context.Background())
	if !report.Success {
		t.Fatalf("sync failed: %+v", report)
	}
	if st.writes != 0 {
		t.Errorf("expected no snapshot writes for empty tabs, got %d", st.writes)
	}
	if got := string(st.snapshots["chay"]); got != `[{"Năm":"2024","Số vụ":12}]` {
		t.Errorf("existing snapshot was overwritten: %s", got)
	}
}

func TestSyncTopicProgressClassification(t *testing.T) {
	st := newFakeStore()
	st.topics = []store.Topic{
		{ID: "t1", Link: topicLink("good"), ProgressSource: "data"},
		{ID: "t2", Link: "", ProgressSource: "data"},
		{ID: "t3", Link: topicLink("gone"), ProgressSource: "data"},
		{ID: "t4", Link: topicLink("broken"), ProgressSource: "data"},
		{ID: "t5", Link: topicLink("text"), ProgressSource: "data"},
	}
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/d/good/"):
			fmt.Fprint(w, gvizCell("42.567"))
		case strings.Contains(r.URL.Path, "/d/gone/"):
			w.WriteHeader(http.StatusNotFound)
		case strings.Contains(r.URL.Path, "/d/broken/"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			fmt.Fprint(w, gvizCell("chưa có"))
		}
	})

	report, err := s.SyncTopicProgress(context.Background())
	if err != nil {
		t.Fatalf("SyncTopicProgress: %v", err)
	}

	want := TopicSummary{Total: 5, Succeeded: 1, Failed: 1, Skipped: 3}
	if report.Summary != want {
		t.Errorf("summary = %+v, want %+v", report.Summary, want)
	}
	if report.Success {
		t.Error("a real failure should flip success")
	}
	if got := st.progress["t1"]; got == nil || *got != 42.57 {
		t.Errorf("t1 progress = %v, want 42.57", got)
	}
	if _, wrote := st.progress["t2"]; wrote {
		t.Error("no progress write expected for a link-less topic")
	}
	if _, wrote := st.progress["t3"]; wrote {
		t.Error("no progress write expected for a 404 link")
	}
}

func TestSyncTopicProgressBoundedConcurrency(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	st := newFakeStore()
	for i := 0; i < 25; i++ {
		st.topics = append(st.topics, store.Topic{
			ID:             fmt.Sprintf("t%d", i),
			Link:           topicLink(fmt.Sprintf("sheet-%d", i)),
			ProgressSource: "data",
		})
	}
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()

		time.Sleep(20 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()

		fmt.Fprint(w, gvizCell("50"))
	})

	report, err := s.SyncTopicProgress(context.Background())
	if err != nil {
		t.Fatalf("SyncTopicProgress: %v", err)
	}
	if report.Summary.Succeeded != 25 {
		t.Errorf("expected all 25 to succeed, got %+v", report.Summary)
	}
	if peak > maxConcurrentRequests {
		t.Errorf("peak in-flight fetches = %d, cap is %d", peak, maxConcurrentRequests)
	}
}

func TestRunIsolatesTopicQueryFailure(t *testing.T) {
	st := newFakeStore()
	st.listErr = errors.New("store offline")
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"a"}, nil))
	})

	report := s.Run(context.Background())

	if report.Success {
		t.Error("combined success must require both sides")
	}
	if !report.Sheets.Success {
		t.Errorf("sheet sync should be unaffected: %+v", report.Sheets)
	}
	if report.Topics.Success || report.Topics.Error != "store offline" {
		t.Errorf("unexpected topic report: %+v", report.Topics)
	}
}

func TestRunRecoversTopicPanic(t *testing.T) {
	st := newFakeStore()
	st.listPanic = "unexpected column"
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, gvizTable([]string{"Nội dung"}, [][]any{{"x"}}))
	})

	report := s.Run(context.Background())

	if report.Success {
		t.Error("combined success must require both sides")
	}
	if !report.Sheets.Success {
		t.Errorf("sheet sync should be unaffected: %+v", report.Sheets)
	}
	if report.Topics.Success || !strings.Contains(report.Topics.Error, "unexpected column") {
		t.Errorf("unexpected topic report: %+v", report.Topics)
	}
}

func TestRunEndToEnd(t *testing.T) {
	st := newFakeStore()
	s := newTestSyncer(t, st, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sheet") == "chay" {
			fmt.Fprint(w, gvizTable(
				[]string{"Năm", "Số vụ"},
				[][]any{{"2023", 10.0}, {"2024", 12.0}, {"2025", 7.0}},
			))
			return
		}
		fmt.Fprint(w, gvizTable([]string{"Nội dung"}, [][]any{{"x"}}))
	})

	report := s.Run(context.Background())

	if !report.Success {
		t.Fatalf("sync failed: %+v", report)
	}
	if report.Sheets.Summary.Total != len(DashboardTabs) {
		t.Errorf("total = %d, want %d", report.Sheets.Summary.Total, len(DashboardTabs))
	}
	if st.writes != len(DashboardTabs) {
		t.Errorf("expected one snapshot write per tab, got %d", st.writes)
	}

	var rows []map[string]any
	if err := json.Unmarshal(st.snapshots["chay"], &rows); err != nil {
		t.Fatalf("decode stored data: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(rows))
	}
	if rows[1]["Năm"] != "2024" || rows[1]["Số vụ"] != 12.0 {
		t.Errorf("unexpected second record: %+v", rows[1])
	}
}
