// Package syncer pulls dashboard data out of Google Sheets and writes it to
// the store. One cycle refreshes the fixed dashboard tabs and the progress
// value of every tracked topic, each side reporting partial failures instead
// of aborting.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"kv21/api/internal/gsheet"
	"kv21/api/internal/gviz"
	"kv21/api/internal/progress"
	"kv21/api/internal/store"
)

// DashboardTabs are the spreadsheet tabs mirrored into the sheets table. The
// store rows for these names are provisioned by migration.
var DashboardTabs = []string{"chay", "cnch", "cvhomnay", "chitieu", "cvtuannay", "cvtuantoi"}

// maxConcurrentRequests bounds in-flight topic fetches per batch.
const maxConcurrentRequests = 10

// acceptableFailures are per-topic error fragments that count as skipped
// rather than failed. Stale or mistyped links are routine and must not flag
// the whole cycle.
var acceptableFailures = []string{
	"No link provided",
	"Invalid Google Sheets link",
	"Failed to fetch from Google Sheets: 400",
	"Failed to fetch from Google Sheets: 404",
}

// Store is the slice of the data layer the syncer writes through.
type Store interface {
	UpdateSheetSnapshot(ctx context.Context, name string, data json.RawMessage, updated string) error
	ListTopicsWithProgressSource(ctx context.Context) ([]store.Topic, error)
	UpdateTopicProgress(ctx context.Context, topicID string, progress *float64) error
}

type Syncer struct {
	sheets   *gsheet.Client
	progress *progress.Extractor
	store    Store
	sheetID  string
	logger   *log.Logger
	now      func() time.Time
}

func New(sheets *gsheet.Client, extractor *progress.Extractor, st Store, sheetID string, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.Default()
	}
	return &Syncer{
		sheets:   sheets,
		progress: extractor,
		store:    st,
		sheetID:  sheetID,
		logger:   logger,
		now:      time.Now,
	}
}

// Run is the single entrypoint for a full sync cycle. Both sides run
// concurrently and in isolation, so a broken store query on the topic side
// still leaves the dashboard tabs refreshed. Partial failures land in the
// report, never in an error.
func (s *Syncer) Run(ctx context.Context) Report {
	var (
		wg     sync.WaitGroup
		sheets SheetReport
		topics TopicReport
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		defer func() {
			if v := recover(); v != nil {
				s.logger.Printf("sheet sync panic: %v", v)
				sheets = SheetReport{Success: false, Error: fmt.Sprintf("sheet sync panic: %v", v)}
			}
		}()
		sheets = s.SyncSheets(ctx)
	}()
	go func() {
		defer wg.Done()
		defer func() {
			if v := recover(); v != nil {
				s.logger.Printf("topic progress sync panic: %v", v)
				topics = TopicReport{Success: false, Error: fmt.Sprintf("topic progress sync panic: %v", v)}
			}
		}()
		report, err := s.SyncTopicProgress(ctx)
		if err != nil {
			s.logger.Printf("topic progress sync: %v", err)
			topics = TopicReport{Success: false, Error: err.Error()}
			return
		}
		topics = report
	}()
	wg.Wait()

	return Report{
		Success: sheets.Success && topics.Success,
		Sheets:  sheets,
		Topics:  topics,
	}
}

// SyncSheets refreshes every dashboard tab in parallel. The tab list is small
// and fixed, so there is no concurrency cap here. One tab failing never stops
// the others.
func (s *Syncer) SyncSheets(ctx context.Context) SheetReport {
	results := make([]TabResult, len(DashboardTabs))

	var wg sync.WaitGroup
	for i, tab := range DashboardTabs {
		i, tab := i, tab
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.syncTab(ctx, tab)
		}()
	}
	wg.Wait()

	summary := SheetSummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	return SheetReport{
		Success: summary.Failed == 0,
		Summary: summary,
		Details: results,
	}
}

func (s *Syncer) syncTab(ctx context.Context, tab string) TabResult {
	body, err := s.sheets.Fetch(ctx, s.sheetID, tab, true)
	if err != nil {
		s.logger.Printf("sync tab %s: fetch: %v", tab, err)
		return TabResult{Tab: tab, Error: err.Error()}
	}

	rows, err := gviz.ParseTable(body)
	if err != nil {
		s.logger.Printf("sync tab %s: parse: %v", tab, err)
		return TabResult{Tab: tab, Error: err.Error()}
	}
	if len(rows) == 0 {
		// An empty upstream tab keeps the last stored snapshot.
		return TabResult{Tab: tab, Success: true}
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return TabResult{Tab: tab, Error: err.Error()}
	}

	if err := s.store.UpdateSheetSnapshot(ctx, tab, data, s.timestamp()); err != nil {
		s.logger.Printf("sync tab %s: store: %v", tab, err)
		return TabResult{Tab: tab, Error: err.Error()}
	}

	return TabResult{Tab: tab, Success: true}
}

// SyncTopicProgress recomputes progress for every topic with a configured
// source tab. Records are fetched in batches of maxConcurrentRequests, each
// batch fully settling before the next starts. The returned error covers only
// the initial store read; per-record faults are classified into the report.
func (s *Syncer) SyncTopicProgress(ctx context.Context) (TopicReport, error) {
	records, err := s.store.ListTopicsWithProgressSource(ctx)
	if err != nil {
		return TopicReport{}, err
	}

	outcomes := make([]topicOutcome, len(records))
	for start := 0; start < len(records); start += maxConcurrentRequests {
		end := min(start+maxConcurrentRequests, len(records))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				outcomes[i] = s.syncTopic(ctx, records[i])
			}()
		}
		wg.Wait()
	}

	summary := TopicSummary{Total: len(outcomes)}
	for _, o := range outcomes {
		switch {
		case o.success && o.progress != nil:
			summary.Succeeded++
		case o.success:
			summary.Skipped++
		case isAcceptableFailure(o.err):
			summary.Skipped++
		default:
			summary.Failed++
			s.logger.Printf("sync topic %s: %s", o.id, o.err)
		}
	}

	return TopicReport{
		Success: summary.Failed == 0,
		Summary: summary,
	}, nil
}

type topicOutcome struct {
	id       string
	success  bool
	progress *float64
	err      string
}

func (s *Syncer) syncTopic(ctx context.Context, topic store.Topic) topicOutcome {
	value, err := s.progress.Extract(ctx, topic.Link, topic.ProgressSource)
	if err != nil {
		return topicOutcome{id: topic.ID, err: err.Error()}
	}
	if value == nil {
		// Nothing to sync for this record. Progress keeps its last value.
		return topicOutcome{id: topic.ID, success: true}
	}

	if err := s.store.UpdateTopicProgress(ctx, topic.ID, value); err != nil {
		return topicOutcome{id: topic.ID, err: "Database update failed: " + err.Error()}
	}

	return topicOutcome{id: topic.ID, success: true, progress: value}
}

func isAcceptableFailure(message string) bool {
	for _, fragment := range acceptableFailures {
		if strings.Contains(message, fragment) {
			return true
		}
	}
	return false
}

var hoChiMinh = loadHoChiMinh()

func loadHoChiMinh() *time.Location {
	loc, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	if err != nil {
		return time.FixedZone("+07", 7*60*60)
	}
	return loc
}

func (s *Syncer) timestamp() string {
	return s.now().In(hoChiMinh).Format("15:04 02/01/2006")
}
