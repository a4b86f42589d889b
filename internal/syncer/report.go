package syncer

// TabResult is the outcome of syncing one dashboard tab.
type TabResult struct {
	Tab     string `json:"sheetName"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type SheetSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// SheetReport aggregates the per-tab outcomes of one dashboard sync pass.
type SheetReport struct {
	Success bool         `json:"success"`
	Summary SheetSummary `json:"summary"`
	Details []TabResult  `json:"details,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// TopicSummary counts topic progress outcomes. Skipped covers both benign
// no-signal records and failures known to be harmless.
type TopicSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

type TopicReport struct {
	Success bool         `json:"success"`
	Summary TopicSummary `json:"summary"`
	Error   string       `json:"error,omitempty"`
}

// Report is the combined result of one full sync cycle, returned verbatim to
// HTTP callers.
type Report struct {
	Success bool        `json:"success"`
	Sheets  SheetReport `json:"sheets"`
	Topics  TopicReport `json:"chuyende"`
}
