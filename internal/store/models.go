package store

import (
	"encoding/json"
	"time"
)

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

// SheetSnapshot is the last synced copy of one dashboard tab. Data holds the
// row objects exactly as parsed from the sheet, Updated is the human-readable
// sync timestamp shown on the dashboard.
type SheetSnapshot struct {
	Name    string
	Data    json.RawMessage
	Updated string
}

// Topic is a tracked work topic, either active (chuyende) or completed
// (chuyendeketthuc). Progress is nil until a sync resolves it from the
// linked sheet.
type Topic struct {
	ID             string
	Name           string
	Doc            string
	Report         string
	Supervisor     string
	Link           string
	ProgressSource string
	Progress       *float64
	SortOrder      int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Lesson struct {
	ID        string
	Title     string
	VideoURL  string
	Sections  []LessonSection
	SortOrder int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LessonSection is stored as JSONB inside the lesson row, so the field tags
// are the wire names.
type LessonSection struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ContentType string   `json:"contentType"`
	Order       int      `json:"order"`
	ListItems   []string `json:"listItems,omitempty"`
}

// DayReport is the singleton embed URL for the daily report board.
type DayReport struct {
	URL       string
	UpdatedAt time.Time
}
