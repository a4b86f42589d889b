package search

import (
	"strings"

	"kv21/api/internal/store"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultLesson ResultType = "lesson"
	ResultTopic  ResultType = "topic"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Course    string     `json:"course,omitempty"`
	Completed bool       `json:"completed,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterCourse string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// LessonRecord is the data indexed per lesson. Content flattens the section
// bodies so they rank as one field.
type LessonRecord struct {
	ID      string `json:"id"`
	Course  string `json:"course"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// TopicRecord is the data indexed per tracked topic.
type TopicRecord struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Doc        string `json:"doc"`
	Supervisor string `json:"supervisor"`
	Completed  bool   `json:"completed"`
}

// NewLessonRecord flattens a stored lesson into its indexable form.
func NewLessonRecord(course string, lesson store.Lesson) LessonRecord {
	var parts []string
	for _, section := range lesson.Sections {
		if section.Title != "" {
			parts = append(parts, section.Title)
		}
		if section.Content != "" {
			parts = append(parts, section.Content)
		}
		parts = append(parts, section.ListItems...)
	}
	return LessonRecord{
		ID:      lesson.ID,
		Course:  course,
		Title:   lesson.Title,
		Content: strings.Join(parts, " "),
	}
}

// NewTopicRecord maps a stored topic into its indexable form.
func NewTopicRecord(topic store.Topic, completed bool) TopicRecord {
	return TopicRecord{
		ID:         topic.ID,
		Name:       topic.Name,
		Doc:        topic.Doc,
		Supervisor: topic.Supervisor,
		Completed:  completed,
	}
}
