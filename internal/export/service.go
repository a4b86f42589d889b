package export

import (
	"context"
	"fmt"
	"sort"

	"kv21/api/internal/store"
)

// courseNames maps course slugs to the headings printed on exports.
var courseNames = map[string]string{
	"ai":          "AI phục vụ công việc",
	"ai-nang-cao": "AI nâng cao",
}

// LessonStore defines the data access the exporter needs
type LessonStore interface {
	GetLesson(ctx context.Context, course, lessonID string) (store.Lesson, error)
}

// Service renders lessons to PDF
type Service struct {
	store LessonStore
}

func NewService(store LessonStore) *Service {
	return &Service{store: store}
}

// ExportLesson renders one lesson as a PDF document.
func (s *Service) ExportLesson(ctx context.Context, course, lessonID string) (*Result, error) {
	lesson, err := s.store.GetLesson(ctx, course, lessonID)
	if err != nil {
		return nil, fmt.Errorf("get lesson: %w", err)
	}

	html, err := RenderLessonHTML(lessonTemplateData(course, lesson))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	return exportPDF(html, lesson.Title)
}

func lessonTemplateData(course string, lesson store.Lesson) TemplateData {
	sections := make([]store.LessonSection, len(lesson.Sections))
	copy(sections, lesson.Sections)
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })

	data := TemplateData{
		Title:      lesson.Title,
		CourseName: courseNames[course],
		VideoURL:   lesson.VideoURL,
	}
	for _, section := range sections {
		data.Sections = append(data.Sections, TemplateSection{
			Title:       section.Title,
			ContentType: section.ContentType,
			Content:     section.Content,
			ListItems:   section.ListItems,
		})
	}
	return data
}
