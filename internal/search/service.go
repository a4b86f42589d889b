package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not
// configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	results, total, err := s.pgfts.Search(q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexLesson indexes a lesson (fire-and-forget to Meilisearch).
func (s *Service) IndexLesson(record LessonRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexLesson(record); err != nil {
			log.Printf("search: index lesson %s: %v", record.ID, err)
		}
	}()
}

// IndexTopic indexes a topic (fire-and-forget to Meilisearch).
func (s *Service) IndexTopic(record TopicRecord) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.IndexTopic(record); err != nil {
			log.Printf("search: index topic %s: %v", record.ID, err)
		}
	}()
}

// DeleteLesson removes a lesson from the search index (fire-and-forget).
func (s *Service) DeleteLesson(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteLesson(id); err != nil {
			log.Printf("search: delete lesson %s: %v", id, err)
		}
	}()
}

// DeleteTopic removes a topic from the search index (fire-and-forget).
func (s *Service) DeleteTopic(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteTopic(id); err != nil {
			log.Printf("search: delete topic %s: %v", id, err)
		}
	}()
}

// ReindexAllFromPG reads every lesson and topic from PostgreSQL and pushes
// them into Meilisearch. Called once at startup when Meilisearch is healthy.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.meili == nil || !s.meili.Healthy() || s.pgfts == nil {
		return
	}
	lessons, topics, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.meili.IndexLessons(lessons); err != nil {
		log.Printf("search: reindex lessons: %v", err)
	}
	if err := s.meili.IndexTopics(topics); err != nil {
		log.Printf("search: reindex topics: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
