package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements search over PostgreSQL full-text indexes as a fallback.
// The fts columns are generated by migration with the 'simple' configuration,
// which tokenizes Vietnamese text without stemming.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across both lesson tables and both topic
// tables using plainto_tsquery with ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	const tsQuery = "plainto_tsquery('simple', $1)"
	args := []any{q.Text}

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultLesson {
		for course, table := range map[string]string{"ai": "ailessons", "ai-nang-cao": "aiadvancedlessons"} {
			if q.FilterCourse != "" && q.FilterCourse != course {
				continue
			}
			subQueries = append(subQueries, fmt.Sprintf(`
				SELECT 'lesson'::text AS type, l.id, l.title,
					ts_headline('simple', l.sections::text, %s, 'MaxFragments=1,MaxWords=30') AS snippet,
					'%s'::text AS course,
					false AS completed,
					ts_rank(l.fts, %s) AS rank
				FROM %s l
				WHERE l.fts @@ %s`, tsQuery, course, tsQuery, table, tsQuery))
		}
	}

	if q.FilterType == "" || q.FilterType == ResultTopic {
		for table, completed := range map[string]string{"chuyende": "false", "chuyendeketthuc": "true"} {
			subQueries = append(subQueries, fmt.Sprintf(`
				SELECT 'topic'::text AS type, t.id, t.name AS title,
					ts_headline('simple', coalesce(t.doc, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
					''::text AS course,
					%s AS completed,
					ts_rank(t.fts, %s) AS rank
				FROM %s t
				WHERE t.fts @@ %s`, tsQuery, completed, tsQuery, table, tsQuery))
		}
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	union := strings.Join(subQueries, " UNION ALL ")
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, course, completed
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`, union, limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.Course, &r.Completed); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns every indexable record for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]LessonRecord, []TopicRecord, error) {
	lessons := make([]LessonRecord, 0)
	for course, table := range map[string]string{"ai": "ailessons", "ai-nang-cao": "aiadvancedlessons"} {
		rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, title, sections::text FROM %s
		`, table))
		if err != nil {
			return nil, nil, fmt.Errorf("load lessons: %w", err)
		}
		for rows.Next() {
			record := LessonRecord{Course: course}
			if err := rows.Scan(&record.ID, &record.Title, &record.Content); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("scan lesson: %w", err)
			}
			lessons = append(lessons, record)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("iterate lessons: %w", err)
		}
		rows.Close()
	}

	topics := make([]TopicRecord, 0)
	for table, completed := range map[string]bool{"chuyende": false, "chuyendeketthuc": true} {
		rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, name, doc, supervisor FROM %s
		`, table))
		if err != nil {
			return nil, nil, fmt.Errorf("load topics: %w", err)
		}
		for rows.Next() {
			record := TopicRecord{Completed: completed}
			if err := rows.Scan(&record.ID, &record.Name, &record.Doc, &record.Supervisor); err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("scan topic: %w", err)
			}
			topics = append(topics, record)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, nil, fmt.Errorf("iterate topics: %w", err)
		}
		rows.Close()
	}

	return lessons, topics, nil
}
