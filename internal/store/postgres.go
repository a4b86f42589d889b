package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSnapshotNotFound is returned when a sync tries to write a tab that was
// never provisioned in the sheets table.
var ErrSnapshotNotFound = errors.New("Data not found")

// ErrUnknownCourse is returned for a course slug with no backing table.
var ErrUnknownCourse = errors.New("unknown course")

const dayReportSingletonID = "baocaongay-settings-singleton"

// lessonTables maps course slugs to their tables. Only values from this map
// are ever interpolated into SQL.
var lessonTables = map[string]string{
	"ai":          "ailessons",
	"ai-nang-cao": "aiadvancedlessons",
}

func lessonTable(course string) (string, error) {
	table, ok := lessonTables[course]
	if !ok {
		return "", ErrUnknownCourse
	}
	return table, nil
}

func topicTable(completed bool) string {
	if completed {
		return "chuyendeketthuc"
	}
	return "chuyende"
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, email, password_hash, role, created_at
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.DisplayName, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetSheetSnapshot(ctx context.Context, name string) (SheetSnapshot, error) {
	var item SheetSnapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT name, data, updated
		FROM sheets
		WHERE name = $1
	`, name).Scan(&item.Name, &item.Data, &item.Updated)
	if errors.Is(err, sql.ErrNoRows) {
		return SheetSnapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return SheetSnapshot{}, fmt.Errorf("get sheet snapshot: %w", err)
	}
	return item, nil
}

// UpdateSheetSnapshot replaces the data of an already provisioned tab. Tabs
// are seeded by migration, so a missing row means a misconfigured deployment
// rather than something to create on the fly.
func (s *PostgresStore) UpdateSheetSnapshot(ctx context.Context, name string, data json.RawMessage, updated string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sheets SET data=$2, updated=$3 WHERE name=$1
	`, name, data, updated)
	if err != nil {
		return fmt.Errorf("update sheet snapshot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sheet snapshot: %w", err)
	}
	if affected == 0 {
		return ErrSnapshotNotFound
	}
	return nil
}

const topicColumns = `id, name, doc, report, supervisor, link, progress_source, progress, sort_order, created_at, updated_at`

func scanTopic(row interface{ Scan(...any) error }) (Topic, error) {
	var item Topic
	err := row.Scan(
		&item.ID,
		&item.Name,
		&item.Doc,
		&item.Report,
		&item.Supervisor,
		&item.Link,
		&item.ProgressSource,
		&item.Progress,
		&item.SortOrder,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}

func (s *PostgresStore) ListTopics(ctx context.Context, completed bool) ([]Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY sort_order, created_at`, topicColumns, topicTable(completed))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	defer rows.Close()

	items := make([]Topic, 0)
	for rows.Next() {
		item, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate topics: %w", err)
	}
	return items, nil
}

// ListTopicsWithProgressSource returns the active topics that opted into
// progress tracking.
func (s *PostgresStore) ListTopicsWithProgressSource(ctx context.Context) ([]Topic, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM chuyende
		WHERE progress_source <> ''
		ORDER BY sort_order, created_at
	`, topicColumns)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list tracked topics: %w", err)
	}
	defer rows.Close()

	items := make([]Topic, 0)
	for rows.Next() {
		item, err := scanTopic(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracked topic: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracked topics: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, completed bool, topicID string) (Topic, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, topicColumns, topicTable(completed))
	item, err := scanTopic(s.db.QueryRowContext(ctx, query, topicID))
	if err != nil {
		return Topic{}, err
	}
	return item, nil
}

// InsertTopic appends a topic at the end of its table's display order.
func (s *PostgresStore) InsertTopic(ctx context.Context, completed bool, item Topic) error {
	table := topicTable(completed)
	query := fmt.Sprintf(`
		INSERT INTO %s (id, name, doc, report, supervisor, link, progress_source, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, (SELECT COALESCE(MAX(sort_order)+1, 0) FROM %s))
	`, table, table)
	_, err := s.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Doc, item.Report, item.Supervisor, item.Link, item.ProgressSource)
	if err != nil {
		return fmt.Errorf("insert topic: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, completed bool, item Topic) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET name=$2, doc=$3, report=$4, supervisor=$5, link=$6, progress_source=$7, updated_at=NOW()
		WHERE id=$1
	`, topicTable(completed))
	res, err := s.db.ExecContext(ctx, query,
		item.ID, item.Name, item.Doc, item.Report, item.Supervisor, item.Link, item.ProgressSource)
	if err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) UpdateTopicProgress(ctx context.Context, topicID string, progress *float64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chuyende SET progress=$2, updated_at=NOW() WHERE id=$1
	`, topicID, progress)
	if err != nil {
		return fmt.Errorf("update topic progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, completed bool, topicID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, topicTable(completed))
	res, err := s.db.ExecContext(ctx, query, topicID)
	if err != nil {
		return fmt.Errorf("delete topic: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CompleteTopic moves an active topic to the completed table, appending it to
// the completed display order. RestoreTopic is the inverse.
func (s *PostgresStore) CompleteTopic(ctx context.Context, topicID string) error {
	return s.moveTopic(ctx, topicID, "chuyende", "chuyendeketthuc")
}

func (s *PostgresStore) RestoreTopic(ctx context.Context, topicID string) error {
	return s.moveTopic(ctx, topicID, "chuyendeketthuc", "chuyende")
}

func (s *PostgresStore) moveTopic(ctx context.Context, topicID, from, to string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin move topic: %w", err)
	}
	defer tx.Rollback()

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, name, doc, report, supervisor, link, progress_source, progress, sort_order, created_at)
		SELECT id, name, doc, report, supervisor, link, progress_source, progress,
			(SELECT COALESCE(MAX(sort_order)+1, 0) FROM %s), created_at
		FROM %s WHERE id=$1
	`, to, to, from)
	res, err := tx.ExecContext(ctx, insert, topicID)
	if err != nil {
		return fmt.Errorf("move topic: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}

	remove := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, from)
	if _, err := tx.ExecContext(ctx, remove, topicID); err != nil {
		return fmt.Errorf("remove moved topic: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit move topic: %w", err)
	}
	return nil
}

// ReorderTopics rewrites sort_order to match the given id sequence.
func (s *PostgresStore) ReorderTopics(ctx context.Context, completed bool, topicIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`UPDATE %s SET sort_order=$2, updated_at=NOW() WHERE id=$1`, topicTable(completed))
	for index, id := range topicIDs {
		if _, err := tx.ExecContext(ctx, query, id, index); err != nil {
			return fmt.Errorf("reorder topic %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder: %w", err)
	}
	return nil
}

func (s *PostgresStore) TopicNameExists(ctx context.Context, completed bool, name, excludeID string) (bool, error) {
	query := fmt.Sprintf(`
		SELECT EXISTS(SELECT 1 FROM %s WHERE LOWER(name)=LOWER($1) AND id<>$2)
	`, topicTable(completed))
	var exists bool
	if err := s.db.QueryRowContext(ctx, query, name, excludeID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check topic name: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListLessons(ctx context.Context, course string) ([]Lesson, error) {
	table, err := lessonTable(course)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT id, title, video_url, sections, sort_order, created_at, updated_at
		FROM %s
		ORDER BY sort_order, created_at
	`, table)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	items := make([]Lesson, 0)
	for rows.Next() {
		var item Lesson
		var sections []byte
		if err := rows.Scan(&item.ID, &item.Title, &item.VideoURL, &sections, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		if err := json.Unmarshal(sections, &item.Sections); err != nil {
			return nil, fmt.Errorf("decode lesson sections: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetLesson(ctx context.Context, course, lessonID string) (Lesson, error) {
	table, err := lessonTable(course)
	if err != nil {
		return Lesson{}, err
	}
	query := fmt.Sprintf(`
		SELECT id, title, video_url, sections, sort_order, created_at, updated_at
		FROM %s
		WHERE id=$1
	`, table)
	var item Lesson
	var sections []byte
	err = s.db.QueryRowContext(ctx, query, lessonID).Scan(
		&item.ID, &item.Title, &item.VideoURL, &sections, &item.SortOrder, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return Lesson{}, err
	}
	if err := json.Unmarshal(sections, &item.Sections); err != nil {
		return Lesson{}, fmt.Errorf("decode lesson sections: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) InsertLesson(ctx context.Context, course string, item Lesson) error {
	table, err := lessonTable(course)
	if err != nil {
		return err
	}
	sections, err := json.Marshal(item.Sections)
	if err != nil {
		return fmt.Errorf("encode lesson sections: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, title, video_url, sections, sort_order)
		VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(sort_order)+1, 0) FROM %s))
	`, table, table)
	if _, err := s.db.ExecContext(ctx, query, item.ID, item.Title, item.VideoURL, sections); err != nil {
		return fmt.Errorf("insert lesson: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLesson(ctx context.Context, course string, item Lesson) error {
	table, err := lessonTable(course)
	if err != nil {
		return err
	}
	sections, err := json.Marshal(item.Sections)
	if err != nil {
		return fmt.Errorf("encode lesson sections: %w", err)
	}
	query := fmt.Sprintf(`
		UPDATE %s SET title=$2, video_url=$3, sections=$4, updated_at=NOW() WHERE id=$1
	`, table)
	res, err := s.db.ExecContext(ctx, query, item.ID, item.Title, item.VideoURL, sections)
	if err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteLesson(ctx context.Context, course, lessonID string) error {
	table, err := lessonTable(course)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id=$1`, table)
	res, err := s.db.ExecContext(ctx, query, lessonID)
	if err != nil {
		return fmt.Errorf("delete lesson: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) GetDayReport(ctx context.Context) (DayReport, error) {
	var item DayReport
	err := s.db.QueryRowContext(ctx, `
		SELECT url, updated_at FROM baocaongay WHERE id=$1
	`, dayReportSingletonID).Scan(&item.URL, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DayReport{}, nil
	}
	if err != nil {
		return DayReport{}, fmt.Errorf("get day report: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) SaveDayReport(ctx context.Context, url string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO baocaongay (id, url)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET url=EXCLUDED.url, updated_at=NOW()
	`, dayReportSingletonID, url)
	if err != nil {
		return fmt.Errorf("save day report: %w", err)
	}
	return nil
}
