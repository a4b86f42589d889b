package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"kv21/api/internal/auth"
	"kv21/api/internal/config"
	"kv21/api/internal/export"
	"kv21/api/internal/sanitize"
	"kv21/api/internal/search"
	"kv21/api/internal/store"
	"kv21/api/internal/syncer"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	ExpiresAt    time.Time
}

type TopicInput struct {
	Name           string `json:"name"`
	Doc            string `json:"doc"`
	Report         string `json:"report"`
	Supervisor     string `json:"supervisor"`
	Link           string `json:"link"`
	ProgressSource string `json:"progresssource"`
}

type LessonInput struct {
	Title    string                `json:"title"`
	VideoURL string                `json:"videoUrl"`
	Sections []store.LessonSection `json:"sections"`
}

var allowedSectionTypes = map[string]struct{}{
	"paragraph": {},
	"list":      {},
	"html":      {},
}

type dataStore interface {
	Ping(ctx context.Context) error
	GetUserByID(ctx context.Context, userID string) (store.User, error)
	GetSheetSnapshot(ctx context.Context, name string) (store.SheetSnapshot, error)
	ListTopics(ctx context.Context, completed bool) ([]store.Topic, error)
	GetTopic(ctx context.Context, completed bool, topicID string) (store.Topic, error)
	InsertTopic(ctx context.Context, completed bool, item store.Topic) error
	UpdateTopic(ctx context.Context, completed bool, item store.Topic) error
	DeleteTopic(ctx context.Context, completed bool, topicID string) error
	CompleteTopic(ctx context.Context, topicID string) error
	RestoreTopic(ctx context.Context, topicID string) error
	ReorderTopics(ctx context.Context, completed bool, topicIDs []string) error
	TopicNameExists(ctx context.Context, completed bool, name, excludeID string) (bool, error)
	ListLessons(ctx context.Context, course string) ([]store.Lesson, error)
	GetLesson(ctx context.Context, course, lessonID string) (store.Lesson, error)
	InsertLesson(ctx context.Context, course string, item store.Lesson) error
	UpdateLesson(ctx context.Context, course string, item store.Lesson) error
	DeleteLesson(ctx context.Context, course, lessonID string) error
	GetDayReport(ctx context.Context) (store.DayReport, error)
	SaveDayReport(ctx context.Context, url string) error
}

type sessionStore interface {
	Save(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	Lookup(ctx context.Context, tokenHash string) (store.User, error)
	Revoke(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type credentialChecker interface {
	SignIn(ctx context.Context, email, password string) (store.User, error)
}

type syncRunner interface {
	Run(ctx context.Context) syncer.Report
}

type searchIndex interface {
	Search(q search.Query) search.Response
	IndexLesson(record search.LessonRecord)
	IndexTopic(record search.TopicRecord)
	DeleteLesson(id string)
	DeleteTopic(id string)
}

type lessonExporter interface {
	ExportLesson(ctx context.Context, course, lessonID string) (*export.Result, error)
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords credentialChecker
	search    searchIndex
	sync      syncRunner
	export    lessonExporter
	now       func() time.Time
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, passwords credentialChecker, searchIndex searchIndex, sync syncRunner, exporter lessonExporter) *Service {
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: passwords,
		search:    searchIndex,
		sync:      sync,
		export:    exporter,
		now:       time.Now,
	}
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

func (s *Service) IsProduction() bool {
	return s.cfg.IsProduction()
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PingSessions(ctx context.Context) error {
	return s.sessions.Ping(ctx)
}

func newID(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return prefix + "-" + hex.EncodeToString([]byte(time.Now().Format("150405.000000")))
	}
	if prefix == "" {
		return hex.EncodeToString(buf)
	}
	return prefix + "-" + hex.EncodeToString(buf)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.Lookup(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.Revoke(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := s.now()
	expiresAt := now.Add(s.cfg.AccessTTL)

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		Role: user.Role,
		JTI:  newID("jti"),
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh, err := auth.NewRefreshToken()
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.Save(ctx, auth.HashToken(refresh), user, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Role:         user.Role,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Role:      user.Role,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// RunSync executes a full sync cycle and refreshes the topic search index so
// freshly resolved progress values are searchable.
func (s *Service) RunSync(ctx context.Context) syncer.Report {
	report := s.sync.Run(ctx)
	if report.Topics.Success {
		s.reindexTopics(ctx)
	}
	return report
}

// Dashboard-facing sync messages. The dashboard shows these verbatim, so the
// wording is part of the contract.
const (
	msgSyncOK            = "Đồng bộ thành công"
	msgSyncFailed        = "Đồng bộ thất bại"
	msgSyncPartialSheets = "Đồng bộ một phần: lỗi dữ liệu trang tính"
	msgSyncPartialTopics = "Đồng bộ một phần: lỗi tiến độ chuyên đề"
)

// RunSyncAction runs a sync on behalf of a dashboard user and folds the report
// into a single status message.
func (s *Service) RunSyncAction(ctx context.Context) map[string]any {
	report := s.RunSync(ctx)
	message := msgSyncOK
	switch {
	case !report.Sheets.Success && !report.Topics.Success:
		message = msgSyncFailed
	case !report.Sheets.Success:
		message = msgSyncPartialSheets
	case !report.Topics.Success:
		message = msgSyncPartialTopics
	}
	return map[string]any{
		"success": report.Success,
		"message": message,
		"report":  report,
	}
}

func (s *Service) reindexTopics(ctx context.Context) {
	for _, completed := range []bool{false, true} {
		topics, err := s.store.ListTopics(ctx, completed)
		if err != nil {
			continue
		}
		for _, topic := range topics {
			s.search.IndexTopic(search.NewTopicRecord(topic, completed))
		}
	}
}

func topicJSON(t store.Topic) map[string]any {
	var progress any
	if t.Progress != nil {
		progress = *t.Progress
	}
	return map[string]any{
		"id":             t.ID,
		"name":           t.Name,
		"doc":            t.Doc,
		"report":         t.Report,
		"supervisor":     t.Supervisor,
		"link":           t.Link,
		"progresssource": t.ProgressSource,
		"progress":       progress,
		"order":          t.SortOrder,
		"created":        t.CreatedAt.UTC().Format(time.RFC3339),
		"updated":        t.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *Service) ListTopics(ctx context.Context) (map[string]any, error) {
	active, err := s.store.ListTopics(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	completed, err := s.store.ListTopics(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list completed topics: %w", err)
	}
	activeItems := make([]map[string]any, 0, len(active))
	for _, t := range active {
		activeItems = append(activeItems, topicJSON(t))
	}
	completedItems := make([]map[string]any, 0, len(completed))
	for _, t := range completed {
		completedItems = append(completedItems, topicJSON(t))
	}
	return map[string]any{
		"chuyende":        activeItems,
		"chuyendeketthuc": completedItems,
	}, nil
}

func (s *Service) sanitizeTopicInput(input TopicInput) store.Topic {
	return store.Topic{
		Name:           sanitize.Input(input.Name),
		Doc:            sanitize.Input(input.Doc),
		Report:         sanitize.URL(input.Report),
		Supervisor:     sanitize.Input(input.Supervisor),
		Link:           sanitize.URL(input.Link),
		ProgressSource: sanitize.Input(input.ProgressSource),
	}
}

// topicNameTaken checks both the active and completed collections so a topic
// cannot shadow a finished one of the same name.
func (s *Service) topicNameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	for _, completed := range []bool{false, true} {
		exists, err := s.store.TopicNameExists(ctx, completed, name, excludeID)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) CreateTopic(ctx context.Context, input TopicInput) (map[string]any, error) {
	item := s.sanitizeTopicInput(input)
	if item.Name == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "Topic name is required", nil)
	}
	taken, err := s.topicNameTaken(ctx, item.Name, "")
	if err != nil {
		return nil, fmt.Errorf("check topic name: %w", err)
	}
	if taken {
		return nil, domainError(409, "DUPLICATE_NAME", "A topic with this name already exists", nil)
	}

	item.ID = newID("cd")
	if err := s.store.InsertTopic(ctx, false, item); err != nil {
		return nil, fmt.Errorf("insert topic: %w", err)
	}
	created, err := s.store.GetTopic(ctx, false, item.ID)
	if err != nil {
		return nil, fmt.Errorf("load created topic: %w", err)
	}
	s.search.IndexTopic(search.NewTopicRecord(created, false))
	return topicJSON(created), nil
}

func (s *Service) UpdateTopic(ctx context.Context, topicID string, completed bool, input TopicInput) (map[string]any, error) {
	item := s.sanitizeTopicInput(input)
	if item.Name == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "Topic name is required", nil)
	}
	taken, err := s.topicNameTaken(ctx, item.Name, topicID)
	if err != nil {
		return nil, fmt.Errorf("check topic name: %w", err)
	}
	if taken {
		return nil, domainError(409, "DUPLICATE_NAME", "A topic with this name already exists", nil)
	}

	item.ID = topicID
	if err := s.store.UpdateTopic(ctx, completed, item); err != nil {
		return nil, err
	}
	updated, err := s.store.GetTopic(ctx, completed, topicID)
	if err != nil {
		return nil, err
	}
	s.search.IndexTopic(search.NewTopicRecord(updated, completed))
	return topicJSON(updated), nil
}

func (s *Service) DeleteTopic(ctx context.Context, topicID string, completed bool) error {
	if err := s.store.DeleteTopic(ctx, completed, topicID); err != nil {
		return err
	}
	s.search.DeleteTopic(topicID)
	return nil
}

func (s *Service) CompleteTopic(ctx context.Context, topicID string) (map[string]any, error) {
	if err := s.store.CompleteTopic(ctx, topicID); err != nil {
		return nil, err
	}
	moved, err := s.store.GetTopic(ctx, true, topicID)
	if err != nil {
		return nil, err
	}
	s.search.IndexTopic(search.NewTopicRecord(moved, true))
	return topicJSON(moved), nil
}

func (s *Service) RestoreTopic(ctx context.Context, topicID string) (map[string]any, error) {
	if err := s.store.RestoreTopic(ctx, topicID); err != nil {
		return nil, err
	}
	moved, err := s.store.GetTopic(ctx, false, topicID)
	if err != nil {
		return nil, err
	}
	s.search.IndexTopic(search.NewTopicRecord(moved, false))
	return topicJSON(moved), nil
}

func (s *Service) ReorderTopics(ctx context.Context, completed bool, topicIDs []string) error {
	if len(topicIDs) == 0 {
		return domainError(422, "VALIDATION_ERROR", "ids must not be empty", nil)
	}
	return s.store.ReorderTopics(ctx, completed, topicIDs)
}

func lessonJSON(l store.Lesson) map[string]any {
	sections := l.Sections
	if sections == nil {
		sections = []store.LessonSection{}
	}
	return map[string]any{
		"id":       l.ID,
		"title":    l.Title,
		"videoUrl": l.VideoURL,
		"sections": sections,
		"order":    l.SortOrder,
		"created":  l.CreatedAt.UTC().Format(time.RFC3339),
		"updated":  l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func sanitizeLessonInput(input LessonInput) (store.Lesson, error) {
	item := store.Lesson{
		Title:    sanitize.Input(input.Title),
		VideoURL: sanitize.URL(input.VideoURL),
	}
	if item.Title == "" {
		return store.Lesson{}, domainError(422, "VALIDATION_ERROR", "Lesson title is required", nil)
	}
	for i, section := range input.Sections {
		if _, ok := allowedSectionTypes[section.ContentType]; !ok {
			return store.Lesson{}, domainError(422, "VALIDATION_ERROR", "contentType must be paragraph, list or html", map[string]any{"section": i})
		}
		clean := store.LessonSection{
			Title:       sanitize.Input(section.Title),
			ContentType: section.ContentType,
			Order:       section.Order,
		}
		switch section.ContentType {
		case "list":
			if len(section.ListItems) == 0 {
				return store.Lesson{}, domainError(422, "VALIDATION_ERROR", "list sections need at least one item", map[string]any{"section": i})
			}
			for _, li := range section.ListItems {
				clean.ListItems = append(clean.ListItems, sanitize.Input(li))
			}
		case "html":
			// Raw embeds keep their markup; the renderer escapes everything else.
			clean.Content = strings.TrimSpace(section.Content)
		default:
			clean.Content = sanitize.Input(section.Content)
		}
		item.Sections = append(item.Sections, clean)
	}
	return item, nil
}

func (s *Service) ListLessons(ctx context.Context, course string) ([]map[string]any, error) {
	lessons, err := s.store.ListLessons(ctx, course)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(lessons))
	for _, l := range lessons {
		items = append(items, lessonJSON(l))
	}
	return items, nil
}

func (s *Service) CreateLesson(ctx context.Context, course string, input LessonInput) (map[string]any, error) {
	item, err := sanitizeLessonInput(input)
	if err != nil {
		return nil, err
	}
	item.ID = newID("bh")
	if err := s.store.InsertLesson(ctx, course, item); err != nil {
		return nil, err
	}
	created, err := s.store.GetLesson(ctx, course, item.ID)
	if err != nil {
		return nil, err
	}
	s.search.IndexLesson(search.NewLessonRecord(course, created))
	return lessonJSON(created), nil
}

func (s *Service) UpdateLesson(ctx context.Context, course, lessonID string, input LessonInput) (map[string]any, error) {
	item, err := sanitizeLessonInput(input)
	if err != nil {
		return nil, err
	}
	item.ID = lessonID
	if err := s.store.UpdateLesson(ctx, course, item); err != nil {
		return nil, err
	}
	updated, err := s.store.GetLesson(ctx, course, lessonID)
	if err != nil {
		return nil, err
	}
	s.search.IndexLesson(search.NewLessonRecord(course, updated))
	return lessonJSON(updated), nil
}

func (s *Service) DeleteLesson(ctx context.Context, course, lessonID string) error {
	if err := s.store.DeleteLesson(ctx, course, lessonID); err != nil {
		return err
	}
	s.search.DeleteLesson(lessonID)
	return nil
}

func (s *Service) ExportLesson(ctx context.Context, course, lessonID string) (*export.Result, error) {
	return s.export.ExportLesson(ctx, course, lessonID)
}

func (s *Service) GetDayReport(ctx context.Context) (map[string]any, error) {
	report, err := s.store.GetDayReport(ctx)
	if err != nil {
		return nil, fmt.Errorf("load day report: %w", err)
	}
	var updated any
	if !report.UpdatedAt.IsZero() {
		updated = report.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return map[string]any{"url": report.URL, "updated": updated}, nil
}

func (s *Service) SaveDayReport(ctx context.Context, rawURL string) (map[string]any, error) {
	cleaned := sanitize.IframeURL(rawURL)
	if cleaned == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "url is required", nil)
	}
	parsed, err := url.Parse(cleaned)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, domainError(422, "VALIDATION_ERROR", "url must be a valid http(s) address", nil)
	}
	if err := s.store.SaveDayReport(ctx, cleaned); err != nil {
		return nil, fmt.Errorf("save day report: %w", err)
	}
	return s.GetDayReport(ctx)
}

func (s *Service) GetSheetSnapshot(ctx context.Context, name string) (map[string]any, error) {
	snapshot, err := s.store.GetSheetSnapshot(ctx, name)
	if err != nil {
		return nil, err
	}
	data := snapshot.Data
	if len(data) == 0 {
		data = json.RawMessage("[]")
	}
	return map[string]any{
		"sheetName": snapshot.Name,
		"data":      data,
		"updated":   snapshot.Updated,
	}, nil
}

func (s *Service) Search(text, filterType, course string, limit, offset int) (search.Response, error) {
	switch filterType {
	case "", string(search.ResultLesson), string(search.ResultTopic):
	default:
		return search.Response{}, domainError(422, "VALIDATION_ERROR", "type must be 'lesson' or 'topic'", nil)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.search.Search(search.Query{
		Text:         strings.TrimSpace(text),
		FilterType:   search.ResultType(filterType),
		FilterCourse: course,
		Limit:        limit,
		Offset:       offset,
	}), nil
}

// notFound reports whether err is one of the lookup misses that should map to
// a 404 at the HTTP boundary.
func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, store.ErrSnapshotNotFound) ||
		errors.Is(err, store.ErrUnknownCourse)
}
