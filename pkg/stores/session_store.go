package stores

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultRecentTTL        = 2 * time.Minute
	defaultSessionDetailTTL = 2 * time.Minute

	// recentSessionLimit bounds the history list. Older sessions stay
	// reachable through their ids.
	recentSessionLimit = 20

	sessionTable  = "practice_sessions"
	answerTable   = "session_answers"
	questionTable = "questions"
)

type sessionRow struct {
	ID               string     `json:"id"`
	StudentID        string     `json:"student_id"`
	GradeLevelID     string     `json:"grade_level_id"`
	SubjectID        string     `json:"subject_id"`
	TopicID          string     `json:"topic_id"`
	SubTopicID       string     `json:"sub_topic_id"`
	TotalQuestions   int        `json:"total_questions"`
	CorrectCount     int        `json:"correct_count"`
	TotalTimeSeconds int        `json:"total_time_seconds"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at"`
}

func (r sessionRow) toSummary() domain.SessionSummary {
	return domain.SessionSummary{
		ID:        r.ID,
		StudentID: r.StudentID,
		Curriculum: domain.CurriculumPath{
			GradeLevelID: r.GradeLevelID,
			SubjectID:    r.SubjectID,
			TopicID:      r.TopicID,
			SubTopicID:   r.SubTopicID,
		},
		TotalQuestions:  r.TotalQuestions,
		CorrectCount:    r.CorrectCount,
		DurationSeconds: r.TotalTimeSeconds,
		CreatedAt:       r.CreatedAt,
		CompletedAt:     r.CompletedAt,
	}
}

type answerRow struct {
	ID               string `json:"id"`
	SessionID        string `json:"session_id"`
	QuestionID       string `json:"question_id"`
	GivenAnswer      string `json:"given_answer"`
	IsCorrect        bool   `json:"is_correct"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

type questionRow struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
}

// SessionStoreConfig configures a SessionStore.
type SessionStoreConfig struct {
	Querier backend.RowQuerier

	// Gate decides whether a student's plan unlocks per-answer detail.
	Gate DetailGate

	// Names resolves curriculum ids to display names.
	Names NameResolver

	RecentTTL time.Duration
	DetailTTL time.Duration
	Logger    *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// SessionStore owns practice-session history: the recent list per student
// and the assembled detail view per session. Detail access is decided
// before any answer row leaves the backend; a gated viewer's request never
// fetches the rows it is not allowed to see.
type SessionStore struct {
	loadingFlag

	querier   backend.RowQuerier
	gate      DetailGate
	names     NameResolver
	recentTTL time.Duration
	detailTTL time.Duration
	logger    *logger.Logger

	recent  *cache.Keyed[string, []domain.SessionSummary]
	details *cache.Keyed[string, domain.SessionDetail]
}

var _ Store = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore.
func NewSessionStore(cfg SessionStoreConfig) *SessionStore {
	if cfg.RecentTTL <= 0 {
		cfg.RecentTTL = defaultRecentTTL
	}
	if cfg.DetailTTL <= 0 {
		cfg.DetailTTL = defaultSessionDetailTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &SessionStore{
		querier:   cfg.Querier,
		gate:      cfg.Gate,
		names:     cfg.Names,
		recentTTL: cfg.RecentTTL,
		detailTTL: cfg.DetailTTL,
		logger:    cfg.Logger.Named("sessions"),
		recent:    cache.NewKeyedWithClock[string, []domain.SessionSummary](cfg.Clock),
		details:   cache.NewKeyedWithClock[string, domain.SessionDetail](cfg.Clock),
	}
}

func (s *SessionStore) Name() string { return "sessions" }

// Reset drops both the recent lists and the assembled details.
func (s *SessionStore) Reset() {
	s.recent.Reset()
	s.details.Reset()
}

// ResetStudent drops the cached recent list for one student, forcing the
// next read to refetch. Called after a new session lands so the history
// does not lag a whole TTL behind.
func (s *SessionStore) ResetStudent(studentID string) {
	s.recent.ResetKey(studentID)
}

// RecentSessions returns the student's newest practice sessions, most
// recent first, cached per student.
func (s *SessionStore) RecentSessions(ctx context.Context, studentID string) ([]domain.SessionSummary, error) {
	if studentID == "" {
		return nil, domain.NewDomainError("sessions", "RecentSessions", domain.ErrEmptyValue, "student id is required")
	}

	s.begin()
	defer s.end()

	return s.recent.Fetch(ctx, studentID, cache.FetchOptions{TTL: s.recentTTL}, func(ctx context.Context) ([]domain.SessionSummary, error) {
		var rows []sessionRow
		q := backend.NewQuery(sessionTable).
			Eq("student_id", studentID).
			OrderDesc("created_at").
			Limit(recentSessionLimit)
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return nil, wrapBackend("sessions", "RecentSessions", "could not load recent sessions", err)
		}

		summaries := make([]domain.SessionSummary, 0, len(rows))
		for _, r := range rows {
			summaries = append(summaries, r.toSummary())
		}
		return summaries, nil
	})
}

// Detail returns the full view of one session, cached per session id. The
// subscription gate is consulted first: a viewer without detail access gets
// the summary counters and resolved names, Answers stays nil, and the
// answer rows are never requested. A gate check that itself fails fails the
// whole read rather than guessing at access.
func (s *SessionStore) Detail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	if sessionID == "" {
		return domain.SessionDetail{}, domain.NewDomainError("sessions", "Detail", domain.ErrEmptyValue, "session id is required")
	}

	s.begin()
	defer s.end()

	return s.details.Fetch(ctx, sessionID, cache.FetchOptions{TTL: s.detailTTL}, func(ctx context.Context) (domain.SessionDetail, error) {
		return s.assembleDetail(ctx, sessionID)
	})
}

func (s *SessionStore) assembleDetail(ctx context.Context, sessionID string) (domain.SessionDetail, error) {
	var rows []sessionRow
	q := backend.NewQuery(sessionTable).Eq("id", sessionID).Limit(1)
	if err := s.querier.Select(ctx, q, &rows); err != nil {
		return domain.SessionDetail{}, wrapBackend("sessions", "Detail", "could not load the session", err)
	}
	if len(rows) == 0 {
		return domain.SessionDetail{}, domain.ErrSessionNotFound
	}

	row := rows[0]
	summary := row.toSummary()

	allowed, err := s.gate.CanViewDetailedResults(ctx, row.StudentID)
	if err != nil {
		return domain.SessionDetail{}, err
	}

	if !allowed {
		names, err := s.names.ResolveNames(ctx, summary.Curriculum)
		if err != nil {
			return domain.SessionDetail{}, err
		}
		return domain.SessionDetail{
			SessionSummary: summary,
			Names:          names,
			DetailGated:    true,
		}, nil
	}

	// Detail is allowed: answers and names load concurrently, and the view
	// is assembled only when every piece arrived. A half-built detail would
	// be indistinguishable from a gated one.
	var (
		answers   []answerRow
		questions map[string]questionRow
		names     domain.CurriculumNames
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		answers, questions, err = s.fetchAnswers(gctx, sessionID)
		return err
	})
	g.Go(func() error {
		var err error
		names, err = s.names.ResolveNames(gctx, summary.Curriculum)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SessionDetail{}, err
	}

	details := make([]domain.AnswerDetail, 0, len(answers))
	for _, a := range answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			details = append(details, domain.DeletedAnswerDetail(a.ID, a.QuestionID, a.GivenAnswer, a.IsCorrect, a.TimeSpentSeconds))
			continue
		}
		details = append(details, domain.AnswerDetail{
			ID:               a.ID,
			QuestionID:       a.QuestionID,
			Prompt:           q.Prompt,
			Options:          q.Options,
			CorrectAnswer:    q.CorrectAnswer,
			GivenAnswer:      a.GivenAnswer,
			IsCorrect:        a.IsCorrect,
			TimeSpentSeconds: a.TimeSpentSeconds,
		})
	}

	return domain.SessionDetail{
		SessionSummary: summary,
		Names:          names,
		Answers:        details,
	}, nil
}

// fetchAnswers loads the session's answer rows and the question content they
// reference. Questions deleted since the session ran simply come back
// missing from the map; the caller substitutes the placeholder.
func (s *SessionStore) fetchAnswers(ctx context.Context, sessionID string) ([]answerRow, map[string]questionRow, error) {
	var answers []answerRow
	q := backend.NewQuery(answerTable).
		Eq("session_id", sessionID).
		OrderAsc("id")
	if err := s.querier.Select(ctx, q, &answers); err != nil {
		return nil, nil, wrapBackend("sessions", "Detail", "could not load the session answers", err)
	}
	if len(answers) == 0 {
		return nil, map[string]questionRow{}, nil
	}

	seen := make(map[string]bool, len(answers))
	ids := make([]string, 0, len(answers))
	for _, a := range answers {
		if !seen[a.QuestionID] {
			seen[a.QuestionID] = true
			ids = append(ids, a.QuestionID)
		}
	}

	var questions []questionRow
	qq := backend.NewQuery(questionTable).
		Select("id,prompt,options,correct_answer").
		In("id", anyValues(ids)...)
	if err := s.querier.Select(ctx, qq, &questions); err != nil {
		return nil, nil, wrapBackend("sessions", "Detail", "could not load the question content", err)
	}

	byID := make(map[string]questionRow, len(questions))
	for _, row := range questions {
		byID[row.ID] = row
	}
	return answers, byID, nil
}

// anyValues widens a string slice for variadic query filters.
func anyValues(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
