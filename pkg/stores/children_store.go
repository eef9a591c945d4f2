package stores

import (
	"context"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultChildrenTTL = 5 * time.Minute

	childLinkTable = "child_links"
)

type childLinkRow struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id"`
	StudentID    string    `json:"student_id"`
	DisplayName  string    `json:"display_name"`
	GradeLevelID string    `json:"grade_level_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r childLinkRow) toDomain() domain.ChildLink {
	return domain.ChildLink{
		ID:           r.ID,
		ParentID:     r.ParentID,
		StudentID:    r.StudentID,
		DisplayName:  r.DisplayName,
		GradeLevelID: r.GradeLevelID,
		CreatedAt:    r.CreatedAt,
	}
}

// ChildrenStoreConfig configures a ChildrenStore.
type ChildrenStoreConfig struct {
	Querier backend.RowQuerier
	Viewer  Viewer
	TTL     time.Duration
	Logger  *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// ChildrenStore owns a parent account's linked students. Non-parents are
// rejected locally before any query runs.
type ChildrenStore struct {
	loadingFlag

	querier backend.RowQuerier
	viewer  Viewer
	ttl     time.Duration
	logger  *logger.Logger

	children *cache.Value[[]domain.ChildLink]
}

var _ Store = (*ChildrenStore)(nil)

// NewChildrenStore creates a ChildrenStore.
func NewChildrenStore(cfg ChildrenStoreConfig) *ChildrenStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultChildrenTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &ChildrenStore{
		querier:  cfg.Querier,
		viewer:   cfg.Viewer,
		ttl:      cfg.TTL,
		logger:   cfg.Logger.Named("children"),
		children: cache.NewWithClock[[]domain.ChildLink](cfg.Clock),
	}
}

func (s *ChildrenStore) Name() string { return "children" }

// Reset drops the cached links.
func (s *ChildrenStore) Reset() { s.children.Reset() }

// Children returns the signed-in parent's linked students, oldest link
// first.
func (s *ChildrenStore) Children(ctx context.Context) ([]domain.ChildLink, error) {
	return s.fetchChildren(ctx, false)
}

// RefreshChildren refetches the links regardless of freshness. Used after
// a new child is linked.
func (s *ChildrenStore) RefreshChildren(ctx context.Context) ([]domain.ChildLink, error) {
	return s.fetchChildren(ctx, true)
}

func (s *ChildrenStore) fetchChildren(ctx context.Context, force bool) ([]domain.ChildLink, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return nil, err
	}
	if !sess.UserType.IsParent() {
		return nil, domain.ErrNotParent
	}

	s.begin()
	defer s.end()

	return s.children.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: force}, func(ctx context.Context) ([]domain.ChildLink, error) {
		var rows []childLinkRow
		q := backend.NewQuery(childLinkTable).
			Eq("parent_id", sess.UserID).
			OrderAsc("created_at")
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return nil, wrapBackend("children", "Children", "could not load your children", err)
		}

		links := make([]domain.ChildLink, 0, len(rows))
		for _, r := range rows {
			links = append(links, r.toDomain())
		}
		return links, nil
	})
}

// ChildByID finds one linked student by student id.
func (s *ChildrenStore) ChildByID(ctx context.Context, studentID string) (domain.ChildLink, error) {
	if studentID == "" {
		return domain.ChildLink{}, domain.NewDomainError("children", "ChildByID", domain.ErrEmptyValue, "student id is required")
	}

	children, err := s.Children(ctx)
	if err != nil {
		return domain.ChildLink{}, err
	}
	for _, c := range children {
		if c.StudentID == studentID {
			return c, nil
		}
	}
	return domain.ChildLink{}, domain.ErrChildLinkNotFound
}
