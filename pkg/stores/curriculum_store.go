package stores

import (
	"context"
	"sort"
	"time"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultCurriculumTTL = 10 * time.Minute

	curriculumTable = "curriculum_nodes"
)

type curriculumRow struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Kind     string `json:"kind"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

func (r curriculumRow) toDomain() domain.CurriculumNode {
	return domain.CurriculumNode{
		ID:       r.ID,
		ParentID: r.ParentID,
		Kind:     domain.CurriculumKind(r.Kind),
		Name:     r.Name,
		Position: r.Position,
	}
}

// CurriculumStoreConfig configures a CurriculumStore.
type CurriculumStoreConfig struct {
	Querier backend.RowQuerier
	TTL     time.Duration
	Logger  *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// CurriculumStore caches the whole curriculum hierarchy as one id-keyed map.
// The tree is small and changes rarely, so a single fetch-all plus O(1)
// lookups beats per-node queries for every name resolution.
type CurriculumStore struct {
	loadingFlag

	querier backend.RowQuerier
	ttl     time.Duration
	logger  *logger.Logger

	nodes *cache.Value[map[string]domain.CurriculumNode]
}

var (
	_ Store        = (*CurriculumStore)(nil)
	_ NameResolver = (*CurriculumStore)(nil)
)

// NewCurriculumStore creates a CurriculumStore.
func NewCurriculumStore(cfg CurriculumStoreConfig) *CurriculumStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCurriculumTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &CurriculumStore{
		querier: cfg.Querier,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.Named("curriculum"),
		nodes:   cache.NewWithClock[map[string]domain.CurriculumNode](cfg.Clock),
	}
}

func (s *CurriculumStore) Name() string { return "curriculum" }

// Reset drops the cached hierarchy.
func (s *CurriculumStore) Reset() { s.nodes.Reset() }

func (s *CurriculumStore) nodeMap(ctx context.Context) (map[string]domain.CurriculumNode, error) {
	s.begin()
	defer s.end()

	return s.nodes.Fetch(ctx, cache.FetchOptions{TTL: s.ttl}, func(ctx context.Context) (map[string]domain.CurriculumNode, error) {
		var rows []curriculumRow
		q := backend.NewQuery(curriculumTable).OrderAsc("position")
		if err := s.querier.Select(ctx, q, &rows); err != nil {
			return nil, wrapBackend("curriculum", "Fetch", "could not load the curriculum", err)
		}
		m := make(map[string]domain.CurriculumNode, len(rows))
		for _, r := range rows {
			m[r.ID] = r.toDomain()
		}
		return m, nil
	})
}

// Node returns one curriculum node by id.
func (s *CurriculumStore) Node(ctx context.Context, id string) (domain.CurriculumNode, bool, error) {
	m, err := s.nodeMap(ctx)
	if err != nil {
		return domain.CurriculumNode{}, false, err
	}
	n, ok := m[id]
	return n, ok, nil
}

// Children returns the nodes directly under parentID, ordered by position.
// The curriculum roots (grade levels) live under the empty parent id.
func (s *CurriculumStore) Children(ctx context.Context, parentID string) ([]domain.CurriculumNode, error) {
	m, err := s.nodeMap(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.CurriculumNode
	for _, n := range m {
		if n.ParentID == parentID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// ResolveNames maps a curriculum path to display names. A level whose id is
// missing from the hierarchy resolves to "Unknown" rather than failing;
// only a backend error aborts, and then every level is Unknown.
func (s *CurriculumStore) ResolveNames(ctx context.Context, path domain.CurriculumPath) (domain.CurriculumNames, error) {
	m, err := s.nodeMap(ctx)
	if err != nil {
		return domain.UnknownCurriculumNames(), err
	}

	names := domain.UnknownCurriculumNames()
	if n, ok := m[path.GradeLevelID]; ok {
		names.GradeLevel = n.Name
	}
	if n, ok := m[path.SubjectID]; ok {
		names.Subject = n.Name
	}
	if n, ok := m[path.TopicID]; ok {
		names.Topic = n.Name
	}
	if n, ok := m[path.SubTopicID]; ok {
		names.SubTopic = n.Name
	}
	return names, nil
}
