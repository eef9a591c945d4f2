package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/studypet-hub/studypet-hub/pkg/backend"
	"github.com/studypet-hub/studypet-hub/pkg/cache"
	"github.com/studypet-hub/studypet-hub/pkg/domain"
	"github.com/studypet-hub/studypet-hub/pkg/logger"
)

const (
	defaultAnnouncementTTL = 10 * time.Minute

	// announcementLimit bounds the list; older notices age out of view.
	announcementLimit = 50

	announcementTable = "announcements"
	readReceiptTable  = "announcement_reads"

	procUnreadCount = "unread_announcement_count"
)

type announcementRow struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type readReceiptRow struct {
	ID             string `json:"id"`
	AnnouncementID string `json:"announcement_id"`
	UserID         string `json:"user_id"`
}

// AnnouncementStoreConfig configures an AnnouncementStore.
type AnnouncementStoreConfig struct {
	Querier backend.RowQuerier
	Writer  backend.RowWriter
	Caller  backend.ProcedureCaller
	Viewer  Viewer
	TTL     time.Duration
	Logger  *logger.Logger

	// Clock overrides time.Now for staleness checks. Tests only.
	Clock func() time.Time
}

// AnnouncementStore owns platform notices and the current user's read
// state. Read state lives in per-user receipt rows; marking one read is an
// idempotent receipt insert followed by a local patch, never a list
// refetch.
type AnnouncementStore struct {
	loadingFlag

	querier backend.RowQuerier
	writer  backend.RowWriter
	caller  backend.ProcedureCaller
	viewer  Viewer
	ttl     time.Duration
	logger  *logger.Logger

	list *cache.Value[[]domain.Announcement]
}

var _ Store = (*AnnouncementStore)(nil)

// NewAnnouncementStore creates an AnnouncementStore.
func NewAnnouncementStore(cfg AnnouncementStoreConfig) *AnnouncementStore {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultAnnouncementTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &AnnouncementStore{
		querier: cfg.Querier,
		writer:  cfg.Writer,
		caller:  cfg.Caller,
		viewer:  cfg.Viewer,
		ttl:     cfg.TTL,
		logger:  cfg.Logger.Named("announcements"),
		list:    cache.NewWithClock[[]domain.Announcement](cfg.Clock),
	}
}

func (s *AnnouncementStore) Name() string { return "announcements" }

// Reset drops the cached list.
func (s *AnnouncementStore) Reset() { s.list.Reset() }

// List returns the newest announcements with the current user's read flags
// applied, newest first.
func (s *AnnouncementStore) List(ctx context.Context) ([]domain.Announcement, error) {
	return s.fetchList(ctx, false)
}

func (s *AnnouncementStore) fetchList(ctx context.Context, force bool) ([]domain.Announcement, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return nil, err
	}

	s.begin()
	defer s.end()

	return s.list.Fetch(ctx, cache.FetchOptions{TTL: s.ttl, Force: force}, func(ctx context.Context) ([]domain.Announcement, error) {
		var (
			rows     []announcementRow
			receipts []readReceiptRow
		)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			q := backend.NewQuery(announcementTable).
				OrderDesc("created_at").
				Limit(announcementLimit)
			if err := s.querier.Select(gctx, q, &rows); err != nil {
				return wrapBackend("announcements", "List", "could not load announcements", err)
			}
			return nil
		})
		g.Go(func() error {
			q := backend.NewQuery(readReceiptTable).
				Select("announcement_id").
				Eq("user_id", sess.UserID)
			if err := s.querier.Select(gctx, q, &receipts); err != nil {
				return wrapBackend("announcements", "List", "could not load read state", err)
			}
			return nil
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

		read := make(map[string]bool, len(receipts))
		for _, r := range receipts {
			read[r.AnnouncementID] = true
		}

		list := make([]domain.Announcement, 0, len(rows))
		for _, r := range rows {
			list = append(list, domain.Announcement{
				ID:        r.ID,
				Title:     r.Title,
				Body:      r.Body,
				CreatedAt: r.CreatedAt,
				IsRead:    read[r.ID],
			})
		}
		return list, nil
	})
}

// MarkRead records that the current user has read one announcement. The
// receipt insert is idempotent, so marking twice (or racing another tab) is
// harmless.
func (s *AnnouncementStore) MarkRead(ctx context.Context, announcementID string) error {
	if announcementID == "" {
		return domain.NewDomainError("announcements", "MarkRead", domain.ErrEmptyValue, "announcement id is required")
	}
	sess, err := currentSession(s.viewer)
	if err != nil {
		return err
	}

	s.begin()
	defer s.end()

	receipt := readReceiptRow{
		ID:             uuid.NewString(),
		AnnouncementID: announcementID,
		UserID:         sess.UserID,
	}
	err = s.writer.Insert(ctx, readReceiptTable, []readReceiptRow{receipt}, backend.InsertOptions{IgnoreDuplicates: true})
	if err != nil && !backend.IsDuplicateKey(err) {
		return wrapBackend("announcements", "MarkRead", "could not mark the announcement read", err)
	}

	patched := false
	s.list.Mutate(func(list *[]domain.Announcement) {
		for i := range *list {
			if (*list)[i].ID == announcementID {
				(*list)[i].IsRead = true
				patched = true
				return
			}
		}
	})
	err = patchOrRefetch(ctx, patched, func(ctx context.Context) error {
		_, err := s.fetchList(ctx, true)
		return err
	})
	if err != nil {
		s.logger.Warn("list refetch after mark-read failed", "error", err)
	}
	return nil
}

// UnreadCount asks the backend how many announcements the current user has
// not read. Counted server-side because the list here is capped while the
// badge must count everything.
func (s *AnnouncementStore) UnreadCount(ctx context.Context) (int, error) {
	sess, err := currentSession(s.viewer)
	if err != nil {
		return 0, err
	}

	s.begin()
	defer s.end()

	var count int
	if err := s.caller.Call(ctx, procUnreadCount, map[string]any{"user_id": sess.UserID}, &count); err != nil {
		return 0, wrapBackend("announcements", "UnreadCount", "could not count unread announcements", err)
	}
	return count, nil
}
