package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ideaflow/api/internal/auth"
	"ideaflow/api/internal/config"
	"ideaflow/api/internal/notify"
	"ideaflow/api/internal/rbac"
	"ideaflow/api/internal/realtime"
	"ideaflow/api/internal/search"
	"ideaflow/api/internal/store"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID    string
	Name  string
	Email string
	Role  rbac.Role
}

type dataStore interface {
	CreateIdea(ctx context.Context, idea store.Idea) (store.Idea, error)
	GetIdea(ctx context.Context, ideaID string) (store.Idea, error)
	ListIdeas(ctx context.Context, filter store.IdeaFilter) ([]store.Idea, error)
	SearchIdeas(ctx context.Context, text string, limit int) ([]store.Idea, error)
	UpdateIdea(ctx context.Context, idea store.Idea) (store.Idea, error)
	DeleteIdea(ctx context.Context, ideaID string, version int64) error
	AppendComment(ctx context.Context, comment store.Comment) (store.Comment, error)
	GetComment(ctx context.Context, ideaID, commentID string) (store.Comment, error)
	TombstoneComment(ctx context.Context, ideaID, commentID, deletedBy string, at time.Time) error
	ApplyMerge(ctx context.Context, plan store.MergePlan) (store.Idea, store.MergeHistory, error)
	ListMergeHistory(ctx context.Context, ideaID string) ([]store.MergeHistory, error)
	UpsertUser(ctx context.Context, u store.User) (store.User, error)
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, search string, limit, offset int) ([]store.User, int, error)
	Ping(ctx context.Context) error
}

// UserDirectory resolves the people the workflow needs to reach.
type UserDirectory interface {
	FindActiveByRole(ctx context.Context, role string) ([]store.User, error)
	FindByEmail(ctx context.Context, email string) (store.User, error)
	FindByID(ctx context.Context, userID string) (store.User, error)
}

// NotificationPort is how the workflow and merge coordinator reach people.
// notify.Dispatcher is the production implementation.
type NotificationPort interface {
	Notify(ctx context.Context, req notify.Request) (store.Notification, error)
	NotifyAll(ctx context.Context, recipients []string, req notify.Request) notify.FanoutResult
	List(ctx context.Context, recipient string, filter store.NotificationFilter) (notify.Page, error)
	MarkRead(ctx context.Context, recipient, notificationID string) (store.Notification, error)
	MarkAllRead(ctx context.Context, recipient string) (int64, error)
	Delete(ctx context.Context, recipient, notificationID string) error
}

type EmailDispatcher interface {
	IsConfigured() bool
	SendStatusEmail(to, title, status, feedback string) error
}

type searchIndex interface {
	Search(ctx context.Context, q search.Query) search.Response
	IndexIdea(idea store.Idea)
	DeleteIdea(id string)
}

type mergeArchiver interface {
	ArchiveMerge(ctx context.Context, history store.MergeHistory, consolidated store.Idea, sources []store.Idea) (string, error)
}

// Dependencies are the collaborators of a Service. Only Notifier is
// required; the rest degrade to no-ops when nil.
type Dependencies struct {
	Users    UserDirectory
	Notifier NotificationPort
	Email    EmailDispatcher
	Search   searchIndex
	Archive  mergeArchiver
	Realtime realtime.Publisher
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	users    UserDirectory
	notifier NotificationPort
	email    EmailDispatcher
	search   searchIndex
	archive  mergeArchiver
	realtime realtime.Publisher
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg config.Config, dataStore dataStore, deps Dependencies) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	index := deps.Search
	if index == nil {
		index = search.NewService(nil, search.NewStoreSearch(dataStore), logger)
	}
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		users:    deps.Users,
		notifier: deps.Notifier,
		email:    deps.Email,
		search:   index,
		archive:  deps.Archive,
		realtime: deps.Realtime,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds demo accounts into an empty users table when SeedDemo is
// enabled.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.cfg.SeedDemo {
		return nil
	}
	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	seeds := []store.User{
		{ID: "usr_admin", DisplayName: "Avery Admin", Email: "admin@ideaflow.local", Role: string(rbac.RoleAdmin), IsActive: true},
		{ID: "usr_reviewer", DisplayName: "Riley Reviewer", Email: "reviewer@ideaflow.local", Role: string(rbac.RoleReviewer), IsActive: true},
		{ID: "usr_student", DisplayName: "Sam Student", Email: "student@ideaflow.local", Role: string(rbac.RoleStudent), IsActive: true},
	}
	for _, seed := range seeds {
		if _, err := s.store.UpsertUser(ctx, seed); err != nil {
			return fmt.Errorf("seed user %s: %w", seed.ID, err)
		}
	}
	s.logger.Info("seeded demo users", "count", len(seeds))
	return nil
}

// ActorFromToken verifies a bearer token and returns the actor it names.
func (s *Service) ActorFromToken(token string) (Actor, error) {
	if strings.TrimSpace(token) == "" {
		return Actor{}, auth.ErrMissingToken
	}
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Actor{}, err
	}
	return Actor{
		ID:    claims.Sub,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  rbac.Normalize(claims.Role),
	}, nil
}

func (s *Service) authorize(actor Actor, action rbac.Action) error {
	if strings.TrimSpace(actor.ID) == "" || !rbac.Can(actor.Role, action) {
		return forbiddenError("Forbidden")
	}
	return nil
}

// authorizeIdeaMutation guards edit and retract: the actor must own the idea
// or hold edit_any, and the idea must still be pending.
func authorizeIdeaMutation(actor Actor, idea store.Idea) error {
	if !rbac.CanMutate(actor.Role, actor.ID, idea.SubmittedBy) {
		return forbiddenError("Only the submitter or an admin can change this idea")
	}
	if idea.Status != store.StatusPending {
		return forbiddenError("Idea is no longer pending")
	}
	return nil
}

func (s *Service) loadIdea(ctx context.Context, ideaID string) (store.Idea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Idea{}, notFoundError("Idea not found", map[string]any{"ideaId": ideaID})
	}
	if err != nil {
		return store.Idea{}, err
	}
	return idea, nil
}

func conflictOnStale(err error, ideaID string) error {
	if errors.Is(err, store.ErrVersionConflict) {
		return conflictError("Idea was modified concurrently", map[string]any{"ideaId": ideaID})
	}
	if errors.Is(err, store.ErrNotFound) {
		return notFoundError("Idea not found", map[string]any{"ideaId": ideaID})
	}
	return err
}

// broadcast nudges a topic room. The hub never blocks, so this runs inline
// after the state change is durable and keeps per-room order.
func (s *Service) broadcast(ctx context.Context, room, msgType string, data any) {
	if s.realtime == nil {
		return
	}
	err := s.realtime.Push(ctx, realtime.Message{Room: room, Type: msgType, Data: data, SentAt: s.now()})
	if err != nil && !errors.Is(err, realtime.ErrNoSubscribers) {
		s.logger.Warn("realtime broadcast failed", "room", room, "type", msgType, "error", err)
	}
}

func (s *Service) notify(ctx context.Context, req notify.Request) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, req); err != nil {
		s.logger.Warn("notification failed", "recipient", req.Recipient, "type", req.Type, "idea_id", req.RelatedIdea, "error", err)
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}

func unionLists(lists ...[]string) []string {
	var all []string
	for _, list := range lists {
		all = append(all, list...)
	}
	return normalizeList(all)
}
