package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/metrics"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"
	"github.com/changeuikim/vercel-kayce/pkg/requestcontext"
)

// Store is the persistence port. Find honours Query.After by returning
// query.ErrCursorNotFound when the cursor row does not exist. Insert assigns
// the ID. Update returns sentinel.ErrNotFound for unknown ids.
type Store interface {
	Find(ctx context.Context, q query.Query) ([]*models.User, error)
	Count(ctx context.Context, where query.Predicate) (int, error)
	Insert(ctx context.Context, u *models.User) (*models.User, error)
	Update(ctx context.Context, userID id.UserID, patch models.Patch) (*models.User, error)
}

// StoreTx runs fn as one atomic unit. The Store handed to fn must only be used
// inside fn.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(store Store) error) error
}

// CountCache memoizes totalCount per predicate fingerprint. Key resolves a
// fingerprint against the current generation; callers resolve it once and use
// the same key for Get and Set, so a count read before an Invalidate is never
// filed under the newer generation.
type CountCache interface {
	Key(ctx context.Context, fingerprint string) (string, error)
	Get(ctx context.Context, key string) (int, bool, error)
	Set(ctx context.Context, key string, n int) error
	Invalidate(ctx context.Context) error
}

// EventPublisher receives committed lifecycle transitions.
type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

// SearchRequest is the input of FetchPage.
type SearchRequest struct {
	Filter         *query.Filter     `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort           []query.Sort      `json:"sort,omitempty" yaml:"sort,omitempty"`
	Pagination     query.PageRequest `json:"pagination" yaml:"pagination"`
	IncludeDeleted bool              `json:"includeDeleted,omitempty" yaml:"includeDeleted,omitempty"`
}

// Service owns the user lifecycle and paginated reads.
type Service struct {
	store          Store
	tx             StoreTx
	hasher         *identity.Hasher
	tokens         *identity.TokenParser
	cache          CountCache
	publisher      EventPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	maxTake        int
	maxFilterDepth int
	production     bool
}

type Option func(s *Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithHasher(h *identity.Hasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithTokenParser enables CreateFromToken.
func WithTokenParser(p *identity.TokenParser) Option {
	return func(s *Service) {
		s.tokens = p
	}
}

func WithCountCache(c CountCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithMaxTake(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxTake = n
		}
	}
}

func WithMaxFilterDepth(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxFilterDepth = n
		}
	}
}

// WithProductionMode strips diagnostic metadata from UnknownError.
func WithProductionMode(on bool) Option {
	return func(s *Service) {
		s.production = on
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(store Store, tx StoreTx, opts ...Option) *Service {
	s := &Service{
		store:          store,
		tx:             tx,
		hasher:         identity.NewHasher(""),
		tracer:         otel.Tracer("github.com/changeuikim/vercel-kayce/internal/user/service"),
		maxTake:        query.DefaultMaxTake,
		maxFilterDepth: query.DefaultMaxFilterDepth,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a user for (provider, rawIdentity). The duplicate check and
// the insert run in one transaction; the active-identity unique index turns a
// lost race into DuplicateIdentity as well.
func (s *Service) Create(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.Create", trace.WithAttributes(attribute.String("provider", string(provider))))
	defer span.End()

	user, err := s.create(ctx, provider, rawIdentity)
	return user, s.finish(ctx, span, opCreate, err)
}

// CreateFromToken is Create with the raw identity taken from a signed ID
// token's subject.
func (s *Service) CreateFromToken(ctx context.Context, provider identity.Provider, idToken string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.CreateFromToken", trace.WithAttributes(attribute.String("provider", string(provider))))
	defer span.End()

	if s.tokens == nil {
		return nil, s.finish(ctx, span, opCreate, dErrors.New(dErrors.CodeValidation, "id tokens are not accepted"))
	}
	subject, err := s.tokens.Subject(idToken)
	if err != nil {
		return nil, s.finish(ctx, span, opCreate, err)
	}
	user, err := s.create(ctx, provider, subject)
	return user, s.finish(ctx, span, opCreate, err)
}

func (s *Service) create(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error) {
	key, err := s.hasher.Hash(rawIdentity, provider)
	if err != nil {
		return nil, err
	}
	user, err := models.NewUser(provider, key, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}

	var created *models.User
	err = s.tx.RunInTx(ctx, func(st Store) error {
		existing, err := st.Find(ctx, activeByKey(key))
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return duplicate(provider)
		}
		created, err = st.Insert(ctx, user)
		return err
	})
	if err != nil {
		// A concurrent creator can pass the check; the unique index rejects us.
		if _, ok := dErrors.As(err); !ok && errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeDuplicateIdentity, "").WithMeta("provider", string(provider))
		}
		return nil, err
	}

	s.committed(ctx, models.EventUserCreated, created, "key_prefix", key.Short())
	return created, nil
}

// SoftDelete moves an active user to soft-deleted. Repeating it fails with
// EntityNotFound.
func (s *Service) SoftDelete(ctx context.Context, userID id.UserID) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.SoftDelete", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	user, err := s.transition(ctx, userID, func(_ Store, u *models.User) error {
		return u.SoftDelete(now)
	})
	if err != nil {
		return nil, s.finish(ctx, span, opSoftDelete, err)
	}
	s.committed(ctx, models.EventUserSoftDeleted, user)
	return user, nil
}

// Restore moves a soft-deleted user back to active. Restoring an active user
// fails with EntityNotFound; restoring while another active user holds the
// same identity fails with DuplicateIdentity.
func (s *Service) Restore(ctx context.Context, userID id.UserID) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.Restore", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	user, err := s.transition(ctx, userID, func(st Store, u *models.User) error {
		if err := u.CanRestore(); err != nil {
			return err
		}
		holders, err := st.Find(ctx, activeByKey(u.IdentityKey))
		if err != nil {
			return err
		}
		if len(holders) > 0 {
			return duplicate(u.Provider)
		}
		u.ApplyRestore()
		return nil
	})
	if err != nil {
		return nil, s.finish(ctx, span, opRestore, err)
	}
	s.committed(ctx, models.EventUserRestored, user)
	return user, nil
}

// transition locks the user row, lets apply mutate it and writes the result.
func (s *Service) transition(ctx context.Context, userID id.UserID, apply func(Store, *models.User) error) (*models.User, error) {
	var updated *models.User
	err := s.tx.RunInTx(ctx, func(st Store) error {
		rows, err := st.Find(ctx, byID(userID, true))
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return notFound(userID)
		}
		u := rows[0]
		if err := apply(st, u); err != nil {
			return err
		}
		updated, err = st.Update(ctx, u.ID, u.Patch())
		return err
	})
	if err != nil {
		if _, ok := dErrors.As(err); !ok && errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(err, dErrors.CodeEntityNotFound, "").WithMeta("id", userID.String())
		}
		return nil, err
	}
	return updated, nil
}

// FindByIdentity returns the active user for (provider, rawIdentity), or nil
// when there is none.
func (s *Service) FindByIdentity(ctx context.Context, provider identity.Provider, rawIdentity string) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.FindByIdentity", trace.WithAttributes(attribute.String("provider", string(provider))))
	defer span.End()

	key, err := s.hasher.Hash(rawIdentity, provider)
	if err != nil {
		return nil, s.finish(ctx, span, opFindByIdentity, err)
	}
	rows, err := s.store.Find(ctx, activeByKey(key))
	if err != nil {
		return nil, s.finish(ctx, span, opFindByIdentity, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// FindByID returns the user with userID. Soft-deleted users are reported as
// EntityNotFound unless includeDeleted is set.
func (s *Service) FindByID(ctx context.Context, userID id.UserID, includeDeleted bool) (*models.User, error) {
	ctx, span := s.tracer.Start(ctx, "user.FindByID", trace.WithAttributes(attribute.String("user_id", userID.String())))
	defer span.End()

	rows, err := s.store.Find(ctx, byID(userID, false))
	if err != nil {
		return nil, s.finish(ctx, span, opFindByID, err)
	}
	if len(rows) == 0 || (rows[0].IsDeleted && !includeDeleted) {
		return nil, s.finish(ctx, span, opFindByID, notFound(userID))
	}
	return rows[0], nil
}

// FetchPage compiles req and reads one page. Soft-deleted users are excluded
// unless req.IncludeDeleted is set or the filter itself constrains deletion.
func (s *Service) FetchPage(ctx context.Context, req SearchRequest) (query.Page[*models.User], error) {
	ctx, span := s.tracer.Start(ctx, "user.FetchPage")
	defer span.End()
	start := time.Now()
	defer s.metrics.ObservePageFetch(start)

	page, err := s.fetchPage(ctx, req)
	if err != nil {
		return query.Page[*models.User]{}, s.finish(ctx, span, opFetchPage, err)
	}
	span.SetAttributes(attribute.Int("total_count", page.TotalCount), attribute.Int("items", len(page.Items)))
	return page, nil
}

func (s *Service) fetchPage(ctx context.Context, req SearchRequest) (query.Page[*models.User], error) {
	where, err := query.CompileFilter(req.Filter, query.WithMaxDepth(s.maxFilterDepth))
	if err != nil {
		return query.Page[*models.User]{}, err
	}
	if !req.IncludeDeleted && !req.Filter.ConstrainsDeletion() {
		where = query.And(where, query.BoolEq{Field: query.FieldIsDeleted, Value: false})
	}
	order, err := query.CompileSort(req.Sort)
	if err != nil {
		return query.Page[*models.User]{}, err
	}
	if req.Pagination.Cursor != "" {
		cursor, err := id.ParseUserID(req.Pagination.Cursor)
		if err != nil {
			return query.Page[*models.User]{}, dErrors.Wrap(err, dErrors.CodeValidation, "cursor must be a user id").
				WithMeta("cursor", req.Pagination.Cursor)
		}
		req.Pagination.Cursor = cursor.String()
	}
	return query.FetchPage[*models.User](ctx, s.reader(), where, order, req.Pagination, s.maxTake)
}

func (s *Service) reader() query.Reader[*models.User] {
	if s.cache == nil {
		return s.store
	}
	return &cachedReader{Store: s.store, cache: s.cache, logger: s.logger, metrics: s.metrics}
}

// committed runs the after-commit side effects of a transition. None of them
// can fail the operation.
func (s *Service) committed(ctx context.Context, eventType models.EventType, user *models.User, attrs ...any) {
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logWarn(ctx, "count cache invalidation failed", "error", err)
		}
	}
	s.metrics.IncTransition(transitionName(eventType))

	args := append([]any{"user_id", user.ID.String(), "provider", string(user.Provider)}, attrs...)
	s.logInfo(ctx, string(eventType), args...)

	if s.publisher == nil {
		return
	}
	event := models.Event{
		Type:       eventType,
		UserID:     user.ID,
		Provider:   user.Provider,
		OccurredAt: models.Timestamp(requestcontext.Now(ctx)),
		RequestID:  requestcontext.RequestID(ctx),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logWarn(ctx, "lifecycle event publish failed", "event", string(eventType), "user_id", user.ID.String(), "error", err)
	}
}

// finish normalizes err, records it and strips diagnostics in production.
func (s *Service) finish(ctx context.Context, span trace.Span, o op, err error) error {
	if err == nil {
		return nil
	}
	err = normalize(err, o)
	de, _ := dErrors.As(err)

	span.RecordError(err)
	span.SetStatus(codes.Error, string(de.Code))
	s.metrics.IncError(string(o), string(de.Code))

	switch de.Code {
	case dErrors.CodeUnknown, dErrors.CodeStoreTimeout:
		s.logError(ctx, "user operation failed", "operation", string(o), "code", string(de.Code), "error", err)
		if s.production && de.Code == dErrors.CodeUnknown {
			return &dErrors.Error{Code: de.Code, Err: de.Err}
		}
	default:
		s.logDebug(ctx, "user operation rejected", "operation", string(o), "code", string(de.Code))
	}
	return err
}

func (s *Service) logInfo(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.InfoContext(ctx, msg, withRequestID(ctx, args)...)
	}
}

func (s *Service) logWarn(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, withRequestID(ctx, args)...)
	}
}

func (s *Service) logError(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, withRequestID(ctx, args)...)
	}
}

func (s *Service) logDebug(ctx context.Context, msg string, args ...any) {
	if s.logger != nil {
		s.logger.DebugContext(ctx, msg, withRequestID(ctx, args)...)
	}
}

func withRequestID(ctx context.Context, args []any) []any {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		return append(args, "request_id", requestID)
	}
	return args
}

func transitionName(t models.EventType) string {
	switch t {
	case models.EventUserCreated:
		return "created"
	case models.EventUserSoftDeleted:
		return "soft_deleted"
	case models.EventUserRestored:
		return "restored"
	}
	return string(t)
}

func activeByKey(key identity.Key) query.Query {
	return query.Query{
		Where: query.And(
			query.StringEq{Field: query.FieldIdentityKey, Value: string(key)},
			query.BoolEq{Field: query.FieldIsDeleted, Value: false},
		),
		Limit: 1,
	}
}

func byID(userID id.UserID, forUpdate bool) query.Query {
	return query.Query{
		Where:     query.StringEq{Field: query.FieldID, Value: userID.String()},
		Limit:     1,
		ForUpdate: forUpdate,
	}
}

func notFound(userID id.UserID) error {
	return dErrors.New(dErrors.CodeEntityNotFound, "").WithMeta("id", userID.String())
}

func duplicate(provider identity.Provider) error {
	return dErrors.New(dErrors.CodeDuplicateIdentity, "").WithMeta("provider", string(provider))
}
