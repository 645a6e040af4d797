package service

import (
	"context"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"golang.org/x/sync/singleflight"

	"infopos/backend/internal/cache"
	"infopos/backend/internal/domain"
	"infopos/backend/internal/store"
	"infopos/backend/internal/timestamp"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Observer receives sync counters. *observability.Metrics satisfies it.
type Observer interface {
	ObservePull(table string, records int)
	ObservePush(table string, synced int, failed int, committed bool)
}

type noopObserver struct{}

func (noopObserver) ObservePull(string, int)            {}
func (noopObserver) ObservePush(string, int, int, bool) {}

type Options struct {
	// Location is the store timezone used to read calendar dates and render timestamps.
	Location *time.Location
	Version  string
	Cache    cache.ManifestCache
	CacheTTL time.Duration
	Observer Observer
	Logger   *slog.Logger
	Now      func() time.Time
}

type Service struct {
	repo     store.Repository
	clock    *timestamp.Normalizer
	validate *validator.Validate
	cache    cache.ManifestCache
	cacheTTL time.Duration
	observer Observer
	logger   *slog.Logger
	version  string
	now      func() time.Time
	manifest singleflight.Group
}

func New(repo store.Repository, opts Options) *Service {
	if opts.Version == "" {
		opts.Version = "1.0"
	}
	if opts.Cache == nil {
		opts.Cache = cache.NoopManifestCache{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Second
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:     repo,
		clock:    timestamp.New(opts.Location),
		validate: newValidator(),
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		observer: opts.Observer,
		logger:   opts.Logger,
		version:  opts.Version,
		now:      opts.Now,
	}
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// An absent FlexID validates like a nil value so `required` applies to it.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if id, ok := field.Interface().(domain.FlexID); ok && id.Valid {
			return id.Value
		}
		return nil
	}, domain.FlexID{})
	_ = v.RegisterValidation("notblank", validators.NotBlank)
	return v
}

// Health never touches the store.
func (s *Service) Health() domain.Health {
	return domain.Health{
		Status:    "ok",
		Timestamp: s.clock.Format(s.now()),
		Version:   s.version,
	}
}

// Timestamp renders the current instant in the canonical response format.
func (s *Service) Timestamp() string {
	return s.clock.Format(s.now())
}

func (s *Service) StoreConfig(ctx context.Context, storeID int64) (domain.StoreConfig, error) {
	if _, err := s.scopeStore(ctx, &storeID); err != nil {
		return domain.StoreConfig{}, err
	}
	info, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return domain.StoreConfig{}, err
	}
	return domain.StoreConfig{
		ID:        info.ID,
		Name:      info.Name,
		Address:   info.Address,
		Phone:     info.Phone,
		Email:     info.Email,
		Currency:  defaultString(info.Currency, domain.DefaultCurrency),
		Timezone:  defaultString(info.Timezone, domain.DefaultTimezone),
		CreatedAt: s.clock.Format(info.CreatedAt),
		UpdatedAt: s.clock.Format(info.UpdatedAt),
	}, nil
}

// scopeStore applies the caller's store binding. A store-bound actor defaults to its
// own store and may not address another one; unbound callers are unrestricted.
func (s *Service) scopeStore(ctx context.Context, requested *int64) (*int64, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.StoreID == nil {
		return requested, nil
	}
	if requested == nil {
		bound := *actor.StoreID
		return &bound, nil
	}
	if *requested != *actor.StoreID {
		return nil, ErrStoreForbidden
	}
	return requested, nil
}

func defaultString(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
