package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ekisa-team/beam/host"
	"github.com/ekisa-team/beam/worker"
)

// Registry stores the single instance of every model created so far.
// Instances are added, never removed.
type Registry struct {
	catalog   *Catalog
	worker    *worker.Serial
	logger    *slog.Logger
	observers observers

	instances map[Key]Model
	launching map[Key]struct{}
	host      *host.Host
	closed    bool
	mu        sync.RWMutex

	locks   map[Key]*sync.Mutex
	locksMu sync.Mutex
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver adds an observer notified of creations, failures and hooks.
func WithObserver(o Observer) Option {
	return func(r *Registry) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithWorker replaces the background worker the registry would create.
func WithWorker(w *worker.Serial) Option {
	return func(r *Registry) {
		if w != nil {
			r.worker = w
		}
	}
}

// NewRegistry creates a registry resolving keys through catalog.
func NewRegistry(catalog *Catalog, opts ...Option) *Registry {
	if catalog == nil {
		catalog = NewCatalog()
	}

	r := &Registry{
		catalog:   catalog,
		logger:    slog.Default(),
		instances: make(map[Key]Model),
		launching: make(map[Key]struct{}),
		locks:     make(map[Key]*sync.Mutex),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.worker == nil {
		r.worker = worker.New(worker.WithLogger(r.logger))
	}

	return r
}

// Init starts the background worker, binds the registry to h and eagerly
// creates every model listed under MetadataKey in the host metadata.
//
// A missing or empty list is not an error. Unknown keys and models that fail
// to construct are logged and skipped. An error reading the metadata aborts
// Init before any model is created.
func (r *Registry) Init(ctx context.Context, h *host.Host) error {
	if h == nil {
		return ErrNilHost
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRegistryClosed
	}
	if r.host != nil {
		r.mu.Unlock()
		return ErrAlreadyInitialized
	}
	r.worker.Start()
	r.host = h
	r.mu.Unlock()

	raw, ok, err := h.Metadata(MetadataKey)
	if err != nil {
		return fmt.Errorf("read %s metadata: %w", MetadataKey, err)
	}
	if !ok || strings.TrimSpace(raw) == "" {
		r.logger.Debug("No models declared in host metadata", "key", MetadataKey)
		return nil
	}

	keys := ParseKeys(raw)
	created := r.preload(ctx, keys)

	r.logger.Info("Model registry initialized", "declared", len(keys), "created", created)
	return nil
}

// Preload eagerly creates every listed model that is not cached yet and
// returns how many were created. Failures are logged per key.
func (r *Registry) Preload(ctx context.Context, keys []Key) (int, error) {
	if _, err := r.ready(); err != nil {
		return 0, err
	}

	return r.preload(ctx, keys), nil
}

type pending struct {
	key      Key
	instance Model
}

// preload creates the whole batch first and launches it afterwards, in list
// order.
func (r *Registry) preload(ctx context.Context, keys []Key) int {
	batch := make([]pending, 0, len(keys))
	for _, key := range keys {
		instance, err := r.createIfAbsent(key)
		if err != nil {
			if errors.Is(err, ErrUnknownModel) {
				r.logger.Warn("Model not found in catalog", "model", key)
			} else {
				r.logger.Error("Failed to create model", "model", key, "error", err)
			}
			r.observers.failed(key, err)
			continue
		}
		if instance == nil {
			continue
		}

		r.observers.created(key, OriginEager)
		batch = append(batch, pending{key: key, instance: instance})
	}

	for _, p := range batch {
		r.launchModel(ctx, p.key, p.instance)
	}

	return len(batch)
}

// createIfAbsent returns a nil Model when key is already cached.
func (r *Registry) createIfAbsent(key Key) (Model, error) {
	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if _, ok := r.lookup(key); ok {
		return nil, nil
	}

	return r.createModel(key)
}

// GetInstance returns the cached model for key, creating and launching it on
// first use. Concurrent callers for the same key share one instance and block
// until its OnCreate returns; callers for different keys do not contend.
//
// Models of an Init or Preload batch are visible to each other's OnCreate
// before their own OnCreate has run. A model must not look itself up from
// its own OnCreate.
func (r *Registry) GetInstance(ctx context.Context, key Key) (Model, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: %w", ErrInvalidModel, ErrKeyEmpty)
	}

	if instance, ok := r.launched(key); ok {
		return instance, nil
	}

	if _, err := r.ready(); err != nil {
		return nil, err
	}

	lock := r.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if instance, ok := r.lookup(key); ok {
		return instance, nil
	}

	instance, err := r.createModel(key)
	if err != nil {
		r.logger.Error("Failed to create model", "model", key, "error", err)
		r.observers.failed(key, err)
		return nil, err
	}

	r.observers.created(key, OriginLazy)
	r.launchModel(ctx, key, instance)

	return instance, nil
}

// Get returns the model cached under key as a T. A cached model of another
// type yields ErrInvalidModel.
func Get[T Model](ctx context.Context, r *Registry, key Key) (T, error) {
	var zero T

	instance, err := r.GetInstance(ctx, key)
	if err != nil {
		return zero, err
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %q is %T, not %T", ErrInvalidModel, key, instance, zero)
	}

	return typed, nil
}

// RunOnBackground submits task to the worker that runs background hooks.
func (r *Registry) RunOnBackground(task worker.Task) error {
	if _, err := r.ready(); err != nil {
		return err
	}

	if _, err := r.worker.Submit("background", task); err != nil {
		return fmt.Errorf("submit background task: %w", err)
	}

	return nil
}

// Has reports whether key has a cached instance.
func (r *Registry) Has(key Key) bool {
	_, ok := r.lookup(key)
	return ok
}

// Keys returns the keys of all cached models in lexical order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]Key, 0, len(r.instances))
	for k := range r.instances {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}

// Len returns the number of cached models.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.instances)
}

// Host returns the host bound by Init, or nil.
func (r *Registry) Host() *host.Host {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.host
}

// Pending returns the number of background tasks waiting to run.
func (r *Registry) Pending() int {
	return r.worker.Pending()
}

// Shutdown stops lazy creation and drains the background worker until ctx
// ends. Cached models stay readable.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if err := r.worker.Close(ctx); err != nil {
		return fmt.Errorf("drain background worker: %w", err)
	}

	r.logger.Info("Model registry shut down", "models", r.Len())
	return nil
}

func (r *Registry) ready() (*host.Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if r.host == nil {
		return nil, ErrNotInitialized
	}

	return r.host, nil
}

func (r *Registry) lookup(key Key) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.instances[key]
	return instance, ok
}

// launched is lookup restricted to models whose OnCreate has returned.
func (r *Registry) launched(key Key) (Model, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, pending := r.launching[key]; pending {
		return nil, false
	}

	instance, ok := r.instances[key]
	return instance, ok
}

func (r *Registry) lockFor(key Key) *sync.Mutex {
	r.locksMu.Lock()
	defer r.locksMu.Unlock()

	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}

	return lock
}

// createModel constructs and caches the model for key. The caller holds the
// key lock. Failed constructions are not cached.
func (r *Registry) createModel(key Key) (Model, error) {
	factory, ok := r.catalog.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", ErrInvalidModel, ErrUnknownModel, key)
	}

	instance, err := construct(factory)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInstantiation, key, err)
	}
	if isNil(instance) {
		return nil, fmt.Errorf("%w: factory for %s returned nil", ErrInvalidModel, key)
	}

	r.mu.Lock()
	r.instances[key] = instance
	r.launching[key] = struct{}{}
	r.mu.Unlock()

	r.logger.Debug("Model created", "model", key, "type", fmt.Sprintf("%T", instance))
	return instance, nil
}

// launchModel runs OnCreate on the calling goroutine and queues
// OnCreateBackground on the worker.
func (r *Registry) launchModel(ctx context.Context, key Key, instance Model) {
	h := r.Host()

	start := time.Now()
	err := runHook(func() error { return instance.OnCreate(ctx, h) })

	r.mu.Lock()
	delete(r.launching, key)
	r.mu.Unlock()

	r.hookFinished(key, HookOnCreate, time.Since(start), err)

	_, err = r.worker.Submit(string(key)+"/"+string(HookOnCreateBackground), func(ctx context.Context) {
		start := time.Now()
		err := runHook(func() error { return instance.OnCreateBackground(ctx, h) })
		r.hookFinished(key, HookOnCreateBackground, time.Since(start), err)
	})
	if err != nil {
		r.logger.Error("Failed to schedule background hook", "model", key, "error", err)
	}
}

func (r *Registry) hookFinished(key Key, hook Hook, elapsed time.Duration, err error) {
	if err != nil {
		r.logger.Error("Model hook failed", "model", key, "hook", hook, "error", err)
	}
	r.observers.hookFinished(key, hook, elapsed, err)
}

func construct(factory Factory) (instance Model, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("factory panicked: %v", rec)
		}
	}()

	return factory()
}

func runHook(hook func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panicked: %v", rec)
		}
	}()

	return hook()
}

func isNil(m Model) bool {
	if m == nil {
		return true
	}

	v := reflect.ValueOf(m)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	default:
		return false
	}
}
