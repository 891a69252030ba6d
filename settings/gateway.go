package settings

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lucasjlepore/fitview/options"
)

// Tier identifies which persistence tier supplied or accepted options.
type Tier int

const (
	TierDefaults Tier = iota
	TierPrimary
	TierFallback
)

func (t Tier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierFallback:
		return "fallback"
	default:
		return "defaults"
	}
}

// Resolution is the outcome of a read through the gateway.
type Resolution struct {
	Options options.DecoderOptions
	Tier    Tier
	// Errors holds validation errors for the stored values that were used.
	Errors []string
	// PrimaryErr and FallbackErr retain store failures for logging only.
	PrimaryErr  error
	FallbackErr error
}

// UpdateResult is the outcome of a write through the gateway.
type UpdateResult struct {
	Success    bool                   `json:"success"`
	Errors     []string               `json:"errors,omitempty"`
	Options    options.DecoderOptions `json:"options,omitempty"`
	Tier       Tier                   `json:"-"`
	PrimaryErr error                  `json:"-"`
}

// Gateway reads and writes the active decoder options across two tiers.
// It is safe for concurrent use; writes are last-write-wins.
type Gateway struct {
	mu      sync.RWMutex
	primary Store
	local   LocalStore
	logger  *zap.Logger

	cacheMu sync.Mutex
	current options.DecoderOptions
}

// NewGateway returns a Gateway over local. A nil local store is replaced by
// an in-memory one; a nil logger disables logging.
func NewGateway(local LocalStore, logger *zap.Logger) *Gateway {
	if local == nil {
		local = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{local: local, logger: logger}
}

// SetPrimary replaces the structured settings store. nil disables the tier.
func (g *Gateway) SetPrimary(store Store) {
	g.mu.Lock()
	g.primary = store
	g.mu.Unlock()
	g.Invalidate()
}

func (g *Gateway) stores() (Store, LocalStore) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.primary, g.local
}

// Persisted returns the persisted options, or defaults when nothing usable
// is stored. It never fails.
func (g *Gateway) Persisted(ctx context.Context) options.DecoderOptions {
	return g.Resolve(ctx).Options
}

// Resolve reads the persisted options and reports which tier supplied them.
func (g *Gateway) Resolve(ctx context.Context) Resolution {
	primary, local := g.stores()
	var res Resolution

	if primary != nil {
		values, err := safeGetCategory(ctx, primary)
		switch {
		case err != nil:
			res.PrimaryErr = err
			g.logger.Warn("settings store read failed, using local config", zap.Error(err))
		case len(values) > 0:
			v := options.Validate(values)
			res.Options = v.Options
			res.Errors = v.Errors
			res.Tier = TierPrimary
			g.logValidation(res)
			return res
		}
	}

	raw, err := safeLocalGet(local)
	if err != nil {
		res.FallbackErr = err
		g.logger.Warn("local config read failed, using defaults", zap.Error(err))
		res.Options = options.Defaults()
		res.Tier = TierDefaults
		return res
	}
	candidate, err := options.FromAny(raw)
	if err != nil {
		res.FallbackErr = err
		g.logger.Warn("local config holds unreadable decoder options", zap.Error(err))
	}
	if len(candidate) == 0 {
		res.Options = options.Defaults()
		res.Tier = TierDefaults
		return res
	}
	v := options.Validate(candidate)
	res.Options = v.Options
	res.Errors = v.Errors
	res.Tier = TierFallback
	g.logValidation(res)
	return res
}

func (g *Gateway) logValidation(res Resolution) {
	if len(res.Errors) == 0 {
		return
	}
	g.logger.Warn("persisted decoder options failed validation",
		zap.Stringer("tier", res.Tier),
		zap.Strings("errors", res.Errors),
	)
}

// Update validates candidate and persists it. Invalid candidates are never
// written. The local store receives the write when the primary store is
// absent or fails.
func (g *Gateway) Update(ctx context.Context, candidate map[string]any) UpdateResult {
	v := options.Validate(candidate)
	if !v.Valid {
		return UpdateResult{Success: false, Errors: v.Errors}
	}
	res := g.write(ctx, v.Options)
	if res.Success {
		g.setCurrent(v.Options)
	}
	return res
}

// Reset clears persisted overrides in both tiers and returns the defaults.
func (g *Gateway) Reset(ctx context.Context) UpdateResult {
	primary, local := g.stores()
	if primary != nil {
		if err := safeUpdateCategory(ctx, primary, map[string]any{}); err != nil {
			g.logger.Warn("settings store reset failed", zap.Error(err))
		}
	}
	if err := safeLocalSet(local, map[string]any{}); err != nil {
		g.logger.Warn("local config reset failed", zap.Error(err))
	}
	defaults := options.Defaults()
	g.setCurrent(defaults)
	return UpdateResult{Success: true, Options: defaults, Tier: TierDefaults}
}

// Current returns the most recently resolved options, resolving once when
// nothing is cached.
func (g *Gateway) Current(ctx context.Context) options.DecoderOptions {
	g.cacheMu.Lock()
	cached := g.current
	g.cacheMu.Unlock()
	if cached != nil {
		return cached.Clone()
	}
	resolved := g.Persisted(ctx)
	g.setCurrent(resolved)
	return resolved.Clone()
}

// Invalidate drops the cached options so the next Current call re-reads.
func (g *Gateway) Invalidate() {
	g.cacheMu.Lock()
	g.current = nil
	g.cacheMu.Unlock()
}

func (g *Gateway) setCurrent(opts options.DecoderOptions) {
	g.cacheMu.Lock()
	g.current = opts.Clone()
	g.cacheMu.Unlock()
}

func (g *Gateway) write(ctx context.Context, opts options.DecoderOptions) UpdateResult {
	primary, local := g.stores()
	res := UpdateResult{Options: opts}

	if primary != nil {
		err := safeUpdateCategory(ctx, primary, opts.ToMap())
		if err == nil {
			res.Success = true
			res.Tier = TierPrimary
			return res
		}
		res.PrimaryErr = err
		g.logger.Warn("settings store write failed, writing local config", zap.Error(err))
	}

	if err := safeLocalSet(local, opts.ToMap()); err != nil {
		g.logger.Error("local config write failed", zap.Error(err))
		res.Success = false
		res.Errors = []string{err.Error()}
		return res
	}
	res.Success = true
	res.Tier = TierFallback
	return res
}

// The store helpers convert panics from third-party stores into errors so a
// misbehaving tier degrades like a failing one.

func safeGetCategory(ctx context.Context, s Store) (values map[string]any, err error) {
	defer recoverStore(&err, "settings store read")
	values, err = s.GetCategory(ctx, Category)
	return values, errors.Wrap(err, "settings store read")
}

func safeUpdateCategory(ctx context.Context, s Store, values map[string]any) (err error) {
	defer recoverStore(&err, "settings store write")
	return errors.Wrap(s.UpdateCategory(ctx, Category, values), "settings store write")
}

func safeLocalGet(s LocalStore) (v any, err error) {
	defer recoverStore(&err, "local config read")
	v, err = s.Get(LocalKey, nil)
	return v, errors.Wrap(err, "local config read")
}

func safeLocalSet(s LocalStore, value any) (err error) {
	defer recoverStore(&err, "local config write")
	return errors.Wrap(s.Set(LocalKey, value), "local config write")
}

func recoverStore(err *error, op string) {
	if r := recover(); r != nil {
		*err = errors.Newf("%s panicked: %v", op, r)
	}
}
