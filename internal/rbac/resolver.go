package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// ErrNoProfile is returned by lookups when the principal has no profile row.
var ErrNoProfile = errors.New("rbac: profile not found")

// RoleLookup reads the raw role label stored for a principal.
type RoleLookup interface {
	LookupRole(ctx context.Context, principalID string) (string, error)
}

// PGRoleLookup reads roles from the profile tables. Back-office staff live in
// app_user_admin and technicians in app_user.
type PGRoleLookup struct {
	pool *pgxpool.Pool
}

// NewPGRoleLookup constructs a lookup backed by pool.
func NewPGRoleLookup(pool *pgxpool.Pool) *PGRoleLookup {
	return &PGRoleLookup{pool: pool}
}

// LookupRole implements RoleLookup.
func (l *PGRoleLookup) LookupRole(ctx context.Context, principalID string) (string, error) {
	const query = `SELECT COALESCE(rol::text, '') FROM app_user_admin WHERE auth_user_id = $1
UNION ALL
SELECT COALESCE(rol::text, '') FROM app_user WHERE auth_user_id = $1
LIMIT 1`
	var label string
	if err := l.pool.QueryRow(ctx, query, principalID).Scan(&label); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoProfile
		}
		return "", err
	}
	return label, nil
}

// ResolverConfig wires a Resolver.
type ResolverConfig struct {
	Lookup   RoleLookup
	Cache    *redis.Client
	CacheTTL time.Duration
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Resolver turns a principal id into a Role. It never fails: every error,
// missing profile, and timeout yields NoRole.
type Resolver struct {
	lookup   RoleLookup
	cache    *redis.Client
	cacheTTL time.Duration
	timeout  time.Duration
	logger   *slog.Logger
	group    singleflight.Group
}

// NewResolver constructs a Resolver. Timeout defaults to two seconds.
func NewResolver(cfg ResolverConfig) *Resolver {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:   cfg.Lookup,
		cache:    cfg.Cache,
		cacheTTL: cfg.CacheTTL,
		timeout:  timeout,
		logger:   logger,
	}
}

// Resolve returns the normalized role of principalID.
func (r *Resolver) Resolve(ctx context.Context, principalID string) Role {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" || r.lookup == nil {
		return NoRole
	}
	if role, ok := r.cached(ctx, principalID); ok {
		return role
	}

	// The shared lookup outlives any single caller but not the timeout.
	results := r.group.DoChan(principalID, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		gen, genOK := r.generation(lookupCtx, principalID)
		label, err := r.lookup.LookupRole(lookupCtx, principalID)
		if err != nil {
			return NoRole, err
		}
		role := NormalizeRole(label)
		if role != NoRole && genOK {
			r.store(lookupCtx, principalID, gen, role)
		}
		return role, nil
	})

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return NoRole
	case <-timer.C:
		r.logger.Warn("rbac resolve timeout", slog.String("principal", principalID), slog.Duration("timeout", r.timeout))
		return NoRole
	case res := <-results:
		if res.Err != nil {
			if !errors.Is(res.Err, ErrNoProfile) {
				r.logger.Warn("rbac resolve role", slog.String("principal", principalID), slog.Any("error", res.Err))
			}
			return NoRole
		}
		role, _ := res.Val.(Role)
		return role
	}
}

// Forget drops the cached role of principalID and bumps its generation so a
// lookup already in flight cannot write the old role back.
func (r *Resolver) Forget(ctx context.Context, principalID string) {
	if principalID == "" {
		return
	}
	r.group.Forget(principalID)
	if r.cache == nil {
		return
	}
	_, err := r.cache.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(principalID))
		pipe.Expire(ctx, generationKey(principalID), r.cacheTTL+r.timeout)
		pipe.Del(ctx, cacheKey(principalID))
		return nil
	})
	if err != nil {
		r.logger.Warn("rbac forget role", slog.String("principal", principalID), slog.Any("error", err))
	}
}

func (r *Resolver) cached(ctx context.Context, principalID string) (Role, bool) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return NoRole, false
	}
	label, err := r.cache.Get(ctx, cacheKey(principalID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("rbac cache get", slog.Any("error", err))
		}
		return NoRole, false
	}
	role := NormalizeRole(label)
	return role, role != NoRole
}

// generation reads the invalidation counter of principalID. A missing key
// counts as zero; ok is false when the cache is off or unreadable.
func (r *Resolver) generation(ctx context.Context, principalID string) (int64, bool) {
	if r.cache == nil || r.cacheTTL <= 0 {
		return 0, false
	}
	gen, err := r.cache.Get(ctx, generationKey(principalID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		r.logger.Warn("rbac cache generation", slog.Any("error", err))
		return 0, false
	}
	return gen, true
}

var errStaleRole = errors.New("rbac: role changed during lookup")

// store caches role only while the generation still equals gen.
func (r *Resolver) store(ctx context.Context, principalID string, gen int64, role Role) {
	key := generationKey(principalID)
	err := r.cache.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleRole
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey(principalID), string(role), r.cacheTTL)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
	case errors.Is(err, errStaleRole), errors.Is(err, redis.TxFailedErr):
		r.logger.Debug("rbac cache skip stale role", slog.String("principal", principalID))
	default:
		r.logger.Warn("rbac cache set", slog.Any("error", err))
	}
}

func cacheKey(principalID string) string {
	return "rbac:role:" + principalID
}

func generationKey(principalID string) string {
	return "rbac:role-gen:" + principalID
}
