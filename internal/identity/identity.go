// Package identity derives a stable user id and keeps the session id
// durable across reloads.
package identity

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatcore/internal/store"
	"chatcore/internal/types"
)

// Resolver owns the storage-backed identity. All storage access goes through
// the injected store; resolution itself never fails — storage errors degrade
// to an unpersisted identity and are logged.
type Resolver struct {
	store store.IdentityStore
	log   zerolog.Logger
}

func NewResolver(s store.IdentityStore, log zerolog.Logger) *Resolver {
	return &Resolver{store: s, log: log}
}

// Resolve returns the durable identity. A verified email always wins and
// overwrites any stored anonymous id; otherwise the stored id is reused, and
// a fresh guest id is minted and persisted on first run.
func (r *Resolver) Resolve(ctx context.Context, email string) types.Identity {
	stored, err := r.store.Load(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("identity load failed, starting fresh")
		stored = types.Identity{}
	}

	email = strings.TrimSpace(strings.ToLower(email))
	if email != "" {
		userID := HashedUserID(email)
		if stored.UserID != userID {
			stored.UserID = userID
			r.persist(ctx, stored)
		}
		return stored
	}

	if stored.UserID != "" {
		return stored
	}

	stored.UserID = "guest_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	r.persist(ctx, stored)
	return stored
}

// PersistSessionID records the session id next to the user id.
func (r *Resolver) PersistSessionID(ctx context.Context, userID, sessionID string) error {
	return r.store.Save(ctx, types.Identity{UserID: userID, SessionID: sessionID})
}

// ClearSession drops the stored session id. The user id is preserved so the
// customer keeps their identity across sessions.
func (r *Resolver) ClearSession(ctx context.Context) error {
	stored, err := r.store.Load(ctx)
	if err != nil {
		return err
	}
	stored.SessionID = ""
	return r.store.Save(ctx, stored)
}

func (r *Resolver) persist(ctx context.Context, id types.Identity) {
	if err := r.store.Save(ctx, id); err != nil {
		r.log.Warn().Err(err).Msg("identity save failed")
	}
}

// HashedUserID maps a verified identifier to a stable user id. FNV-1a is
// deliberate: the id only needs to be deterministic and collision-tolerant,
// not secret.
func HashedUserID(email string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(strings.ToLower(email))))
	return fmt.Sprintf("u_%016x", h.Sum64())
}
