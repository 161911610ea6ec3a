package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-atproto/oauth/envelope"
	"github.com/go-atproto/oauth/storage"
	"github.com/google/uuid"
)

// sensitiveSessionFields names the dotted JSON paths of Session that are
// sealed at rest by envelope.EncryptFields/DecryptFields: the PKCE
// verifier, the DPoP private key, and both halves of the token pair.
var sensitiveSessionFields = []string{
	"pkce_verifier",
	"dpop_private_key",
	"tokens.access_token",
	"tokens.refresh_token",
}

const sessionLockTTL = 30 * time.Second

func sessionKey(id string) string       { return "atproto:session:" + id }
func sessionLockKey(id string) string   { return "atproto:lock:session:" + id }
func stateKey(stateToken string) string { return "atproto:state:" + stateToken }

// SessionManager owns session persistence: creation, lookup by id or by
// PAR state token, updates serialized through a per-session storage lock,
// and removal. Every write path goes through storage.WithLock so
// concurrent callback/refresh attempts against the same session cannot
// race, per section 5's concurrency model.
//
// Grounded on atproto/auth/oauth/memstore.go's MemStore, generalized from
// an in-process map to the storage.Store abstraction and from
// plaintext-in-memory to envelope-sealed-at-rest.
type SessionManager struct {
	store     storage.Store
	masterKey []byte
}

// NewSessionManager constructs a SessionManager backed by store, sealing
// sensitive fields with masterKey.
func NewSessionManager(store storage.Store, masterKey []byte) *SessionManager {
	return &SessionManager{store: store, masterKey: masterKey}
}

// CreateSession persists a new pending session and indexes it by its PAR
// state token, returning the generated session id.
func (m *SessionManager) CreateSession(ctx context.Context, s *Session) (string, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.StateToken == "" {
		s.StateToken = uuid.NewString()
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.State == "" {
		s.State = SessionPending
	}

	err := storage.WithLock(ctx, m.store, sessionLockKey(s.ID), sessionLockTTL, func() error {
		if err := m.write(ctx, s); err != nil {
			return err
		}
		if err := m.store.Set(ctx, stateKey(s.StateToken), s.ID, 10*time.Minute); err != nil {
			return fmt.Errorf("oauth: indexing session by state: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// GetSession loads a session by id. A session whose tokens are expired and
// not renewable is treated as gone, since nothing can bring it back to
// life: it is reported as ErrSessionNotFound rather than returned stale.
func (m *SessionManager) GetSession(ctx context.Context, id string) (*Session, error) {
	raw, err := m.store.Get(ctx, sessionKey(id))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("oauth: loading session: %w", err)
	}
	s, err := m.decode(raw)
	if err != nil {
		return nil, err
	}
	if s.Tokens != nil && s.Tokens.expired(expiryBuffer) && !s.Renewable() {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// GetSessionByState resolves a PAR state token (as returned on the
// callback redirect) to its session.
func (m *SessionManager) GetSessionByState(ctx context.Context, stateToken string) (*Session, error) {
	id, err := m.store.Get(ctx, stateKey(stateToken))
	if err != nil {
		if err == storage.ErrNotFound {
			return nil, ErrInvalidState
		}
		return nil, fmt.Errorf("oauth: resolving state token: %w", err)
	}
	return m.GetSession(ctx, id)
}

// UpdateSession runs fn against the current session under the session's
// storage lock, persisting whatever mutation fn makes. fn is responsible
// for calling the Session's bind/set helpers so DID and auth_server
// immutability, and tokens.sub==did consistency, are enforced.
func (m *SessionManager) UpdateSession(ctx context.Context, id string, fn func(s *Session) error) (*Session, error) {
	var updated *Session
	err := storage.WithLock(ctx, m.store, sessionLockKey(id), sessionLockTTL, func() error {
		s, err := m.GetSession(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = time.Now()
		if err := m.write(ctx, s); err != nil {
			return err
		}
		updated = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveSession deletes a session and its state-token index entry under the
// session's storage lock.
func (m *SessionManager) RemoveSession(ctx context.Context, id string) error {
	return storage.WithLock(ctx, m.store, sessionLockKey(id), sessionLockTTL, func() error {
		s, err := m.GetSession(ctx, id)
		if err != nil {
			if err == ErrSessionNotFound {
				return nil
			}
			return err
		}
		if err := m.store.Delete(ctx, sessionKey(id)); err != nil {
			return fmt.Errorf("oauth: deleting session: %w", err)
		}
		if s.StateToken != "" {
			_ = m.store.Delete(ctx, stateKey(s.StateToken))
		}
		return nil
	})
}

func (m *SessionManager) write(ctx context.Context, s *Session) error {
	sealed, err := envelope.EncryptFields(m.masterKey, "session:"+s.ID, s, sensitiveSessionFields)
	if err != nil {
		return fmt.Errorf("oauth: sealing session fields: %w", err)
	}
	env := envelope.Wrap("session", sealed, s.CreatedAt, s.UpdatedAt)
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("oauth: marshaling session envelope: %w", err)
	}
	if err := m.store.Set(ctx, sessionKey(s.ID), string(raw), 0); err != nil {
		return fmt.Errorf("oauth: storing session: %w", err)
	}
	return nil
}

func (m *SessionManager) decode(raw string) (*Session, error) {
	var env envelope.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return nil, fmt.Errorf("oauth: unmarshaling session envelope: %w", err)
	}
	opened, err := envelope.DecryptFields(m.masterKey, "session:"+sessionIDFromEnvelope(env), env.Data, sensitiveSessionFields)
	if err != nil {
		return nil, fmt.Errorf("oauth: unsealing session fields: %w", err)
	}
	var s Session
	if err := json.Unmarshal(opened, &s); err != nil {
		return nil, fmt.Errorf("oauth: unmarshaling session: %w", err)
	}
	return &s, nil
}

// sessionIDFromEnvelope recovers the session id embedded in Data before
// full decoding, since DecryptFields needs the derivation context
// ("session:<id>") up front. The id field is never itself sealed, so a
// shallow unmarshal is safe.
func sessionIDFromEnvelope(env envelope.Envelope) string {
	var partial struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(env.Data, &partial)
	return partial.ID
}
