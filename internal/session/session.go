// Package session owns the single active Drive credential and the identity
// it resolves to.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/entro314-labs/drivepurge/internal/logging"
	"github.com/entro314-labs/drivepurge/internal/metrics"
	"github.com/entro314-labs/drivepurge/internal/provider"
	"github.com/entro314-labs/drivepurge/internal/store"
)

// ManualTokenPrefix marks a string as a Google OAuth access token.
const ManualTokenPrefix = "ya29"

// Placeholder is used when a credential works but its identity cannot be read.
var Placeholder = provider.Identity{Name: "Manual User"}

// Method records how the active credential was obtained.
type Method int

const (
	MethodNone Method = iota
	MethodInteractive
	MethodManual
)

func (m Method) String() string {
	switch m {
	case MethodInteractive:
		return "interactive"
	case MethodManual:
		return "manual"
	default:
		return "none"
	}
}

// Session is a snapshot of the credential state.
type Session struct {
	Token    string
	Method   Method
	Identity *provider.Identity
}

// Active reports whether a credential is held.
func (s Session) Active() bool {
	return s.Token != ""
}

// IsManualToken reports whether token has the shape of a provider access token.
func IsManualToken(token string) bool {
	return strings.HasPrefix(token, ManualTokenPrefix)
}

// Options configures a Manager.
type Options struct {
	// NewAuthorizer builds the interactive provider for a client ID. It may be
	// nil, in which case interactive acquisition is never available.
	NewAuthorizer func(clientID string) provider.Authorizer
	Resolver      provider.IdentityResolver
	Store         store.Store
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
}

// Manager holds at most one credential. Switching credentials always
// replaces the previous one.
type Manager struct {
	newAuthorizer func(string) provider.Authorizer
	resolver      provider.IdentityResolver
	store         store.Store
	log           *zap.Logger
	metrics       *metrics.Metrics

	mu          sync.Mutex
	authorizer  provider.Authorizer
	clientID    string
	manualToken string
	current     Session
}

func New(opts Options) *Manager {
	st := opts.Store
	if st == nil {
		st = store.NewMemory()
	}
	return &Manager{
		newAuthorizer: opts.NewAuthorizer,
		resolver:      opts.Resolver,
		store:         st,
		log:           logging.OrNop(opts.Logger).Named("session"),
		metrics:       opts.Metrics,
	}
}

// Restore reads the stored client ID and manual token. A stored token with
// the recognized shape becomes the active session; Restore reports whether
// that happened. Identity is left for ResolveIdentity.
func (m *Manager) Restore() bool {
	clientID := m.store.Get(store.KeyClientID)
	token := m.store.Get(store.KeyManualToken)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientID = clientID
	m.authorizer = m.buildAuthorizer(clientID)
	m.manualToken = token
	if IsManualToken(token) {
		m.current = Session{Token: token, Method: MethodManual}
		return true
	}
	return false
}

// Current returns a snapshot of the session.
func (m *Manager) Current() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.current
	if s.Identity != nil {
		id := *s.Identity
		s.Identity = &id
	}
	return s
}

// Token returns the active credential.
func (m *Manager) Token() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Token, m.current.Token != ""
}

// ClientID returns the configured OAuth client ID.
func (m *Manager) ClientID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clientID
}

// ManualToken returns the stored manual token, whether or not it is active.
func (m *Manager) ManualToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.manualToken
}

// CanAcquireInteractive reports whether an interactive provider is configured.
func (m *Manager) CanAcquireInteractive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authorizer != nil
}

// SetClientID persists clientID and rebuilds the interactive provider.
func (m *Manager) SetClientID(clientID string) error {
	clientID = strings.TrimSpace(clientID)
	if err := m.store.Set(store.KeyClientID, clientID); err != nil {
		return fmt.Errorf("save client id: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clientID = clientID
	m.authorizer = m.buildAuthorizer(clientID)
	return nil
}

// AcquireInteractive requests a credential from the interactive provider,
// makes it the active session and resolves its identity.
func (m *Manager) AcquireInteractive(ctx context.Context) (Session, error) {
	m.mu.Lock()
	auth := m.authorizer
	m.mu.Unlock()

	if auth == nil {
		m.log.Warn("interactive sign-in requested without a client id")
		return m.Current(), provider.ErrAuthUnavailable
	}

	token, err := auth.RequestToken(ctx)
	if err == nil && token == "" {
		err = fmt.Errorf("%w: empty token", provider.ErrAuthFailed)
	}
	m.metrics.Auth(MethodInteractive.String(), err)
	if err != nil {
		m.log.Warn("interactive sign-in failed", zap.Error(err))
		return m.Current(), err
	}

	m.mu.Lock()
	m.current = Session{Token: token, Method: MethodInteractive}
	m.mu.Unlock()
	m.log.Info("interactive credential acquired")

	_, _ = m.ResolveIdentity(ctx)
	return m.Current(), nil
}

// SetManualCredential stores token. A token of the recognized shape replaces
// the session immediately; an empty token clears it; anything else is stored
// without touching the session. It reports whether a session is now active
// because of token.
func (m *Manager) SetManualCredential(token string) (bool, error) {
	token = strings.TrimSpace(token)
	if err := m.store.Set(store.KeyManualToken, token); err != nil {
		return false, fmt.Errorf("save manual token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.manualToken = token
	switch {
	case token == "":
		m.current = Session{}
		m.log.Info("manual credential cleared")
		return false, nil
	case IsManualToken(token):
		m.current = Session{Token: token, Method: MethodManual}
		m.metrics.Auth(MethodManual.String(), nil)
		m.log.Info("manual credential activated")
		return true, nil
	default:
		m.log.Info("manual token stored but not recognized as an access token")
		return false, nil
	}
}

// ResolveIdentity looks up the account behind the active credential. Failure
// never invalidates the credential: the identity falls back to Placeholder and
// the error is returned for reporting.
func (m *Manager) ResolveIdentity(ctx context.Context) (provider.Identity, error) {
	token, ok := m.Token()
	if !ok {
		return provider.Identity{}, provider.ErrAuthUnavailable
	}

	var (
		id  provider.Identity
		err error
	)
	if m.resolver == nil {
		err = fmt.Errorf("no identity resolver configured")
	} else {
		id, err = m.resolver.Resolve(ctx, token)
	}
	if err != nil {
		m.log.Warn("identity resolution failed, using placeholder", zap.Error(err))
		id = Placeholder
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Token == token {
		resolved := id
		m.current.Identity = &resolved
	}
	return id, err
}

// Revoke ends the session. Interactive credentials are revoked with the
// provider; a manual token is only forgotten locally.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	auth := m.authorizer
	m.current = Session{}
	m.mu.Unlock()

	switch prev.Method {
	case MethodManual:
		if _, err := m.SetManualCredential(""); err != nil {
			return err
		}
		return nil
	case MethodInteractive:
		if auth == nil {
			return nil
		}
		if err := auth.Revoke(ctx, prev.Token); err != nil {
			m.log.Warn("revoke failed", zap.Error(err))
			return fmt.Errorf("revoke credential: %w", err)
		}
		m.log.Info("interactive credential revoked")
	}
	return nil
}

func (m *Manager) buildAuthorizer(clientID string) provider.Authorizer {
	if clientID == "" || m.newAuthorizer == nil {
		return nil
	}
	return m.newAuthorizer(clientID)
}
