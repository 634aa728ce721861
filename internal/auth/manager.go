package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"vibegraph/internal/crypto"
	"vibegraph/internal/logging"
	"vibegraph/internal/metrics"
	"vibegraph/internal/store/graphdb"
	"vibegraph/internal/xclient"
)

// ErrReauthorizationRequired means no usable token exists and the refresh
// path is exhausted. An operator must re-run the authorization flow.
var ErrReauthorizationRequired = errors.New("auth: reauthorization required")

// ErrRefreshNotConfigured means a refresh was needed but the stored refresh
// token or the OAuth client credentials are missing.
var ErrRefreshNotConfigured = errors.New("auth: token refresh not configured")

// Refresher is the slice of the platform client the manager needs.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (xclient.TokenPair, error)
}

// Manager owns the bot token lifecycle. Callers never see token values flow
// through logs; every operation receives the current access token as an
// argument and unauthorized failures trigger at most one refresh-and-retry.
type Manager struct {
	db            *graphdb.DB
	client        Refresher
	clientID      string
	clientSecret  string
	group         singleflight.Group
	warnNoRefresh sync.Once
}

func NewManager(db *graphdb.DB, client Refresher, clientID, clientSecret string) *Manager {
	return &Manager{db: db, client: client, clientID: clientID, clientSecret: clientSecret}
}

// Do runs op with the current bot access token. If op reports the platform
// rejected the token, one refresh is attempted (deduplicated across
// concurrent callers) and op is retried exactly once with the new token.
func (m *Manager) Do(ctx context.Context, op func(ctx context.Context, accessToken string) error) error {
	token, err := m.db.LatestBotAccessToken(ctx)
	if errors.Is(err, graphdb.ErrNotFound) {
		return ErrReauthorizationRequired
	}
	if err != nil {
		return asReauth(err)
	}

	err = op(ctx, token)
	if !errors.Is(err, xclient.ErrUnauthorized) {
		return err
	}

	newToken, err := m.refreshBot(ctx, token)
	if err != nil {
		return err
	}
	err = op(ctx, newToken)
	if errors.Is(err, xclient.ErrUnauthorized) {
		logging.Error("refreshed token still rejected", map[string]any{
			"token": Mask(newToken),
		})
		return ErrReauthorizationRequired
	}
	return err
}

// refreshBot exchanges the stored refresh token for a new pair and persists
// both before returning. Concurrent callers share one exchange, and a
// caller whose rejection arrives after another caller already refreshed
// reuses the persisted result instead of exchanging again.
func (m *Manager) refreshBot(ctx context.Context, staleToken string) (string, error) {
	v, err, _ := m.group.Do("bot", func() (any, error) {
		if current, err := m.db.LatestBotAccessToken(ctx); err == nil && current != staleToken {
			return current, nil
		}
		if m.clientID == "" || m.clientSecret == "" {
			m.noteRefreshNotConfigured()
			return nil, ErrRefreshNotConfigured
		}
		refresh, err := m.db.LatestBotRefreshToken(ctx)
		if errors.Is(err, graphdb.ErrNotFound) {
			m.noteRefreshNotConfigured()
			return nil, ErrRefreshNotConfigured
		}
		if err != nil {
			return nil, asReauth(err)
		}
		pair, err := m.client.RefreshToken(ctx, refresh, m.clientID, m.clientSecret)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			logging.Error("token refresh failed", map[string]any{"error": err.Error()})
			return nil, err
		}
		if err := m.db.SaveBotAccessToken(ctx, pair.AccessToken); err != nil {
			return nil, err
		}
		if pair.RefreshToken != "" {
			if err := m.db.SaveBotRefreshToken(ctx, pair.RefreshToken); err != nil {
				return nil, err
			}
		}
		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		logging.Info("bot token refreshed", map[string]any{
			"access_token": Mask(pair.AccessToken),
			"expires_in":   pair.ExpiresIn,
		})
		return pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// DoSession is Do for a web session's tokens, keyed per session so two
// sessions never block each other's refresh.
func (m *Manager) DoSession(ctx context.Context, sessionID string, op func(ctx context.Context, accessToken string) error) error {
	sess, err := m.db.GetSession(ctx, sessionID)
	if err != nil {
		return asReauth(err)
	}

	err = op(ctx, sess.AccessToken)
	if !errors.Is(err, xclient.ErrUnauthorized) {
		return err
	}

	v, err, _ := m.group.Do("session:"+sessionID, func() (any, error) {
		if current, err := m.db.GetSession(ctx, sessionID); err == nil && current.AccessToken != sess.AccessToken {
			return current.AccessToken, nil
		}
		if m.clientID == "" || m.clientSecret == "" || sess.RefreshToken == "" {
			m.noteRefreshNotConfigured()
			return nil, ErrRefreshNotConfigured
		}
		pair, err := m.client.RefreshToken(ctx, sess.RefreshToken, m.clientID, m.clientSecret)
		if err != nil {
			metrics.TokenRefreshes.WithLabelValues("failure").Inc()
			return nil, err
		}
		refresh := pair.RefreshToken
		if refresh == "" {
			refresh = sess.RefreshToken
		}
		if err := m.db.UpdateSessionTokens(ctx, sessionID, pair.AccessToken, refresh); err != nil {
			return nil, err
		}
		metrics.TokenRefreshes.WithLabelValues("success").Inc()
		return pair.AccessToken, nil
	})
	if err != nil {
		return err
	}
	err = op(ctx, v.(string))
	if errors.Is(err, xclient.ErrUnauthorized) {
		return ErrReauthorizationRequired
	}
	return err
}

// asReauth maps an undecryptable stored credential to the reauthorization
// error while keeping the cause in the chain. A credential that cannot be
// decrypted is never repaired; an operator must store a fresh one.
func asReauth(err error) error {
	if errors.Is(err, crypto.ErrDecryptionFailed) {
		return fmt.Errorf("%w: %w", ErrReauthorizationRequired, err)
	}
	return err
}

// noteRefreshNotConfigured counts every occurrence but logs only the first,
// so a long-running scheduler doesn't warn once per tick.
func (m *Manager) noteRefreshNotConfigured() {
	metrics.TokenRefreshes.WithLabelValues("not_configured").Inc()
	m.warnNoRefresh.Do(func() {
		logging.Warn("token refresh needed but not configured", nil)
	})
}

// Mask renders a token safe for logs: first and last 8 characters with the
// middle elided. Short tokens are fully elided.
func Mask(token string) string {
	if len(token) <= 16 {
		return "***"
	}
	return token[:8] + "..." + token[len(token)-8:]
}
