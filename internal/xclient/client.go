package xclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vibegraph/internal/metrics"
	"vibegraph/internal/model"
)

// TokenPair is the result of an OAuth 2.0 refresh-token exchange.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int
}

// XClient defines the operations we use from the X API. The access token
// is an argument, not client state: the token lifecycle manager owns which
// token each call runs under.
type XClient interface {
	SearchRecent(ctx context.Context, accessToken, query string, since time.Time, limit int) ([]model.Tweet, error)
	PostReply(ctx context.Context, accessToken, inReplyToID, text string) (string, error)
	LookupUser(ctx context.Context, accessToken, username string) (model.User, error)
	GetFollowing(ctx context.Context, accessToken, userID string, limit int) ([]model.User, error)
	RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (TokenPair, error)
}

// HTTPClient talks to the X API v2 with per-call bearer tokens.
type HTTPClient struct {
	baseURL     string
	tokenURL    string
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	baseBackoff time.Duration
}

func NewHTTPClient() *HTTPClient {
	return &HTTPClient{
		baseURL:     "https://api.x.com/2",
		tokenURL:    "https://api.x.com/2/oauth2/token",
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		limiter:     newDefaultLimiter(),
		maxAttempts: getEnvInt("X_API_MAX_ATTEMPTS", 3),
		baseBackoff: time.Duration(getEnvInt("X_API_BASE_BACKOFF_MS", 500)) * time.Millisecond,
	}
}

// SetBaseURL points the client at a different API host (tests).
func (c *HTTPClient) SetBaseURL(base string) {
	c.baseURL = base
	c.tokenURL = base + "/oauth2/token"
}

type rawUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

func (u rawUser) toModel() model.User {
	return model.User{ID: u.ID, Username: u.Username, Name: u.Name, CreatedAt: u.CreatedAt}
}

// SearchRecent runs a recent-search query, returning tweets with their
// author username and mentioned users resolved from the expansions.
func (c *HTTPClient) SearchRecent(ctx context.Context, accessToken, query string, since time.Time, limit int) ([]model.Tweet, error) {
	u := fmt.Sprintf("%s/tweets/search/recent?max_results=%d&query=%s&start_time=%s"+
		"&tweet.fields=created_at,author_id,entities,in_reply_to_user_id"+
		"&expansions=author_id,entities.mentions.username&user.fields=id,username,name,created_at",
		c.baseURL, clamp(limit, 10, 100), url.QueryEscape(query),
		url.QueryEscape(since.UTC().Format("2006-01-02T15:04:05.000Z")))
	body, err := c.getJSON(ctx, accessToken, u, "search_recent")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Data []struct {
			ID        string    `json:"id"`
			Text      string    `json:"text"`
			CreatedAt time.Time `json:"created_at"`
			AuthorID  string    `json:"author_id"`
			Entities  struct {
				Mentions []struct {
					ID       string `json:"id"`
					Username string `json:"username"`
				} `json:"mentions"`
			} `json:"entities"`
		} `json:"data"`
		Includes struct {
			Users []rawUser `json:"users"`
		} `json:"includes"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	users := make(map[string]model.User, len(raw.Includes.Users))
	for _, u := range raw.Includes.Users {
		users[u.ID] = u.toModel()
	}
	out := make([]model.Tweet, 0, len(raw.Data))
	for _, d := range raw.Data {
		t := model.Tweet{ID: d.ID, Text: d.Text, CreatedAt: d.CreatedAt, AuthorID: d.AuthorID}
		if au, ok := users[d.AuthorID]; ok {
			t.AuthorUsername = au.Username
			t.AuthorName = au.Name
		}
		for _, m := range d.Entities.Mentions {
			if mu, ok := users[m.ID]; ok {
				t.Mentions = append(t.Mentions, mu)
			} else {
				t.Mentions = append(t.Mentions, model.User{ID: m.ID, Username: m.Username})
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// PostReply posts a reply tweet and returns the new tweet id.
func (c *HTTPClient) PostReply(ctx context.Context, accessToken, inReplyToID, text string) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"text":  text,
		"reply": map[string]string{"in_reply_to_tweet_id": inReplyToID},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/tweets", strings.NewReader(string(payload)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(ctx, req, "post_reply")
	if err != nil {
		return "", err
	}
	var raw struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", err
	}
	return raw.Data.ID, nil
}

// LookupUser fetches a user by username.
func (c *HTTPClient) LookupUser(ctx context.Context, accessToken, username string) (model.User, error) {
	if username == "" {
		return model.User{}, errors.New("empty username")
	}
	u := fmt.Sprintf("%s/users/by/username/%s?user.fields=id,username,name,created_at",
		c.baseURL, url.PathEscape(username))
	body, err := c.getJSON(ctx, accessToken, u, "lookup_user")
	if err != nil {
		return model.User{}, err
	}
	var raw struct {
		Data rawUser `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.User{}, err
	}
	return raw.Data.toModel(), nil
}

// GetFollowing returns accounts the user follows.
func (c *HTTPClient) GetFollowing(ctx context.Context, accessToken, userID string, limit int) ([]model.User, error) {
	u := fmt.Sprintf("%s/users/%s/following?max_results=%d&user.fields=id,username,name,created_at",
		c.baseURL, url.PathEscape(userID), clamp(limit, 10, 1000))
	body, err := c.getJSON(ctx, accessToken, u, "get_following")
	if err != nil {
		return nil, err
	}
	var raw struct {
		Data []rawUser `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, err
	}
	out := make([]model.User, 0, len(raw.Data))
	for _, d := range raw.Data {
		out = append(out, d.toModel())
	}
	return out, nil
}

// RefreshToken exchanges a refresh token for a new access/refresh pair.
func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken, clientID, clientSecret string) (TokenPair, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(ctx, req, "refresh_token")
	if err != nil {
		return TokenPair{}, err
	}
	var raw struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return TokenPair{}, err
	}
	if raw.AccessToken == "" {
		return TokenPair{}, errors.New("token endpoint returned no access token")
	}
	return TokenPair{AccessToken: raw.AccessToken, RefreshToken: raw.RefreshToken, ExpiresIn: raw.ExpiresIn}, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, accessToken, u, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, req, endpoint)
}

// do sends the request, retrying transient 5xx and network failures with
// jittered backoff. 401 and 429 are never retried here: they map straight
// to the error taxonomy so the caller can decide.
func (c *HTTPClient) do(ctx context.Context, req *http.Request, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	var bodyCopy []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		bodyCopy = b
	}
	backoff := c.baseBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		attemptReq := req.Clone(ctx)
		if bodyCopy != nil {
			attemptReq.Body = io.NopCloser(strings.NewReader(string(bodyCopy)))
		}
		resp, err := c.httpClient.Do(attemptReq)
		switch {
		case err != nil:
			lastErr = err
		case resp.StatusCode >= 500:
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("x api status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			err := statusError(resp)
			_ = resp.Body.Close()
			return nil, err
		default:
			body, err := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return nil, err
			}
			return body, nil
		}
		if attempt == c.maxAttempts {
			break
		}
		metrics.IncAPIRetry(endpoint)
		select {
		case <-time.After(jitter(backoff)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("request to %s failed after %d attempts: %w", endpoint, c.maxAttempts, lastErr)
}

// jitter spreads retries to avoid thundering herds across tick workers.
func jitter(d time.Duration) time.Duration {
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
