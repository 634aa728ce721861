package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vibegraph/internal/auth"
	"vibegraph/internal/config"
	"vibegraph/internal/engage"
	"vibegraph/internal/logging"
	"vibegraph/internal/metrics"
	"vibegraph/internal/model"
	"vibegraph/internal/parse"
	"vibegraph/internal/store/graphdb"
	"vibegraph/internal/xclient"
)

// Processor turns fetched tweets into graph writes and replies. Graph
// writes are durable before any reply is attempted, so a reply failure
// never loses an edge.
type Processor struct {
	db     *graphdb.DB
	client xclient.XClient
	auth   *auth.Manager
	parser *parse.Parser
	cfg    config.Config
}

func NewProcessor(db *graphdb.DB, client xclient.XClient, am *auth.Manager, cfg config.Config) *Processor {
	return &Processor{
		db:     db,
		client: client,
		auth:   am,
		parser: parse.New(cfg.Account.Username, cfg.Account.Hashtag),
		cfg:    cfg,
	}
}

// ProcessHashtagResults handles tweets from the hashtag search: every vibe
// candidate becomes an idempotent edge write plus an acknowledgement reply.
// Failures are isolated per tweet.
func (p *Processor) ProcessHashtagResults(ctx context.Context, tweets []model.Tweet) error {
	var errs []error
	for _, tw := range tweets {
		if err := p.processVibeTweet(ctx, tw); err != nil {
			errs = append(errs, fmt.Errorf("tweet %s: %w", tw.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) processVibeTweet(ctx context.Context, tw model.Tweet) error {
	events := p.parser.ParseTweet(tw)
	if len(events) == 0 {
		return nil
	}
	author := model.User{ID: tw.AuthorID, Username: tw.AuthorUsername, Name: tw.AuthorName, CreatedAt: tw.CreatedAt}
	if err := p.db.UpsertUser(ctx, author.ID, author.Username, author.Name, author.CreatedAt); err != nil {
		return err
	}
	for _, m := range tw.Mentions {
		if err := p.db.UpsertUser(ctx, m.ID, m.Username, m.Name, m.CreatedAt); err != nil {
			return err
		}
	}

	for _, ev := range events {
		if ev.Kind != model.EventVibe {
			continue
		}
		v := ev.Vibe
		outcome, originalTweetID, err := p.db.RecordVibe(ctx, v.Emitter.ID, v.Sensor.ID, v.TweetID, v.CreatedAt)
		if err != nil {
			return err
		}
		switch outcome {
		case graphdb.VibeAlreadyProcessed:
			metrics.EventsDuplicate.Inc()
		case graphdb.VibeDuplicatePair:
			metrics.EventsDuplicate.Inc()
			text := fmt.Sprintf("You've already declared these vibes! See your previous tweet: https://twitter.com/i/status/%s", originalTweetID)
			p.tryReply(ctx, tw.ID, text)
		case graphdb.VibeInserted:
			metrics.EventsProcessed.WithLabelValues("vibe").Inc()
			logging.Info("vibe recorded", map[string]any{
				"tweet_id": v.TweetID,
				"emitter":  v.Emitter.Username,
				"sensor":   v.Sensor.Username,
			})
			text := fmt.Sprintf("Your good vibes for @%s have been noted.", v.Sensor.Username)
			p.tryReply(ctx, tw.ID, text)
		}
	}
	return nil
}

// ProcessMentions handles tweets addressed at the bot: degree and
// following queries. Each query is claimed so a re-fetched mention is
// answered at most once.
func (p *Processor) ProcessMentions(ctx context.Context, tweets []model.Tweet) error {
	var errs []error
	for _, tw := range tweets {
		for _, ev := range p.parser.ParseTweet(tw) {
			var err error
			switch ev.Kind {
			case model.EventDegreeQuery:
				err = p.handleDegreeQuery(ctx, *ev.Degree)
			case model.EventFollowingQuery:
				err = p.handleFollowingQuery(ctx, *ev.Following)
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("tweet %s: %w", tw.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

func (p *Processor) handleDegreeQuery(ctx context.Context, q model.DegreeQuery) error {
	claimed, err := p.db.ClaimEvent(ctx, q.TweetID)
	if err != nil || !claimed {
		return err
	}
	metrics.EventsProcessed.WithLabelValues("degree_query").Inc()
	if err := p.answerDegreeQuery(ctx, q); err != nil {
		p.releaseClaim(ctx, q.TweetID)
		return err
	}
	return nil
}

func (p *Processor) answerDegreeQuery(ctx context.Context, q model.DegreeQuery) error {
	if _, err := p.resolveUser(ctx, q.TargetUsername); err != nil {
		if errors.Is(err, graphdb.ErrNotFound) {
			p.tryReply(ctx, q.TweetID, fmt.Sprintf("I couldn't find a Twitter user named @%s.", q.TargetUsername))
			return nil
		}
		return err
	}
	scores, err := p.db.DegreeScore(ctx, q.Requester.ID, q.TargetUsername)
	if err != nil {
		return err
	}
	total, err := p.db.VibeCount(ctx)
	if err != nil {
		return err
	}
	text := fmt.Sprintf("@%s vibes for @%s: 1°=%d 2°=%d 3°=%d (%d total vibes recorded)",
		q.Requester.Username, q.TargetUsername, scores[0], scores[1], scores[2], total)
	p.tryReply(ctx, q.TweetID, text)
	return nil
}

func (p *Processor) handleFollowingQuery(ctx context.Context, q model.FollowingQuery) error {
	claimed, err := p.db.ClaimEvent(ctx, q.TweetID)
	if err != nil || !claimed {
		return err
	}
	metrics.EventsProcessed.WithLabelValues("following_query").Inc()
	if err := p.answerFollowingQuery(ctx, q); err != nil {
		p.releaseClaim(ctx, q.TweetID)
		return err
	}
	return nil
}

func (p *Processor) answerFollowingQuery(ctx context.Context, q model.FollowingQuery) error {
	var follows bool
	err := p.auth.Do(ctx, func(ctx context.Context, token string) error {
		following, err := p.client.GetFollowing(ctx, token, q.Requester.ID, 1000)
		if err != nil {
			return err
		}
		for _, u := range following {
			if strings.EqualFold(u.Username, q.TargetUsername) {
				follows = true
				break
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	verb := "does not follow"
	if follows {
		verb = "follows"
	}
	p.tryReply(ctx, q.TweetID, fmt.Sprintf("@%s %s @%s.", q.Requester.Username, verb, q.TargetUsername))
	return nil
}

// releaseClaim undoes a query claim whose answer failed, so the next tick
// retries it. A reply failure never reaches here: replies are best-effort
// and the claim stands once the answer was computed.
func (p *Processor) releaseClaim(ctx context.Context, tweetID string) {
	if err := p.db.ReleaseEvent(ctx, tweetID); err != nil {
		logging.Error("claim release failed", map[string]any{"tweet_id": tweetID, "error": err.Error()})
	}
}

// resolveUser returns the user's id, checking the local graph first and
// falling back to an API lookup (persisting the result). graphdb.ErrNotFound
// means the platform doesn't know the user either.
func (p *Processor) resolveUser(ctx context.Context, username string) (string, error) {
	id, err := p.db.UserIDByUsername(ctx, username)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, graphdb.ErrNotFound) {
		return "", err
	}
	var u model.User
	err = p.auth.Do(ctx, func(ctx context.Context, token string) error {
		var err error
		u, err = p.client.LookupUser(ctx, token, username)
		return err
	})
	if err != nil || u.ID == "" {
		return "", graphdb.ErrNotFound
	}
	if err := p.db.UpsertUser(ctx, u.ID, u.Username, u.Name, u.CreatedAt); err != nil {
		return "", err
	}
	return u.ID, nil
}

// tryReply posts a reply if the budget allows. Failures are logged and
// swallowed: the graph write already happened and must not be retried on
// account of a reply.
func (p *Processor) tryReply(ctx context.Context, inReplyToID, text string) {
	now := time.Now().UTC()
	ok, err := engage.ShouldAllowReply(ctx, p.db, p.cfg.Replies, now)
	if err != nil {
		logging.Error("reply budget check failed", map[string]any{"error": err.Error()})
		return
	}
	if !ok {
		logging.Warn("reply skipped: budget exhausted", map[string]any{"in_reply_to": inReplyToID})
		return
	}
	err = p.auth.Do(ctx, func(ctx context.Context, token string) error {
		_, err := p.client.PostReply(ctx, token, inReplyToID, text)
		return err
	})
	if err != nil {
		logging.Error("reply failed", map[string]any{"in_reply_to": inReplyToID, "error": err.Error()})
		return
	}
	if err := engage.RecordReply(ctx, p.db, now); err != nil {
		logging.Error("reply budget record failed", map[string]any{"error": err.Error()})
	}
}
