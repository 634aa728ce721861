package parse

import (
	"fmt"
	"regexp"
	"strings"

	"vibegraph/internal/model"
)

// Words that match the query shape but are questions, not usernames.
// "@bot what ?" must not trigger a lookup for a user named "what".
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"what", "when", "where", "how", "why", "who", "which", "the", "a", "an",
		"is", "are", "was", "were", "be", "been", "being", "have", "has", "had",
		"do", "does", "did", "will", "would", "could", "should", "can", "may",
		"might", "must", "shall",
	} {
		stopwords[w] = struct{}{}
	}
}

// Parser turns raw tweets into graph events. It is pure and safe for
// concurrent use.
type Parser struct {
	botUsername string
	hashtagLC   string
	degreeRe    *regexp.Regexp
	followingRe *regexp.Regexp
}

func New(botUsername, hashtag string) *Parser {
	bot := regexp.QuoteMeta(botUsername)
	return &Parser{
		botUsername: botUsername,
		hashtagLC:   "#" + strings.ToLower(hashtag),
		degreeRe:    regexp.MustCompile(fmt.Sprintf(`(?i)^@%s\s+(@?[a-zA-Z0-9_]{1,15})\s*\?$`, bot)),
		followingRe: regexp.MustCompile(fmt.Sprintf(`(?i)^@%s\s+(@?[a-zA-Z0-9_]{1,15})\s+following\?$`, bot)),
	}
}

// ParseTweet extracts the events a tweet carries. Query shapes are checked
// first since they are the strictest; otherwise the tweet is considered a
// vibe declaration if it carries the hashtag. A tweet with no recognizable
// shape yields no events, never an error.
func (p *Parser) ParseTweet(t model.Tweet) []model.Event {
	if strings.EqualFold(t.AuthorUsername, p.botUsername) {
		return nil
	}
	text := strings.TrimSpace(t.Text)
	requester := model.User{ID: t.AuthorID, Username: t.AuthorUsername}

	if m := p.followingRe.FindStringSubmatch(text); m != nil {
		if target, ok := p.cleanTarget(m[1]); ok {
			return []model.Event{{Kind: model.EventFollowingQuery, Following: &model.FollowingQuery{
				TweetID:        t.ID,
				Requester:      requester,
				TargetUsername: target,
				CreatedAt:      t.CreatedAt,
			}}}
		}
		return nil
	}
	if m := p.degreeRe.FindStringSubmatch(text); m != nil {
		if target, ok := p.cleanTarget(m[1]); ok {
			return []model.Event{{Kind: model.EventDegreeQuery, Degree: &model.DegreeQuery{
				TweetID:        t.ID,
				Requester:      requester,
				TargetUsername: target,
				CreatedAt:      t.CreatedAt,
			}}}
		}
		return nil
	}

	return p.vibeEvents(t, requester)
}

// vibeEvents maps a hashtag tweet to one edge per distinct mentioned user.
// The author never sensors their own vibes, and the bot account is not a
// valid sensor.
func (p *Parser) vibeEvents(t model.Tweet, emitter model.User) []model.Event {
	if !strings.Contains(strings.ToLower(t.Text), p.hashtagLC) {
		return nil
	}
	seen := make(map[string]struct{}, len(t.Mentions))
	var out []model.Event
	for _, sensor := range t.Mentions {
		key := strings.ToLower(sensor.Username)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if strings.EqualFold(sensor.Username, t.AuthorUsername) {
			continue
		}
		if strings.EqualFold(sensor.Username, p.botUsername) {
			continue
		}
		out = append(out, model.Event{Kind: model.EventVibe, Vibe: &model.VibeCandidate{
			TweetID:   t.ID,
			Emitter:   emitter,
			Sensor:    sensor,
			CreatedAt: t.CreatedAt,
		}})
	}
	return out
}

// cleanTarget strips the optional @ and rejects interrogative stopwords and
// the bot's own name.
func (p *Parser) cleanTarget(raw string) (string, bool) {
	target := strings.TrimPrefix(raw, "@")
	lc := strings.ToLower(target)
	if _, bad := stopwords[lc]; bad {
		return "", false
	}
	if strings.EqualFold(target, p.botUsername) {
		return "", false
	}
	return target, true
}
