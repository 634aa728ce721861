package model

import "time"

// User represents a subset of X user fields the graph cares about.
// ID is the platform-assigned identifier and never changes; username and
// name may be refreshed on re-observation.
type User struct {
	ID        string
	Username  string
	Name      string
	CreatedAt time.Time
}

// Tweet represents a subset of X tweet fields used by ingestion.
type Tweet struct {
	ID             string
	AuthorID       string
	AuthorUsername string
	AuthorName     string
	Text           string
	CreatedAt      time.Time
	// Users mentioned in the tweet, from the search expansions.
	Mentions []User
}

// VibeCandidate is a directed good-vibes edge extracted from a tweet:
// the author (emitter) declared vibes for a mentioned user (sensor).
type VibeCandidate struct {
	TweetID   string
	Emitter   User
	Sensor    User
	CreatedAt time.Time
}

// DegreeQuery asks for the degree-path counts between the requester and a
// target username ("@bot @target ?").
type DegreeQuery struct {
	TweetID        string
	Requester      User
	TargetUsername string
	CreatedAt      time.Time
}

// FollowingQuery asks whether the requester follows the target
// ("@bot @target following?").
type FollowingQuery struct {
	TweetID        string
	Requester      User
	TargetUsername string
	CreatedAt      time.Time
}

// EventKind discriminates parsed tweet events.
type EventKind int

const (
	EventVibe EventKind = iota + 1
	EventDegreeQuery
	EventFollowingQuery
)

// Event is one actionable outcome of parsing a tweet. Exactly one of the
// payload fields matching Kind is set.
type Event struct {
	Kind      EventKind
	Vibe      *VibeCandidate
	Degree    *DegreeQuery
	Following *FollowingQuery
}

// RefreshResult records one degree view rebuild.
type RefreshResult struct {
	Degree   int
	Duration time.Duration
}
