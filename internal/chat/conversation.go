package chat

import (
	"slices"
	"sort"
	"strings"
)

// ConversationID is the opaque, stable key of a conversation.
type ConversationID string

// TrustState tracks how far a conversation's metadata has been verified.
type TrustState string

const (
	Untrusted  TrustState = "untrusted"
	Requesting TrustState = "requesting"
	Trusted    TrustState = "trusted"
	Errored    TrustState = "errored"
)

// trustTransitions lists the allowed moves between trust states.
// Trusted and Errored are terminal; Untrusted may skip straight to Trusted
// when a verified item arrives by push.
var trustTransitions = map[TrustState][]TrustState{
	Untrusted:  {Requesting, Trusted},
	Requesting: {Trusted, Errored},
}

// CanTransition reports whether moving from s to next is allowed.
// Staying in the same state is always allowed.
func (s TrustState) CanTransition(next TrustState) bool {
	if s == next {
		return true
	}
	return slices.Contains(trustTransitions[s], next)
}

// TeamType classifies conversation membership.
type TeamType string

const (
	TeamAdhoc TeamType = "adhoc"
	TeamSmall TeamType = "small"
	TeamBig   TeamType = "big"
)

// ParseTeamType maps a backend team type, defaulting to adhoc.
func ParseTeamType(s string) TeamType {
	switch TeamType(s) {
	case TeamSmall, TeamBig:
		return TeamType(s)
	}
	return TeamAdhoc
}

// NotificationSettings mirrors the per-conversation app notification flags.
type NotificationSettings struct {
	DesktopAtMention bool
	DesktopAny       bool
	MobileAtMention  bool
	MobileAny        bool
	IgnoreMentions   bool
}

// Meta is the cached metadata of one conversation.
type Meta struct {
	ID            ConversationID
	TrustState    TrustState
	TeamType      TeamType
	TeamName      string
	ChannelName   string
	Participants  []string
	TLFName       string
	Timestamp     int64
	IsMuted       bool
	Snippet       string
	Notifications NotificationSettings
	CanPerform    map[string]bool
	FullNames     map[string]string
	Error         string
}

// HasParticipants reports whether the meta's participant set equals users,
// ignoring order and duplicates.
func (m Meta) HasParticipants(users []string) bool {
	return slices.Equal(SortedUsers(m.Participants), SortedUsers(users))
}

// TLFNameFor builds the folder name of an ad hoc conversation between users.
func TLFNameFor(users []string) string {
	return strings.Join(SortedUsers(users), ",")
}

// SortedUsers returns users sorted with duplicates removed.
func SortedUsers(users []string) []string {
	out := slices.Clone(users)
	sort.Strings(out)
	return slices.Compact(out)
}
