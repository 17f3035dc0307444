package models

import "time"

type AgentType string

const (
	AgentLeadGen      AgentType = "LEAD_GEN"
	AgentMessageAgent AgentType = "MESSAGE_AGENT"
)

// ActionKind enumerates the budgeted outbound action types.
type ActionKind string

const (
	ActionScrape        ActionKind = "scrape"
	ActionComment       ActionKind = "comment"
	ActionDM            ActionKind = "dm"
	ActionFriendRequest ActionKind = "friend_request"
)

// PerKindCounts carries one integer budget per action kind.
type PerKindCounts struct {
	Scrapes        int `json:"scrapes"`
	Comments       int `json:"comments"`
	DMs            int `json:"dms"`
	FriendRequests int `json:"friendRequests"`
}

func (c PerKindCounts) Total() int {
	return c.Scrapes + c.Comments + c.DMs + c.FriendRequests
}

func (c PerKindCounts) Add(o PerKindCounts) PerKindCounts {
	return PerKindCounts{
		Scrapes:        c.Scrapes + o.Scrapes,
		Comments:       c.Comments + o.Comments,
		DMs:            c.DMs + o.DMs,
		FriendRequests: c.FriendRequests + o.FriendRequests,
	}
}

// Schedule is the per-agent-type action budget configuration. The peak/normal
// fields are templates; each HourSlot stores concrete budgets that follow the
// template unless the slot is marked overridden.
type Schedule struct {
	ID              int64
	AgentType       AgentType
	Enabled         bool
	Timezone        string
	MaxPerDay       PerKindCounts
	MinDelayMinutes int
	MaxDelayMinutes int
	JitterPercent   int
	Peak            PerKindCounts
	Normal          PerKindCounts
	Slots           []HourSlot // always 24, indexed by hour
	UpdatedAt       time.Time
}

// Template returns the template budgets for the given peak classification.
func (s *Schedule) Template(isPeak bool) PerKindCounts {
	if isPeak {
		return s.Peak
	}
	return s.Normal
}

type HourSlot struct {
	ID             int64
	ScheduleID     int64
	Hour           int
	Enabled        bool
	IsPeak         bool
	Overridden     bool
	Budget         PerKindCounts
	ScheduledTimes []string // "HH:MM", sorted, len == budget total
}

// EffectiveBudget resolves the slot's budget against the schedule template.
// Disabled slots contribute nothing; overridden slots keep their own values.
func (h *HourSlot) EffectiveBudget(s *Schedule) PerKindCounts {
	if !h.Enabled {
		return PerKindCounts{}
	}
	if h.Overridden {
		return h.Budget
	}
	return s.Template(h.IsPeak)
}

type ContactState string

const (
	StateNew        ContactState = "NEW"
	StateNeedsReply ContactState = "NEEDS_REPLY"
	StateWaiting    ContactState = "WAITING"
	StateClosed     ContactState = "CLOSED"
)

type Sender string

const (
	SenderThem Sender = "THEM"
	SenderUs   Sender = "US"
)

// Contact tracks one remote conversation's synchronization state. The remote
// surface exposes no stable message ids, so LastTheirMessage (raw preview
// text) is the diff key.
type Contact struct {
	ID                int64
	AccountID         string
	ContactName       string
	ContactExternalID string
	ConversationRef   string
	LastTheirMessage  string
	LastMessageIsOurs bool
	State             ContactState
	LastActivityAt    time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Message is one entry in a contact's append-only conversation history.
type Message struct {
	ID        int64
	ContactID int64
	Sender    Sender
	Content   string
	CreatedAt time.Time
}

// GenerationContext is the opaque business context forwarded to the reply
// generator. The core never inspects its keys.
type GenerationContext map[string]any
