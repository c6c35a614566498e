package dispatch

type EventType string

const (
	EventMessageReceived EventType = "message_received"
	EventReactionAdded   EventType = "reaction_added"
	EventReactionRemoved EventType = "reaction_removed"
	EventMessageDeleted  EventType = "message_deleted"
)

// Event is one inbound chat event. Each concrete type maps to exactly one
// handler in the dispatcher.
type Event interface {
	Type() EventType
	// Channel is the channel the event happened in; used for ordering.
	Channel() (guildID, channelID string)
}

type Attachment struct {
	URL      string
	Filename string
	Size     int
	// Width and Height are zero when the platform does not know them.
	Width  int
	Height int
}

type MessageReceived struct {
	ID          string
	AuthorID    string
	AuthorName  string
	GuildID     string
	ChannelID   string
	Text        string
	Attachments []Attachment
	// Roles of the author; nil when the platform did not include them.
	Roles []string
}

func (MessageReceived) Type() EventType { return EventMessageReceived }

func (m MessageReceived) Channel() (string, string) { return m.GuildID, m.ChannelID }

type ReactionAdded struct {
	MessageID string
	GuildID   string
	ChannelID string
	ReactorID string
	Emoji     string
}

func (ReactionAdded) Type() EventType { return EventReactionAdded }

func (r ReactionAdded) Channel() (string, string) { return r.GuildID, r.ChannelID }

type ReactionRemoved struct {
	MessageID string
	GuildID   string
	ChannelID string
	ReactorID string
	Emoji     string
}

func (ReactionRemoved) Type() EventType { return EventReactionRemoved }

func (r ReactionRemoved) Channel() (string, string) { return r.GuildID, r.ChannelID }

type MessageDeleted struct {
	MessageID string
	GuildID   string
	ChannelID string
}

func (MessageDeleted) Type() EventType { return EventMessageDeleted }

func (m MessageDeleted) Channel() (string, string) { return m.GuildID, m.ChannelID }
