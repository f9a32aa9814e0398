package models

// Participant is the peer summary served by the metadata service.
type Participant struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Image    string `json:"image,omitempty"`
}

// Conversation is the metadata service's view of a two-participant thread.
// Summary fields are refreshed on conversation exit, not per message.
type Conversation struct {
	ID                   string        `json:"id"`
	Participants         []Participant `json:"participants"`
	LastMessagePreview   string        `json:"last_message"`
	LastMessageTimestamp int64         `json:"timestamp"`
}

// Peer returns the participant that is not selfID. Falls back to an empty
// summary when the conversation record is malformed.
func (c Conversation) Peer(selfID string) Participant {
	for _, p := range c.Participants {
		if p.ID != selfID {
			return p
		}
	}
	return Participant{}
}
