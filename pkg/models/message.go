package models

// ReplyOption is a single quick-reply button attached to an outbound message
type ReplyOption struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// OutboundMessage is a message for the owner. Options are laid out one row per slice.
type OutboundMessage struct {
	OwnerID int64           `json:"owner_id"`
	Text    string          `json:"text"`
	Options [][]ReplyOption `json:"options,omitempty"`
}
