package models

// ChatRide is the conversation-list view of a ride. It is rebuilt on every
// fetch and never persisted.
type ChatRide struct {
	Ride        Ride     `json:"ride"`
	Partner     *Profile `json:"partner"`
	LastMessage *Message `json:"last_message,omitempty"`
	IsOwner     bool     `json:"is_owner"`
}

func (c ChatRide) PartnerName() string {
	if c.Partner == nil || c.Partner.FullName == "" {
		return UnknownUserName
	}
	return c.Partner.FullName
}
