// Package groupdoc persists the group's durable state as a single document:
// the greeting shown to join requesters and the set of users whose join
// request arrived but whose identification has not started yet.
package groupdoc

// DefaultGreeting is used until an administrator sets a custom one.
const DefaultGreeting = "Welcome! Before you can join the group I need to know who you are."

// MessageEntity is a rich-text annotation attached to a substring of the
// greeting, mirroring the transport's entity shape without depending on it.
type MessageEntity struct {
	Type     string `json:"type"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	URL      string `json:"url,omitempty"`
	Language string `json:"language,omitempty"`
}

// Document is the full durable state. It is always read and written whole.
type Document struct {
	GreetingText     string          `json:"greeting_text"`
	GreetingEntities []MessageEntity `json:"greeting_entities,omitempty"`
	PendingUserIDs   []int64         `json:"pending_user_ids"`
}

// Default returns the document used before anything has been persisted.
func Default() Document {
	return Document{GreetingText: DefaultGreeting}
}

// HasPending reports whether userID is awaiting identification.
func (d *Document) HasPending(userID int64) bool {
	for _, id := range d.PendingUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// AddPending records userID as awaiting identification. Returns false if it
// was already recorded.
func (d *Document) AddPending(userID int64) bool {
	if d.HasPending(userID) {
		return false
	}
	d.PendingUserIDs = append(d.PendingUserIDs, userID)
	return true
}

// RemovePending consumes userID from the pending set. Returns true if the
// entry existed.
func (d *Document) RemovePending(userID int64) bool {
	for i, id := range d.PendingUserIDs {
		if id == userID {
			d.PendingUserIDs = append(d.PendingUserIDs[:i], d.PendingUserIDs[i+1:]...)
			return true
		}
	}
	return false
}
