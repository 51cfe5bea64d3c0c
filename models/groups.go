package models

// Group represents a group owned by a user with an ordered list of members.
// An ID of zero means the group has not been persisted yet.
type Group struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Owner   User   `json:"owner"`
	Members []User `json:"members"`
}

// IsNew reports whether the group has not been assigned an id by the store.
func (g Group) IsNew() bool {
	return g.ID == 0
}

// MemberLogins returns the logins of the group members in order.
func (g Group) MemberLogins() []string {
	logins := make([]string, len(g.Members))
	for i, m := range g.Members {
		logins[i] = m.Login
	}
	return logins
}

// GroupRequest is the payload used to create or replace a group.
// Users are referenced by login and resolved server side.
type GroupRequest struct {
	Name    string   `json:"name"`
	Owner   string   `json:"owner"`
	Members []string `json:"members"`
}

// GroupsResponse holds a list of groups.
type GroupsResponse struct {
	Groups []Group `json:"groups"`
}

// GroupResponse represents a response with a single group.
type GroupResponse struct {
	Group Group `json:"group"`
}

// GroupEvent is published whenever a group is created, updated or deleted.
type GroupEvent struct {
	EventID   string `json:"eventId"`
	GroupID   int    `json:"groupId"`
	Name      string `json:"name"`
	Action    string `json:"action"` // create, update, delete
	Actor     string `json:"actor"`
	Timestamp int64  `json:"timestamp"`
}
