// Package presentation builds the read side consumed by clients: the roster
// of directory users with their current calls, and the refresh signal.
package presentation

import (
	"iter"

	"github.com/acme/hotline/internal/domain"
)

// CallSource is the read API of the call registry.
type CallSource interface {
	List() iter.Seq[domain.Call]
}

// UserEntry is one directory user and the call they are on, if any.
type UserEntry struct {
	Handle string
	Call   *domain.Call
}

// View is the two-section roster: directory users, then all tracked calls.
type View struct {
	Users []UserEntry
	Calls []domain.Call
}

// Roster joins a fixed user directory with live call state.
type Roster struct {
	users []string
	calls CallSource
}

// NewRoster constructs a roster over the given directory.
func NewRoster(users []string, calls CallSource) *Roster {
	cp := make([]string, len(users))
	copy(cp, users)
	return &Roster{users: cp, calls: calls}
}

// Users returns the directory in configured order.
func (r *Roster) Users() []string {
	out := make([]string, len(r.users))
	copy(out, r.users)
	return out
}

// View builds the roster from a single registry snapshot.
func (r *Roster) View() View {
	view := View{Users: make([]UserEntry, 0, len(r.users))}

	active := make(map[string]domain.Call)
	for c := range r.calls.List() {
		view.Calls = append(view.Calls, c)
		if !c.Ended() {
			active[c.RemoteHandle] = c
		}
	}

	for _, handle := range r.users {
		entry := UserEntry{Handle: handle}
		if c, ok := active[handle]; ok {
			entry.Call = &c
		}
		view.Users = append(view.Users, entry)
	}
	return view
}
