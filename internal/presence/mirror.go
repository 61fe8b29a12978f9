// Package presence mirrors live calls per handle into Redis so other
// processes can see who is on a call without asking this one.
package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/acme/hotline/internal/domain"
)

// clearScript deletes the handle key only while it still points at the ended call,
// so a newer call for the same handle is never erased by a late end event.
var clearScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if not raw then
  return 0
end
local entry = cjson.decode(raw)
if entry['call_id'] == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// Entry is the value stored for a handle.
type Entry struct {
	CallID    uuid.UUID `json:"call_id"`
	Handle    string    `json:"handle"`
	Direction string    `json:"direction"`
	State     string    `json:"state"`
	Seq       uint64    `json:"seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Mirror is a registry observer that keeps Redis in step with live calls.
type Mirror struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewMirror constructs a mirror. A non-positive ttl defaults to one hour.
func NewMirror(client redis.UniversalClient, prefix string, ttl time.Duration) *Mirror {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if prefix == "" {
		prefix = "hotline"
	}
	return &Mirror{client: client, prefix: prefix, ttl: ttl}
}

// Notify implements registry.Observer.
func (m *Mirror) Notify(ctx context.Context, ev domain.Event) error {
	key := m.key(ev.Call.RemoteHandle)

	if ev.Call.Ended() {
		if _, err := clearScript.Run(ctx, m.client, []string{key}, ev.Call.ID.String()).Int(); err != nil {
			return fmt.Errorf("presence: clear %s: %w", ev.Call.RemoteHandle, err)
		}
		return nil
	}

	value, err := json.Marshal(entryFor(ev))
	if err != nil {
		return fmt.Errorf("presence: marshal entry: %w", err)
	}
	if err := m.client.Set(ctx, key, value, m.ttl).Err(); err != nil {
		return fmt.Errorf("presence: set %s: %w", ev.Call.RemoteHandle, err)
	}
	return nil
}

// Lookup returns the mirrored call for handle, if any. The handle is trimmed
// the same way the registry trims it.
func (m *Mirror) Lookup(ctx context.Context, handle string) (Entry, bool, error) {
	raw, err := m.client.Get(ctx, m.key(handle)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("presence: get %s: %w", handle, err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, false, fmt.Errorf("presence: decode %s: %w", handle, err)
	}
	return entry, true, nil
}

func (m *Mirror) key(handle string) string {
	return fmt.Sprintf("%s:handle:%s", m.prefix, strings.TrimSpace(handle))
}

func entryFor(ev domain.Event) Entry {
	return Entry{
		CallID:    ev.Call.ID,
		Handle:    ev.Call.RemoteHandle,
		Direction: string(ev.Call.Direction),
		State:     string(ev.Call.State),
		Seq:       ev.Seq,
		UpdatedAt: ev.Call.UpdatedAt,
	}
}
