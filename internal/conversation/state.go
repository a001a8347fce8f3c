// Package conversation holds the client's reconciled view of channels,
// members, and message history for the active channel.
//
// Two producers write here: request/response results from the gateway and
// push events from the live socket. A message the local user sends arrives
// twice (once in the send response, once broadcast back over the socket), so
// insertion is keyed by server-assigned id and idempotent. Loads are tagged
// with a generation that a channel switch bumps, so an in-flight fetch for a
// previous channel is ignored when it lands.
package conversation

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/debianrose/dumbchat/internal/gateway"
)

// State is the single shared owner of the channel/message/member views.
// Safe for concurrent use.
type State struct {
	mu         sync.Mutex
	logger     *slog.Logger
	active     string
	generation uint64
	channels   map[string]gateway.Channel
	messages   []gateway.Message
	seen       map[string]struct{}
	members    []gateway.Member
	onChange   func()
}

// NewState builds a State with the given initial active channel.
func NewState(log *slog.Logger, activeChannel string) *State {
	if log == nil {
		log = slog.Default()
	}
	return &State{
		logger:   log.With(slog.String("component", "conversation")),
		active:   activeChannel,
		channels: map[string]gateway.Channel{},
		seen:     map[string]struct{}{},
	}
}

// SetOnChange registers a callback invoked after every applied mutation.
// Called without the state lock held.
func (s *State) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *State) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// ActiveChannel returns the channel the message/member views are scoped to.
func (s *State) ActiveChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Generation returns the current scope generation. Loads started now should
// carry this value into SetHistory/SetMembers.
func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Switch makes channel the active scope, clears the message and member views,
// and returns the new generation. Clearing happens before any fetch for the
// new channel is issued, so stale cross-channel data never lingers.
func (s *State) Switch(channel string) uint64 {
	s.mu.Lock()
	s.active = channel
	s.generation++
	gen := s.generation
	s.messages = nil
	s.members = nil
	s.seen = map[string]struct{}{}
	s.mu.Unlock()

	s.logger.Debug("channel switched", slog.String("channel", channel), slog.Uint64("generation", gen))
	s.notify()
	return gen
}

// SetChannels replaces the channel list. This is the only path that removes
// channels from the local view.
func (s *State) SetChannels(channels []gateway.Channel) {
	s.mu.Lock()
	s.channels = make(map[string]gateway.Channel, len(channels))
	for _, ch := range channels {
		s.channels[ch.Name] = ch
	}
	s.mu.Unlock()
	s.notify()
}

// UpsertChannel adds or updates one channel without touching the rest.
func (s *State) UpsertChannel(ch gateway.Channel) {
	s.mu.Lock()
	s.channels[ch.Name] = ch
	s.mu.Unlock()
	s.notify()
}

// Channels returns the known channels sorted by name.
func (s *State) Channels() []gateway.Channel {
	s.mu.Lock()
	out := make([]gateway.Channel, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ch)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetHistory replaces the scoped message list with a fetched history
// (newest first), deduplicated by id. The load is dropped when gen no longer
// matches the current generation, i.e. the user switched away while the fetch
// was in flight. Reports whether the load was applied.
func (s *State) SetHistory(gen uint64, messages []gateway.Message) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("stale history load dropped", slog.Uint64("generation", gen))
		return false
	}
	s.messages = make([]gateway.Message, 0, len(messages))
	s.seen = make(map[string]struct{}, len(messages))
	for _, msg := range messages {
		if _, dup := s.seen[msg.ID]; dup {
			continue
		}
		s.seen[msg.ID] = struct{}{}
		s.messages = append(s.messages, msg)
	}
	s.mu.Unlock()
	s.notify()
	return true
}

// SetMembers replaces the scoped member list, subject to the same generation
// guard as SetHistory.
func (s *State) SetMembers(gen uint64, members []gateway.Member) bool {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Debug("stale member load dropped", slog.Uint64("generation", gen))
		return false
	}
	s.members = append([]gateway.Member(nil), members...)
	s.mu.Unlock()
	s.notify()
	return true
}

// InsertMessage inserts one message scoped to channel, newest first. Both
// producers (send responses and push events) funnel through here. Messages
// for a non-active channel are dropped and an id already present is a no-op,
// which is what makes the send-response/push-event double delivery safe.
// Reports whether the message was inserted.
func (s *State) InsertMessage(channel string, msg gateway.Message) bool {
	s.mu.Lock()
	if channel != s.active {
		s.mu.Unlock()
		s.logger.Debug("message for inactive channel dropped",
			slog.String("channel", channel), slog.String("id", msg.ID))
		return false
	}
	if _, dup := s.seen[msg.ID]; dup {
		s.mu.Unlock()
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.messages = append([]gateway.Message{msg}, s.messages...)
	s.mu.Unlock()
	s.notify()
	return true
}

// Messages returns a copy of the scoped message list, newest first.
func (s *State) Messages() []gateway.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Message(nil), s.messages...)
}

// Members returns a copy of the scoped member list.
func (s *State) Members() []gateway.Member {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]gateway.Member(nil), s.members...)
}
