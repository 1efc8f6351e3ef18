package realtime

import (
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ErrUnknownSession is returned for operations on a session that is not connected.
var ErrUnknownSession = errors.New("realtime: unknown session")

// Sender delivers an encoded frame to one session without blocking.
// It returns false when the frame was dropped.
type Sender interface {
	Send(frame []byte) bool
}

type session struct {
	sender   Sender
	user     primitive.ObjectID
	channels map[string]struct{}
}

// Registry is the process-wide presence table. Only the goroutine serving a
// connection changes that connection's entries; anyone may read. A lookup is
// a snapshot, so a session may disconnect between Targets and Send.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session
	channels map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session),
		channels: make(map[string]map[string]struct{}),
	}
}

// Connect adds an anonymous session. It receives nothing until it registers
// a user or joins a channel.
func (r *Registry) Connect(sessionID string, s Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[sessionID]; ok {
		r.dropLocked(sessionID, old)
	}
	r.sessions[sessionID] = &session{sender: s, channels: make(map[string]struct{})}
}

// Register binds the session to userID and subscribes it to the user's
// private channel. Registering again as another user leaves the previous
// user's channel.
func (r *Registry) Register(sessionID string, userID primitive.ObjectID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	if !s.user.IsZero() && s.user != userID {
		r.leaveLocked(sessionID, s, UserChannel(s.user))
	}
	s.user = userID
	r.joinLocked(sessionID, s, UserChannel(userID))
	return nil
}

// UserOf returns the user a session registered as.
func (r *Registry) UserOf(sessionID string) (primitive.ObjectID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok || s.user.IsZero() {
		return primitive.NilObjectID, false
	}
	return s.user, true
}

// Join subscribes the session to channel.
func (r *Registry) Join(sessionID, channel string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	r.joinLocked(sessionID, s, channel)
	return nil
}

// Leave unsubscribes the session from channel. Unknown sessions are ignored.
func (r *Registry) Leave(sessionID, channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		r.leaveLocked(sessionID, s, channel)
	}
}

// Disconnect removes the session and every channel membership it held.
func (r *Registry) Disconnect(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[sessionID]; ok {
		r.dropLocked(sessionID, s)
	}
}

// EvictUser unsubscribes every session registered as userID from channel
// and returns how many were removed.
func (r *Registry) EvictUser(channel string, userID primitive.ObjectID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id := range r.channels[channel] {
		if s, ok := r.sessions[id]; ok && s.user == userID {
			r.leaveLocked(id, s, channel)
			n++
		}
	}
	return n
}

// Targets returns the senders currently subscribed to channel.
func (r *Registry) Targets(channel string) []Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.channels[channel]
	out := make([]Sender, 0, len(members))
	for id := range members {
		if s, ok := r.sessions[id]; ok {
			out = append(out, s.sender)
		}
	}
	return out
}

// InChannel reports whether the session is subscribed to channel.
func (r *Registry) InChannel(sessionID, channel string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.channels[channel][sessionID]
	return ok
}

// IsOnline reports whether any session is registered as userID.
func (r *Registry) IsOnline(userID primitive.ObjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels[UserChannel(userID)]) > 0
}

// SessionCount returns the number of connected sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) joinLocked(sessionID string, s *session, channel string) {
	members, ok := r.channels[channel]
	if !ok {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	members[sessionID] = struct{}{}
	s.channels[channel] = struct{}{}
}

func (r *Registry) leaveLocked(sessionID string, s *session, channel string) {
	delete(s.channels, channel)
	if members, ok := r.channels[channel]; ok {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

func (r *Registry) dropLocked(sessionID string, s *session) {
	for ch := range s.channels {
		r.leaveLocked(sessionID, s, ch)
	}
	delete(r.sessions, sessionID)
}
