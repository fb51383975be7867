package session

import "sync"

// Role identifies who a message is attributed to.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single role-tagged turn in the conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is the conversation context of one run: an append-only message log
// plus the current plan. It lives only as long as the process.
type Session struct {
	mu       sync.RWMutex
	messages []Message
	plan     string
}

// New creates an empty session.
func New() *Session {
	return &Session{}
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the history in insertion order.
func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of stored messages.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Last returns the most recent message, if any.
func (s *Session) Last() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// SetPlan replaces the current plan.
func (s *Session) SetPlan(plan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plan = plan
}

// Plan returns the current plan, or "" if none was set.
func (s *Session) Plan() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.plan
}

// NextRole returns the role the next appended message should carry. It only
// looks at the last message: after a user turn comes the assistant, after
// anything else (or on an empty log) comes the user.
func (s *Session) NextRole() Role {
	last, ok := s.Last()
	if !ok {
		return RoleUser
	}
	return roleAfter(last.Role)
}

func roleAfter(r Role) Role {
	if r == RoleUser {
		return RoleAssistant
	}
	return RoleUser
}
