package chat

import "github.com/promptly-chat/promptly/internal/conversation"

// Completed-fingerprint bounds: once the set grows past maxCompleted it is
// cut back to the keepCompleted most recent entries.
const (
	maxCompleted  = 100
	keepCompleted = 50
)

// Fingerprint identifies one logical reply: the conversation being answered
// and the user message it answers.
type Fingerprint struct {
	ConversationID string
	MessageID      string
}

func (f Fingerprint) String() string {
	return f.ConversationID + "_" + f.MessageID
}

// fingerprintSet is an insertion-ordered set bounded as described above.
type fingerprintSet struct {
	order []Fingerprint
	index map[Fingerprint]struct{}
}

func newFingerprintSet() *fingerprintSet {
	return &fingerprintSet{index: make(map[Fingerprint]struct{})}
}

func (s *fingerprintSet) Has(f Fingerprint) bool {
	_, ok := s.index[f]
	return ok
}

func (s *fingerprintSet) Add(f Fingerprint) {
	if s.Has(f) {
		return
	}
	s.order = append(s.order, f)
	s.index[f] = struct{}{}
	if len(s.order) > maxCompleted {
		drop := s.order[:len(s.order)-keepCompleted]
		for _, old := range drop {
			delete(s.index, old)
		}
		s.order = append([]Fingerprint(nil), s.order[len(s.order)-keepCompleted:]...)
	}
}

func (s *fingerprintSet) Len() int {
	return len(s.order)
}

// State is the session-scoped control state. It lives for one interactive
// session and is never persisted.
type State struct {
	ActiveID     string
	Processing   bool
	ProcessingID string

	completed *fingerprintSet
	inFlight  *Fingerprint
}

// NewState derives the initial control state from loaded data: the first
// conversation in listing order is active and nothing is processing.
func NewState(set *conversation.Set) *State {
	s := &State{completed: newFingerprintSet()}
	if set != nil {
		s.ActiveID = set.First()
	}
	return s
}

// Completed reports whether a reply for f has already been recorded.
func (s *State) Completed(f Fingerprint) bool {
	return s.completed.Has(f)
}

// CompletedCount returns the number of remembered fingerprints.
func (s *State) CompletedCount() int {
	return s.completed.Len()
}

// IsProcessing reports whether conversation id has a reply in flight.
func (s *State) IsProcessing(id string) bool {
	return s.Processing && s.ProcessingID == id
}

func (s *State) begin(id string) {
	s.Processing = true
	s.ProcessingID = id
}

func (s *State) idle() {
	s.Processing = false
	s.ProcessingID = ""
	s.inFlight = nil
}

// owns reports whether f is the job in flight for the processing
// conversation.
func (s *State) owns(f Fingerprint) bool {
	return s.Processing && s.ProcessingID == f.ConversationID &&
		s.inFlight != nil && *s.inFlight == f
}

// release forgets f as the job in flight without touching processing.
func (s *State) release(f Fingerprint) {
	if s.inFlight != nil && *s.inFlight == f {
		s.inFlight = nil
	}
}
