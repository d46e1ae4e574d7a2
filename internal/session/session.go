package session

import "strings"

// Speaker identifies who produced a conversation turn.
type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// Turn is one utterance in a conversation. History is append-only.
type Turn struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Intake field names, in the order they are collected.
const (
	FieldName   = "name"
	FieldEmail  = "email"
	FieldBudget = "budget"
)

// IntakeFields is the fixed collection order.
var IntakeFields = []string{FieldName, FieldEmail, FieldBudget}

// Session holds the per-visitor conversation state. AwaitingField names the
// next required intake field; once empty it never reverts to non-empty.
type Session struct {
	Intake        map[string]string `json:"intake"`
	AwaitingField string            `json:"awaiting_field"`
	History       []Turn            `json:"history"`
}

// New returns a session positioned at the start of intake.
func New() *Session {
	return &Session{
		Intake:        make(map[string]string),
		AwaitingField: FieldName,
	}
}

// IntakeComplete reports whether all required fields have been collected.
func (s *Session) IntakeComplete() bool {
	return s.AwaitingField == ""
}

// SetIntakeField records a collected field and advances AwaitingField to the
// next missing one, or clears it when intake is complete.
func (s *Session) SetIntakeField(field, value string) {
	if s.Intake == nil {
		s.Intake = make(map[string]string)
	}
	s.Intake[field] = value
	s.AwaitingField = ""
	for _, f := range IntakeFields {
		if _, ok := s.Intake[f]; !ok {
			s.AwaitingField = f
			break
		}
	}
}

// Append adds a turn to the history.
func (s *Session) Append(speaker Speaker, text string) {
	s.History = append(s.History, Turn{Speaker: speaker, Text: text})
}

// UserTurns counts user messages recorded so far.
func (s *Session) UserTurns() int {
	n := 0
	for _, t := range s.History {
		if t.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// LastBotTurn returns the most recent bot utterance, or "".
func (s *Session) LastBotTurn() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].Speaker == SpeakerBot {
			return s.History[i].Text
		}
	}
	return ""
}

// RecentTranscript renders the last n turns as a "User:/Bot:" transcript.
func (s *Session) RecentTranscript(n int) string {
	turns := s.History
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return renderTranscript(turns)
}

// Transcript renders the full history as a "User:/Bot:" transcript.
func (s *Session) Transcript() string {
	return renderTranscript(s.History)
}

func renderTranscript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		if t.Speaker == SpeakerUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Bot: ")
		}
		b.WriteString(t.Text)
	}
	return b.String()
}
