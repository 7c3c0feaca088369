package events

import (
	"bytes"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/exp/slog"
)

// Notification types emitted by the round manager
const (
	TypeEnteredRound = "ENTERED_ROUND"
	TypeWinnerPicked = "WINNER_PICKED"
)

// Notification is one observability message. Notifications are emitted
// in the order the operations that produced them committed.
type Notification struct {
	Type        string    `json:"type"`
	Participant string    `json:"participant"`
	Amount      int64     `json:"amount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// Sink receives round notifications. Delivery is fire-and-forget; no
// acknowledgment is expected and failures must not affect the round.
type Sink interface {
	EnteredRound(participant string, amount int64)
	WinnerPicked(winner string, amount int64)
}

// LogSink writes notifications to the structured log
type LogSink struct{}

// NewLogSink creates a new LogSink
func NewLogSink() Sink {
	return &LogSink{}
}

// EnteredRound logs an entry notification
func (s *LogSink) EnteredRound(participant string, amount int64) {
	slog.Info("EnteredRound", "participant", participant, "amount", amount)
}

// WinnerPicked logs a winner notification
func (s *LogSink) WinnerPicked(winner string, amount int64) {
	slog.Info("WinnerPicked", "winner", winner, "amount", amount)
}

// WebhookSink POSTs notifications to a configured URL
type WebhookSink struct {
	URL    string
	client *http.Client
}

// NewWebhookSink creates a new WebhookSink
func NewWebhookSink(url string) Sink {
	return &WebhookSink{
		URL:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// EnteredRound posts an entry notification
func (s *WebhookSink) EnteredRound(participant string, amount int64) {
	s.post(Notification{Type: TypeEnteredRound, Participant: participant, Amount: amount, OccurredAt: time.Now()})
}

// WinnerPicked posts a winner notification
func (s *WebhookSink) WinnerPicked(winner string, amount int64) {
	s.post(Notification{Type: TypeWinnerPicked, Participant: winner, Amount: amount, OccurredAt: time.Now()})
}

func (s *WebhookSink) post(n Notification) {
	body, err := json.Marshal(n)
	if err != nil {
		slog.Error("Failed to encode notification", "error", err, "type", n.Type)
		return
	}
	resp, err := s.client.Post(s.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("Failed to deliver notification", "error", err, "type", n.Type)
		return
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		slog.Error("Notification webhook returned error status", "status", resp.StatusCode, "type", n.Type)
	}
}

// MockSink records notifications in memory for testing
type MockSink struct {
	mu            sync.Mutex
	Notifications []Notification
}

// NewMockSink creates a new MockSink
func NewMockSink() *MockSink {
	return &MockSink{}
}

// EnteredRound records an entry notification
func (s *MockSink) EnteredRound(participant string, amount int64) {
	s.record(Notification{Type: TypeEnteredRound, Participant: participant, Amount: amount, OccurredAt: time.Now()})
}

// WinnerPicked records a winner notification
func (s *MockSink) WinnerPicked(winner string, amount int64) {
	s.record(Notification{Type: TypeWinnerPicked, Participant: winner, Amount: amount, OccurredAt: time.Now()})
}

// Recorded returns a copy of the notifications recorded so far
func (s *MockSink) Recorded() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.Notifications))
	copy(out, s.Notifications)
	return out
}

func (s *MockSink) record(n Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Notifications = append(s.Notifications, n)
}
