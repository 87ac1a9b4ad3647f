package render

import (
	"sync"
	"time"
)

const DefaultFlashDelay = 3 * time.Second

// Message is the notification slot as the UI shows it.
type Message struct {
	Text string `json:"text"`
	Open bool   `json:"open"`
}

// Notifier is a single-slot, auto-dismissing message area. A new message
// replaces the current one and restarts the dismiss timer; nothing queues.
type Notifier struct {
	delay time.Duration

	mu    sync.Mutex
	msg   Message
	seq   uint64
	timer *time.Timer
}

func NewNotifier(delay time.Duration) *Notifier {
	if delay <= 0 {
		delay = DefaultFlashDelay
	}
	return &Notifier{delay: delay}
}

// Flash shows text until the delay elapses or another message replaces it.
func (n *Notifier) Flash(text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seq++
	seq := n.seq
	n.msg = Message{Text: text, Open: true}
	if n.timer != nil {
		n.timer.Stop()
	}
	n.timer = time.AfterFunc(n.delay, func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		if n.seq == seq {
			n.msg.Open = false
		}
	})
}

// Current returns the slot; the text of a dismissed message is kept.
func (n *Notifier) Current() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.msg
}

// Stop cancels a pending dismissal.
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.timer != nil {
		n.timer.Stop()
	}
}
