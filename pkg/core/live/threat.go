package live

import (
	"strings"
	"sync"
	"time"
)

// ThreatMonitor inspects narration transcript text for urgent-safety
// keywords and raises a transient alert. A match raises the alert for the
// dwell window; a later match while already raised restarts the window
// rather than stacking. Aside from the dwell timer the monitor is stateless.
type ThreatMonitor struct {
	config ThreatConfig

	mu       sync.Mutex
	keywords []string
	active   bool
	timer    *time.Timer

	onRaised  func(keyword string)
	onCleared func()
}

// NewThreatMonitor creates a monitor for the configured keyword set.
func NewThreatMonitor(config ThreatConfig) *ThreatMonitor {
	keywords := make([]string, 0, len(config.Keywords))
	for _, kw := range config.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &ThreatMonitor{
		config:   config,
		keywords: keywords,
	}
}

// SetCallbacks sets the alert callbacks. onRaised fires on every transition
// to raised; onCleared fires when the dwell window expires.
func (m *ThreatMonitor) SetCallbacks(onRaised func(keyword string), onCleared func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRaised = onRaised
	m.onCleared = onCleared
}

// Observe tests transcript text against the keyword set. Matching is
// case-insensitive substring membership. Returns true when the alert is
// raised or re-armed by this text.
func (m *ThreatMonitor) Observe(text string) bool {
	lower := strings.ToLower(text)

	m.mu.Lock()
	var matched string
	for _, kw := range m.keywords {
		if strings.Contains(lower, kw) {
			matched = kw
			break
		}
	}
	if matched == "" {
		m.mu.Unlock()
		return false
	}

	wasActive := m.active
	m.active = true

	// Later match wins: restart the dwell window, no counting.
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.config.Dwell, m.expire)
	callback := m.onRaised
	m.mu.Unlock()

	if !wasActive && callback != nil {
		callback(matched)
	}
	return true
}

// expire is called when the dwell timer fires.
func (m *ThreatMonitor) expire() {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.active = false
	callback := m.onCleared
	m.mu.Unlock()

	if callback != nil {
		callback()
	}
}

// Active returns whether the alert is currently raised.
func (m *ThreatMonitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Cancel clears the alert immediately. Dropping a raised alert fires
// onCleared so the last signal the UI sees is never "raised"; an idle
// monitor stays silent. Used on session stop.
func (m *ThreatMonitor) Cancel() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	wasActive := m.active
	m.active = false
	callback := m.onCleared
	m.mu.Unlock()

	if wasActive && callback != nil {
		callback()
	}
}
