package alert

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type Notifier interface {
	Notify(ctx context.Context, msg string) error
}

// Manager delivers order notifications asynchronously so a slow notifier can
// never block the menu loop. When the queue is full events are dropped and
// counted.
type Manager struct {
	mode     string
	notifier Notifier
	log      *zap.Logger
	queue    chan event
	stop     chan struct{}
	done     chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

type event struct {
	name   string
	fields map[string]string
}

const (
	defaultQueueSize = 64
	notifyTimeout    = 20 * time.Second
)

func NewManager(mode string, notifier Notifier, log *zap.Logger) *Manager {
	if notifier == nil {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{
		mode:     mode,
		notifier: notifier,
		log:      log,
		queue:    make(chan event, defaultQueueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.loop()
	return m
}

// Notify is safe to call on a nil manager; alerting is optional.
func (m *Manager) Notify(name string, fields map[string]string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	select {
	case m.queue <- event{name: name, fields: cloneFields(fields)}:
	default:
		m.mu.Lock()
		m.dropped++
		dropped := m.dropped
		m.mu.Unlock()
		m.log.Warn("alert dropped, queue full",
			zap.String("event", name),
			zap.Uint64("dropped_total", dropped),
		)
	}
}

// Close drains the queue, then waits for the worker up to ctx.
func (m *Manager) Close(ctx context.Context) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	close(m.stop)

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) loop() {
	defer close(m.done)
	for {
		select {
		case ev := <-m.queue:
			m.send(ev)
		case <-m.stop:
			for {
				select {
				case ev := <-m.queue:
					m.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := m.notifier.Notify(ctx, m.format(ev)); err != nil {
		m.log.Error("alert delivery failed", zap.String("event", ev.name), zap.Error(err))
	}
}

func (m *Manager) format(ev event) string {
	lines := []string{
		"[futures-console] " + ev.name,
		"time: " + time.Now().UTC().Format(time.RFC3339),
		"mode: " + m.mode,
	}
	keys := make([]string, 0, len(ev.fields))
	for k := range ev.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, k+": "+ev.fields[k])
	}
	return strings.Join(lines, "\n")
}

func cloneFields(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]string, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
