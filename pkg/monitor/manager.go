package monitor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/pkg/spool"
)

// Manager keeps at most one session per device name.
type Manager struct {
	reader   *spool.Reader
	logger   *zap.Logger
	observer Observer

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions share reader.
func NewManager(reader *spool.Reader, logger *zap.Logger, observer Observer) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		reader:   reader,
		logger:   logger,
		observer: observer,
		sessions: make(map[string]*Session),
	}
}

// Watch starts a session for opts.Device. It returns ErrAlreadyRunning if
// that device is already watched.
func (m *Manager) Watch(ctx context.Context, opts Options, sink Sink) (*Session, error) {
	if opts.Device == "" {
		return nil, ErrNoDevice
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[opts.Device]
	if !ok {
		sess = NewSession(m.reader, m.logger.With(zap.String("device", opts.Device)), m.observer)
		m.sessions[opts.Device] = sess
	}
	if err := sess.Start(ctx, opts, sink); err != nil {
		return sess, err
	}
	return sess, nil
}

// Unwatch stops the session for device. Unknown devices are a no-op.
func (m *Manager) Unwatch(ctx context.Context, device string) error {
	m.mu.Lock()
	sess, ok := m.sessions[device]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Stop(ctx)
}

// Session returns the session for device.
func (m *Manager) Session(device string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[device]
	return sess, ok
}

// Sessions describes every known session sorted by device name.
func (m *Manager) Sessions() []SessionInfo {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		list = append(list, sess)
	}
	m.mu.Unlock()

	out := make([]SessionInfo, 0, len(list))
	for _, sess := range list {
		info := sess.Info()
		if info.ID == "" {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Device < out[j].Device })
	return out
}

// Shutdown stops every session concurrently.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	devices := make([]string, 0, len(m.sessions))
	sessions := make([]*Session, 0, len(m.sessions))
	for name, sess := range m.sessions {
		devices = append(devices, name)
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	errs := make([]error, len(sessions))
	var wg sync.WaitGroup
	for i, sess := range sessions {
		wg.Add(1)
		go func(i int, sess *Session) {
			defer wg.Done()
			if err := sess.Stop(ctx); err != nil {
				errs[i] = fmt.Errorf("%s: %w", devices[i], err)
			}
		}(i, sess)
	}
	wg.Wait()
	return errors.Join(errs...)
}
