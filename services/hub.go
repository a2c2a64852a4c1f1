package services

import (
	"context"
	"sync"

	"github.com/lborres/pulsetrack/core"
)

// NotificationHub tracks the open managers of each subject so a change
// made through one connection reaches the others.
type NotificationHub struct {
	store core.NotificationStore

	mu       sync.RWMutex
	managers map[string][]*NotificationManager
}

func NewNotificationHub(store core.NotificationStore) *NotificationHub {
	return &NotificationHub{
		store:    store,
		managers: make(map[string][]*NotificationManager),
	}
}

// Register adds m under subject until the returned Disposer runs.
func (h *NotificationHub) Register(subject string, m *NotificationManager) core.Disposer {
	h.mu.Lock()
	h.managers[subject] = append(h.managers[subject], m)
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			list := h.managers[subject]
			for i, candidate := range list {
				if candidate == m {
					list = append(list[:i:i], list[i+1:]...)
					break
				}
			}
			if len(list) == 0 {
				delete(h.managers, subject)
			} else {
				h.managers[subject] = list
			}
		})
	}
}

func (h *NotificationHub) Open(subject string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.managers[subject])
}

// MarkAsRead marks id read for subject. With open managers the first one
// performs the store update and the rest update their caches; otherwise
// the store is updated directly.
func (h *NotificationHub) MarkAsRead(ctx context.Context, subject, id string) error {
	if h.store == nil {
		return core.ErrNotificationsNotConfigured
	}

	h.mu.RLock()
	managers := append([]*NotificationManager(nil), h.managers[subject]...)
	h.mu.RUnlock()

	if len(managers) == 0 {
		return h.store.MarkRead(ctx, subject, id)
	}

	err := managers[0].MarkAsRead(ctx, id)
	for _, m := range managers[1:] {
		m.markLocal(id)
	}
	return err
}
