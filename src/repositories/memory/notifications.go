package memory

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"sync"
	"time"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	items map[string]map[string]*models.CrewNotification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{items: map[string]map[string]*models.CrewNotification{}}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.CrewNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[n.CrewID] == nil {
		r.items[n.CrewID] = map[string]*models.CrewNotification{}
	}
	r.items[n.CrewID][n.ID] = cloneNotification(n)
	return nil
}

func (r *NotificationRepository) GetNotification(ctx context.Context, crewID, id string) (*models.CrewNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.items[crewID][id]
	if !ok {
		return nil, types.NotFound("GetNotification", "notification", id)
	}
	return cloneNotification(n), nil
}

func (r *NotificationRepository) UpdateNotification(ctx context.Context, crewID, id string, fn func(*models.CrewNotification) error) (*models.CrewNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.items[crewID][id]
	if !ok {
		return nil, types.NotFound("UpdateNotification", "notification", id)
	}
	c := cloneNotification(n)
	if err := fn(c); err != nil {
		return nil, err
	}
	r.items[crewID][id] = c
	return cloneNotification(c), nil
}

func (r *NotificationRepository) DeleteNotification(ctx context.Context, crewID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[crewID][id]; !ok {
		return types.NotFound("DeleteNotification", "notification", id)
	}
	delete(r.items[crewID], id)
	return nil
}

func (r *NotificationRepository) DeleteAllNotifications(ctx context.Context, crewID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.items[crewID])
	delete(r.items, crewID)
	return n, nil
}

func (r *NotificationRepository) ListNotifications(ctx context.Context, crewID string) ([]*models.CrewNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.CrewNotification, 0, len(r.items[crewID]))
	for _, n := range r.items[crewID] {
		out = append(out, cloneNotification(n))
	}
	models.SortNotifications(out)
	return out, nil
}

func (r *NotificationRepository) ListByJobNotification(ctx context.Context, crewID, jobNotificationID string) ([]*models.CrewNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.CrewNotification
	for _, n := range r.items[crewID] {
		if n.JobNotificationID == jobNotificationID {
			out = append(out, cloneNotification(n))
		}
	}
	return out, nil
}

func cloneNotification(n *models.CrewNotification) *models.CrewNotification {
	out := *n
	out.RecipientIDs = append([]string(nil), n.RecipientIDs...)
	out.ReadBy = make(map[string]time.Time, len(n.ReadBy))
	for k, v := range n.ReadBy {
		out.ReadBy[k] = v
	}
	if n.Data != nil {
		out.Data = make(map[string]string, len(n.Data))
		for k, v := range n.Data {
			out.Data[k] = v
		}
	}
	return &out
}
