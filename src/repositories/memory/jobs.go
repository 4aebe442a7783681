package memory

import (
	"context"
	"crewcomms/src/models"
	"crewcomms/src/types"
	"sort"
	"sync"
	"time"
)

type JobNotificationRepository struct {
	mu    sync.RWMutex
	items map[string]map[string]*models.JobNotification
}

func NewJobNotificationRepository() *JobNotificationRepository {
	return &JobNotificationRepository{items: map[string]map[string]*models.JobNotification{}}
}

func (r *JobNotificationRepository) CreateJobNotification(ctx context.Context, j *models.JobNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.items[j.CrewID] == nil {
		r.items[j.CrewID] = map[string]*models.JobNotification{}
	}
	if _, ok := r.items[j.CrewID][j.ID]; ok {
		return types.NewError(types.KIND_CONFLICT, "CreateJobNotification", "job notification %s already exists", j.ID)
	}
	r.items[j.CrewID][j.ID] = cloneJob(j)
	return nil
}

func (r *JobNotificationRepository) GetJobNotification(ctx context.Context, crewID, id string) (*models.JobNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.items[crewID][id]
	if !ok {
		return nil, types.NotFound("GetJobNotification", "job notification", id)
	}
	return cloneJob(j), nil
}

// MutateJobNotification applies fn atomically. A failing fn leaves the record untouched.
func (r *JobNotificationRepository) MutateJobNotification(ctx context.Context, crewID, id string, fn func(*models.JobNotification) error) (*models.JobNotification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.items[crewID][id]
	if !ok {
		return nil, types.NotFound("MutateJobNotification", "job notification", id)
	}
	c := cloneJob(j)
	if err := fn(c); err != nil {
		return nil, err
	}
	r.items[crewID][id] = c
	return cloneJob(c), nil
}

func (r *JobNotificationRepository) ListJobNotifications(ctx context.Context, crewID string) ([]*models.JobNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.JobNotification, 0, len(r.items[crewID]))
	for _, j := range r.items[crewID] {
		out = append(out, cloneJob(j))
	}
	sortJobs(out)
	return out, nil
}

// ListDueJobNotifications returns unexpired shares whose ExpiresAt is not after before.
func (r *JobNotificationRepository) ListDueJobNotifications(ctx context.Context, before time.Time, limit int) ([]*models.JobNotification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.JobNotification
	for _, crew := range r.items {
		for _, j := range crew {
			if !j.Expired && !j.ExpiresAt.After(before) {
				out = append(out, cloneJob(j))
			}
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ExpiresAt.Before(out[k].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortJobs(js []*models.JobNotification) {
	sort.SliceStable(js, func(i, k int) bool {
		if !js[i].CreatedAt.Equal(js[k].CreatedAt) {
			return js[i].CreatedAt.After(js[k].CreatedAt)
		}
		return js[i].ID < js[k].ID
	})
}

func cloneJob(j *models.JobNotification) *models.JobNotification {
	out := *j
	out.Job.Skills = append([]string(nil), j.Job.Skills...)
	out.MatchReasons = append([]string(nil), j.MatchReasons...)
	out.MemberResponses = make(map[string]types.JobResponse, len(j.MemberResponses))
	for k, v := range j.MemberResponses {
		out.MemberResponses[k] = v
	}
	out.ViewedBy = cloneTimes(j.ViewedBy)
	out.AppliedBy = cloneTimes(j.AppliedBy)
	out.ReadBy = cloneTimes(j.ReadBy)
	return &out
}

func cloneTimes(m map[string]time.Time) map[string]time.Time {
	out := make(map[string]time.Time, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
