package models

import (
	"crewcomms/src/types"
	"time"
)

// JobSummary is a snapshot of an externally owned job at share time.
type JobSummary struct {
	JobID            string   `json:"jobId" firestore:"jobId"`
	Title            string   `json:"title" firestore:"title"`
	Company          string   `json:"company" firestore:"company"`
	Classification   string   `json:"classification" firestore:"classification"`
	ConstructionType string   `json:"constructionType" firestore:"constructionType"`
	HourlyRate       float64  `json:"hourlyRate" firestore:"hourlyRate"`
	DistanceMiles    float64  `json:"distanceMiles" firestore:"distanceMiles"`
	Skills           []string `json:"skills" firestore:"skills"`
	Location         string   `json:"location" firestore:"location"`
}

// JobNotification is stored at crews/{crewId}/jobNotifications/{id}.
type JobNotification struct {
	ID              string                       `json:"id" firestore:"id"`
	CrewID          string                       `json:"crewId" firestore:"crewId"`
	JobID           string                       `json:"jobId" firestore:"jobId"`
	SharerID        string                       `json:"sharerId" firestore:"sharerId"`
	Message         string                       `json:"message" firestore:"message"`
	Job             JobSummary                   `json:"job" firestore:"job"`
	MatchScore      int                          `json:"matchScore" firestore:"matchScore"`
	MatchReasons    []string                     `json:"matchReasons" firestore:"matchReasons"`
	MemberResponses map[string]types.JobResponse `json:"memberResponses" firestore:"memberResponses"`
	ViewedBy        map[string]time.Time         `json:"viewedBy" firestore:"viewedBy"`
	AppliedBy       map[string]time.Time         `json:"appliedBy" firestore:"appliedBy"`
	ReadBy          map[string]time.Time         `json:"readBy" firestore:"readBy"`
	IsPriority      bool                         `json:"isPriority" firestore:"isPriority"`
	Expired         bool                         `json:"expired" firestore:"expired"`
	CreatedAt       time.Time                    `json:"createdAt" firestore:"createdAt"`
	ExpiresAt       time.Time                    `json:"expiresAt" firestore:"expiresAt"`
	ScoredAt        time.Time                    `json:"scoredAt" firestore:"scoredAt"`
}

// IsExpired is true once the clock passes ExpiresAt or the share was expired explicitly.
func (j *JobNotification) IsExpired(now time.Time) bool {
	return j.Expired || !now.Before(j.ExpiresAt)
}

func (j *JobNotification) ResponseOf(userID string) types.JobResponse {
	if r, ok := j.MemberResponses[userID]; ok {
		return r
	}
	return types.RESPONSE_PENDING
}

// Tally counts responses by value.
func (j *JobNotification) Tally() map[types.JobResponse]int {
	out := map[types.JobResponse]int{}
	for _, r := range j.MemberResponses {
		out[r]++
	}
	return out
}
