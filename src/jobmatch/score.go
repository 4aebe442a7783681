package jobmatch

import (
	"crewcomms/src/models"
	"crewcomms/src/types"
	"fmt"
	"math"
	"strings"
)

// Fixed weights. They add up to 100.
const (
	weightClassification = 30
	weightConstruction   = 15
	weightRate           = 20
	weightDistance       = 15
	weightSkills         = 15
	weightCompany        = 5
)

// ComputeMatchScore scores a job against crew preferences in [0,100] and explains
// the parts that matched. A preference the crew left empty counts as satisfied,
// except skills, which only score on overlap with the job's skill list.
func ComputeMatchScore(job models.JobSummary, prefs types.CrewPreferences) (int, []string) {
	var (
		score   float64
		reasons []string
	)

	switch {
	case len(prefs.JobTypes) == 0:
		score += weightClassification
	case containsFold(prefs.JobTypes, job.Classification):
		score += weightClassification
		reasons = append(reasons, "Classification: "+job.Classification)
	}

	switch {
	case len(prefs.ConstructionTypes) == 0:
		score += weightConstruction
	case containsFold(prefs.ConstructionTypes, job.ConstructionType):
		score += weightConstruction
		reasons = append(reasons, "Construction type: "+job.ConstructionType)
	}

	switch {
	case prefs.MinHourlyRate <= 0:
		score += weightRate
	case job.HourlyRate >= prefs.MinHourlyRate:
		score += weightRate
		reasons = append(reasons, fmt.Sprintf("Pays $%.2f/hr (minimum $%.2f)", job.HourlyRate, prefs.MinHourlyRate))
	case job.HourlyRate > 0:
		score += weightRate * job.HourlyRate / prefs.MinHourlyRate
	}

	switch {
	case prefs.MaxDistanceMiles <= 0 || job.DistanceMiles <= 0:
		score += weightDistance
	case job.DistanceMiles <= prefs.MaxDistanceMiles:
		score += weightDistance
		reasons = append(reasons, fmt.Sprintf("%.0f miles away", job.DistanceMiles))
	default:
		score += weightDistance * prefs.MaxDistanceMiles / job.DistanceMiles
	}

	if len(job.Skills) == 0 {
		score += weightSkills
	} else if shared := intersectFold(job.Skills, prefs.RequiredSkills); len(shared) > 0 {
		score += weightSkills * float64(len(shared)) / float64(len(dedupeFold(job.Skills)))
		reasons = append(reasons, "Skills: "+strings.Join(shared, ", "))
	}

	switch {
	case len(prefs.PreferredCompanies) == 0:
		score += weightCompany
	case containsFold(prefs.PreferredCompanies, job.Company):
		score += weightCompany
		reasons = append(reasons, "Preferred company: "+job.Company)
	}

	s := int(math.Round(score))
	if s < 0 {
		s = 0
	}
	if s > 100 {
		s = 100
	}
	return s, reasons
}

func containsFold(list []string, v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}

// intersectFold returns the distinct job skills that also appear in wanted, in job order.
func intersectFold(job, wanted []string) []string {
	var out []string
	for _, s := range dedupeFold(job) {
		if containsFold(wanted, s) {
			out = append(out, s)
		}
	}
	return out
}

func dedupeFold(list []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range list {
		k := strings.ToLower(strings.TrimSpace(s))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, strings.TrimSpace(s))
	}
	return out
}
