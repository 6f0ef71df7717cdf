package plan

import "strings"

// PlanType is the inferred training plan category
type PlanType string

const (
	PlanCyclingFTP  PlanType = "cycling_ftp"
	PlanFatLoss     PlanType = "fat_loss"
	PlanRunMarathon PlanType = "run_marathon"
	PlanRunHalf     PlanType = "run_half"
	PlanRun10k      PlanType = "run_10k"
	PlanRun5k       PlanType = "run_5k"
	PlanTriathlon   PlanType = "triathlon"
)

// ordered: first matching category wins
var planTypeKeywords = []struct {
	planType PlanType
	keywords []string
}{
	{PlanCyclingFTP, []string{"ftp", "cycling", "bike", "time trial", "sweet spot", "threshold"}},
	{PlanFatLoss, []string{"fat loss", "cut", "lose fat", "weight loss"}},
	{PlanRunMarathon, []string{"marathon"}},
	{PlanRunHalf, []string{"half marathon"}},
	{PlanRun10k, []string{"10k", "10 km"}},
	{PlanRun5k, []string{"5k", "5 km"}},
	{PlanTriathlon, []string{"tri", "ironman"}},
}

// InferPlanType matches the free-text goal against category keywords,
// case-insensitively, defaulting to a cycling FTP plan
func InferPlanType(goalText string) PlanType {
	t := strings.ToLower(goalText)
	for _, entry := range planTypeKeywords {
		for _, keyword := range entry.keywords {
			if strings.Contains(t, keyword) {
				return entry.planType
			}
		}
	}
	return PlanCyclingFTP
}
