package enums

import "fmt"

// GuideDecision records the intended guide's answer on a booking request.
type GuideDecision string

const (
	GuideDecisionPending  GuideDecision = "pending"
	GuideDecisionAccepted GuideDecision = "accepted"
	GuideDecisionRejected GuideDecision = "rejected"
)

var validGuideDecisions = []GuideDecision{
	GuideDecisionPending,
	GuideDecisionAccepted,
	GuideDecisionRejected,
}

// String implements fmt.Stringer.
func (g GuideDecision) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GuideDecision.
func (g GuideDecision) IsValid() bool {
	for _, candidate := range validGuideDecisions {
		if candidate == g {
			return true
		}
	}
	return false
}

// ParseGuideDecision converts raw input into a GuideDecision.
func ParseGuideDecision(value string) (GuideDecision, error) {
	for _, candidate := range validGuideDecisions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid guide decision %q", value)
}
