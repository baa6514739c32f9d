package domain

import (
	"fmt"
	"strings"

	adjustment "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
)

// Tier is a permission level.
type Tier string

const (
	TierNormal    Tier = "normal"
	TierAdvanced  Tier = "advanced"
	TierEmergency Tier = "emergency"
	TierAdmin     Tier = "admin"
)

// Tiers lists every tier from least to most privileged.
var Tiers = []Tier{TierNormal, TierAdvanced, TierEmergency, TierAdmin}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case TierNormal, TierAdvanced, TierEmergency, TierAdmin:
		return t, nil
	default:
		return "", adjustment.NewValidationError("tier", fmt.Sprintf("unknown tier %q", s))
	}
}

// RoleAdmin is the requester role that selects the admin tier.
const RoleAdmin = "admin"
