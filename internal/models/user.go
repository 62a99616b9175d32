package models

import (
	"strings"

	"github.com/google/uuid"
)

// Tier is the subscription level that decides which model serves a request.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// ParseTier normalizes a plan claim. Anything unrecognized is the free tier.
func ParseTier(s string) Tier {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierBasic:
		return TierBasic
	case TierPro:
		return TierPro
	default:
		return TierFree
	}
}

// User is what the auth layer hands to the generation pipeline.
// The pipeline only reads Tier.
type User struct {
	ID   uuid.UUID `json:"id"`
	Tier Tier      `json:"tier"`
}
