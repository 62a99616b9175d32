package services

import (
	"strings"

	"quizforge-backend/internal/models"
)

// ModelRoute is the model and credential a tier is served with.
type ModelRoute struct {
	Tier   models.Tier
	Model  string
	APIKey string
	// Lite models only get the single-shot endpoint.
	Lite bool
}

// TierRouter is built once at startup and only read afterwards.
type TierRouter struct {
	routes map[models.Tier]ModelRoute
}

// NewTierRouter takes model names and credentials keyed by tier.
// A model whose name contains "lite" is routed through the single-shot path.
func NewTierRouter(modelByTier, keyByTier map[models.Tier]string) *TierRouter {
	routes := make(map[models.Tier]ModelRoute, len(modelByTier))
	for tier, model := range modelByTier {
		routes[tier] = ModelRoute{
			Tier:   tier,
			Model:  model,
			APIKey: keyByTier[tier],
			Lite:   strings.Contains(strings.ToLower(model), "lite"),
		}
	}
	return &TierRouter{routes: routes}
}

// Route never fails: a missing user or unknown tier gets the free route.
func (r *TierRouter) Route(user *models.User) ModelRoute {
	if user != nil {
		if route, ok := r.routes[user.Tier]; ok {
			return route
		}
	}
	return r.routes[models.TierFree]
}
