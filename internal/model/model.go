package model

import (
	"github.com/LeonardoBeccarini/cropgenius/internal/model/entities"
	"github.com/LeonardoBeccarini/cropgenius/internal/model/messages"
)

// Aliases exposing the common types to the services.

type (
	CropEconomicProfile  = entities.CropEconomicProfile
	Treatment            = entities.Treatment
	TreatmentCategory    = entities.TreatmentCategory
	TreatmentAnalysis    = entities.TreatmentAnalysis
	Ranking              = entities.Ranking
	DiseaseDetectedEvent = messages.DiseaseDetectedEvent
	TreatmentRankedEvent = messages.TreatmentRankedEvent
)

const (
	CategoryOrganic   = entities.CategoryOrganic
	CategoryInorganic = entities.CategoryInorganic
)
