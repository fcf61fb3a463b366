package enrichment

import (
	"math"
	"strings"

	"github.com/DeafMist/headline-radar/internal/models"
)

var allowedTypes = map[string]struct{}{
	models.EntityPerson:       {},
	models.EntityOrganization: {},
	models.EntityLocation:     {},
}

// NormalizeEntities keeps PERSON, ORG and LOC spans and splits each of them
// into one annotation per whitespace-separated token. Order and duplicates are
// preserved. The result is never nil so it persists as an empty array.
func NormalizeEntities(raw []models.RawEntity) []models.EntityAnnotation {
	out := make([]models.EntityAnnotation, 0, len(raw))
	for _, ent := range raw {
		if _, ok := allowedTypes[ent.Type]; !ok {
			continue
		}
		for _, token := range strings.Fields(ent.Text) {
			out = append(out, models.EntityAnnotation{Type: ent.Type, Value: token})
		}
	}
	return out
}

// ClassifySentiment maps a polarity score to a three-way label.
func ClassifySentiment(polarity float64) models.Sentiment {
	switch {
	case math.IsNaN(polarity):
		return models.SentimentNeutral
	case polarity > 0:
		return models.SentimentPositive
	case polarity < 0:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

// Derive builds the fields persisted for a document from its analysis.
func Derive(a models.Analysis) models.Enrichment {
	return models.Enrichment{
		Entities:  NormalizeEntities(a.Entities),
		Sentiment: ClassifySentiment(a.Polarity),
	}
}
