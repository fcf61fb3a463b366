package enrichment_test

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/headline-radar/internal/enrichment"
	"github.com/DeafMist/headline-radar/internal/models"
)

func TestNormalizeEntities(t *testing.T) {
	tests := []struct {
		name string
		raw  []models.RawEntity
		want []models.EntityAnnotation
	}{
		{name: "empty", raw: nil, want: []models.EntityAnnotation{}},
		{
			name: "split person",
			raw:  []models.RawEntity{{Text: "Jane Doe", Type: "PERSON"}},
			want: []models.EntityAnnotation{{Type: "PERSON", Value: "Jane"}, {Type: "PERSON", Value: "Doe"}},
		},
		{
			name: "drop other types",
			raw: []models.RawEntity{
				{Text: "Sydney", Type: "GPE"},
				{Text: "Acme Corp", Type: "ORG"},
				{Text: "Monday", Type: "DATE"},
				{Text: "Murray River", Type: "LOC"},
			},
			want: []models.EntityAnnotation{
				{Type: "ORG", Value: "Acme"},
				{Type: "ORG", Value: "Corp"},
				{Type: "LOC", Value: "Murray"},
				{Type: "LOC", Value: "River"},
			},
		},
		{
			name: "keep duplicates",
			raw: []models.RawEntity{
				{Text: "Bob", Type: "PERSON"},
				{Text: "Bob", Type: "PERSON"},
			},
			want: []models.EntityAnnotation{{Type: "PERSON", Value: "Bob"}, {Type: "PERSON", Value: "Bob"}},
		},
		{
			name: "collapse whitespace",
			raw:  []models.RawEntity{{Text: "  New\tSouth  Wales ", Type: "LOC"}},
			want: []models.EntityAnnotation{
				{Type: "LOC", Value: "New"},
				{Type: "LOC", Value: "South"},
				{Type: "LOC", Value: "Wales"},
			},
		},
		{name: "blank span", raw: []models.RawEntity{{Text: "   ", Type: "ORG"}}, want: []models.EntityAnnotation{}},
		{name: "lowercase type is not allowed", raw: []models.RawEntity{{Text: "Acme", Type: "org"}}, want: []models.EntityAnnotation{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enrichment.NormalizeEntities(tt.raw)
			require.NotNil(t, got)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeEntitiesOnlyAllowedAtomicTokens(t *testing.T) {
	raw := []models.RawEntity{
		{Text: "Prime Minister Kevin Rudd", Type: "PERSON"},
		{Text: "United Nations", Type: "ORG"},
		{Text: "Gold Coast", Type: "LOC"},
		{Text: "Queensland", Type: "GPE"},
		{Text: "2007", Type: "DATE"},
		{Text: "Australian", Type: "NORP"},
	}

	allowed := map[string]bool{"PERSON": true, "ORG": true, "LOC": true}
	for _, ent := range enrichment.NormalizeEntities(raw) {
		require.True(t, allowed[ent.Type], "unexpected type %q", ent.Type)
		require.NotEmpty(t, ent.Value)
		require.False(t, strings.ContainsAny(ent.Value, " \t\n\r"), "value %q has whitespace", ent.Value)
	}
}

func TestClassifySentiment(t *testing.T) {
	tests := []struct {
		polarity float64
		want     models.Sentiment
	}{
		{polarity: 0.5, want: models.SentimentPositive},
		{polarity: 1, want: models.SentimentPositive},
		{polarity: 0.0001, want: models.SentimentPositive},
		{polarity: -0.2, want: models.SentimentNegative},
		{polarity: -1, want: models.SentimentNegative},
		{polarity: 0.0, want: models.SentimentNeutral},
		{polarity: math.NaN(), want: models.SentimentNeutral},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, enrichment.ClassifySentiment(tt.polarity), "polarity %v", tt.polarity)
	}
}

func TestDerive(t *testing.T) {
	got := enrichment.Derive(models.Analysis{
		Entities:     []models.RawEntity{{Text: "Acme Ltd", Type: "ORG"}, {Text: "Tuesday", Type: "DATE"}},
		Polarity:     -0.4,
		Subjectivity: 0.9,
	})

	require.Equal(t, models.SentimentNegative, got.Sentiment)
	require.Equal(t, []models.EntityAnnotation{{Type: "ORG", Value: "Acme"}, {Type: "ORG", Value: "Ltd"}}, got.Entities)
}
