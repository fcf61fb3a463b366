// Package analyzer provides a TextAnalyzer backed by prose named-entity
// recognition and a lexicon sentiment scorer.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/DeafMist/headline-radar/internal/models"
)

// ErrEmptyText is returned for text with nothing to analyze.
var ErrEmptyText = errors.New("empty text")

// labelAliases maps prose labels onto the entity types used in the store.
var labelAliases = map[string]string{
	"GPE": models.EntityLocation,
}

// ProseAnalyzer extracts entities with prose and sentiment with a Lexicon.
// It is stateless and safe for concurrent use.
type ProseAnalyzer struct {
	lexicon *Lexicon
}

// New creates an analyzer scoring sentiment with lex.
func New(lex *Lexicon) *ProseAnalyzer {
	return &ProseAnalyzer{lexicon: lex}
}

// NewDefault creates an analyzer with the embedded lexicon.
func NewDefault() (*ProseAnalyzer, error) {
	lex, err := DefaultLexicon()
	if err != nil {
		return nil, err
	}
	return New(lex), nil
}

// Analyze returns the entities and sentiment of text.
func (a *ProseAnalyzer) Analyze(ctx context.Context, text string) (models.Analysis, error) {
	if err := ctx.Err(); err != nil {
		return models.Analysis{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Analysis{}, ErrEmptyText
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return models.Analysis{}, fmt.Errorf("parse text: %w", err)
	}

	ents := doc.Entities()
	raw := make([]models.RawEntity, 0, len(ents))
	for _, ent := range ents {
		raw = append(raw, models.RawEntity{Text: ent.Text, Type: entityType(ent.Label)})
	}

	polarity, subjectivity := a.lexicon.Score(text)
	return models.Analysis{
		Entities:     raw,
		Polarity:     polarity,
		Subjectivity: subjectivity,
	}, nil
}

func entityType(label string) string {
	if alias, ok := labelAliases[label]; ok {
		return alias
	}
	return label
}
