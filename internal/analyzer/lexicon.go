package analyzer

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/DeafMist/headline-radar/internal/processing"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// negationWindow is how many words a negator reaches forward.
const negationWindow = 3

// Score is the sentiment carried by a single word.
type Score struct {
	Polarity     float64 `yaml:"polarity"`
	Subjectivity float64 `yaml:"subjectivity"`
}

// Lexicon scores text by averaging word-level sentiment.
type Lexicon struct {
	Negators     []string           `yaml:"negators"`
	Intensifiers map[string]float64 `yaml:"intensifiers"`
	Words        map[string]Score   `yaml:"words"`

	negators map[string]struct{}
}

// DefaultLexicon returns the lexicon embedded in the binary.
func DefaultLexicon() (*Lexicon, error) {
	return LoadLexicon(bytes.NewReader(defaultLexicon))
}

// LoadLexicon parses a YAML lexicon and validates its ranges.
func LoadLexicon(r io.Reader) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.NewDecoder(r).Decode(&lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}

	for word, s := range lex.Words {
		if s.Polarity < -1 || s.Polarity > 1 {
			return nil, fmt.Errorf("lexicon word %q: polarity %v out of [-1,1]", word, s.Polarity)
		}
		if s.Subjectivity < 0 || s.Subjectivity > 1 {
			return nil, fmt.Errorf("lexicon word %q: subjectivity %v out of [0,1]", word, s.Subjectivity)
		}
	}
	for word, f := range lex.Intensifiers {
		if f <= 0 {
			return nil, fmt.Errorf("lexicon intensifier %q: factor must be positive", word)
		}
	}

	lex.negators = make(map[string]struct{}, len(lex.Negators))
	for _, n := range lex.Negators {
		lex.negators[n] = struct{}{}
	}
	return &lex, nil
}

// Score returns the mean polarity and subjectivity of the scored words in
// text. A negator flips and halves the polarity of the next scored word
// within reach; an intensifier directly before a scored word scales it.
// Text without scored words is neutral and objective.
func (l *Lexicon) Score(text string) (polarity, subjectivity float64) {
	var (
		sumP, sumS float64
		scored     int
		negateFor  int
		intensity  = 1.0
	)

	for _, word := range processing.Words(text) {
		if _, ok := l.negators[word]; ok {
			negateFor = negationWindow
			continue
		}
		if f, ok := l.Intensifiers[word]; ok {
			intensity *= f
			continue
		}

		s, ok := l.Words[word]
		if !ok {
			intensity = 1
			if negateFor > 0 {
				negateFor--
			}
			continue
		}

		p := s.Polarity * intensity
		subj := s.Subjectivity * intensity
		if negateFor > 0 {
			p *= -0.5
			negateFor = 0
		}
		sumP += clamp(p, -1, 1)
		sumS += clamp(subj, 0, 1)
		scored++
		intensity = 1
	}

	if scored == 0 {
		return 0, 0
	}
	return clamp(sumP/float64(scored), -1, 1), clamp(sumS/float64(scored), 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
