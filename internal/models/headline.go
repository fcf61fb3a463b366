package models

import "time"

// Sentiment is the three-way label derived from a polarity score.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Entity types kept by enrichment.
const (
	EntityPerson       = "PERSON"
	EntityOrganization = "ORG"
	EntityLocation     = "LOC"
)

// HeadlineDocument is the canonical headline record kept in the document store.
// Entities and Sentiment stay nil until the first enrichment pass.
type HeadlineDocument struct {
	ID          string             `json:"id" bson:"_id"`
	Text        string             `json:"headline_text" bson:"headline_text"`
	PublishDate *time.Time         `json:"publish_date,omitempty" bson:"publish_date,omitempty"`
	Entities    []EntityAnnotation `json:"sentiment_entities,omitempty" bson:"sentiment_entities,omitempty"`
	Sentiment   Sentiment          `json:"sentiment,omitempty" bson:"sentiment,omitempty"`
}

// Enriched reports whether the derived fields have been written.
func (d HeadlineDocument) Enriched() bool {
	return d.Sentiment != ""
}

// EntityAnnotation is a single (type, token) pair.
type EntityAnnotation struct {
	Type  string `json:"type" bson:"type"`
	Value string `json:"value" bson:"value"`
}

// EntityFrequencyRow is one line of the top-entities report.
type EntityFrequencyRow struct {
	Entity EntityAnnotation `json:"entity"`
	Count  int              `json:"count"`
}

// Enrichment holds the derived fields written by a single update.
type Enrichment struct {
	Entities  []EntityAnnotation `json:"sentiment_entities" bson:"sentiment_entities"`
	Sentiment Sentiment          `json:"sentiment" bson:"sentiment"`
}

// RawEntity is an entity span as reported by a text analyzer.
type RawEntity struct {
	Text string
	Type string
}

// Analysis is the output of a text analyzer for one piece of text.
type Analysis struct {
	Entities     []RawEntity
	Polarity     float64
	Subjectivity float64
}
