package detect

import "strings"

// Category buckets a detection label for alerting and annotation.
type Category int

const (
	CategoryOther Category = iota
	CategoryPerson
	CategoryThreat
)

var categoryNames = map[Category]string{
	CategoryOther:  "other",
	CategoryPerson: "person",
	CategoryThreat: "threat",
}

func (c Category) String() string {
	if name, ok := categoryNames[c]; ok {
		return name
	}
	return "other"
}

// Classifier maps detection labels to categories from a fixed vocabulary.
type Classifier struct {
	threatWords []string
	personLabel string
}

// NewClassifier builds a classifier from the configured threat vocabulary
// and person label. Matching is case-insensitive; a threat word matches as a
// substring so model label variants like "baseball bat" still classify.
func NewClassifier(threatClasses []string, personLabel string) *Classifier {
	words := make([]string, 0, len(threatClasses))
	for _, w := range threatClasses {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	return &Classifier{
		threatWords: words,
		personLabel: strings.ToLower(personLabel),
	}
}

// Classify returns the category for a single detection label.
func (c *Classifier) Classify(label string) Category {
	l := strings.ToLower(label)
	for _, w := range c.threatWords {
		if strings.Contains(l, w) {
			return CategoryThreat
		}
	}
	if l == c.personLabel {
		return CategoryPerson
	}
	return CategoryOther
}
