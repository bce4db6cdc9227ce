// Package classify implements C1: deterministic tagging of a raw observation
// into a Signal, or rejection below the relevance floor. Classification
// itself never errors; it only ever returns a Signal or nothing.
package classify

import (
	"math"
	"strings"
	"time"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

// Lexicon maps source/origin strings to a signal class and carries the
// up/down indicator words used for direction scoring. A zero-value Lexicon
// falls back to DefaultLexicon.
type Lexicon struct {
	ClassBySource map[string]domain.SignalType
	ClassByOrigin map[string]domain.SignalType
	UpWords       []string
	DownWords     []string
}

// DefaultLexicon is a minimal, deliberately small lexicon: production
// deployments supply a richer one via configuration. It is ordered so that
// ClassBySource takes priority and ClassByOrigin is the fallback.
func DefaultLexicon() Lexicon {
	return Lexicon{
		ClassBySource: map[string]domain.SignalType{
			"regulator": domain.SignalAuthoritative,
			"court":     domain.SignalAuthoritative,
			"registry":  domain.SignalAuthoritative,
			"filing":    domain.SignalProcedural,
			"schedule":  domain.SignalProcedural,
			"poll":      domain.SignalQuantitative,
			"metrics":   domain.SignalQuantitative,
			"analysis":  domain.SignalInterpretive,
			"opinion":   domain.SignalInterpretive,
		},
		ClassByOrigin: map[string]domain.SignalType{
			"rss":        domain.SignalProcedural,
			"social_rss": domain.SignalSpeculative,
			"hn":         domain.SignalInterpretive,
			"social_api": domain.SignalSpeculative,
			"polling":    domain.SignalQuantitative,
		},
		UpWords:   []string{"approve", "confirm", "pass", "win", "surge", "gain"},
		DownWords: []string{"reject", "deny", "fail", "lose", "collapse", "decline"},
	}
}

// Classifier turns raw items into Signals.
type Classifier struct {
	lexicon Lexicon
}

// New constructs a Classifier with the given lexicon. A zero Lexicon value
// is replaced with DefaultLexicon.
func New(lexicon Lexicon) *Classifier {
	if lexicon.ClassBySource == nil && lexicon.ClassByOrigin == nil {
		lexicon = DefaultLexicon()
	}
	return &Classifier{lexicon: lexicon}
}

const relevanceFloor = 0.3

// Classify applies the procedure of §4.1 and returns nil if the item is
// below the relevance floor.
func (c *Classifier) Classify(item ports.RawItem, keywords []string, recentHistory []domain.Signal) *domain.Signal {
	relevance := c.relevance(item, keywords)
	if relevance < relevanceFloor {
		return nil
	}

	sigType := c.class(item)
	direction := c.direction(item)
	strength := c.strength(sigType, relevance)
	conflicts := c.conflicts(direction, recentHistory)

	return &domain.Signal{
		Type:                  sigType,
		Direction:             direction,
		Strength:              strength,
		ConflictsWithExisting: conflicts,
		Timestamp:             item.PublishedAt,
		Source:                item.Source,
		Description:           item.Title,
	}
}

func (c *Classifier) relevance(item ports.RawItem, keywords []string) float64 {
	titleHits := countHits(item.Title, keywords)
	bodyHits := countHits(item.Body, keywords)
	r := 0.3*float64(titleHits) + 0.15*float64(bodyHits)
	if r < 0 {
		r = 0
	}
	if r > 1 {
		r = 1
	}
	return r
}

func countHits(text string, keywords []string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		hits += strings.Count(lower, strings.ToLower(kw))
	}
	return hits
}

// class applies the source lexicon first, taking the highest-credibility
// class when several source keys match, then falls back to the origin
// lexicon, then to speculative.
func (c *Classifier) class(item ports.RawItem) domain.SignalType {
	lower := strings.ToLower(item.Source)
	var best domain.SignalType
	found := false
	for key, class := range c.lexicon.ClassBySource {
		if strings.Contains(lower, key) && (!found || classCredibility[class] > classCredibility[best]) {
			best, found = class, true
		}
	}
	if found {
		return best
	}
	if class, ok := c.lexicon.ClassByOrigin[item.Origin]; ok {
		return class
	}
	return domain.SignalSpeculative
}

func (c *Classifier) direction(item ports.RawItem) domain.Direction {
	text := strings.ToLower(item.Title + " " + item.Body)
	score := 0
	for _, w := range c.lexicon.UpWords {
		score += strings.Count(text, w)
	}
	for _, w := range c.lexicon.DownWords {
		score -= strings.Count(text, w)
	}
	switch {
	case score > 0:
		return domain.DirectionUp
	case score < 0:
		return domain.DirectionDown
	default:
		return domain.DirectionNeutral
	}
}

// classCredibility ranks classes for the strength formula, highest first.
var classCredibility = map[domain.SignalType]float64{
	domain.SignalAuthoritative: 1.0,
	domain.SignalProcedural:    0.8,
	domain.SignalQuantitative:  0.6,
	domain.SignalInterpretive:  0.4,
	domain.SignalSpeculative:   0.2,
}

func (c *Classifier) strength(sigType domain.SignalType, relevance float64) int {
	credibility := classCredibility[sigType]
	raw := 1 + 4*(0.5*credibility+0.5*relevance)
	strength := int(math.Floor(raw + 0.5)) // round-half-up
	if strength < 1 {
		strength = 1
	}
	if strength > 5 {
		strength = 5
	}
	return strength
}

func (c *Classifier) conflicts(direction domain.Direction, recentHistory []domain.Signal) bool {
	if direction == domain.DirectionNeutral || len(recentHistory) == 0 {
		return false
	}
	up, down := 0, 0
	for _, s := range recentHistory {
		switch s.Direction {
		case domain.DirectionUp:
			up++
		case domain.DirectionDown:
			down++
		}
	}
	majority := domain.DirectionNeutral
	switch {
	case up > down:
		majority = domain.DirectionUp
	case down > up:
		majority = domain.DirectionDown
	}
	return majority != domain.DirectionNeutral && direction != majority
}

// NewSignal is a helper for constructing a Signal whose strength
// is known to be valid, enforcing the §8 boundary behavior that strength 0
// or 6 is a construction error.
func NewSignal(sigType domain.SignalType, direction domain.Direction, strength int, conflicts bool, ts time.Time, source, description string) (domain.Signal, error) {
	if strength < 1 || strength > 5 {
		return domain.Signal{}, &strengthError{strength: strength}
	}
	return domain.Signal{
		Type:                  sigType,
		Direction:              direction,
		Strength:               strength,
		ConflictsWithExisting:  conflicts,
		Timestamp:              ts,
		Source:                 source,
		Description:            description,
	}, nil
}

type strengthError struct{ strength int }

func (e *strengthError) Error() string {
	return "signal strength must be in 1..5"
}
