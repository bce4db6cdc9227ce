package classify

import (
	"testing"
	"time"

	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/ports"
)

func TestClassifyBelowRelevanceFloorReturnsNil(t *testing.T) {
	c := New(DefaultLexicon())
	item := ports.RawItem{Title: "unrelated weather update", Body: "nothing to see here", Origin: "rss"}

	got := c.Classify(item, []string{"election"}, nil)
	if got != nil {
		t.Fatalf("Classify() = %+v, want nil below the relevance floor", got)
	}
}

func TestClassifySourceLexiconWinsOverOrigin(t *testing.T) {
	c := New(DefaultLexicon())
	item := ports.RawItem{
		Source:      "state election regulator office",
		Title:       "regulator approves new rule",
		Body:        "the regulator approves and confirms the rule change",
		Origin:      "social_rss", // would classify speculative if source didn't match first
		PublishedAt: time.Now(),
	}

	sig := c.Classify(item, []string{"regulator", "rule"}, nil)
	if sig == nil {
		t.Fatal("Classify() = nil, want a signal")
	}
	if sig.Type != domain.SignalAuthoritative {
		t.Errorf("Type = %s, want authoritative (source lexicon must win)", sig.Type)
	}
	if sig.Direction != domain.DirectionUp {
		t.Errorf("Direction = %s, want up", sig.Direction)
	}
}

func TestClassifyFallsBackToOriginThenSpeculative(t *testing.T) {
	c := New(DefaultLexicon())

	withOrigin := ports.RawItem{Source: "nobody", Title: "poll numbers shift", Body: "poll numbers shift", Origin: "polling"}
	sig := c.Classify(withOrigin, []string{"poll"}, nil)
	if sig == nil || sig.Type != domain.SignalQuantitative {
		t.Fatalf("origin fallback: got %+v, want quantitative", sig)
	}

	unknownOrigin := ports.RawItem{Source: "nobody", Title: "poll numbers shift", Body: "poll numbers shift", Origin: "carrier_pigeon"}
	sig2 := c.Classify(unknownOrigin, []string{"poll"}, nil)
	if sig2 == nil || sig2.Type != domain.SignalSpeculative {
		t.Fatalf("unknown origin: got %+v, want speculative", sig2)
	}
}

func TestClassifyConflictsWithMajorityHistory(t *testing.T) {
	c := New(DefaultLexicon())
	history := []domain.Signal{
		{Direction: domain.DirectionUp},
		{Direction: domain.DirectionUp},
		{Direction: domain.DirectionDown},
	}
	item := ports.RawItem{Source: "court", Title: "court rejects and denies the appeal", Body: "court rejects and denies", Origin: "rss"}

	sig := c.Classify(item, []string{"court", "appeal"}, history)
	if sig == nil {
		t.Fatal("Classify() = nil")
	}
	if sig.Direction != domain.DirectionDown {
		t.Fatalf("Direction = %s, want down", sig.Direction)
	}
	if !sig.ConflictsWithExisting {
		t.Error("ConflictsWithExisting = false, want true against an up-majority history")
	}
}

func TestClassifyNeutralDirectionNeverConflicts(t *testing.T) {
	c := New(DefaultLexicon())
	history := []domain.Signal{{Direction: domain.DirectionUp}, {Direction: domain.DirectionUp}}
	item := ports.RawItem{Source: "registry", Title: "registry filing update notice", Body: "registry filing update notice", Origin: "rss"}

	sig := c.Classify(item, []string{"registry", "filing"}, history)
	if sig == nil {
		t.Fatal("Classify() = nil")
	}
	if sig.Direction != domain.DirectionNeutral {
		t.Fatalf("Direction = %s, want neutral", sig.Direction)
	}
	if sig.ConflictsWithExisting {
		t.Error("ConflictsWithExisting = true, want false for a neutral signal")
	}
}

func TestNewSignalRejectsOutOfRangeStrength(t *testing.T) {
	if _, err := NewSignal(domain.SignalProcedural, domain.DirectionUp, 0, false, time.Now(), "s", "d"); err == nil {
		t.Error("NewSignal(strength=0) error = nil, want error")
	}
	if _, err := NewSignal(domain.SignalProcedural, domain.DirectionUp, 6, false, time.Now(), "s", "d"); err == nil {
		t.Error("NewSignal(strength=6) error = nil, want error")
	}
	if _, err := NewSignal(domain.SignalProcedural, domain.DirectionUp, 5, false, time.Now(), "s", "d"); err != nil {
		t.Errorf("NewSignal(strength=5) error = %v, want nil", err)
	}
}
