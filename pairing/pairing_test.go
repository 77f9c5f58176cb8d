package pairing

import (
	"reflect"
	"testing"

	"github.com/knowandlove/classquiz-go/db"
)

func participants(animals ...string) []db.Participant {
	ps := make([]db.Participant, len(animals))
	for i, animal := range animals {
		ps[i] = db.Participant{
			ID:     string(rune('a' + i)),
			Name:   "P" + string(rune('A'+i)),
			Animal: animal,
		}
	}
	return ps
}

func TestComplementsPairFirst(t *testing.T) {
	group := participants("Meerkat", "Panda", "Owl", "Otter")

	result := GeneratePairings("g1", group)

	if len(result.Pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d", len(result.Pairs))
	}
	for _, pair := range result.Pairs {
		if pair.Score != 100 {
			t.Fatalf("complementary group should pair at top score, got %d", pair.Score)
		}
	}
}

func TestOddGroupEndsWithTrio(t *testing.T) {
	group := participants("Meerkat", "Owl", "Beaver")

	result := GeneratePairings("g1", group)

	if len(result.Pairs) != 1 {
		t.Fatalf("expected a single grouping, got %d", len(result.Pairs))
	}
	if len(result.Pairs[0].Members) != 3 {
		t.Fatalf("odd participant should join as a trio, got %d members", len(result.Pairs[0].Members))
	}
}

func TestPairingsAreDeterministic(t *testing.T) {
	group := participants("Meerkat", "Panda", "Owl", "Otter", "Beaver", "Parrot")

	first := GeneratePairings("g1", group)
	second := GeneratePairings("g1", group)

	if !reflect.DeepEqual(first, second) {
		t.Fatal("same input must produce identical pairings")
	}
}

func TestTinyGroups(t *testing.T) {
	if got := GeneratePairings("g1", nil); len(got.Pairs) != 0 {
		t.Fatalf("empty group should produce no pairs: %+v", got)
	}
	if got := GeneratePairings("g1", participants("Owl")); len(got.Pairs) != 0 {
		t.Fatalf("single participant cannot be paired: %+v", got)
	}
}

func TestGenerateInsights(t *testing.T) {
	group := participants("Owl", "Owl", "Meerkat")

	insights := GenerateInsights("g1", group)

	if insights.Total != 3 {
		t.Fatalf("expected total 3, got %d", insights.Total)
	}
	if insights.Distribution["Owl"] != 2 || insights.Distribution["Meerkat"] != 1 {
		t.Fatalf("bad distribution: %v", insights.Distribution)
	}
	if insights.Dominant != "Owl" {
		t.Fatalf("expected Owl dominant, got %q", insights.Dominant)
	}
}
