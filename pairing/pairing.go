// Package pairing implements the CPU-bound batch computations that run
// behind the async queue: partner pairings and group insight summaries
// over a group's participants.
package pairing

import (
	"sort"

	"github.com/knowandlove/classquiz-go/db"
)

// Pair is one generated partnership. A group with an odd participant
// count ends with one trio.
type Pair struct {
	Members []db.Participant `json:"members"`
	Score   int              `json:"score"`
}

// Pairings is the full result for one group
type Pairings struct {
	GroupID string `json:"groupId"`
	Pairs   []Pair `json:"pairs"`
}

// Insights summarizes the personality distribution of a group
type Insights struct {
	GroupID      string         `json:"groupId"`
	Total        int            `json:"total"`
	Distribution map[string]int `json:"distribution"`
	Dominant     string         `json:"dominant"`
}

// Complementary type pairs score highest; matching a participant with
// their complement is the whole point of the exercise.
var complements = map[string]string{
	"Meerkat":  "Owl",
	"Owl":      "Meerkat",
	"Panda":    "Otter",
	"Otter":    "Panda",
	"Beaver":   "Parrot",
	"Parrot":   "Beaver",
	"Elephant": "Collie",
	"Collie":   "Elephant",
}

func pairScore(a, b db.Participant) int {
	switch {
	case complements[a.Animal] == b.Animal:
		return 100
	case a.Animal == b.Animal:
		return 20
	default:
		return 60
	}
}

type candidate struct {
	i, j  int
	score int
}

// GeneratePairings scores every participant pair and greedily selects
// the best non-overlapping set. Quadratic in the group size, which is
// why it runs off the request path. Deterministic for a given input
// order.
func GeneratePairings(groupID string, participants []db.Participant) Pairings {
	n := len(participants)
	result := Pairings{GroupID: groupID, Pairs: []Pair{}}
	if n < 2 {
		return result
	}

	candidates := make([]candidate, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			candidates = append(candidates, candidate{
				i: i, j: j,
				score: pairScore(participants[i], participants[j]),
			})
		}
	}

	// Stable order: score descending, then input position for ties
	sort.SliceStable(candidates, func(a, b int) bool {
		if candidates[a].score != candidates[b].score {
			return candidates[a].score > candidates[b].score
		}
		if candidates[a].i != candidates[b].i {
			return candidates[a].i < candidates[b].i
		}
		return candidates[a].j < candidates[b].j
	})

	used := make([]bool, n)
	for _, c := range candidates {
		if used[c.i] || used[c.j] {
			continue
		}
		used[c.i], used[c.j] = true, true
		result.Pairs = append(result.Pairs, Pair{
			Members: []db.Participant{participants[c.i], participants[c.j]},
			Score:   c.score,
		})
	}

	// Odd participant joins the last pair as a trio
	for i, wasUsed := range used {
		if !wasUsed {
			last := len(result.Pairs) - 1
			result.Pairs[last].Members = append(result.Pairs[last].Members, participants[i])
		}
	}

	return result
}

// GenerateInsights tallies the personality distribution for a group
func GenerateInsights(groupID string, participants []db.Participant) Insights {
	insights := Insights{
		GroupID:      groupID,
		Total:        len(participants),
		Distribution: make(map[string]int),
	}

	for _, p := range participants {
		insights.Distribution[p.Animal]++
	}

	best := 0
	animals := make([]string, 0, len(insights.Distribution))
	for animal := range insights.Distribution {
		animals = append(animals, animal)
	}
	sort.Strings(animals)
	for _, animal := range animals {
		if insights.Distribution[animal] > best {
			best = insights.Distribution[animal]
			insights.Dominant = animal
		}
	}

	return insights
}
