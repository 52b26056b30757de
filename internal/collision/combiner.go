package collision

import "fmt"

// memberSet is the set of entities that belong to a self job's primary range.
type memberSet map[EntityID]struct{}

// newMemberSet indexes every roster entity and both endpoints of every pair.
// Indexing both endpoints keeps the test correct even if a producer stored a
// pair in swapped order.
func newMemberSet(pairs []CollidingPair, roster []EntityID) memberSet {
	s := make(memberSet, len(roster)+len(pairs))
	for _, id := range roster {
		s[id] = struct{}{}
	}
	for _, p := range pairs {
		s[p.A.ID] = struct{}{}
		s[p.B.ID] = struct{}{}
	}
	return s
}

func (s memberSet) has(id EntityID) bool {
	_, ok := s[id]
	return ok
}

// dedupCrossBatch keeps the pairs with exactly one endpoint in members. A true
// cross pair has one endpoint in the self job's batch and one outside it; pairs
// with both or neither endpoint inside were already reported by a self job.
// members holds the self job's whole primary roster as well as its pair
// endpoints, which keeps the rule exact for a primary entity that had no
// collisions inside its own batch.
func dedupCrossBatch(toDedup []CollidingPair, members memberSet) []CollidingPair {
	kept := make([]CollidingPair, 0, len(toDedup))
	for _, p := range toDedup {
		if members.has(p.A.ID) != members.has(p.B.ID) {
			kept = append(kept, p)
		}
	}
	return kept
}

// Combine merges per-job results into the tick's final pair set. Results must
// be in planning order: a cross job's self job has to appear before it.
func Combine(results []JobResult) ([]CollidingPair, error) {
	total := 0
	for _, r := range results {
		total += len(r.Pairs)
	}
	combined := make([]CollidingPair, 0, total)

	byIndex := make(map[int]int, len(results))
	members := make(map[int]memberSet)

	for pos, r := range results {
		byIndex[r.Index] = pos
		if r.Job.DedupAgainst == NoDedup {
			combined = append(combined, r.Pairs...)
			continue
		}

		selfPos, ok := byIndex[r.Job.DedupAgainst]
		if !ok {
			return nil, fmt.Errorf("job %d %s: %w (self job %d)", r.Index, r.Job, ErrDedupOrder, r.Job.DedupAgainst)
		}
		set, ok := members[r.Job.DedupAgainst]
		if !ok {
			self := results[selfPos]
			set = newMemberSet(self.Pairs, self.Primary)
			members[r.Job.DedupAgainst] = set
		}
		combined = append(combined, dedupCrossBatch(r.Pairs, set)...)
	}
	return combined, nil
}
