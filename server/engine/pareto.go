package engine

// Lattice calls fn for every allocation of counts to agent A, from all-zero up to
// everything. fn returning false stops the walk.
func Lattice(counts Counts, fn func(Allocation) bool) {
	cur := make([]int, len(Items))
	for {
		alloc := make(Allocation, len(Items))
		for i, it := range Items {
			alloc[it] = cur[i]
		}
		if !fn(alloc) {
			return
		}
		// odometer increment, last item fastest
		i := len(Items) - 1
		for ; i >= 0; i-- {
			cur[i]++
			if cur[i] <= counts[Items[i]] {
				break
			}
			cur[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// ParetoOptimal reports whether giving allocA to agent A (and the remainder to B)
// is undominated under obj.
func ParetoOptimal(counts Counts, va, vb Values, allocA Allocation, obj Objective) bool {
	a, b := FinalScores(obj, Score(va, allocA), Score(vb, counts.Complement(allocA)))
	return ParetoOptimalScores(counts, va, vb, obj, a, b)
}

// ParetoOptimalScores reports whether no allocation gives both agents a final score
// at least as good as (curA, curB) and one of them a strictly better one.
func ParetoOptimalScores(counts Counts, va, vb Values, obj Objective, curA, curB int) bool {
	optimal := true
	Lattice(counts, func(alloc Allocation) bool {
		newA, newB := FinalScores(obj, Score(va, alloc), Score(vb, counts.Complement(alloc)))
		asGood := newA >= curA && newB >= curB
		better := newA > curA || newB > curB
		if asGood && better {
			optimal = false
			return false
		}
		return true
	})
	return optimal
}

// MaxJointScore is the best raw scoreA+scoreB any split of counts can reach.
func MaxJointScore(counts Counts, va, vb Values) int {
	best := 0
	Lattice(counts, func(alloc Allocation) bool {
		if s := Score(va, alloc) + Score(vb, counts.Complement(alloc)); s > best {
			best = s
		}
		return true
	})
	return best
}
