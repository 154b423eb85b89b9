package diff

type lineOp int

const (
	opEqual lineOp = iota
	opDelete
	opInsert
)

// myersOps computes a shortest edit script between two line slices using the
// greedy O(N*D) algorithm from Myers' "An O(ND) Difference Algorithm and Its
// Variations". The returned ops walk both inputs front to back; ties are
// resolved the same way on every run, so identical inputs always produce the
// identical script.
func myersOps(from []string, to []string) []lineOp {
	n, m := len(from), len(to)
	max := n + m
	if max == 0 {
		return nil
	}

	// v[idx(k)] holds the furthest x reached on diagonal k; trace keeps one
	// snapshot per edit distance for the backtracking pass.
	idx := func(k int) int { return k + max }
	v := make([]int, 2*max+1)
	var trace [][]int

	depth := -1
search:
	for d := 0; d <= max; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[idx(k-1)] < v[idx(k+1)]) {
				x = v[idx(k+1)]
			} else {
				x = v[idx(k-1)] + 1
			}
			y := x - k
			for x < n && y < m && from[x] == to[y] {
				x++
				y++
			}
			v[idx(k)] = x
			if x >= n && y >= m {
				depth = d
				break search
			}
		}
	}

	// Walk back from (n, m) to (0, 0), recording one op per step.
	reversed := make([]lineOp, 0, max)
	x, y := n, m
	for d := depth; d >= 0; d-- {
		prev := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && prev[idx(k-1)] < prev[idx(k+1)]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := prev[idx(prevK)]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			reversed = append(reversed, opEqual)
			x--
			y--
		}
		if d > 0 {
			if x == prevX {
				reversed = append(reversed, opInsert)
				y--
			} else {
				reversed = append(reversed, opDelete)
				x--
			}
		}
	}

	ops := make([]lineOp, len(reversed))
	for i, op := range reversed {
		ops[len(reversed)-1-i] = op
	}
	return ops
}
