package assembler

import (
	"cmp"
	"github.com/james-bowman/sparse"
	"slices"
)

// Triplet is one (row, col, value) contribution scattered from an element
type Triplet struct {
	Row, Col int
	Value    float64
}

// Coalesce stably sorts triplets by (row, col) and sums duplicate keys in
// their original order. The input slice is reordered in place.
func Coalesce(t []Triplet) []Triplet {
	slices.SortStableFunc(t, func(a, b Triplet) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Col, b.Col)
	})
	out := t[:0]
	for _, tr := range t {
		if n := len(out); n > 0 && out[n-1].Row == tr.Row && out[n-1].Col == tr.Col {
			out[n-1].Value += tr.Value
			continue
		}
		out = append(out, tr)
	}
	return out
}

// Compress builds a CSR matrix from triplets, summing duplicates
func Compress(rows, cols int, t []Triplet) *sparse.CSR {
	t = Coalesce(t)
	ia := make([]int, rows+1)
	ja := make([]int, len(t))
	data := make([]float64, len(t))
	for k, tr := range t {
		ia[tr.Row+1]++
		ja[k] = tr.Col
		data[k] = tr.Value
	}
	for i := 0; i < rows; i++ {
		ia[i+1] += ia[i]
	}
	return sparse.NewCSR(rows, cols, ia, ja, data)
}

// Triplets extracts the stored entries of a CSR matrix in row-major order
func Triplets(m *sparse.CSR) []Triplet {
	t := make([]Triplet, 0, m.NNZ())
	m.DoNonZero(func(i, j int, v float64) {
		t = append(t, Triplet{Row: i, Col: j, Value: v})
	})
	return t
}
