// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package qsort provides Hoare-partition quicksort and quickselect over []float32,
// used for median/top-K selection in frame and AP ranking.
package qsort

// QSortFloat32 sorts a in place via quicksort with Hoare partitioning.
func QSortFloat32(a []float32) {
	if len(a) < 2 {
		return
	}
	qsortRange(a, 0, len(a)-1)
}

func qsortRange(a []float32, lo, hi int) {
	for lo < hi {
		p := qpartitionFloat32(a, lo, hi)
		if p-lo < hi-p {
			qsortRange(a, lo, p)
			lo = p + 1
		} else {
			qsortRange(a, p+1, hi)
			hi = p
		}
	}
}

// QPartitionFloat32 partitions a[lo..hi] around a pivot using the Hoare scheme
// and returns the split index such that a[lo..p] <= a[p+1..hi].
func QPartitionFloat32(a []float32, lo, hi int) int {
	return qpartitionFloat32(a, lo, hi)
}

func qpartitionFloat32(a []float32, lo, hi int) int {
	pivot := a[(lo+hi)/2]
	i, j := lo-1, hi+1
	for {
		for {
			i++
			if a[i] >= pivot {
				break
			}
		}
		for {
			j--
			if a[j] <= pivot {
				break
			}
		}
		if i >= j {
			return j
		}
		a[i], a[j] = a[j], a[i]
	}
}

// QSelectFloat32 returns the k-th smallest element (0-based) of a, reordering a
// in place. It does not fully sort a.
func QSelectFloat32(a []float32, k int) float32 {
	lo, hi := 0, len(a)-1
	for lo < hi {
		p := qpartitionFloat32(a, lo, hi)
		if k <= p {
			hi = p
		} else {
			lo = p + 1
		}
	}
	return a[k]
}

// QSelectMedianFloat32 returns the median of a, reordering a in place. For an
// even-length slice it returns the mean of the two central elements.
func QSelectMedianFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	if n&1 != 0 {
		return QSelectFloat32(a, n/2)
	}
	lo := QSelectFloat32(a, n/2-1)
	// A second full quickselect over a finds the upper central element.
	hi := QSelectFloat32(a, n/2)
	return 0.5 * (lo + hi)
}

// QSelectFirstQuartileFloat32 returns the first quartile of a, reordering a in place.
func QSelectFirstQuartileFloat32(a []float32) float32 {
	n := len(a)
	if n == 0 {
		return 0
	}
	return QSelectFloat32(a, n/4)
}

// TopKIndices returns the indices of the k largest values in scores, sorted by
// score descending with ties broken by ascending index, matching the stable
// tie-breaking spec for frame/AP ranking. It does not mutate scores.
func TopKIndices(scores []float32, k int) []int {
	n := len(scores)
	if k > n {
		k = n
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	// Simple stable insertion-based top-k selection; n is always small (frame
	// counts and AP counts in this domain, not general-purpose big data).
	for i := 1; i < n; i++ {
		j := i
		for j > 0 && less(scores, idx[j], idx[j-1]) {
			idx[j], idx[j-1] = idx[j-1], idx[j]
			j--
		}
	}
	return idx[:k]
}

// less reports whether idx[a] should sort before idx[b]: higher score first,
// lower index breaks ties.
func less(scores []float32, a, b int) bool {
	if scores[a] != scores[b] {
		return scores[a] > scores[b]
	}
	return a < b
}
