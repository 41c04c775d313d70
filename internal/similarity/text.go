package similarity

import (
	"strings"

	"github.com/arbiscout/arbiscout/internal/extract"
)

// TextSimilarity scores two product titles in [0, 1]. Both titles are
// cleaned and lowercased, then a character-level sequence ratio and a
// token-level Jaccard index are combined 0.4/0.6. Returns 0 when either
// cleaned title is empty.
//
// The score must not depend on argument order, so the sequence ratio is
// computed on a canonical ordering of the two strings.
func TextSimilarity(title1, title2 string) float64 {
	clean1 := strings.ToLower(extract.CleanTitle(title1))
	clean2 := strings.ToLower(extract.CleanTitle(title2))

	if clean1 == "" || clean2 == "" {
		return 0.0
	}

	a, b := clean1, clean2
	if a > b {
		a, b = b, a
	}
	charRatio := sequenceRatio(a, b)
	wordSim := jaccard(clean1, clean2)

	return charRatio*0.4 + wordSim*0.6
}

// jaccard computes |A∩B| / |A∪B| over whitespace-split word sets.
func jaccard(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0.0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

// sequenceRatio is the classic longest-matching-block similarity:
// 2*M / (len(a)+len(b)) where M is the total length of all matching
// blocks found by recursively splitting around the longest common block.
func sequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1.0
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0.0
	}
	matched := matchingTotal(ra, rb)
	return 2.0 * float64(matched) / float64(len(ra)+len(rb))
}

type span struct {
	alo, ahi, blo, bhi int
}

// matchingTotal sums the sizes of all matching blocks between a and b.
func matchingTotal(a, b []rune) int {
	// Index of positions per rune in b, rebuilt per call; titles are short
	// so this stays cheap.
	b2j := make(map[rune][]int, len(b))
	for j, r := range b {
		b2j[r] = append(b2j[r], j)
	}

	total := 0
	queue := []span{{0, len(a), 0, len(b)}}
	for len(queue) > 0 {
		s := queue[len(queue)-1]
		queue = queue[:len(queue)-1]

		i, j, size := longestMatch(a, b2j, s)
		if size == 0 {
			continue
		}
		total += size
		if s.alo < i && s.blo < j {
			queue = append(queue, span{s.alo, i, s.blo, j})
		}
		if i+size < s.ahi && j+size < s.bhi {
			queue = append(queue, span{i + size, s.ahi, j + size, s.bhi})
		}
	}
	return total
}

// longestMatch finds the longest block a[i:i+size] == b[j:j+size] within
// the given span, preferring the earliest block in a on ties.
func longestMatch(a []rune, b2j map[rune][]int, s span) (besti, bestj, bestsize int) {
	besti, bestj = s.alo, s.blo

	// j2len[j] = length of the longest match ending at a[i-1], b[j-1].
	j2len := make(map[int]int)
	for i := s.alo; i < s.ahi; i++ {
		newj2len := make(map[int]int)
		for _, j := range b2j[a[i]] {
			if j < s.blo {
				continue
			}
			if j >= s.bhi {
				break
			}
			k := j2len[j-1] + 1
			newj2len[j] = k
			if k > bestsize {
				besti, bestj, bestsize = i-k+1, j-k+1, k
			}
		}
		j2len = newj2len
	}
	return besti, bestj, bestsize
}
