package dedup

import (
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// scoreEpsilon absorbs float error so a score of exactly the threshold counts as similar.
const scoreEpsilon = 1e-9

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes.
// Two empty strings are identical.
func Similarity(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Weights splits the combined score between title and description.
type Weights struct {
	Title       float64
	Description float64
}

// Combined scores two already folded title/description pairs. When either description is
// empty the title similarity alone is the score.
func Combined(titleA, descA, titleB, descB string, w Weights) float64 {
	title := Similarity(titleA, titleB)
	if descA == "" || descB == "" {
		return title
	}
	total := w.Title + w.Description
	if total <= 0 {
		return title
	}
	return (w.Title*title + w.Description*Similarity(descA, descB)) / total
}

// AtLeast compares a score to a threshold inclusively.
func AtLeast(score, threshold float64) bool {
	return score+scoreEpsilon >= threshold
}
