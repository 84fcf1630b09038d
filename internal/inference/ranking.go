package inference

import (
	"strings"

	"github.com/Siriusbar/SlopedIn/internal/domain"
)

// DeriveResult turns an engine ranking into a classification. The AI score
// is the probability of the entry whose label equals fakeLabel, ignoring
// case. found is false when no such entry exists; the score is then 0.
func DeriveResult(ranking []domain.LabelScore, fakeLabel string) (result domain.ClassificationResult, found bool) {
	var score float64
	for _, entry := range ranking {
		if strings.EqualFold(entry.Label, fakeLabel) {
			score = entry.Score
			found = true
			break
		}
	}

	raw := make([]domain.LabelScore, len(ranking))
	copy(raw, ranking)

	return domain.ClassificationResult{
		Label:      domain.LabelForScore(score),
		Score:      score,
		RawRanking: raw,
	}, found
}

// Truncate cuts text to at most limit runes. A limit <= 0 disables it.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}
