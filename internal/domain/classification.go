// Package domain holds the value types shared by the discovery and inference
// sides of the pipeline.
package domain

import (
	"fmt"
	"math"
	"time"
)

// AIThreshold is the fake-class probability at or above which text is labelled AI.
const AIThreshold = 0.5

// Label is the verdict attached to a classified item.
type Label string

const (
	LabelAI    Label = "AI"
	LabelHuman Label = "Human"
)

// LabelForScore maps an AI probability to a label. Exactly 0.5 is AI.
func LabelForScore(score float64) Label {
	if score >= AIThreshold {
		return LabelAI
	}
	return LabelHuman
}

// LabelScore is one entry of an engine ranking.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassificationResult is the outcome of classifying one text.
type ClassificationResult struct {
	Label      Label        `json:"label"`
	Score      float64      `json:"score"`
	RawRanking []LabelScore `json:"rawRanking"`
}

// Percent is the score rounded to a whole percentage.
func (r ClassificationResult) Percent() int {
	return int(math.Round(r.Score * 100))
}

// Annotation is what a renderer receives once an item reaches Done.
type Annotation struct {
	Handle       string               `json:"handle"`
	Result       ClassificationResult `json:"result"`
	TextLength   int                  `json:"text_length"`
	ClassifiedAt time.Time            `json:"classified_at"`
}

// BadgeText is the short label shown next to an item.
func (a Annotation) BadgeText() string {
	if a.Result.Label == LabelAI {
		return fmt.Sprintf("🤖 %d%% AI", a.Result.Percent())
	}
	return "👤 Human"
}

// BadgeTitle is the longer hover text for the badge.
func (a Annotation) BadgeTitle() string {
	pct := a.Result.Percent()
	if a.Result.Label == LabelAI {
		return fmt.Sprintf("This post has a %d%% probability of being AI-generated.", pct)
	}
	return fmt.Sprintf("This post appears to be human-written (%d%% confidence).", 100-pct)
}
