package engine

import (
	"context"
	"math"
	"strings"

	"github.com/Siriusbar/SlopedIn/internal/domain"
	"github.com/Siriusbar/SlopedIn/internal/inference"
)

// Labels produced by the lexicon engine, matching the detector model's.
const (
	LabelFake = "Fake"
	LabelReal = "Real"
)

// DefaultPhrases are stock phrases over-represented in generated posts.
var DefaultPhrases = []string{
	"delve",
	"tapestry",
	"testament to",
	"in today's fast-paced",
	"ever-evolving",
	"game-changer",
	"game changer",
	"unlock the power",
	"navigating the",
	"i'm thrilled to announce",
	"i am thrilled to announce",
	"humbled and honored",
	"let that sink in",
	"here's the thing",
	"the secret sauce",
	"at the end of the day",
	"it's not just",
	"key takeaways",
	"in conclusion",
	"embark on",
	"leverage",
	"synergy",
	"seamlessly",
	"elevate your",
	"agree?",
	"thoughts?",
	"🚀",
	"💡",
	"👇",
}

// densityScale controls how quickly phrase density saturates the score.
const densityScale = 4.0

// LexiconEngine scores text by stock-phrase density. It needs no network or
// model download.
type LexiconEngine struct {
	phrases []string
}

// NewLexiconEngine creates an engine over phrases, or DefaultPhrases if none.
func NewLexiconEngine(phrases ...string) *LexiconEngine {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	lowered := make([]string, len(phrases))
	for i, p := range phrases {
		lowered[i] = strings.ToLower(p)
	}
	return &LexiconEngine{phrases: lowered}
}

// Initialize implements inference.Engine.
func (e *LexiconEngine) Initialize(context.Context) (inference.Handle, error) {
	return inference.HandleFunc(e.run), nil
}

func (e *LexiconEngine) run(ctx context.Context, text string, topK int) ([]domain.LabelScore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fake := e.Score(text)
	ranking := []domain.LabelScore{
		{Label: LabelFake, Score: fake},
		{Label: LabelReal, Score: 1 - fake},
	}
	return topRanked(ranking, topK), nil
}

// Score is the fake-class probability for text: phrase hits per hundred
// words mapped onto [0, 1).
func (e *LexiconEngine) Score(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}

	lowered := strings.ToLower(text)
	hits := 0
	for _, p := range e.phrases {
		hits += strings.Count(lowered, p)
	}

	density := float64(hits) * 100 / float64(words)
	return 1 - math.Exp(-density/densityScale)
}
