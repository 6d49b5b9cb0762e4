package sentiment

import (
	"context"
	"math"
	"strings"
	"unicode"
)

// Analyzer scores text on a compound scale in [-1,1]
type Analyzer interface {
	Score(ctx context.Context, text string) (float64, error)
}

const (
	// normalization constant for the compound score
	alpha = 15.0

	boostIncrement   = 0.293
	capsIncrement    = 0.733
	negationScalar   = -0.74
	exclamationBoost = 0.292
	maxExclamations  = 4
)

var negations = map[string]bool{
	"not": true, "no": true, "never": true, "nothing": true, "nobody": true,
	"none": true, "neither": true, "nor": true, "without": true, "cannot": true,
	"can't": true, "cant": true, "don't": true, "dont": true, "doesn't": true,
	"doesnt": true, "didn't": true, "didnt": true, "isn't": true, "isnt": true,
	"wasn't": true, "wasnt": true, "won't": true, "wont": true, "aren't": true,
	"haven't": true, "hasn't": true, "wouldn't": true, "shouldn't": true,
}

var boosters = map[string]float64{
	"absolutely": boostIncrement, "completely": boostIncrement, "extremely": boostIncrement,
	"really": boostIncrement, "so": boostIncrement, "totally": boostIncrement,
	"very": boostIncrement, "incredibly": boostIncrement, "highly": boostIncrement,
	"super": boostIncrement, "such": boostIncrement, "utterly": boostIncrement,
	"barely": -boostIncrement, "slightly": -boostIncrement, "somewhat": -boostIncrement,
	"hardly": -boostIncrement, "kinda": -boostIncrement, "marginally": -boostIncrement,
	"little": -boostIncrement, "partly": -boostIncrement,
}

// Lexicon is a rule-based analyzer in the style of VADER: word valences,
// boosters, negation, contrastive "but", caps emphasis and exclamation marks.
type Lexicon struct {
	valences map[string]float64
}

// NewLexicon returns an analyzer backed by the built-in contact-center lexicon
func NewLexicon() *Lexicon {
	return &Lexicon{valences: defaultValences}
}

// Score implements Analyzer
func (l *Lexicon) Score(_ context.Context, text string) (float64, error) {
	return l.Compound(text), nil
}

// Compound returns the normalized sentiment of text
func (l *Lexicon) Compound(text string) float64 {
	raw := strings.Fields(text)
	if len(raw) == 0 {
		return 0
	}

	words := make([]string, 0, len(raw))
	shouting := make([]bool, 0, len(raw))
	for _, w := range raw {
		clean := strings.TrimFunc(w, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
		})
		if clean == "" {
			continue
		}
		words = append(words, strings.ToLower(clean))
		shouting = append(shouting, isShouted(clean))
	}
	mixedCase := !allTrue(shouting)

	butIndex := -1
	for i, w := range words {
		if w == "but" {
			butIndex = i
			break
		}
	}

	var sum float64
	for i, w := range words {
		v, ok := l.valences[w]
		if !ok {
			continue
		}
		if shouting[i] && mixedCase {
			v += math.Copysign(capsIncrement, v)
		}
		for back := 1; back <= 3 && i-back >= 0; back++ {
			prev := words[i-back]
			if b, ok := boosters[prev]; ok {
				scale := b
				if back == 2 {
					scale *= 0.95
				} else if back == 3 {
					scale *= 0.9
				}
				v += math.Copysign(scale, v)
			}
			if negations[prev] {
				v *= negationScalar
			}
		}
		if butIndex >= 0 {
			if i < butIndex {
				v *= 0.5
			} else if i > butIndex {
				v *= 1.5
			}
		}
		sum += v
	}

	if sum != 0 {
		bangs := strings.Count(text, "!")
		if bangs > maxExclamations {
			bangs = maxExclamations
		}
		sum += math.Copysign(float64(bangs)*exclamationBoost, sum)
	}

	compound := sum / math.Sqrt(sum*sum+alpha)
	return math.Max(-1, math.Min(1, compound))
}

func isShouted(w string) bool {
	letters := 0
	for _, r := range w {
		if unicode.IsLetter(r) {
			letters++
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return letters > 1
}

func allTrue(v []bool) bool {
	for _, b := range v {
		if !b {
			return false
		}
	}
	return true
}
