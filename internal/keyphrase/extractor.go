package keyphrase

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// Extractor pulls short key phrases out of free text
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

const (
	defaultTopN      = 5
	minPhraseLength  = 3
	minTextLength    = 3
	bigramWeightBias = 1.5
)

// Frequency ranks one- and two-word phrases by how often their content words
// occur in the text. Stopwords and greetings never start or end a phrase.
type Frequency struct {
	topN      int
	stopwords map[string]bool
}

// NewFrequency returns an extractor with the built-in stopword list
func NewFrequency(topN int) *Frequency {
	if topN <= 0 {
		topN = defaultTopN
	}
	return &Frequency{
		topN:      topN,
		stopwords: stopwords,
	}
}

type candidate struct {
	phrase string
	score  float64
	first  int
}

// Extract implements Extractor
func (f *Frequency) Extract(_ context.Context, text string) ([]string, error) {
	if len(strings.TrimSpace(text)) < minTextLength {
		return []string{}, nil
	}

	tokens := f.tokenize(text)

	freq := make(map[string]int)
	for _, tok := range tokens {
		if tok != "" {
			freq[tok]++
		}
	}

	cands := make(map[string]*candidate)
	add := func(phrase string, score float64, pos int) {
		if len(phrase) < minPhraseLength {
			return
		}
		if c, ok := cands[phrase]; ok {
			if score > c.score {
				c.score = score
			}
			return
		}
		cands[phrase] = &candidate{phrase: phrase, score: score, first: pos}
	}

	for i, tok := range tokens {
		if tok == "" {
			continue
		}
		add(tok, float64(freq[tok]), i)
		if i+1 < len(tokens) && tokens[i+1] != "" {
			next := tokens[i+1]
			add(tok+" "+next, float64(freq[tok]+freq[next])/2*bigramWeightBias, i)
		}
	}

	ranked := make([]*candidate, 0, len(cands))
	for _, c := range cands {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].first < ranked[j].first
	})

	out := make([]string, 0, f.topN)
	used := make(map[string]bool)
	for _, c := range ranked {
		if len(out) == f.topN {
			break
		}
		if covered(c.phrase, used) {
			continue
		}
		out = append(out, c.phrase)
		for _, w := range strings.Fields(c.phrase) {
			used[w] = true
		}
	}
	return out, nil
}

// tokenize folds case, strips punctuation and blanks out stopwords so that
// phrases never span them. A Caser is stateful, so each call gets its own.
func (f *Frequency) tokenize(text string) []string {
	fields := strings.FieldsFunc(cases.Fold().String(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	tokens := make([]string, 0, len(fields))
	for _, w := range fields {
		w = strings.Trim(w, "'")
		if w == "" || f.stopwords[w] || isNumber(w) {
			tokens = append(tokens, "")
			continue
		}
		tokens = append(tokens, w)
	}
	return tokens
}

// covered reports whether every word of phrase has already been emitted
func covered(phrase string, used map[string]bool) bool {
	for _, w := range strings.Fields(phrase) {
		if !used[w] {
			return false
		}
	}
	return true
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
