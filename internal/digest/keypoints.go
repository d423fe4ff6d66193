package digest

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"
)

// DefaultKeyPoints is the number of key points extracted when none is configured.
const DefaultKeyPoints = 5

// Scorer assigns a relevance score to each sentence. Implementations must be
// pure: the same sentences always yield the same scores.
type Scorer interface {
	Score(sentences []string) []float64
}

// TermFrequency scores a sentence by the mean frequency, across all sentences,
// of its content words.
type TermFrequency struct{}

func (TermFrequency) Score(sentences []string) []float64 {
	tokenized := make([][]string, len(sentences))
	freq := make(map[string]int)
	for i, s := range sentences {
		tokenized[i] = contentWords(s)
		for _, w := range tokenized[i] {
			freq[w]++
		}
	}

	scores := make([]float64, len(sentences))
	for i, words := range tokenized {
		if len(words) == 0 {
			continue
		}
		var sum int
		for _, w := range words {
			sum += freq[w]
		}
		scores[i] = float64(sum) / float64(len(words))
	}
	return scores
}

// TFIDF treats every sentence as a document and scores it by the mean
// tf-idf weight of its content words.
type TFIDF struct{}

func (TFIDF) Score(sentences []string) []float64 {
	tokenized := make([][]string, len(sentences))
	df := make(map[string]int)
	for i, s := range sentences {
		tokenized[i] = contentWords(s)
		seen := make(map[string]bool)
		for _, w := range tokenized[i] {
			if !seen[w] {
				seen[w] = true
				df[w]++
			}
		}
	}

	n := float64(len(sentences))
	scores := make([]float64, len(sentences))
	for i, words := range tokenized {
		if len(words) == 0 {
			continue
		}
		tf := make(map[string]int)
		for _, w := range words {
			tf[w]++
		}
		var sum float64
		for w, c := range tf {
			sum += float64(c) * (math.Log(n/float64(df[w])) + 1)
		}
		scores[i] = sum / float64(len(words))
	}
	return scores
}

// ScorerByName resolves "tf" or "tfidf" to a Scorer.
func ScorerByName(name string) (Scorer, error) {
	switch strings.ToLower(name) {
	case "", "tf":
		return TermFrequency{}, nil
	case "tfidf", "tf-idf":
		return TFIDF{}, nil
	default:
		return nil, fmt.Errorf("unknown key point scorer %q", name)
	}
}

// maxKeyPointWords caps a key point taken from unpunctuated text.
const maxKeyPointWords = 40

// KeyPoints returns up to k sentences from texts ranked by scorer, highest
// first, with ties kept in their original order.
func KeyPoints(texts []string, k int, scorer Scorer) []string {
	if k <= 0 {
		return nil
	}
	if scorer == nil {
		scorer = TermFrequency{}
	}

	var sentences []string
	seen := make(map[string]bool)
	for _, t := range texts {
		for _, s := range Sentences(t) {
			s = clipWords(s, maxKeyPointWords)
			if seen[s] || len(contentWords(s)) == 0 {
				continue
			}
			seen[s] = true
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	scores := scorer.Score(sentences)
	order := make([]int, len(sentences))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if len(order) > k {
		order = order[:k]
	}
	out := make([]string, len(order))
	for i, idx := range order {
		out[i] = sentences[idx]
	}
	return out
}

func contentWords(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	words := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "'")
		if len([]rune(f)) < 2 || stopwords[f] {
			continue
		}
		words = append(words, f)
	}
	return words
}

var stopwords = func() map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(`
		a about above after again against all am an and any are as at be because
		been before being below between both but by can could did do does doing
		down during each few for from further had has have having he her here hers
		herself him himself his how i if in into is it it's its itself just let's
		me more most my myself no nor not now of off on once only or other our ours
		ourselves out over own same she should so some such than that that's the
		their theirs them themselves then there there's these they this those
		through to too under until up very was we were what when where which while
		who whom why will with would you your yours yourself yourselves also
		really like going get got gonna um uh yeah okay ok so well know think
		i'm you're we're they're don't can't won't isn't`) {
		m[w] = true
	}
	return m
}()
