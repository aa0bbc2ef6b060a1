package semantic

import "strings"

// stopwords are closed-class words dropped from both index terms and
// queries. Keeping the set small avoids eating meaningful words from
// short checklist titles.
var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "at": true, "for": true,
	"in": true, "is": true, "my": true, "of": true, "on": true,
	"or": true, "the": true, "to": true, "with": true,
}

// Tokenizer turns free text into normalized index tokens. The keyword
// index and the lookup engine must share one tokenizer so a query word
// lands on the same token the index stored.
type Tokenizer struct {
	stemmer *Stemmer
}

// NewTokenizer creates a tokenizer backed by the given stemmer
func NewTokenizer(stemmer *Stemmer) *Tokenizer {
	if stemmer == nil {
		stemmer = NewStemmer(true, "porter2", 3, nil)
	}
	return &Tokenizer{stemmer: stemmer}
}

// Stemmer returns the underlying stemmer
func (t *Tokenizer) Stemmer() *Stemmer {
	return t.stemmer
}

// Tokenize returns the stemmed tokens of text: lower-cased alphanumeric
// runs, stopwords removed, duplicates dropped keeping first occurrence.
// Output order follows input order, so it is deterministic.
func (t *Tokenizer) Tokenize(text string) []string {
	words := t.Words(text)

	tokens := make([]string, 0, len(words))
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		stem := t.stemmer.Stem(w)
		if stem == "" || seen[stem] {
			continue
		}
		seen[stem] = true
		tokens = append(tokens, stem)
	}

	return tokens
}

// Words returns the raw lower-cased words of text with stopwords
// removed but no stemming applied. The fuzzy layer matches on these so
// typo distance is measured against the authored spelling.
func (t *Tokenizer) Words(text string) []string {
	var words []string
	var b strings.Builder

	flush := func() {
		if b.Len() == 0 {
			return
		}
		w := b.String()
		b.Reset()
		if stopwords[w] {
			return
		}
		words = append(words, w)
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			flush()
		}
	}
	flush()

	return words
}
