// Package semantic provides the text normalization used by procedure lookup.
//
// Queries and indexed terms go through the same pipeline so that a word
// typed during an emergency matches the form stored at load time:
//
//  1. Tokenize - lower-case, split on non-alphanumeric runs, drop stopwords
//  2. Stem - Porter2 reduction so "depressurizing" matches "depressurization"
//  3. Fuzzy - Jaro-Winkler similarity as a last-resort layer for typos
//
// # Core Components
//
// Tokenizer: turns free text into normalized index tokens. Both the
// keyword index builder and the lookup engine use the same instance
// configuration, which is what keeps matching symmetric.
//
// Stemmer: wraps the Porter2 algorithm with a minimum length guard and
// an exclusion list for crew jargon ("eva", "o2") that stemming would
// mangle.
//
// FuzzyMatcher: configurable string similarity (Jaro-Winkler,
// Levenshtein or bigram cosine) used only when exact and keyword
// matching produce nothing.
//
// # Usage Example
//
//	stemmer := semantic.NewStemmer(true, "porter2", 3, nil)
//	tokenizer := semantic.NewTokenizer(stemmer)
//	fuzzer := semantic.NewFuzzyMatcher(true, 0.82, "jaro-winkler")
//
//	tokens := tokenizer.Tokenize("Fire in Spacecraft")
//	// → ["fire", "spacecraft"]
package semantic
