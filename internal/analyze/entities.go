package analyze

import (
	"regexp"
	"sort"
	"strings"
)

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	urlPattern   = regexp.MustCompile(`https?://[^\s<>"')]+`)
	datePattern  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{2,4}|(January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},?\s+\d{4})\b`)
	moneyPattern = regexp.MustCompile(`[$€£¥]\s?\d[\d,]*(\.\d+)?([kKmMbB])?|\b\d[\d,]*(\.\d+)?\s?(USD|EUR|GBP|dollars|euros)\b`)
	orgPattern   = regexp.MustCompile(`\b([A-Z][A-Za-z&]+(\s+[A-Z][A-Za-z&]+)*)\s+(Inc|Corp|Corporation|LLC|Ltd|GmbH|Co|Company|Group|University|Institute|Foundation|Agency)\.?\b`)
)

const maxEntitiesPerKind = 20

func extractEntities(text string) Entities {
	return Entities{
		Emails:        dedupe(emailPattern.FindAllString(text, maxEntitiesPerKind)),
		URLs:          dedupe(urlPattern.FindAllString(text, maxEntitiesPerKind)),
		Dates:         dedupe(datePattern.FindAllString(text, maxEntitiesPerKind)),
		Money:         dedupe(moneyPattern.FindAllString(text, maxEntitiesPerKind)),
		Organizations: dedupe(orgPattern.FindAllString(text, maxEntitiesPerKind)),
	}
}

func dedupe(in []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Function words per supported language. The guess is the language whose
// function words appear most often; "unknown" when nothing dominates.
var functionWords = map[string][]string{
	"en": {"the", "and", "of", "to", "in", "is", "that", "for", "with", "as"},
	"es": {"el", "la", "de", "que", "y", "en", "los", "del", "las", "por"},
	"fr": {"le", "la", "de", "et", "les", "des", "est", "dans", "que", "pour"},
	"de": {"der", "die", "das", "und", "ist", "von", "den", "mit", "für", "auf"},
	"pt": {"o", "a", "de", "que", "e", "do", "da", "em", "um", "para"},
}

func guessLanguage(words []string) string {
	if len(words) == 0 {
		return "unknown"
	}

	freq := map[string]int{}
	limit := len(words)
	if limit > 2000 {
		limit = 2000
	}
	for _, w := range words[:limit] {
		freq[strings.ToLower(strings.Trim(w, ".,;:!?\"'()"))]++
	}

	best, bestScore := "unknown", 0
	for _, lang := range []string{"en", "es", "fr", "de", "pt"} {
		score := 0
		for _, fw := range functionWords[lang] {
			score += freq[fw]
		}
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if bestScore < 2 {
		return "unknown"
	}
	return best
}

var stopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true, "is": true,
	"that": true, "for": true, "with": true, "as": true, "are": true, "was": true,
	"this": true, "it": true, "on": true, "be": true, "by": true, "or": true,
	"an": true, "a": true, "at": true, "from": true, "not": true, "have": true,
	"has": true, "had": true, "but": true, "will": true, "can": true, "its": true,
	"their": true, "which": true, "were": true, "been": true, "would": true,
	"there": true, "they": true, "we": true, "you": true, "all": true, "more": true,
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,;:!?\"'()[]{}"))
}

func contentWord(w string) bool {
	return len(w) > 3 && !stopwords[w]
}

// topKeywords ranks content words by frequency.
func topKeywords(words []string, limit int) []string {
	freq := map[string]int{}
	order := map[string]int{}
	for i, raw := range words {
		w := normalizeWord(raw)
		if !contentWord(w) {
			continue
		}
		if _, ok := order[w]; !ok {
			order[w] = i
		}
		freq[w]++
	}

	keys := make([]string, 0, len(freq))
	for k := range freq {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})

	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}

// topPhrases ranks adjacent content-word bigrams that repeat.
func topPhrases(words []string, limit int) []string {
	freq := map[string]int{}
	order := map[string]int{}
	for i := 0; i+1 < len(words); i++ {
		a, b := normalizeWord(words[i]), normalizeWord(words[i+1])
		if !contentWord(a) || !contentWord(b) {
			continue
		}
		phrase := a + " " + b
		if _, ok := order[phrase]; !ok {
			order[phrase] = i
		}
		freq[phrase]++
	}

	var keys []string
	for k, n := range freq {
		if n >= 2 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if freq[keys[i]] != freq[keys[j]] {
			return freq[keys[i]] > freq[keys[j]]
		}
		return order[keys[i]] < order[keys[j]]
	})

	if len(keys) > limit {
		keys = keys[:limit]
	}
	return keys
}
