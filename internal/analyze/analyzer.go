// Package analyze derives structural and content analytics from extracted
// document text. Everything here is deterministic and performs no I/O, so a
// heuristic can be swapped out without touching the ingestion flow.
package analyze

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Record is the denormalized analytics attached to a document or chunk entry.
type Record struct {
	CharCount      int `json:"char_count"`
	WordCount      int `json:"word_count"`
	SentenceCount  int `json:"sentence_count"`
	ParagraphCount int `json:"paragraph_count"`
	LineCount      int `json:"line_count"`

	HasHeadings bool `json:"has_headings"`
	HasLists    bool `json:"has_lists"`
	HasTables   bool `json:"has_tables"`
	HasCode     bool `json:"has_code"`

	DocumentType string  `json:"document_type"`
	Language     string  `json:"language"`
	Readability  float64 `json:"readability"`

	Entities Entities `json:"entities"`
	Keywords []string `json:"keywords"`
	Phrases  []string `json:"phrases"`
	Topics   []string `json:"topics"`

	SearchTags []string `json:"search_tags"`
}

type Entities struct {
	Emails        []string `json:"emails,omitempty"`
	URLs          []string `json:"urls,omitempty"`
	Dates         []string `json:"dates,omitempty"`
	Money         []string `json:"money,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
}

// Per-category caps keep the flattened tag set bounded.
const (
	maxKeywordTags = 10
	maxOrgTags     = 5
	maxTopicTags   = 5
	maxPhrases     = 5
)

var (
	headingPattern = regexp.MustCompile(`(?m)^(#{1,6}\s+\S|[A-Z][A-Z0-9 ,:-]{4,}$)`)
	listPattern    = regexp.MustCompile(`(?m)^\s*([-*+•]|\d+[.)])\s+\S`)
	tablePattern   = regexp.MustCompile(`(?m)^\s*\|.+\|\s*$`)
	codePattern    = regexp.MustCompile("(?s)```.+?```|(?m)^(    |\\t)\\S")
	sentenceSplit  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

// Analyze computes the metadata record for one piece of content.
func Analyze(text, filename, mimeType string) *Record {
	r := &Record{}

	words := strings.Fields(text)
	r.CharCount = len(text)
	r.WordCount = len(words)
	r.SentenceCount = countSentences(text)
	r.ParagraphCount = len(paragraphSplit.Split(strings.TrimSpace(text), -1))
	r.LineCount = strings.Count(text, "\n") + 1

	r.HasHeadings = headingPattern.MatchString(text)
	r.HasLists = listPattern.MatchString(text)
	r.HasTables = tablePattern.MatchString(text)
	r.HasCode = codePattern.MatchString(text)

	r.DocumentType = classify(text, filename)
	r.Language = guessLanguage(words)
	r.Readability = readability(text, words, r.SentenceCount)

	r.Entities = extractEntities(text)
	r.Keywords = topKeywords(words, maxKeywordTags)
	r.Phrases = topPhrases(words, maxPhrases)
	r.Topics = topics(text)

	r.SearchTags = flattenTags(r, filename, mimeType)
	return r
}

// Map renders the record as a generic metadata map for vector store entries.
func (r *Record) Map() map[string]interface{} {
	b, err := json.Marshal(r)
	if err != nil {
		return map[string]interface{}{}
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func countSentences(text string) int {
	n := len(sentenceSplit.FindAllStringIndex(text, -1))
	if n == 0 && strings.TrimSpace(text) != "" {
		return 1
	}
	return n
}

// classify scores keyword families and picks the best, with file-extension
// shortcuts for code/config/markdown.
func classify(text, filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".go", ".py", ".js", ".ts", ".java", ".c", ".cpp", ".rs", ".rb":
		return "code"
	case ".yaml", ".yml", ".toml", ".ini", ".env", ".conf":
		return "config"
	case ".md", ".markdown":
		return "markdown"
	}

	lower := strings.ToLower(text)
	scores := map[string]int{}
	for docType, keywords := range typeKeywords {
		for _, kw := range keywords {
			scores[docType] += strings.Count(lower, kw)
		}
	}

	best, bestScore := "generic", 2 // below 3 hits stays generic
	for _, docType := range typeOrder {
		if scores[docType] > bestScore {
			best, bestScore = docType, scores[docType]
		}
	}
	return best
}

// typeOrder gives deterministic tie-breaking.
var typeOrder = []string{"legal", "technical", "financial", "academic", "report", "email", "config", "code"}

var typeKeywords = map[string][]string{
	"legal":     {"agreement", "hereby", "whereas", "pursuant", "liability", "jurisdiction", "clause", "indemn", "warranty", "terminate"},
	"technical": {"function", "implementation", "architecture", "interface", "protocol", "deploy", "configuration", "api", "latency", "database"},
	"financial": {"revenue", "profit", "fiscal", "balance sheet", "quarterly", "earnings", "dividend", "asset", "liabilities", "invoice"},
	"academic":  {"abstract", "hypothesis", "methodology", "literature", "citation", "et al", "empirical", "findings suggest", "peer-review"},
	"report":    {"executive summary", "key findings", "recommendation", "overview", "conclusion", "appendix", "status update"},
	"email":     {"dear ", "regards,", "sincerely", "subject:", "cc:", "forwarded message", "best,"},
	"config":    {"host:", "port:", "enabled:", "timeout:", "[section]", "export "},
	"code":      {"func ", "def ", "class ", "import ", "return ", "const ", "var ", "=> {"},
}

func readability(text string, words []string, sentences int) float64 {
	if len(words) == 0 || sentences == 0 {
		return 0
	}
	syllables := 0
	for _, w := range words {
		syllables += countSyllables(w)
	}
	// Flesch reading ease approximation
	score := 206.835 - 1.015*(float64(len(words))/float64(sentences)) -
		84.6*(float64(syllables)/float64(len(words)))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func countSyllables(word string) int {
	word = strings.ToLower(strings.Trim(word, ".,;:!?\"'()[]"))
	if word == "" {
		return 1
	}
	count := 0
	prevVowel := false
	for _, r := range word {
		vowel := strings.ContainsRune("aeiouy", r)
		if vowel && !prevVowel {
			count++
		}
		prevVowel = vowel
	}
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count == 0 {
		count = 1
	}
	return count
}

// topics lists every keyword family with meaningful presence, strongest first.
func topics(text string) []string {
	lower := strings.ToLower(text)
	type hit struct {
		topic string
		score int
	}
	var hits []hit
	for _, docType := range typeOrder {
		score := 0
		for _, kw := range typeKeywords[docType] {
			score += strings.Count(lower, kw)
		}
		if score >= 3 {
			hits = append(hits, hit{docType, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > maxTopicTags {
		hits = hits[:maxTopicTags]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.topic
	}
	return out
}

func flattenTags(r *Record, filename, mimeType string) []string {
	seen := map[string]bool{}
	var tags []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	add("type:" + r.DocumentType)
	add("lang:" + r.Language)
	if r.HasHeadings {
		add("has:headings")
	}
	if r.HasLists {
		add("has:lists")
	}
	if r.HasTables {
		add("has:tables")
	}
	if r.HasCode {
		add("has:code")
	}
	if ext := strings.ToLower(filepath.Ext(filename)); ext != "" {
		add("ext:" + strings.TrimPrefix(ext, "."))
	}
	if mimeType != "" {
		add("mime:" + mimeType)
	}
	if filename != "" {
		add("file:" + filename)
	}
	for _, t := range r.Topics {
		add("topic:" + t)
	}
	for i, org := range r.Entities.Organizations {
		if i >= maxOrgTags {
			break
		}
		add("org:" + org)
	}
	for i, kw := range r.Keywords {
		if i >= maxKeywordTags {
			break
		}
		add(kw)
	}
	return tags
}
