package voice

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// closeMatchCutoff is the minimum word similarity for a reference term to
// count as pronounced. Below it the term is reported as missed.
const closeMatchCutoff = 0.6

// ShadowingReport summarizes how closely a transcript follows the reference
// sentence the student was asked to repeat.
type ShadowingReport struct {
	Similarity  float64
	MissedTerms []string
}

// Shadow compares the transcript against the reference text and flags which
// of the given terms the student missed or garbled.
func Shadow(transcript, reference string, terms []string) ShadowingReport {
	report := ShadowingReport{
		Similarity: similarity(normalize(transcript), normalize(reference)),
	}

	words := strings.Fields(normalize(transcript))
	for _, term := range terms {
		t := normalize(term)
		if t == "" {
			continue
		}
		if strings.Contains(normalize(transcript), t) {
			continue
		}
		if !hasCloseMatch(words, t) {
			report.MissedTerms = append(report.MissedTerms, term)
		}
	}
	return report
}

// Render formats the report for a feedback push. Empty when there is nothing
// worth telling the student.
func (r ShadowingReport) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 跟讀相似度：%d%%", int(r.Similarity*100))
	if len(r.MissedTerms) > 0 {
		b.WriteString("\n📌 漏掉或發音不清的詞：")
		b.WriteString(strings.Join(r.MissedTerms, "、"))
		b.WriteString("\n建議放慢速度，把每個詞唸清楚。")
	}
	return b.String()
}

// similarity is 1 minus the normalized Levenshtein distance of the two texts.
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if l := len([]rune(b)); l > longest {
		longest = l
	}
	if longest == 0 {
		return 1
	}

	dmp := diffmatchpatch.New()
	distance := dmp.DiffLevenshtein(dmp.DiffMain(a, b, false))
	sim := 1 - float64(distance)/float64(longest)
	if sim < 0 {
		return 0
	}
	return sim
}

func hasCloseMatch(words []string, term string) bool {
	for _, w := range words {
		if similarity(w, term) >= closeMatchCutoff {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
