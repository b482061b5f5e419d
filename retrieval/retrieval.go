package retrieval

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/apex/log"
)

// Retriever returns guidance text relevant to an incident description.
type Retriever interface {
	Retrieve(ctx context.Context, query string) (string, error)
}

// Document is one guideline category of the corpus.
type Document struct {
	Title string
	Body  string
}

// DefaultDocuments is the fixed guideline corpus: emergency, municipal and no-concern criteria.
var DefaultDocuments = []Document{
	{
		Title: "Emergency criteria (911)",
		Body: "Call 911 when there is an immediate threat to life, health or property. " +
			"Examples: fire, smoke or flames from a building or vehicle; explosion; gas leak smell; " +
			"a person who is unconscious, not breathing, bleeding heavily, having a heart attack, stroke, seizure or overdose; " +
			"car crash or collision with injuries; violence, assault, stabbing, shooting, gun or weapon; " +
			"someone drowning, trapped or threatening to harm themselves or others; crime in progress; " +
			"downed live power lines.",
	},
	{
		Title: "Non-emergency municipal criteria (311)",
		Body: "File a 311 report for city maintenance problems that are not dangerous right now. " +
			"Examples: graffiti or vandalism on walls, signs or public property; pothole or damaged road; " +
			"broken streetlight or traffic signal out; damaged sidewalk, fence, bench or bus stop; " +
			"overflowing trash, litter, illegal dumping, abandoned vehicle; fallen tree branch blocking a path; " +
			"blocked drain, water leak from a hydrant, noise complaints, missed garbage pickup.",
	},
	{
		Title: "No-concern criteria",
		Body: "No action is needed when the situation is normal or only a personal matter. " +
			"Examples: people enjoying a park, ordinary traffic, weather observations, " +
			"questions, greetings, photos of food, pets or scenery, " +
			"issues already resolved, and private property matters with no public impact.",
	},
}

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {}, "for": {},
	"from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "there": {}, "this": {}, "to": {}, "was": {}, "were": {},
	"with": {}, "i": {}, "my": {}, "me": {}, "we": {}, "our": {}, "some": {}, "someone": {},
	"when": {}, "not": {}, "no": {}, "near": {}, "right": {}, "now": {},
}

type indexedDocument struct {
	Document
	terms map[string]struct{}
}

// Corpus is an in-memory Retriever over a fixed document set.
type Corpus struct {
	docs []indexedDocument
}

func NewCorpus(docs []Document) *Corpus {
	c := &Corpus{docs: make([]indexedDocument, 0, len(docs))}
	for _, d := range docs {
		c.docs = append(c.docs, indexedDocument{Document: d, terms: termSet(d.Title + " " + d.Body)})
	}
	return c
}

// NewDefault returns a Corpus over DefaultDocuments.
func NewDefault() *Corpus { return NewCorpus(DefaultDocuments) }

// Retrieve ranks the documents by term overlap with query, highest first.
// Ties, including the all-zero case, keep corpus order.
func (c *Corpus) Retrieve(ctx context.Context, query string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	q := termSet(query)
	type scored struct {
		doc   indexedDocument
		score int
	}
	ranked := make([]scored, 0, len(c.docs))
	for _, d := range c.docs {
		n := 0
		for t := range q {
			if _, ok := d.terms[t]; ok {
				n++
			}
		}
		ranked = append(ranked, scored{doc: d, score: n})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	blocks := make([]string, 0, len(ranked))
	for _, r := range ranked {
		blocks = append(blocks, fmt.Sprintf("[%s]\n%s", r.doc.Title, r.doc.Body))
	}
	return strings.Join(blocks, "\n\n"), nil
}

// Tokenize lower-cases s and splits it into letter/digit words, dropping stop words.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopWords[f]; stop || len(f) < 2 {
			continue
		}
		out = append(out, f)
	}
	return out
}

func termSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(s) {
		set[t] = struct{}{}
	}
	return set
}

// Safe runs r under timeout and returns "" on any failure, timeout or panic.
// Retrieval is an enrichment: callers never see its errors.
func Safe(ctx context.Context, r Retriever, query string, timeout time.Duration) string {
	if r == nil {
		return ""
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result{err: fmt.Errorf("retriever panic: %v", p)}
			}
		}()
		text, err := r.Retrieve(ctx, query)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			log.WithError(res.err).Warn("retrieval.failed")
			return ""
		}
		return res.text
	case <-ctx.Done():
		log.WithError(ctx.Err()).Warn("retrieval.timeout")
		return ""
	}
}
