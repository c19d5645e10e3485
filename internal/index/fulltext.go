package index

import (
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/google/btree"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// tokenize lowercases and splits on non-alphanumeric runs. No ecosystem
// tokenizer appears in the retrieved pack beyond UI text-wrapping
// libraries, which are unrelated to indexing; this is the stdlib-only
// component justified in DESIGN.md alongside HNSW.
func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

type postingEntry struct {
	token    string
	postings map[uint64]int // id -> term frequency in that document
}

func (e *postingEntry) Less(than btree.Item) bool {
	return e.token < than.(*postingEntry).token
}

// FullTextIndex is a BM25-scored token→postings index per (label_id,
// key_id), reusing the property index's `google/btree` machinery for the
// postings table (spec §4.6 full-text index).
type FullTextIndex struct {
	mu        sync.RWMutex
	tree      *btree.BTree
	docLength map[uint64]int
	totalLen  int
	docCount  int

	k1, b float64
}

func NewFullTextIndex() *FullTextIndex {
	return &FullTextIndex{
		tree:      btree.New(32),
		docLength: make(map[uint64]int),
		k1:        1.2,
		b:         0.75,
	}
}

// Index tokenizes text and records it under id, replacing any prior
// indexing of id first.
func (fi *FullTextIndex) Index(id uint64, text string) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.removeLocked(id)

	tokens := tokenize(text)
	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	for token, tf := range counts {
		probe := &postingEntry{token: token}
		item := fi.tree.Get(probe)
		var e *postingEntry
		if item == nil {
			e = &postingEntry{token: token, postings: make(map[uint64]int)}
			fi.tree.ReplaceOrInsert(e)
		} else {
			e = item.(*postingEntry)
		}
		e.postings[id] = tf
	}
	fi.docLength[id] = len(tokens)
	fi.totalLen += len(tokens)
	fi.docCount++
}

// Remove drops id from every posting list it appears in.
func (fi *FullTextIndex) Remove(id uint64) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	fi.removeLocked(id)
}

func (fi *FullTextIndex) removeLocked(id uint64) {
	length, ok := fi.docLength[id]
	if !ok {
		return
	}
	var toDelete []*postingEntry
	fi.tree.Ascend(func(item btree.Item) bool {
		e := item.(*postingEntry)
		if _, present := e.postings[id]; present {
			delete(e.postings, id)
			if len(e.postings) == 0 {
				toDelete = append(toDelete, e)
			}
		}
		return true
	})
	for _, e := range toDelete {
		fi.tree.Delete(e)
	}
	delete(fi.docLength, id)
	fi.totalLen -= length
	fi.docCount--
}

// Scored is one BM25-scored document from a Search call.
type Scored struct {
	ID    uint64
	Score float64
}

// Search scores every document containing at least one query token using
// Okapi BM25, returning results sorted score-descending.
func (fi *FullTextIndex) Search(query string) []Scored {
	fi.mu.RLock()
	defer fi.mu.RUnlock()
	if fi.docCount == 0 {
		return nil
	}
	avgLen := float64(fi.totalLen) / float64(fi.docCount)
	scores := make(map[uint64]float64)

	for _, token := range tokenize(query) {
		item := fi.tree.Get(&postingEntry{token: token})
		if item == nil {
			continue
		}
		e := item.(*postingEntry)
		n := len(e.postings)
		idf := math.Log(1 + (float64(fi.docCount)-float64(n)+0.5)/(float64(n)+0.5))
		for id, tf := range e.postings {
			dl := float64(fi.docLength[id])
			numerator := float64(tf) * (fi.k1 + 1)
			denominator := float64(tf) + fi.k1*(1-fi.b+fi.b*dl/avgLen)
			scores[id] += idf * numerator / denominator
		}
	}

	out := make([]Scored, 0, len(scores))
	for id, score := range scores {
		out = append(out, Scored{ID: id, Score: score})
	}
	sortScoredDesc(out)
	return out
}

func sortScoredDesc(s []Scored) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && (s[j].Score > s[j-1].Score || (s[j].Score == s[j-1].Score && s[j].ID < s[j-1].ID)); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
