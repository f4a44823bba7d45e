// Package markov builds word-level Markov chains and random-walks them to
// produce synthetic text from a seed corpus.
package markov

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrEmptySeed is returned when the seed corpus contains no words.
var ErrEmptySeed = errors.New("markov: empty seed corpus")

// Chain generates text from a seed corpus. Output is intentionally
// non-deterministic unless a fixed source is injected.
type Chain struct {
	order int
	mu    sync.Mutex
	rng   *rand.Rand
}

// New creates a chain of the given prefix order. Orders below 1 are
// treated as 1.
func New(order int) *Chain {
	return NewWithSource(order, rand.NewSource(time.Now().UnixNano()))
}

// NewWithSource creates a chain with an injected random source. Used by
// tests that need reproducible walks.
func NewWithSource(order int, src rand.Source) *Chain {
	if order < 1 {
		order = 1
	}
	return &Chain{order: order, rng: rand.New(src)}
}

// Generate builds a chain from seed and walks it, emitting at most maxWords
// words. The walk starts at a random prefix and stops early on a dead end.
func (c *Chain) Generate(seed string, maxWords int) (string, error) {
	words := strings.Fields(seed)
	if len(words) == 0 {
		return "", ErrEmptySeed
	}
	if maxWords < 1 {
		maxWords = 1
	}

	if len(words) <= c.order {
		return truncateWords(words, maxWords), nil
	}

	transitions := make(map[string][]string)
	for i := 0; i+c.order < len(words); i++ {
		key := strings.Join(words[i:i+c.order], " ")
		transitions[key] = append(transitions[key], words[i+c.order])
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.rng.Intn(len(words) - c.order)
	out := make([]string, 0, maxWords)
	out = append(out, words[start:start+c.order]...)

	for len(out) < maxWords {
		key := strings.Join(out[len(out)-c.order:], " ")
		nexts := transitions[key]
		if len(nexts) == 0 {
			break
		}
		out = append(out, nexts[c.rng.Intn(len(nexts))])
	}

	return truncateWords(out, maxWords), nil
}

func truncateWords(words []string, max int) string {
	if len(words) > max {
		words = words[:max]
	}
	return strings.Join(words, " ")
}
