package ruleengine

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// percentagePredicate places a subject into one of 100 sticky buckets.
type percentagePredicate struct {
	key  Key[string]
	salt string
	pct  int
}

// Percentage matches for pct percent of the values of key. The same value always
// lands in the same bucket for a given salt, and different salts spread a value
// independently. pct is clamped to [0, 100]. Empty subjects never match.
func Percentage(key Key[string], salt string, pct int) Predicate {
	return &percentagePredicate{key: key, salt: salt, pct: min(max(pct, 0), 100)}
}

func (p *percentagePredicate) Evaluate(c *Context) bool {
	subject := Get(c, p.key)
	if subject == "" {
		return false
	}
	return Bucket(subject, p.salt) < p.pct
}

func (p *percentagePredicate) Specificity() int { return 1 }
func (p *percentagePredicate) predicate()       {}

func (p *percentagePredicate) String() string {
	return fmt.Sprintf("%s in %d%% (salt %q)", p.key.Name(), p.pct, p.salt)
}

// Bucket maps subject and salt to a bucket in [0, 100).
func Bucket(subject, salt string) int {
	hasher := murmur3.New32()
	_, _ = hasher.Write([]byte(subject + ":" + salt))
	return int(hasher.Sum32() % 100)
}
