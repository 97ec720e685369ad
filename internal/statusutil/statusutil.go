package statusutil

import (
	"fmt"
	"strings"
)

const (
	Backlog = "backlog"
	Week    = "week"
	Today   = "today"
	Doing   = "doing"
	Done    = "done"
)

// Buckets lists the board columns in display order.
var Buckets = []string{Backlog, Week, Today, Doing, Done}

var labels = map[string]string{
	Backlog: "Backlog",
	Week:    "This week",
	Today:   "Today",
	Doing:   "Doing",
	Done:    "Done",
}

// NormalizeBucket lowercases and validates a bucket name.
func NormalizeBucket(s string) (string, error) {
	b := strings.ToLower(strings.TrimSpace(s))
	if b == "" {
		return "", fmt.Errorf("invalid status: empty")
	}
	if !IsBucket(b) {
		return "", fmt.Errorf("invalid status: %q (expected one of %s)", s, strings.Join(Buckets, ", "))
	}
	return b, nil
}

func IsBucket(s string) bool {
	_, ok := labels[s]
	return ok
}

// ParseBuckets parses a comma separated list of buckets. An empty string yields nil (no constraint).
func ParseBuckets(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		b, err := NormalizeBucket(part)
		if err != nil {
			return nil, err
		}
		if seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out, nil
}

func Label(bucket string) string {
	if l, ok := labels[bucket]; ok {
		return l
	}
	return bucket
}

func IsEndState(bucket string) bool {
	return bucket == Done
}

// Index returns the column index of bucket, or -1.
func Index(bucket string) int {
	for i, b := range Buckets {
		if b == bucket {
			return i
		}
	}
	return -1
}
