package ingestion_engine

import (
	"regexp"
	"strings"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// sentenceBreaks are searched backwards from the cut point; the latest match wins.
var sentenceBreaks = [][]rune{[]rune(". "), []rune(".\n"), []rune("\n\n")}

// ChunkText splits text into overlapping chunks of at most size characters (code points).
//
// Each window prefers to end just after the last sentence break that leaves more than
// overlap characters of body, then at the last space, and otherwise cuts hard at size.
// The next window starts overlap characters before the previous cut. Chunks are trimmed,
// empty ones are dropped and indices are contiguous from 0.
func ChunkText(text string, size, overlap int) []TextChunk {
	if size <= 0 {
		return nil
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	r := []rune(blankRuns.ReplaceAllString(strings.TrimSpace(text), "\n\n"))
	n := len(r)

	var out []TextChunk
	for start := 0; start < n; {
		end := start + size
		if end < n {
			if b := lastBreak(r, start, end); b != -1 && b > start+overlap {
				end = b + 1
			} else if sp := lastIndex(r, []rune(" "), start, end); sp > start {
				end = sp
			}
		} else {
			end = n
		}

		if body := strings.TrimSpace(string(r[start:end])); body != "" {
			out = append(out, TextChunk{Index: len(out), Text: body, Tokens: approxTokens(body)})
		}
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func lastBreak(r []rune, start, end int) int {
	best := -1
	for _, sep := range sentenceBreaks {
		if i := lastIndex(r, sep, start, end); i > best {
			best = i
		}
	}
	return best
}

// lastIndex finds the last occurrence of sep lying entirely inside r[start:end].
func lastIndex(r, sep []rune, start, end int) int {
	for i := end - len(sep); i >= start; i-- {
		match := true
		for j := range sep {
			if r[i+j] != sep[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
