package diff

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// hunkHeaderPattern matches "@@ -old_start[,old_count] +new_start[,new_count] @@".
var hunkHeaderPattern = regexp.MustCompile(`^@@\s+-(\d+)(?:,(\d+))?\s+\+(\d+)(?:,(\d+))?\s+@@`)

// ChangedLine is a single added or removed line with its line number.
// Added lines carry new-file numbers, removed lines old-file numbers.
type ChangedLine struct {
	LineNumber int
	Code       string
}

// Hunk represents a single @@ block in a unified diff.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Added    []ChangedLine
	Removed  []ChangedLine
	Context  []string // Raw lines in original interleaving order, prefixes kept.
}

// Parsed is the structured form of one file's patch.
type Parsed struct {
	Hunks        []Hunk
	AddedLines   map[int]string
	RemovedLines map[int]string
}

// Parse parses a unified diff patch. An empty patch yields an empty
// result, never an error. Lines outside any valid hunk header are
// dropped; a malformed header simply fails to open a hunk, so the
// lines that follow it are dropped until the next valid header.
func Parse(patch string) Parsed {
	result := Parsed{
		AddedLines:   make(map[int]string),
		RemovedLines: make(map[int]string),
	}
	if patch == "" {
		return result
	}

	var currentHunk *Hunk
	oldLine := 0
	newLine := 0

	for _, line := range strings.Split(patch, "\n") {
		if match := hunkHeaderPattern.FindStringSubmatch(line); match != nil {
			if currentHunk != nil {
				result.Hunks = append(result.Hunks, *currentHunk)
			}

			oldStart, _ := strconv.Atoi(match[1])
			oldCount := atoiDefault(match[2], 1)
			newStart, _ := strconv.Atoi(match[3])
			newCount := atoiDefault(match[4], 1)

			oldLine = oldStart
			newLine = newStart
			currentHunk = &Hunk{
				OldStart: oldStart,
				OldCount: oldCount,
				NewStart: newStart,
				NewCount: newCount,
			}
			continue
		}

		if currentHunk == nil {
			continue
		}

		switch {
		case strings.HasPrefix(line, "+"):
			code := line[1:]
			result.AddedLines[newLine] = code
			currentHunk.Added = append(currentHunk.Added, ChangedLine{LineNumber: newLine, Code: code})
			currentHunk.Context = append(currentHunk.Context, line)
			newLine++
		case strings.HasPrefix(line, "-"):
			code := line[1:]
			result.RemovedLines[oldLine] = code
			currentHunk.Removed = append(currentHunk.Removed, ChangedLine{LineNumber: oldLine, Code: code})
			currentHunk.Context = append(currentHunk.Context, line)
			oldLine++
		case strings.HasPrefix(line, " "):
			currentHunk.Context = append(currentHunk.Context, line)
			oldLine++
			newLine++
		}
		// Anything else ("diff --git", "\ No newline...", blank) is ignored.
	}

	if currentHunk != nil {
		result.Hunks = append(result.Hunks, *currentHunk)
	}

	return result
}

// ChangedLineNumbers returns the sorted new-file line numbers of all
// added lines in the patch.
func ChangedLineNumbers(patch string) []int {
	parsed := Parse(patch)
	lines := make([]int, 0, len(parsed.AddedLines))
	for n := range parsed.AddedLines {
		lines = append(lines, n)
	}
	sort.Ints(lines)
	return lines
}

// HunkForLine returns the hunk whose new-file range contains the given
// line number, or nil if no hunk covers it.
func (p Parsed) HunkForLine(lineNumber int) *Hunk {
	for i := range p.Hunks {
		hunk := &p.Hunks[i]
		if hunk.NewStart <= lineNumber && lineNumber < hunk.NewStart+hunk.NewCount {
			return hunk
		}
	}
	return nil
}

// Header renders the hunk's @@ header line.
func (h Hunk) Header() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// Format renders the hunk back to text, header first, lines in their
// original interleaving order.
func (h Hunk) Format() string {
	parts := make([]string, 0, len(h.Context)+1)
	parts = append(parts, h.Header())
	parts = append(parts, h.Context...)
	return strings.Join(parts, "\n")
}

// functionPatterns recognize common function definition forms across
// the supported languages.
var functionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^\s*(?:async\s+)?def\s+(\w+)\s*\(`),
	regexp.MustCompile(`(?m)^\s*(?:async\s+)?function\s+(\w+)\s*\(`),
	regexp.MustCompile(`(?m)^\s*func\s+(?:\(\w+ [^)]+\)\s+)?(\w+)\s*\(`),
}

// FunctionContext scans the hunk containing lineNumber for a function
// definition and returns its name plus the hunk's new-file range.
// The name is empty when no definition is visible in the hunk context.
func FunctionContext(patch string, lineNumber int) (name string, start, end int) {
	parsed := Parse(patch)
	hunk := parsed.HunkForLine(lineNumber)
	if hunk == nil {
		return "", 0, 0
	}

	context := strings.Join(hunk.Context, "\n")
	for _, pattern := range functionPatterns {
		if match := pattern.FindStringSubmatch(context); match != nil {
			return match[1], hunk.NewStart, hunk.NewStart + hunk.NewCount
		}
	}
	return "", hunk.NewStart, hunk.NewStart + hunk.NewCount
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
