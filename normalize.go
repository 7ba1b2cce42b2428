package capturer

import "strings"

// Normalize emulates the effect of carriage returns on a terminal, turning
// raw captured text into a list of lines:
//
//  1. The text is split on line feeds.
//  2. Leading and trailing carriage returns are stripped from each line.
//  3. Of any remaining carriage-return-delimited runs within a line, only
//     the last is kept (the earlier ones would have been overwritten).
//  4. Trailing empty lines are dropped.
//
// The conversion is pragmatic but lossy: overlapping output, terminal widths
// and escape sequences spanning a carriage return are not tracked.
func Normalize(text string) []string {
	lines := strings.Split(text, "\n")
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Trim(line, "\r")
		if i := strings.LastIndexByte(line, '\r'); i >= 0 {
			line = line[i+1:]
		}
		result = append(result, line)
	}
	for len(result) > 0 && result[len(result)-1] == "" {
		result = result[:len(result)-1]
	}
	return result
}

// splitLines splits decoded text on line feeds without interpreting carriage
// returns, dropping the empty element a trailing line feed would produce.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
