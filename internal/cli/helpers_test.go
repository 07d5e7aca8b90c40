package cli_test

import "strings"

// parseLines splits key=value output lines into a map.
func parseLines(s string) map[string]string {
	out := map[string]string{}

	for line := range strings.Lines(s) {
		k, v, ok := strings.Cut(strings.TrimRight(line, "\n"), "=")
		if ok {
			out[k] = v
		}
	}

	return out
}
