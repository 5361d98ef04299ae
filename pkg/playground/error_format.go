// Package playground runs fixtures end to end for the browser playground:
// parse, analyse, export schemas and explain precision loss.
package playground

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	oversizedRe = regexp.MustCompile(`^(.+) holds (\d+) values at maximum merge strength \(limit (\d+)\)$`)
	argumentRe  = regexp.MustCompile(` (argument \d+|receiver)$`)
)

// FormatWarnings turns project warnings into a user-facing message.
func FormatWarnings(warnings []string) string {
	if len(warnings) == 0 {
		return "Analysis kept full precision."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analysis lost precision in %d slot(s).\n", len(warnings))

	for _, w := range warnings {
		slot, count, limit, ok := parseOversized(w)
		if !ok {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(w))
			continue
		}
		fmt.Fprintf(&b, "- %s still holds %s values after full merging (limit %s)\n", slot, count, limit)
		if key := limitKey(slot); key != "" {
			fmt.Fprintf(&b, "  How to fix: raise limits.%s or lower the number of distinct values flowing into it\n", key)
		}
	}

	return b.String()
}

func parseOversized(w string) (slot, count, limit string, ok bool) {
	m := oversizedRe.FindStringSubmatch(strings.TrimSpace(w))
	if len(m) != 4 {
		return "", "", "", false
	}
	return m[1], m[2], m[3], true
}

// limitKey returns the config key bounding the slot a warning names.
func limitKey(slot string) string {
	switch {
	case strings.HasPrefix(slot, "binding "), strings.HasPrefix(slot, "variable "):
		return "assignedTypes"
	case strings.HasPrefix(slot, "property "), strings.HasPrefix(slot, "accessor "):
		return "instanceMembers"
	case slot == "array index":
		return "indexTypes"
	case slot == "keyed map keys":
		return "dictKeyTypes"
	case slot == "keyed map entry":
		return "dictValueTypes"
	case slot == "return value":
		return "returnTypes"
	case argumentRe.MatchString(slot):
		return "normalArgumentTypes"
	}
	return ""
}
