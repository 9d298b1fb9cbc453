package analyzer

import (
	"regexp"
	"strings"
)

var (
	fenceRe          = regexp.MustCompile("(?s)^\\s*```[a-zA-Z]*\\s*\n?(.*?)\\s*```\\s*$")
	defaultValueRe   = regexp.MustCompile(`"default[ _]value"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	constraintsArrRe = regexp.MustCompile(`(?s)("constraints"\s*:\s*\[)(.*?)(\])`)
	nestedObjectRe   = regexp.MustCompile(`\{([^{}]*)\}`)
	adjacentStrRe    = regexp.MustCompile(`"\s+"`)
	newlineStrRe     = regexp.MustCompile(`"(\s*\n\s*)"`)
	adjacentObjRe    = regexp.MustCompile(`\}(\s*)\{`)
)

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// repairs run in order, each on the output of the previous one.
var repairs = []struct {
	name string
	fn   func(string) string
}{
	{"default-value", RewriteDefaultValue},
	{"constraint-objects", StringifyConstraintObjects},
	{"missing-commas", InsertMissingCommas},
	{"first-object", ExtractFirstObject},
}

// RewriteDefaultValue turns `"default value": "X"` into `"default X"`.
func RewriteDefaultValue(s string) string {
	return defaultValueRe.ReplaceAllString(s, `"default $1"`)
}

// StringifyConstraintObjects flattens object literals inside constraint
// arrays into strings: {"type":"not null"} -> "not null".
func StringifyConstraintObjects(s string) string {
	return constraintsArrRe.ReplaceAllStringFunc(s, func(arr string) string {
		m := constraintsArrRe.FindStringSubmatch(arr)
		body := nestedObjectRe.ReplaceAllStringFunc(m[2], func(obj string) string {
			return `"` + flattenObject(obj[1:len(obj)-1]) + `"`
		})
		return m[1] + body + m[3]
	})
}

func flattenObject(inner string) string {
	var parts []string
	for _, kv := range strings.Split(inner, ",") {
		kv = strings.TrimSpace(strings.ReplaceAll(kv, `"`, ""))
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, ":")
		if !ok {
			parts = append(parts, kv)
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "type", "constraint", "name", "value", "kind":
			parts = append(parts, v)
		default:
			if v == "true" {
				parts = append(parts, k)
			} else if v != "false" && v != "" {
				parts = append(parts, k+" "+v)
			}
		}
	}
	return strings.Join(parts, " ")
}

// InsertMissingCommas adds commas between strings or objects that follow each
// other without one.
func InsertMissingCommas(s string) string {
	s = newlineStrRe.ReplaceAllString(s, `",$1"`)
	s = adjacentObjRe.ReplaceAllString(s, `},$1{`)
	return constraintsArrRe.ReplaceAllStringFunc(s, func(arr string) string {
		m := constraintsArrRe.FindStringSubmatch(arr)
		return m[1] + adjacentStrRe.ReplaceAllString(m[2], `", "`) + m[3]
	})
}

// ExtractFirstObject returns the first balanced {...} region, honouring
// string literals. The input is returned unchanged when there is none.
func ExtractFirstObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return s
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case esc:
			esc = false
		case inStr && c == '\\':
			esc = true
		case c == '"':
			inStr = !inStr
		case inStr:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}
