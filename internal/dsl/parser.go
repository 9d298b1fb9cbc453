// Package dsl reads a compact text notation for schemas:
//
//	entity Author:
//	  name: string required
//	  email: string unique
//	entity Book:
//	  title: string required
//	  author: ref[Author] required
//	  status: enum[draft, published] default=draft
//	  constraints:
//	    unique(title, author_id)
package dsl

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	entityRe           = regexp.MustCompile(`^entity\s+(\w+)\s*:?\s*$`)
	fieldRe            = regexp.MustCompile(`^\s*([\w_]+):\s*([^\s#]+)(.*)$`)
	enumRe             = regexp.MustCompile(`^enum\[(.*)\]$`)
	refRe              = regexp.MustCompile(`^ref\[([A-Za-z0-9_.]+)\]$`)
	arrayRe            = regexp.MustCompile(`^array\[(.+)\]$`)
	moduleRe           = regexp.MustCompile(`^\s*module\s+([A-Za-z0-9_.-]+)\s*$`)
	reConstraintsStart = regexp.MustCompile(`^\s*constraints\s*:\s*$`)
	reUniqueLine       = regexp.MustCompile(`^\s*unique\s*\(\s*([^)]+)\s*\)\s*$`)
)

// splitOptionTokens splits "k=v k2='v 2' flag" on blanks outside quotes and
// brackets.
func splitOptionTokens(s string) []string {
	var out []string
	var buf []rune
	inSingle, inDouble := false, false
	bracketDepth := 0

	flush := func() {
		if len(buf) > 0 {
			out = append(out, string(buf))
			buf = buf[:0]
		}
	}

	for _, r := range s {
		switch r {
		case '\'':
			if !inDouble && bracketDepth == 0 {
				inSingle = !inSingle
			}
			buf = append(buf, r)
		case '"':
			if !inSingle && bracketDepth == 0 {
				inDouble = !inDouble
			}
			buf = append(buf, r)
		case '[':
			if !inSingle && !inDouble {
				bracketDepth++
			}
			buf = append(buf, r)
		case ']':
			if !inSingle && !inDouble && bracketDepth > 0 {
				bracketDepth--
			}
			buf = append(buf, r)
		default:
			if (r == ' ' || r == '\t') && !inSingle && !inDouble && bracketDepth == 0 {
				flush()
				continue
			}
			buf = append(buf, r)
		}
	}
	flush()
	return out
}

func splitList(inside string) []string {
	var out []string
	for _, p := range strings.Split(inside, ",") {
		if s := strings.Trim(strings.TrimSpace(p), `"'`); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseEntities reads entity blocks. Module lines are accepted and ignored.
func ParseEntities(r io.Reader) ([]*Entity, error) {
	var entities []*Entity
	var current *Entity
	inConstraints := false
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if moduleRe.MatchString(line) {
			continue
		}
		if m := entityRe.FindStringSubmatch(line); m != nil {
			if current != nil {
				entities = append(entities, current)
			}
			current = &Entity{Name: m[1]}
			inConstraints = false
			continue
		}
		if current == nil {
			return nil, fmt.Errorf("line %d: %q outside of an entity block", lineNo, line)
		}

		if reConstraintsStart.MatchString(line) {
			inConstraints = true
			continue
		}
		if inConstraints {
			if m := reUniqueLine.FindStringSubmatch(line); m != nil {
				if set := splitList(m[1]); len(set) > 0 {
					current.Unique = append(current.Unique, set)
				}
				continue
			}
			inConstraints = false
		}

		m := fieldRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("line %d: cannot parse %q", lineNo, line)
		}
		f, err := parseField(m[1], m[2], m[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		current.Fields = append(current.Fields, f)
	}

	if current != nil {
		entities = append(entities, current)
	}
	return entities, scanner.Err()
}

func parseField(name, rawType, tail string) (Field, error) {
	// re-join bracketed types split by the field regexp
	for _, prefix := range []string{"enum[", "array["} {
		if strings.HasPrefix(rawType, prefix) && strings.Count(rawType, "[") > strings.Count(rawType, "]") {
			if idx := strings.Index(tail, "]"); idx >= 0 {
				rawType += tail[:idx+1]
				tail = tail[idx+1:]
			}
		}
	}

	optsRaw := strings.TrimSpace(tail)
	if i := strings.IndexByte(optsRaw, '#'); i >= 0 {
		optsRaw = strings.TrimSpace(optsRaw[:i])
	}
	if strings.HasPrefix(strings.ToLower(optsRaw), "options:") {
		optsRaw = strings.TrimSpace(optsRaw[len("options:"):])
	}
	optsRaw = strings.ReplaceAll(optsRaw, ",", " ")

	f := Field{Name: name, Type: strings.ToLower(rawType), Options: map[string]string{}}
	if mm := enumRe.FindStringSubmatch(rawType); mm != nil {
		f.Type = "enum"
		f.Enum = splitList(mm[1])
	} else if mm := refRe.FindStringSubmatch(rawType); mm != nil {
		f.Type = "ref"
		f.RefTarget = strings.TrimSpace(mm[1])
	} else if mm := arrayRe.FindStringSubmatch(rawType); mm != nil {
		f.Type = "array"
		f.ElemType = strings.TrimSpace(mm[1])
	} else if strings.ContainsAny(rawType, "[]") {
		return f, fmt.Errorf("field %s: unknown type %q", name, rawType)
	}

	for _, tok := range splitOptionTokens(optsRaw) {
		if !strings.Contains(tok, "=") {
			f.Options[strings.ToLower(tok)] = "true"
			continue
		}
		kv := strings.SplitN(tok, "=", 2)
		k := strings.ToLower(strings.TrimSpace(kv[0]))
		v := strings.TrimSpace(kv[1])
		if len(v) >= 2 {
			if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
				v = v[1 : len(v)-1]
			}
		}
		if k != "" {
			f.Options[k] = v
		}
	}
	return f, nil
}
