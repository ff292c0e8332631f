// Package bundle implements the Parser (C2): validates a skill bundle
// (frontmatter header + body), normalizes its metadata, and computes the
// canonical content hash. The parsing style — read once, validate fields,
// return a typed ParseError — follows the teacher's rules.validateRule /
// baseline.Load pattern of failing fast with a wrapped, specific error.
package bundle

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/nox-hq/skillforge/internal/skillerr"
)

const (
	delimiter        = "---"
	maxNameLen        = 64
	maxDescriptionLen = 1024
)

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-_]*$`)

// ParsedSkill is the normalized result of a successful parse.
type ParsedSkill struct {
	Name        string
	Description string
	Metadata    map[string]string // all header keys verbatim, including name/description
	Body        []byte
	Canonical   []byte // canonicalized bytes used to compute ContentHash
	ContentHash string // lowercase hex SHA-256 of Canonical
}

// Parse validates raw as a skill bundle and returns its normalized form.
func Parse(raw []byte) (*ParsedSkill, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonEmpty}
	}

	headerLines, bodyLines, err := splitHeader(raw)
	if err != nil {
		return nil, err
	}

	meta, err := parseHeaderLines(headerLines)
	if err != nil {
		return nil, err
	}

	name, ok := meta["name"]
	if !ok || strings.TrimSpace(name) == "" {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonMissingRequired, Detail: "name"}
	}
	description, ok := meta["description"]
	if !ok || strings.TrimSpace(description) == "" {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonMissingRequired, Detail: "description"}
	}
	if len(name) > maxNameLen {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonFieldTooLong, Detail: "name"}
	}
	if len(description) > maxDescriptionLen {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonFieldTooLong, Detail: "description"}
	}
	if !namePattern.MatchString(name) {
		return nil, &skillerr.ParseError{Reason: skillerr.ReasonInvalidIdentifier, Detail: name}
	}

	body := normalizeBody(bodyLines)
	canonical := Canonicalize(meta, body)
	sum := sha256.Sum256(canonical)

	return &ParsedSkill{
		Name:        name,
		Description: description,
		Metadata:    meta,
		Body:        body,
		Canonical:   canonical,
		ContentHash: hex.EncodeToString(sum[:]),
	}, nil
}

// splitHeader locates the "---\n...\n---\n" delimited header and returns
// its raw lines (without delimiters) and the remaining body lines.
func splitHeader(raw []byte) (header, body []string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delimiter {
		return nil, nil, &skillerr.ParseError{Reason: skillerr.ReasonMissingDelimiter}
	}

	closeIdx := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			closeIdx = i
			break
		}
	}
	if closeIdx == -1 {
		return nil, nil, &skillerr.ParseError{Reason: skillerr.ReasonMissingDelimiter}
	}

	return lines[1:closeIdx], lines[closeIdx+1:], nil
}

// parseHeaderLines parses "key: value" lines into a map. Blank lines inside
// the header are ignored; anything else that isn't a valid key/value pair
// is a MalformedHeader error.
func parseHeaderLines(lines []string) (map[string]string, error) {
	meta := make(map[string]string)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		idx := strings.Index(line, ":")
		if idx == -1 {
			return nil, &skillerr.ParseError{Reason: skillerr.ReasonMalformedHeader, Detail: line}
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if key == "" {
			return nil, &skillerr.ParseError{Reason: skillerr.ReasonMalformedHeader, Detail: line}
		}
		meta[strings.ToLower(key)] = value
	}
	return meta, nil
}

// normalizeBody strips trailing whitespace from each line and normalizes
// line endings to LF, per the canonicalization rule in spec.md §6.
func normalizeBody(lines []string) []byte {
	var buf bytes.Buffer
	for _, line := range lines {
		buf.WriteString(strings.TrimRight(line, " \t\r"))
		buf.WriteByte('\n')
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// Canonicalize serializes header fields (sorted lexicographically by key)
// and the normalized body into the exact byte sequence hashed to produce
// ContentHash: `key ": " value "\n"` per key, a single "---\n" delimiter,
// then the body. This is the property under test in spec.md §8 property 1:
// hash(canonicalize(x)) == hash(canonicalize(y)) whenever x and y differ
// only in header key ordering, trailing whitespace, or line endings.
func Canonicalize(meta map[string]string, body []byte) []byte {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s: %s\n", k, meta[k])
	}
	buf.WriteString(delimiter)
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}
