package codec

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// parseArrayLiteral splits a Postgres-style array literal's top-level
// elements, per spec §4.5's decoding rule: "scan for {, ,, \", }". Nested
// braces never occur in the three value kinds this codec handles -- each
// Values/Valuations row carries exactly one flat array column -- so this
// parser need not recurse into nested arrays.
func parseArrayLiteral(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '{' || s[len(s)-1] != '}' {
		return nil, errors.Errorf("malformed array literal: %q", s)
	}
	body := s[1 : len(s)-1]
	if body == "" {
		return []string{}, nil
	}

	var elems []string
	var cur strings.Builder
	inQuotes := false

	for i := 0; i < len(body); i++ {
		c := body[i]
		if inQuotes {
			if c == '\\' && i+1 < len(body) {
				cur.WriteByte(body[i+1])
				i++
				continue
			}
			if c == '"' {
				inQuotes = false
				continue
			}
			cur.WriteByte(c)
			continue
		}
		switch c {
		case '"':
			inQuotes = true
		case ',':
			elems = append(elems, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	elems = append(elems, cur.String())
	return elems, nil
}

func quoteArrayElement(s string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range s {
		if r == '\\' || r == '"' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')
	return sb.String()
}

// formatFloat renders a double in locale-independent decimal with 12
// significant digits, per spec §4.5.
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', 12, 64)
}

// encodeFloatArray renders a Postgres float8[] literal.
func encodeFloatArray(vs []float64) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(formatFloat(v))
	}
	sb.WriteByte('}')
	return sb.String()
}

// encodeStringArray renders a Postgres text[] literal.
func encodeStringArray(vs []string) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(quoteArrayElement(v))
	}
	sb.WriteByte('}')
	return sb.String()
}

// encodeUint64Array renders a Postgres bigint[] literal, used for both
// LinkVector VUID lists and a link's outgoing EID list.
func encodeUint64Array(vs []uint64) string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, v := range vs {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatUint(v, 10))
	}
	sb.WriteByte('}')
	return sb.String()
}

func decodeFloatArray(literal string) ([]float64, error) {
	elems, err := parseArrayLiteral(literal)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(elems))
	for i, e := range elems {
		v, err := strconv.ParseFloat(strings.TrimSpace(e), 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "decoding float element %q", e)
		}
		out[i] = v
	}
	return out, nil
}

func decodeStringArray(literal string) ([]string, error) {
	return parseArrayLiteral(literal)
}

func decodeUint64Array(literal string) ([]uint64, error) {
	elems, err := parseArrayLiteral(literal)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, len(elems))
	for i, e := range elems {
		v, err := strconv.ParseUint(strings.TrimSpace(e), 10, 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "decoding uint64 element %q", e)
		}
		out[i] = v
	}
	return out, nil
}

// EncodeUint64Array and DecodeUint64Array are exported for
// sqlstore/store's use in encoding/decoding the Atoms.outgoing column,
// which shares the bigint[] literal grammar with LinkVector VUID lists.
func EncodeUint64Array(vs []uint64) string { return encodeUint64Array(vs) }

func DecodeUint64Array(literal string) ([]uint64, error) { return decodeUint64Array(literal) }
