// Package jsonpath evaluates a restricted dot/bracket path syntax against a
// decoded JSON document. It is shared by the session store's correlation
// extraction (§4.12) and the assertion package's JSON-path predicates
// (§4.14), so both walk the same grammar: "user.id", "items[0].name",
// "a.b[2][0]".
package jsonpath

import (
	"fmt"
	"strconv"
	"strings"
)

// segment is either a map key or an array index.
type segment struct {
	key      string
	index    int
	isIndex  bool
}

// parse splits a path like "user.items[0].name" into ordered segments.
func parse(path string) ([]segment, error) {
	var segs []segment
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, segment{key: cur.String()})
			cur.Reset()
		}
	}

	i := 0
	for i < len(path) {
		c := path[i]
		switch c {
		case '.':
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(path[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("jsonpath: unterminated '[' in %q", path)
			}
			idxStr := path[i+1 : i+end]
			idx, err := strconv.Atoi(idxStr)
			if err != nil {
				return nil, fmt.Errorf("jsonpath: bad index %q in %q", idxStr, path)
			}
			segs = append(segs, segment{index: idx, isIndex: true})
			i += end + 1
		default:
			cur.WriteByte(c)
			i++
		}
	}
	flush()

	if len(segs) == 0 {
		return nil, fmt.Errorf("jsonpath: empty path")
	}
	return segs, nil
}

// Get walks doc (the result of json.Unmarshal into interface{}) along path
// and returns the value found there. ok is false when any segment along the
// way is missing or of the wrong shape.
func Get(doc interface{}, path string) (value interface{}, ok bool) {
	segs, err := parse(path)
	if err != nil {
		return nil, false
	}

	cur := doc
	for _, s := range segs {
		if s.isIndex {
			arr, isArr := cur.([]interface{})
			if !isArr || s.index < 0 || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}
		m, isMap := cur.(map[string]interface{})
		if !isMap {
			return nil, false
		}
		v, present := m[s.key]
		if !present {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Exists reports whether path resolves to any value (including null) in doc.
func Exists(doc interface{}, path string) bool {
	_, ok := Get(doc, path)
	return ok
}

// Equals reports whether the value at path equals want. Numeric comparison
// is tolerant of the float64/int mismatch inherent in decoding JSON numbers
// into interface{}: both sides are compared as float64 when both are
// numeric, so json_path("user.id", 7) matches a decoded 7.0.
func Equals(doc interface{}, path string, want interface{}) bool {
	got, ok := Get(doc, path)
	if !ok {
		return false
	}
	return equalValues(got, want)
}

func equalValues(got, want interface{}) bool {
	gotNum, gotIsNum := asFloat(got)
	wantNum, wantIsNum := asFloat(want)
	if gotIsNum && wantIsNum {
		return gotNum == wantNum
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func asFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
