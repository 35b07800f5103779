package kff

import (
	"bytes"

	"github.com/kmerset/kmertools/internal/common"
)

// variable is one name/value pair inside a 'v' section.
type variable struct {
	Name  string
	Value uint64
}

// encodeVariableSection writes a 'v' section: type tag, u64 count, then
// count name/value pairs.
func encodeVariableSection(vars []variable) []byte {
	var buf bytes.Buffer
	buf.WriteByte(common.KFFSectionVariable)
	writeU64(&buf, uint64(len(vars)))
	for _, v := range vars {
		buf.WriteString(v.Name)
		buf.WriteByte(0)
		writeU64(&buf, v.Value)
	}
	return buf.Bytes()
}

// decodeVariableSection parses a 'v' section starting at data[pos] (which
// must hold the type tag) and returns the variables plus the offset of the
// byte following the section.
func decodeVariableSection(data []byte, pos int) (map[string]uint64, int, error) {
	if pos >= len(data) || data[pos] != common.KFFSectionVariable {
		return nil, 0, common.NewError(common.KindBadFormat, "kff.decodeVariableSection", "", nil)
	}
	pos++
	count, pos, err := readU64(data, pos)
	if err != nil {
		return nil, 0, err
	}
	vars := make(map[string]uint64, count)
	for i := uint64(0); i < count; i++ {
		nameEnd := bytes.IndexByte(data[pos:], 0)
		if nameEnd < 0 {
			return nil, 0, common.NewError(common.KindBadFormat, "kff.decodeVariableSection", "", nil)
		}
		name := string(data[pos : pos+nameEnd])
		pos += nameEnd + 1
		var value uint64
		value, pos, err = readU64(data, pos)
		if err != nil {
			return nil, 0, err
		}
		vars[name] = value
	}
	return vars, pos, nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	b := make([]byte, 8)
	common.KFFEndian.PutUint64(b, v)
	buf.Write(b)
}

func writeI64(buf *bytes.Buffer, v int64) { writeU64(buf, uint64(v)) }

func readU64(data []byte, pos int) (uint64, int, error) {
	if pos+8 > len(data) {
		return 0, 0, common.NewError(common.KindBadFormat, "kff.readU64", "", nil)
	}
	return common.KFFEndian.Uint64(data[pos : pos+8]), pos + 8, nil
}

func readI64(data []byte, pos int) (int64, int, error) {
	v, pos, err := readU64(data, pos)
	return int64(v), pos, err
}

// indexEntry is one (section type, absolute offset) pair inside an 'i'
// section.
type indexEntry struct {
	Type   byte
	Offset int64 // absolute file offset of the referenced section's type tag
}

// encodeIndexSection writes an 'i' section: type tag, u64 count, count
// entries of (type byte, i64 offset relative to this section's own start),
// then an i64 offset to the next index section (0 meaning none).
func encodeIndexSection(selfOffset int64, entries []indexEntry, nextIndexOffset int64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(common.KFFSectionIndex)
	writeU64(&buf, uint64(len(entries)))
	for _, e := range entries {
		buf.WriteByte(e.Type)
		writeI64(&buf, e.Offset-selfOffset)
	}
	writeI64(&buf, nextIndexOffset)
	return buf.Bytes()
}

// decodeIndexSection parses an 'i' section at data[pos] and returns the
// absolute entries, the next index section's absolute offset (0 if none),
// and the offset following the section.
func decodeIndexSection(data []byte, pos int) ([]indexEntry, int64, int, error) {
	selfOffset := int64(pos)
	if pos >= len(data) || data[pos] != common.KFFSectionIndex {
		return nil, 0, 0, common.NewError(common.KindBadFormat, "kff.decodeIndexSection", "", nil)
	}
	pos++
	count, pos, err := readU64(data, pos)
	if err != nil {
		return nil, 0, 0, err
	}
	entries := make([]indexEntry, count)
	for i := uint64(0); i < count; i++ {
		if pos >= len(data) {
			return nil, 0, 0, common.NewError(common.KindBadFormat, "kff.decodeIndexSection", "", nil)
		}
		typ := data[pos]
		pos++
		var rel int64
		rel, pos, err = readI64(data, pos)
		if err != nil {
			return nil, 0, 0, err
		}
		entries[i] = indexEntry{Type: typ, Offset: selfOffset + rel}
	}
	next, pos, err := readI64(data, pos)
	if err != nil {
		return nil, 0, 0, err
	}
	return entries, next, pos, nil
}
