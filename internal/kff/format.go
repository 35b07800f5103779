package kff

import (
	"bytes"

	"github.com/kmerset/kmertools/internal/common"
	"github.com/kmerset/kmertools/internal/kmer"
)

// rawSectionVars names the variables that must precede a raw data section
// and scope it.
const (
	varK          = "k"
	varDataSize   = "data_size"
	varMaxInBlock = "max_in_block"
	varOrdered    = "ordered"
)

// dataSection describes one raw/minimizer section discovered via the
// index walk, scoped by its preceding variable section.
type dataSection struct {
	Type        byte
	Offset      int64 // absolute offset of the section's type tag
	K           int
	CounterSize int
}

// encodeRawSection writes a 'r' section: type tag, u64 block count, then
// that many fixed-size (k-mer bytes || counter bytes) records.
func encodeRawSection(recs []recordBytes) []byte {
	var buf bytes.Buffer
	buf.WriteByte(common.KFFSectionRaw)
	writeU64(&buf, uint64(len(recs)))
	for _, r := range recs {
		buf.Write(r.kmerBytes)
		buf.Write(r.counterBytes)
	}
	return buf.Bytes()
}

type recordBytes struct {
	kmerBytes    []byte
	counterBytes []byte
}

// readRawSection decodes the n fixed-size records of a raw section located
// at data[sec.Offset], given the scoping k/data_size.
func readRawSection(data []byte, sec dataSection) ([]recordBytes, error) {
	pos := int(sec.Offset)
	if pos >= len(data) || data[pos] != common.KFFSectionRaw {
		return nil, common.NewError(common.KindBadFormat, "kff.readRawSection", "", nil)
	}
	pos++
	n, pos, err := readU64(data, pos)
	if err != nil {
		return nil, err
	}
	kmerLen := kmer.ByteLen(sec.K)
	recordLen := kmerLen + sec.CounterSize
	out := make([]recordBytes, n)
	for i := uint64(0); i < n; i++ {
		if pos+recordLen > len(data) {
			return nil, common.NewError(common.KindBadFormat, "kff.readRawSection", "", nil)
		}
		out[i] = recordBytes{
			kmerBytes:    data[pos : pos+kmerLen],
			counterBytes: data[pos+kmerLen : pos+recordLen],
		}
		pos += recordLen
	}
	return out, nil
}

// footer holds the trailing variable section plus the size/magic framing
// that closes a KFF file.
type footer struct {
	FirstIndex int64
}

// encodeFooter writes the footer variable section, its u64 byte length,
// and the trailing magic.
func encodeFooter(f footer) []byte {
	body := encodeVariableSection([]variable{{Name: "first_index", Value: uint64(f.FirstIndex)}})
	var buf bytes.Buffer
	buf.Write(body)
	writeU64(&buf, uint64(len(body)))
	buf.WriteString(common.KFFMagic)
	return buf.Bytes()
}

// decodeFooter reads the footer at the end of data (trailing "KFF" magic,
// preceded by a u64 footer size, preceded by the footer variable section).
func decodeFooter(data []byte) (footer, error) {
	n := len(data)
	if n < len(common.KFFMagic)+8 || string(data[n-len(common.KFFMagic):]) != common.KFFMagic {
		return footer{}, common.NewError(common.KindBadFormat, "kff.decodeFooter", "", nil)
	}
	sizeStart := n - len(common.KFFMagic) - 8
	footerSize := common.KFFEndian.Uint64(data[sizeStart : sizeStart+8])
	bodyStart := sizeStart - int(footerSize)
	if bodyStart < 0 {
		return footer{}, common.NewError(common.KindBadFormat, "kff.decodeFooter", "", nil)
	}
	vars, _, err := decodeVariableSection(data, bodyStart)
	if err != nil {
		return footer{}, err
	}
	firstIndex, ok := vars["first_index"]
	if !ok {
		return footer{}, common.NewError(common.KindBadFormat, "kff.decodeFooter", "", nil)
	}
	return footer{FirstIndex: int64(firstIndex)}, nil
}

// walkIndex follows the linked list of index sections starting at
// firstIndex, collecting every entry whose type is a raw or minimizer
// section. Each index entry for a data section is preceded, within the same
// index section, by a 'v' entry pointing at the variable section that
// scopes it (k, data_size, ordered) -- the index records both offsets
// explicitly so no backward byte-scan over section contents is needed.
func walkIndex(data []byte, firstIndex int64) ([]dataSection, error) {
	var sections []dataSection
	offset := firstIndex
	for offset != 0 {
		entries, next, _, err := decodeIndexSection(data, int(offset))
		if err != nil {
			return nil, err
		}
		var pendingScope *scope
		for _, e := range entries {
			switch e.Type {
			case common.KFFSectionVariable:
				vars, _, err := decodeVariableSection(data, int(e.Offset))
				if err != nil {
					return nil, err
				}
				ordered, ok := vars[varOrdered]
				if !ok || ordered != 1 {
					return nil, common.NewError(common.KindUnsupported, "kff.walkIndex", "", nil)
				}
				k, ok := vars[varK]
				if !ok {
					return nil, common.NewError(common.KindBadFormat, "kff.walkIndex", "", nil)
				}
				dataSize, ok := vars[varDataSize]
				if !ok {
					return nil, common.NewError(common.KindBadFormat, "kff.walkIndex", "", nil)
				}
				pendingScope = &scope{k: int(k), dataSize: int(dataSize)}
			case common.KFFSectionRaw, common.KFFSectionMinimizer:
				if pendingScope == nil {
					return nil, common.NewError(common.KindBadFormat, "kff.walkIndex", "", nil)
				}
				sections = append(sections, dataSection{Type: e.Type, Offset: e.Offset, K: pendingScope.k, CounterSize: pendingScope.dataSize})
			default:
				return nil, common.NewError(common.KindBadFormat, "kff.walkIndex", "", nil)
			}
		}
		offset = next
	}
	return sections, nil
}

type scope struct {
	k        int
	dataSize int
}
