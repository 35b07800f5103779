package kmc2

import (
	"os"

	"github.com/kmerset/kmertools/internal/common"
)

const trailerSize = 8

// binMeta locates one bin's suffix record run within the suffix file and
// gives the size of its record stream; each bin's own LUT has a fixed
// length (4^PrefixLen + 1) derived from the shared header, so only the
// suffix offset and record count need storing per bin.
type binMeta struct {
	SuffixOffset int64
	RecordCount  uint64
}

func lutLenFor(prefixLen int) int { return (1 << uint(2*prefixLen)) + 1 }

// database bundles everything read from a prefix file: the header, the
// signature->bin map, per-bin metadata, and each bin's own LUT slice.
type database struct {
	Header Header
	BinMap *BinMap
	Bins   []binMeta
	LUTs   [][]uint64 // one LUT per bin, length lutLenFor(Header.PrefixLen)
}

func readPrefixFile(path string) (*database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kmc2.readPrefixFile", path, err)
	}
	defer f.Close()

	data, err := common.MmapFile(f)
	if err != nil {
		return nil, err
	}
	defer common.MunmapFile(data)

	if len(data) < 4+4+trailerSize+headerSize || string(data[:4]) != common.KMCPrefixMagic {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}

	fileLen := len(data)
	dbVersion := common.KMCEndian.Uint32(data[fileLen-4:])
	headerOffset := common.KMCEndian.Uint32(data[fileLen-8 : fileLen-4])
	headerStart := fileLen - trailerSize - int(headerOffset)
	if headerStart < 4 || headerStart+headerSize > fileLen-trailerSize {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}
	h, err := decodeHeader(data[headerStart : headerStart+headerSize])
	if err != nil {
		return nil, err
	}
	h.DBVersion = dbVersion

	endMarkerStart := headerStart - 4
	if endMarkerStart < 4 || string(data[endMarkerStart:headerStart]) != common.KMCPrefixMagic {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}

	cursor := 4
	binMapBytes := (1 << uint(2*h.SignatureLen)) * 4
	if cursor+binMapBytes > endMarkerStart {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}
	binMap := decodeBinMap(h.SignatureLen, data[cursor:cursor+binMapBytes])
	cursor += binMapBytes

	metaBytes := h.BinCount * 16
	if cursor+metaBytes > endMarkerStart {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}
	bins := make([]binMeta, h.BinCount)
	for i := 0; i < h.BinCount; i++ {
		off := cursor + i*16
		bins[i] = binMeta{
			SuffixOffset: int64(common.KMCEndian.Uint64(data[off : off+8])),
			RecordCount:  common.KMCEndian.Uint64(data[off+8 : off+16]),
		}
	}
	cursor += metaBytes

	lutLen := lutLenFor(h.PrefixLen)
	luts := make([][]uint64, h.BinCount)
	for i := 0; i < h.BinCount; i++ {
		lut := make([]uint64, lutLen)
		for j := 0; j < lutLen; j++ {
			off := cursor + j*8
			lut[j] = common.KMCEndian.Uint64(data[off : off+8])
		}
		luts[i] = lut
		cursor += lutLen * 8
	}
	if cursor > endMarkerStart {
		return nil, common.NewError(common.KindBadFormat, "kmc2.readPrefixFile", path, nil)
	}

	return &database{Header: h, BinMap: binMap, Bins: bins, LUTs: luts}, nil
}

func writePrefixFile(path string, db *database) error {
	f, err := os.Create(path)
	if err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(common.KMCPrefixMagic); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}
	if _, err := f.Write(encodeBinMap(db.BinMap)); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}

	meta := make([]byte, len(db.Bins)*16)
	for i, b := range db.Bins {
		off := i * 16
		common.KMCEndian.PutUint64(meta[off:off+8], uint64(b.SuffixOffset))
		common.KMCEndian.PutUint64(meta[off+8:off+16], b.RecordCount)
	}
	if _, err := f.Write(meta); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}

	lutLen := lutLenFor(db.Header.PrefixLen)
	buf := make([]byte, 8)
	for _, lut := range db.LUTs {
		if len(lut) != lutLen {
			return common.NewError(common.KindInternal, "kmc2.writePrefixFile", path, nil)
		}
		for _, v := range lut {
			common.KMCEndian.PutUint64(buf, v)
			if _, err := f.Write(buf); err != nil {
				return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
			}
		}
	}

	if _, err := f.WriteString(common.KMCPrefixMagic); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}
	if _, err := f.Write(encodeHeader(db.Header)); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}
	trailer := make([]byte, trailerSize)
	common.KMCEndian.PutUint32(trailer[0:4], headerSize)
	common.KMCEndian.PutUint32(trailer[4:8], db.Header.DBVersion)
	if _, err := f.Write(trailer); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.writePrefixFile", path, err)
	}
	return nil
}

func createSuffixFile(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, common.NewError(common.KindFileIO, "kmc2.createSuffixFile", path, err)
	}
	if _, err := f.WriteString(common.KMCSuffixMagic); err != nil {
		f.Close()
		return nil, common.NewError(common.KindFileIO, "kmc2.createSuffixFile", path, err)
	}
	return f, nil
}

func checkSuffixMagic(f *os.File, path string) error {
	buf := make([]byte, 4)
	if _, err := f.Read(buf); err != nil {
		return common.NewError(common.KindFileIO, "kmc2.checkSuffixMagic", path, err)
	}
	if string(buf) != common.KMCSuffixMagic {
		return common.NewError(common.KindBadFormat, "kmc2.checkSuffixMagic", path, nil)
	}
	return nil
}
