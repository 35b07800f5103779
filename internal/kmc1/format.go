package kmc1

import (
	"os"

	"github.com/kmerset/kmertools/internal/common"
)

// trailerSize is the size, in bytes, of the fields written after the
// header: a uint32 header-offset and a uint32 database-version tag.
const trailerSize = 8

// readPrefixFile loads an entire prefix file (small: 4^p LUT entries plus a
// fixed footer) and returns its header and LUT. Prefix files are never
// streamed through the suffix-file's buffered pipeline; the LUT itself is
// read once, up front, via mmap.
func readPrefixFile(path string) (Header, []uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, nil, common.NewError(common.KindFileIO, "kmc1.readPrefixFile", path, err)
	}
	defer f.Close()

	data, err := common.MmapFile(f)
	if err != nil {
		return Header{}, nil, err
	}
	defer common.MunmapFile(data)

	if len(data) < 4+4+trailerSize+headerSize {
		return Header{}, nil, common.NewError(common.KindBadFormat, "kmc1.readPrefixFile", path, nil)
	}
	if string(data[:4]) != common.KMCPrefixMagic {
		return Header{}, nil, common.NewError(common.KindBadFormat, "kmc1.readPrefixFile", path, nil)
	}

	fileLen := len(data)
	dbVersion := common.KMCEndian.Uint32(data[fileLen-4:])
	headerOffset := common.KMCEndian.Uint32(data[fileLen-8 : fileLen-4])
	headerStart := fileLen - trailerSize - int(headerOffset)
	if headerStart < 4 || headerStart+headerSize > fileLen-trailerSize {
		return Header{}, nil, common.NewError(common.KindBadFormat, "kmc1.readPrefixFile", path, nil)
	}

	h, err := decodeHeader(data[headerStart : headerStart+headerSize])
	if err != nil {
		return Header{}, nil, err
	}
	h.DBVersion = dbVersion

	endMarkerStart := headerStart - 4
	if endMarkerStart < 4 || string(data[endMarkerStart:headerStart]) != common.KMCPrefixMagic {
		return Header{}, nil, common.NewError(common.KindBadFormat, "kmc1.readPrefixFile", path, nil)
	}

	lutBytes := data[4:endMarkerStart]
	if len(lutBytes)%8 != 0 {
		return Header{}, nil, common.NewError(common.KindBadFormat, "kmc1.readPrefixFile", path, nil)
	}
	n := len(lutBytes) / 8
	lut := make([]uint64, n)
	for i := 0; i < n; i++ {
		lut[i] = common.KMCEndian.Uint64(lutBytes[i*8 : i*8+8])
	}
	return h, lut, nil
}

// writePrefixFile writes the magic-framed LUT and footer header in one
// shot: the LUT is produced incrementally by the writer's preparing thread
// but is small enough to buffer fully before the final flush.
func writePrefixFile(path string, h Header, lut []uint64) error {
	f, err := os.Create(path)
	if err != nil {
		return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
	}
	defer f.Close()

	if _, err := f.WriteString(common.KMCPrefixMagic); err != nil {
		return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
	}
	buf := make([]byte, 8)
	for _, v := range lut {
		common.KMCEndian.PutUint64(buf, v)
		if _, err := f.Write(buf); err != nil {
			return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
		}
	}
	if _, err := f.WriteString(common.KMCPrefixMagic); err != nil {
		return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
	}

	headerBytes := encodeHeader(h)
	if _, err := f.Write(headerBytes); err != nil {
		return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
	}

	trailer := make([]byte, trailerSize)
	common.KMCEndian.PutUint32(trailer[0:4], headerSize)
	common.KMCEndian.PutUint32(trailer[4:8], h.DBVersion)
	if _, err := f.Write(trailer); err != nil {
		return common.NewError(common.KindFileIO, "kmc1.writePrefixFile", path, err)
	}
	return nil
}

// checkSuffixMagic validates the leading 4-byte magic of an opened suffix
// file and leaves the file positioned just past it.
func checkSuffixMagic(f *os.File, path string) error {
	buf := make([]byte, 4)
	if _, err := f.Read(buf); err != nil {
		return common.NewError(common.KindFileIO, "kmc1.checkSuffixMagic", path, err)
	}
	if string(buf) != common.KMCSuffixMagic {
		return common.NewError(common.KindBadFormat, "kmc1.checkSuffixMagic", path, nil)
	}
	return nil
}
