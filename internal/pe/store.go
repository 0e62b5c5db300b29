package pe

import (
	"bytes"
	"encoding/binary"

	"github.com/pecarve/pecarve/internal/blob"
)

// Store rebuilds the complete file from the current model state:
// headers, directories and section table are re-packed, raw-data
// offsets and sizes are recomputed against FileAlignment, and the
// header checksum is recomputed over the final buffer. The result is
// deterministic for a given model state.
func (im *Image) Store() (blob.Blob, error) {
	if err := im.checkVirtualLayout(); err != nil {
		return nil, err
	}

	fileAlign := int64(im.opt.fileAlignment())

	headerEnd := im.dosStub.Len() + 4 + fileHeaderSize + 2 + im.opt.size() +
		int64(len(im.dirs))*dataDirectorySize +
		int64(len(im.sections))*sectionHeaderSize
	sectionOffset := alignUp(headerEnd, fileAlign)
	headerPad := sectionOffset - headerEnd

	// Walk sections in declaration order, assigning fresh file offsets.
	// Sections without file backing keep a zero pointer.
	for _, sec := range im.sections {
		if sec.Header.PointerToRawData == 0 {
			continue
		}
		sec.Header.PointerToRawData = uint32(sectionOffset)
		sec.Header.SizeOfRawData = uint32(alignUp(sec.Data.Len(), fileAlign))
		sectionOffset += int64(sec.Header.SizeOfRawData)
	}

	// The checksum is computed over the file with this field zeroed and
	// patched in afterwards.
	im.opt.setCheckSum(0)

	var hdr bytes.Buffer
	hdr.Write([]byte{'P', 'E', 0, 0})
	packRecord(&hdr, &im.fileHeader)
	packRecord(&hdr, im.optMagic)
	if err := im.opt.pack(&hdr); err != nil {
		return nil, err
	}
	packRecord(&hdr, im.dirs)
	for _, sec := range im.sections {
		packRecord(&hdr, &sec.Header)
	}

	parts := make([]blob.Blob, 0, 3+2*len(im.sections))
	parts = append(parts, im.dosStub, blob.FromBytes(hdr.Bytes()), blob.Pad(headerPad))
	for _, sec := range im.sections {
		if sec.Data == nil || sec.Header.PointerToRawData == 0 {
			continue
		}
		parts = append(parts, sec.Data, blob.Pad(alignUp(sec.Data.Len(), fileAlign)-sec.Data.Len()))
	}
	parts = append(parts, im.trailer)
	out := blob.Join(parts...)

	sum, err := Checksum(out)
	if err != nil {
		return nil, err
	}
	var sumBytes [4]byte
	binary.LittleEndian.PutUint32(sumBytes[:], sum)
	im.opt.setCheckSum(sum)

	return blob.Join(
		out.Slice(0, im.checksumOffset),
		blob.FromBytes(sumBytes[:]),
		out.Slice(im.checksumOffset+4, out.Len()),
	), nil
}
