package format

import "encoding/binary"

// Media type and flag bits carried in the volume/disk section, per
// spec.md section 3/4.2.
const (
	MediaTypeRemovable = 0x00
	MediaTypeFixed     = 0x01
	MediaTypeOptical   = 0x03
	MediaTypeLogical   = 0x0e
	MediaTypeRAM       = 0x10

	MediaFlagImage    = 0x01
	MediaFlagPhysical = 0x02
	MediaFlagFastbloc = 0x04
	MediaFlagTableau  = 0x08
)

// Compression level as declared in the volume section (distinct from the
// per-chunk compressed/uncompressed flag).
const (
	CompressionNone = 0x00
	CompressionFast = 0x01
	CompressionBest = 0x02
)

// VolumeSize is the payload size of a v1 "volume"/"disk" section body.
const VolumeSize = 94

// Volume holds the fields of the volume/disk section: chunk geometry,
// media classification, and the acquisition GUID.
type Volume struct {
	MediaType              uint8
	ChunkCount             uint32
	SectorsPerChunk        uint32
	BytesPerSector         uint32
	SectorCount            uint64
	CHSCylinders           uint32
	CHSHeads               uint32
	CHSSectors             uint32
	MediaFlags             uint8
	PalmVolumeStartSector  uint32
	SmartLogsStartSector   uint32
	CompressionLevel       uint8
	SectorErrorGranularity uint32
	SetIdentifier          [16]byte
}

// ChunkSize returns the declared uncompressed chunk size in bytes.
func (v Volume) ChunkSize() uint32 {
	return v.SectorsPerChunk * v.BytesPerSector
}

// DecodeVolume parses the fixed 94-byte volume/disk payload used by classic
// EWF/EnCase/Linen variants.
func DecodeVolume(buf []byte) (Volume, bool) {
	if len(buf) < VolumeSize {
		return Volume{}, false
	}
	var v Volume
	v.MediaType = buf[0]
	v.ChunkCount = binary.LittleEndian.Uint32(buf[4:8])
	v.SectorsPerChunk = binary.LittleEndian.Uint32(buf[8:12])
	v.BytesPerSector = binary.LittleEndian.Uint32(buf[12:16])
	v.SectorCount = binary.LittleEndian.Uint64(buf[16:24])
	v.CHSCylinders = binary.LittleEndian.Uint32(buf[24:28])
	v.CHSHeads = binary.LittleEndian.Uint32(buf[28:32])
	v.CHSSectors = binary.LittleEndian.Uint32(buf[32:36])
	v.MediaFlags = buf[36]
	v.PalmVolumeStartSector = binary.LittleEndian.Uint32(buf[40:44])
	v.SmartLogsStartSector = binary.LittleEndian.Uint32(buf[48:52])
	v.CompressionLevel = buf[52]
	v.SectorErrorGranularity = binary.LittleEndian.Uint32(buf[56:60])
	copy(v.SetIdentifier[:], buf[64:80])
	return v, true
}

// EncodeVolume serializes a Volume into the 94-byte wire payload, whose last
// 4 bytes carry the Adler-32 checksum of the preceding 90.
func EncodeVolume(v Volume) []byte {
	buf := make([]byte, VolumeSize)
	buf[0] = v.MediaType
	binary.LittleEndian.PutUint32(buf[4:8], v.ChunkCount)
	binary.LittleEndian.PutUint32(buf[8:12], v.SectorsPerChunk)
	binary.LittleEndian.PutUint32(buf[12:16], v.BytesPerSector)
	binary.LittleEndian.PutUint64(buf[16:24], v.SectorCount)
	binary.LittleEndian.PutUint32(buf[24:28], v.CHSCylinders)
	binary.LittleEndian.PutUint32(buf[28:32], v.CHSHeads)
	binary.LittleEndian.PutUint32(buf[32:36], v.CHSSectors)
	buf[36] = v.MediaFlags
	binary.LittleEndian.PutUint32(buf[40:44], v.PalmVolumeStartSector)
	binary.LittleEndian.PutUint32(buf[48:52], v.SmartLogsStartSector)
	buf[52] = v.CompressionLevel
	binary.LittleEndian.PutUint32(buf[56:60], v.SectorErrorGranularity)
	copy(buf[64:80], v.SetIdentifier[:])
	binary.LittleEndian.PutUint32(buf[VolumeSize-4:VolumeSize], ChecksumAdler32(buf[:VolumeSize-4]))
	return buf
}
