package producer

import "bytes"

// Container names reported in VideoStats.Container.
const (
	ContainerMP4       = "mp4"
	ContainerQuickTime = "mov"
	ContainerMatroska  = "matroska"
	ContainerWebM      = "webm"
	ContainerAVI       = "avi"
	ContainerFLV       = "flv"
	ContainerOgg       = "ogg"
	ContainerMPEGTS    = "mpegts"
	ContainerMPEGPS    = "mpegps"
	ContainerASF       = "asf"
)

// headerSize is how much of a file is read to identify its container.
const headerSize = 512

const tsPacketSize = 188

var (
	ebmlMagic = []byte{0x1a, 0x45, 0xdf, 0xa3}
	asfMagic  = []byte{0x30, 0x26, 0xb2, 0x75, 0x8e, 0x66, 0xcf, 0x11}
	mpegPack  = []byte{0x00, 0x00, 0x01, 0xba}
)

// detectContainer identifies the video container from the first bytes of a
// file. It returns "" when the bytes match no known container.
func detectContainer(header []byte) string {
	switch {
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		if bytes.Equal(header[8:12], []byte("qt  ")) {
			return ContainerQuickTime
		}
		return ContainerMP4
	case bytes.HasPrefix(header, ebmlMagic):
		// The DocType element sits early in the EBML header.
		if bytes.Contains(header, []byte("webm")) {
			return ContainerWebM
		}
		return ContainerMatroska
	case len(header) >= 12 && bytes.Equal(header[0:4], []byte("RIFF")) && bytes.Equal(header[8:12], []byte("AVI ")):
		return ContainerAVI
	case bytes.HasPrefix(header, []byte("FLV\x01")):
		return ContainerFLV
	case bytes.HasPrefix(header, []byte("OggS")):
		return ContainerOgg
	case bytes.HasPrefix(header, asfMagic):
		return ContainerASF
	case bytes.HasPrefix(header, mpegPack):
		return ContainerMPEGPS
	case len(header) > tsPacketSize && header[0] == 0x47 && header[tsPacketSize] == 0x47:
		return ContainerMPEGTS
	default:
		return ""
	}
}
