package mfm

// CRC16-CCITT, polynomial 0x1021, as used in IBM address marks.
const (
	CRCInit    = 0xffff // Preload before the first byte
	CRCSyncMFM = 0xcdb4 // Preload after three A1 sync bytes
)

var crcTable [256]uint16

func init() {
	for i := range crcTable {
		crc := uint16(i) << 8
		for k := 0; k < 8; k++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// CRC16 continues a CRC over data.
func CRC16(crc uint16, data []byte) uint16 {
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}

// MarkCRC returns the CRC accumulated over the sync bytes and the mark byte.
// A field followed by its own CRC continues from here to zero.
func (m Mode) MarkCRC(mark byte) uint16 {
	if m == MFM {
		return CRC16(CRCSyncMFM, []byte{mark})
	}
	return CRC16(CRCInit, []byte{mark})
}
