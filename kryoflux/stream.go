package kryoflux

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sergev/fluxtrack/flux"
)

// Stream block codes. Bytes 0x0e-0xff are one-byte flux values.
const (
	blockFlux2 = 0x07 // 0x00-0x07: two-byte flux value
	blockNop1  = 0x08
	blockNop2  = 0x09
	blockNop3  = 0x0a
	blockOvl16 = 0x0b
	blockFlux3 = 0x0c
	blockOOB   = 0x0d
)

// Out-of-band block types.
const (
	oobStreamInfo = 0x01
	oobIndex      = 0x02
	oobStreamEnd  = 0x03
	oobKFInfo     = 0x04
	oobEOF        = 0x0d
)

// Stream end result codes.
const (
	resultOK        = 0
	resultBuffering = 1
	resultNoIndex   = 2
)

// ErrStreamEnd is returned for a stream that the device closed with an error.
var ErrStreamEnd = errors.New("kryoflux stream ended with error")

// IndexTiming is the timing information about one index pulse.
type IndexTiming struct {
	// Position (in bytes, out-of-band blocks excluded) in the stream
	// of the next flux reversal just after the index was detected.
	StreamPosition uint32

	// Sample clocks from the previous flux reversal to the index.
	SampleCounter uint32

	// Index Counter when the index was detected, in index clocks.
	IndexCounter uint32
}

// Stream is a decoded KryoFlux raw stream.
//
// Typical sequence of OOB blocks is:
//
//	KFInfo: infoData='name=KryoFlux DiskSystem, version=3.00s, date=Mar 27 2018, time=18:25:55,
//	                  hwid=1, hwrv=1, hs=1, sck=24027428.5714285, ick=3003428.5714285625'
//	Index: streamPosition=21154, sampleCounter=66, indexCounter=109798707
//	Index: streamPosition=96737, sampleCounter=66, indexCounter=110398148
//	StreamEnd: streamPosition=399071, resultCode=0
//	StreamInfo: streamPosition=399071, transferTime=0
type Stream struct {
	Sample flux.Sample       // All flux with index pulse times
	Index  []IndexTiming     // Raw index blocks in stream order
	Info   map[string]string // Key/value pairs of KFInfo blocks
}

// block is one element of a raw stream.
type block struct {
	code   byte
	offset int // In the raw data
	pos    int // Stream position, OOB bytes excluded
	size   int // Total length in bytes
}

// scan walks complete blocks starting at offset from, with stream position pos.
// It stops before a truncated block or after the EOF block.
func scan(data []byte, from, pos int, visit func(b block) error) (next, nextPos int, eof bool, err error) {
	offset := from
	for offset < len(data) {
		b := block{code: data[offset], offset: offset, pos: pos}
		switch {
		case b.code <= blockFlux2:
			b.size = 2
		case b.code == blockNop1, b.code == blockOvl16:
			b.size = 1
		case b.code == blockNop2:
			b.size = 2
		case b.code == blockNop3, b.code == blockFlux3:
			b.size = 3
		case b.code == blockOOB:
			if offset+4 > len(data) {
				return offset, pos, false, nil
			}
			if data[offset+1] == oobEOF {
				b.size = 4
				break
			}
			b.size = 4 + int(binary.LittleEndian.Uint16(data[offset+2:]))
		default:
			b.size = 1
		}
		if offset+b.size > len(data) {
			return offset, pos, false, nil
		}
		if visit != nil {
			if err := visit(b); err != nil {
				return offset, pos, false, err
			}
		}
		offset += b.size
		if b.code == blockOOB {
			if data[b.offset+1] == oobEOF {
				return offset, pos, true, nil
			}
		} else {
			pos += b.size
		}
	}
	return offset, pos, false, nil
}

// ParseStream decodes a raw stream file. Index pulse times are attached
// to the sample, which uses the sample clock reported by the device.
func ParseStream(data []byte) (*Stream, error) {
	st := &Stream{Info: make(map[string]string)}
	endResult := uint32(resultOK)

	// Out-of-band blocks first: index blocks follow the flux they refer to.
	next, _, eof, err := scan(data, 0, 0, func(b block) error {
		if b.code != blockOOB {
			return nil
		}
		typ := data[b.offset+1]
		payload := data[b.offset+4 : b.offset+b.size]
		switch typ {
		case oobIndex:
			if len(payload) < 12 {
				return fmt.Errorf("short index block at offset %d", b.offset)
			}
			st.Index = append(st.Index, IndexTiming{
				StreamPosition: binary.LittleEndian.Uint32(payload[0:]),
				SampleCounter:  binary.LittleEndian.Uint32(payload[4:]),
				IndexCounter:   binary.LittleEndian.Uint32(payload[8:]),
			})
		case oobStreamEnd:
			if len(payload) < 8 {
				return fmt.Errorf("short stream end block at offset %d", b.offset)
			}
			endResult = binary.LittleEndian.Uint32(payload[4:])
		case oobKFInfo:
			parseInfo(st.Info, payload)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !eof && next < len(data) {
		return nil, fmt.Errorf("truncated stream block at offset %d", next)
	}
	switch endResult {
	case resultOK:
	case resultBuffering:
		return nil, fmt.Errorf("%w: buffering problem", ErrStreamEnd)
	case resultNoIndex:
		return nil, fmt.Errorf("%w: no index signal", ErrStreamEnd)
	default:
		return nil, fmt.Errorf("%w: result code %d", ErrStreamEnd, endResult)
	}

	st.Sample.Freq = DefaultSampleClock
	if sck, ok := st.Info["sck"]; ok {
		if f, err := strconv.ParseFloat(sck, 64); err == nil && f > 0 {
			st.Sample.Freq = f
		}
	}

	pending := append([]IndexTiming(nil), st.Index...)
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].StreamPosition < pending[j].StreamPosition
	})
	var t, acc uint64 // last transition, ticks since then
	resolve := func(pos int) {
		for len(pending) > 0 && int(pending[0].StreamPosition) <= pos {
			st.Sample.Index = append(st.Sample.Index, t+acc+uint64(pending[0].SampleCounter))
			pending = pending[1:]
		}
	}
	emit := func(v uint64) {
		acc += v
		st.Sample.Intervals = append(st.Sample.Intervals, uint32(acc))
		t += acc
		acc = 0
	}

	_, end, _, _ := scan(data, 0, 0, func(b block) error {
		if b.code == blockOOB {
			return nil
		}
		resolve(b.pos)
		switch {
		case b.code <= blockFlux2:
			emit(uint64(b.code)<<8 | uint64(data[b.offset+1]))
		case b.code == blockOvl16:
			acc += 0x10000
		case b.code == blockFlux3:
			emit(uint64(data[b.offset+1])<<8 | uint64(data[b.offset+2]))
		case b.code > blockOOB:
			emit(uint64(b.code))
		}
		return nil
	})
	resolve(end)

	if len(st.Sample.Intervals) == 0 {
		return nil, flux.ErrNoCells
	}
	return st, nil
}

// parseInfo collects "key=value, key=value" pairs.
func parseInfo(info map[string]string, payload []byte) {
	text := strings.TrimRight(string(payload), "\x00")
	for _, field := range strings.Split(text, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if ok {
			info[key] = value
		}
	}
}

// IndexClock returns the index clock frequency reported by the device.
func (st *Stream) IndexClock() float64 {
	if ick, ok := st.Info["ick"]; ok {
		if f, err := strconv.ParseFloat(ick, 64); err == nil && f > 0 {
			return f
		}
	}
	return DefaultIndexClock
}

// RPM computes the rotation speed from the index counters of the first
// two index blocks. Returns 0 when unknown.
func (st *Stream) RPM() float64 {
	if len(st.Index) < 2 {
		return 0
	}
	ticks := st.Index[1].IndexCounter - st.Index[0].IndexCounter
	if ticks == 0 {
		return 0
	}
	return 60 * st.IndexClock() / float64(ticks)
}

// WriteStream encodes a flux sample as a raw stream, the way the device
// sends it: preamble, flux with index blocks, stream end and EOF.
func WriteStream(w io.Writer, s flux.Sample, now time.Time) error {
	var buf bytes.Buffer
	writePreamble(&buf, now)
	sck := s.Freq
	if sck == 0 {
		sck = DefaultSampleClock
	}
	writeOOB(&buf, oobKFInfo, []byte(fmt.Sprintf("sck=%s, ick=%s\x00",
		strconv.FormatFloat(sck, 'f', -1, 64), strconv.FormatFloat(DefaultIndexClock, 'f', -1, 64))))

	index := append([]uint64(nil), s.Index...)
	sort.Slice(index, func(i, j int) bool { return index[i] < index[j] })
	pos := 0
	var t uint64
	indexBlock := func(at uint64, position int) {
		var p [12]byte
		binary.LittleEndian.PutUint32(p[0:], uint32(position))
		binary.LittleEndian.PutUint32(p[4:], uint32(at-t))
		binary.LittleEndian.PutUint32(p[8:], uint32(float64(at)*DefaultIndexClock/sck))
		writeOOB(&buf, oobIndex, p[:])
	}

	for _, iv := range s.Intervals {
		start := pos
		var fb []byte
		v := uint64(iv)
		for ; v >= 0x10000; v -= 0x10000 {
			fb = append(fb, blockOvl16)
		}
		switch {
		case v > blockOOB && v <= 0xff:
			fb = append(fb, byte(v))
		case v < 0x800:
			fb = append(fb, byte(v>>8), byte(v))
		default:
			fb = append(fb, blockFlux3, byte(v>>8), byte(v))
		}
		buf.Write(fb)
		pos += len(fb)

		// An index refers to the first flux reversal after it.
		for len(index) > 0 && index[0] <= t+uint64(iv) {
			indexBlock(max(index[0], t), start)
			index = index[1:]
		}
		t += uint64(iv)
	}
	for _, a := range index {
		indexBlock(max(a, t), pos)
	}

	var end [8]byte
	binary.LittleEndian.PutUint32(end[0:], uint32(pos))
	writeOOB(&buf, oobStreamEnd, end[:])
	buf.Write([]byte{blockOOB, oobEOF, oobEOF, oobEOF})

	_, err := w.Write(buf.Bytes())
	return err
}

// writePreamble writes the host timestamp block that starts a stream file.
func writePreamble(buf *bytes.Buffer, now time.Time) {
	timestamp := fmt.Sprintf("host_date=%04d.%02d.%02d, host_time=%02d:%02d:%02d",
		now.Year(), int(now.Month()), now.Day(),
		now.Hour(), now.Minute(), now.Second())
	writeOOB(buf, oobKFInfo, append([]byte(timestamp), 0))
}

func writeOOB(buf *bytes.Buffer, typ byte, payload []byte) {
	buf.Write([]byte{blockOOB, typ, byte(len(payload)), byte(len(payload) >> 8)})
	buf.Write(payload)
}
