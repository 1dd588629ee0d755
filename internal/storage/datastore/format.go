package datastore

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/Dans-labs/laf-fabric/internal/names"
)

// Every data item file is laid out as
//
//	[magic 4][type 1][payload length 8][crc32 4][payload]
//
// Arrays are packed little endian int32, dicts are JSON, strings are UTF-8.

var magic = [4]byte{'L', 'A', 'F', 'D'}

const headerSize = 4 + 1 + 8 + 4

var crc32Table = crc32.MakeTable(crc32.IEEE)

var typeCodes = map[names.DataType]byte{
	names.TypeArray:  'a',
	names.TypeDict:   'd',
	names.TypeString: 's',
}

// ComputeChecksum computes the CRC32 checksum of a payload
func ComputeChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crc32Table)
}

func typeFromCode(c byte) (names.DataType, bool) {
	for t, code := range typeCodes {
		if code == c {
			return t, true
		}
	}
	return "", false
}

func encodeFrame(dtype names.DataType, payload []byte) ([]byte, error) {
	code, ok := typeCodes[dtype]
	if !ok {
		return nil, fmt.Errorf("unknown data type %q", dtype)
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(payload)))
	buf.Write(magic[:])
	buf.WriteByte(code)
	if err := binary.Write(buf, binary.LittleEndian, int64(len(payload))); err != nil {
		return nil, err
	}
	if err := binary.Write(buf, binary.LittleEndian, ComputeChecksum(payload)); err != nil {
		return nil, err
	}
	buf.Write(payload)
	return buf.Bytes(), nil
}

// frame is a decoded file header plus payload
type frame struct {
	dtype    names.DataType
	checksum uint32
	payload  []byte
}

func decodeFrame(r io.Reader) (*frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return nil, fmt.Errorf("bad magic %q", header[:4])
	}
	dtype, ok := typeFromCode(header[4])
	if !ok {
		return nil, fmt.Errorf("unknown type code %q", header[4])
	}
	length := int64(binary.LittleEndian.Uint64(header[5:13]))
	if length < 0 {
		return nil, fmt.Errorf("negative payload length %d", length)
	}
	f := &frame{
		dtype:    dtype,
		checksum: binary.LittleEndian.Uint32(header[13:17]),
		payload:  make([]byte, length),
	}
	if _, err := io.ReadFull(r, f.payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return f, nil
}

func encodeArray(arr []int32) []byte {
	out := make([]byte, 4*len(arr))
	for i, v := range arr {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
	}
	return out
}

func decodeArray(payload []byte) ([]int32, error) {
	if len(payload)%4 != 0 {
		return nil, fmt.Errorf("array payload of %d bytes is not a multiple of 4", len(payload))
	}
	arr := make([]int32, len(payload)/4)
	for i := range arr {
		arr[i] = int32(binary.LittleEndian.Uint32(payload[4*i:]))
	}
	return arr, nil
}
