package primitives

import "encoding/binary"

// PutUint16LE, PutUint32LE, and PutUint64LE write little-endian integers.
// NOMAD's wire formats are little-endian throughout.
func PutUint16LE(b []byte, v uint16) { binary.LittleEndian.PutUint16(b, v) }
func PutUint32LE(b []byte, v uint32) { binary.LittleEndian.PutUint32(b, v) }
func PutUint64LE(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }

func Uint16LE(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
func Uint32LE(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }
func Uint64LE(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
