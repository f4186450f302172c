// Package serialization reads and writes model parameters in the .born container.
//
// Layout:
//
//	0x00  "BORN"            magic
//	0x04  uint32            format version (2)
//	0x08  uint32            flags
//	0x0C  uint32            reserved
//	0x10  uint64            JSON header size
//	0x18  uint64            tensor data size
//	0x20  [32]byte          SHA-256 of the tensor data
//	0x40  JSON header       tensor table, metadata, checkpoint meta
//	      zero padding      to a 64-byte boundary
//	      tensor data       raw little-endian, in header order
//
// Tensors are written in sorted name order so that identical state produces
// identical files apart from the creation time.
package serialization
