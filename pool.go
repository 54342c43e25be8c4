// pool.go: Buffer pooling for the AEAD seal/open hot paths.
//
// Copyright (c) 2025 ReshADX
// SPDX-License-Identifier: MPL-2.0

package fieldcrypt

import (
	"sync"
)

var (
	// noncePool holds NonceSize scratch buffers for per-call IV generation.
	noncePool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, NonceSize)
			return &buf
		},
	}

	// scratchPool holds growable buffers for sealed and opened payloads.
	// Field values are small (names, identifiers, account records), so a
	// 256-byte starting capacity covers the common case without resizing.
	scratchPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, 0, 256)
			return &buf
		},
	}
)

// getNonceBuffer retrieves a NonceSize buffer from the pool.
func getNonceBuffer() *[]byte {
	return noncePool.Get().(*[]byte)
}

// putNonceBuffer zeroizes and returns a nonce buffer to the pool. The nonce
// itself is public once it is in the envelope, but clearing keeps pool
// contents uniform.
func putNonceBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	Zeroize(*buf)
	noncePool.Put(buf)
}

// getScratchBuffer retrieves an empty growable buffer from the pool.
func getScratchBuffer() []byte {
	buf := scratchPool.Get().(*[]byte)
	return (*buf)[:0]
}

// putScratchBuffer zeroizes a scratch buffer to its full capacity and
// returns it to the pool. Scratch buffers hold plaintext during decryption,
// so clearing before reuse is mandatory, not an optimization.
func putScratchBuffer(buf []byte) {
	c := cap(buf)
	if c == 0 {
		return
	}
	full := buf[:c]
	Zeroize(full)
	// Oversized one-off buffers are dropped instead of pinned in the pool.
	if c <= 64*1024 {
		scratchPool.Put(&buf)
	}
}
