package protocol

import (
	"io"
)

// PaddedSize returns n rounded up to a whole number of transport blocks
func PaddedSize(n int) int {
	if n == 0 {
		return 0
	}
	return ((n + BlockSize - 1) / BlockSize) * BlockSize
}

// WriteBlocks writes a frame in BlockSize chunks, zero-padding the last
// chunk to a full block. Pad bytes are transport filler and are never
// counted in a header's PayloadSize.
func WriteBlocks(w io.Writer, frame []byte) error {
	block := make([]byte, BlockSize)

	for offset := 0; offset < len(frame); offset += BlockSize {
		end := offset + BlockSize
		if end > len(frame) {
			end = len(frame)
		}

		n := copy(block, frame[offset:end])
		for i := n; i < BlockSize; i++ {
			block[i] = 0
		}

		if _, err := w.Write(block); err != nil {
			return err
		}
	}

	return nil
}
