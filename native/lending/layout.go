package lending

import (
	"encoding/binary"
	"fmt"

	"tokenlending/crypto"
	"tokenlending/native/lending/wad"
)

// layoutWriter fills a fixed-size account buffer front to back. The first
// failure sticks; later writes are ignored and Err reports it.
type layoutWriter struct {
	buf []byte
	off int
	err error
}

func newLayoutWriter(size int) *layoutWriter {
	return &layoutWriter{buf: make([]byte, size)}
}

func (w *layoutWriter) next(n int) []byte {
	if w.err != nil {
		return nil
	}
	if w.off+n > len(w.buf) {
		w.err = fmt.Errorf("%w: write of %d bytes at offset %d overruns %d byte layout", ErrInvalidAccountData, n, w.off, len(w.buf))
		return nil
	}
	out := w.buf[w.off : w.off+n]
	w.off += n
	return out
}

func (w *layoutWriter) u8(v uint8) {
	if b := w.next(1); b != nil {
		b[0] = v
	}
}

func (w *layoutWriter) flag(v bool) {
	if v {
		w.u8(1)
		return
	}
	w.u8(0)
}

func (w *layoutWriter) u64(v uint64) {
	if b := w.next(8); b != nil {
		binary.LittleEndian.PutUint64(b, v)
	}
}

func (w *layoutWriter) pubkey(pk crypto.Pubkey) {
	if b := w.next(crypto.PubkeyLength); b != nil {
		copy(b, pk[:])
	}
}

func (w *layoutWriter) bytes32(v [32]byte) {
	if b := w.next(32); b != nil {
		copy(b, v[:])
	}
}

// optionalPubkey writes a 4-byte tag followed by the key, zero when absent.
func (w *layoutWriter) optionalPubkey(pk *crypto.Pubkey) {
	b := w.next(4 + crypto.PubkeyLength)
	if b == nil || pk == nil {
		return
	}
	binary.LittleEndian.PutUint32(b[:4], 1)
	copy(b[4:], pk[:])
}

func (w *layoutWriter) decimal(d wad.Decimal) {
	b := w.next(16)
	if b == nil {
		return
	}
	if err := d.PutUint128LE(b); err != nil {
		w.err = fmt.Errorf("decimal at offset %d: %w", w.off-16, err)
	}
}

func (w *layoutWriter) skip(n int) { w.next(n) }

func (w *layoutWriter) Bytes() ([]byte, error) {
	if w.err != nil {
		return nil, w.err
	}
	return w.buf, nil
}

// layoutReader walks a fixed-size account buffer front to back.
type layoutReader struct {
	buf []byte
	off int
	err error
}

func newLayoutReader(buf []byte, size int) *layoutReader {
	r := &layoutReader{buf: buf}
	if len(buf) < size {
		r.err = fmt.Errorf("%w: need %d bytes, have %d", ErrInvalidAccountData, size, len(buf))
	}
	return r
}

func (r *layoutReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: read of %d bytes at offset %d overruns buffer", ErrInvalidAccountData, n, r.off)
		return nil
	}
	out := r.buf[r.off : r.off+n]
	r.off += n
	return out
}

func (r *layoutReader) u8() uint8 {
	if b := r.next(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *layoutReader) flag() bool {
	switch v := r.u8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		if r.err == nil {
			r.err = fmt.Errorf("%w: invalid bool %d at offset %d", ErrInvalidAccountData, v, r.off-1)
		}
		return false
	}
}

func (r *layoutReader) u64() uint64 {
	if b := r.next(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *layoutReader) pubkey() crypto.Pubkey {
	var pk crypto.Pubkey
	if b := r.next(crypto.PubkeyLength); b != nil {
		copy(pk[:], b)
	}
	return pk
}

func (r *layoutReader) bytes32() [32]byte {
	var out [32]byte
	if b := r.next(32); b != nil {
		copy(out[:], b)
	}
	return out
}

func (r *layoutReader) optionalPubkey() *crypto.Pubkey {
	b := r.next(4 + crypto.PubkeyLength)
	if b == nil {
		return nil
	}
	switch tag := binary.LittleEndian.Uint32(b[:4]); tag {
	case 0:
		return nil
	case 1:
		var pk crypto.Pubkey
		copy(pk[:], b[4:])
		return &pk
	default:
		r.err = fmt.Errorf("%w: invalid option tag %d at offset %d", ErrInvalidAccountData, tag, r.off-len(b))
		return nil
	}
}

func (r *layoutReader) decimal() wad.Decimal {
	b := r.next(16)
	if b == nil {
		return wad.Decimal{}
	}
	d, err := wad.DecimalFromUint128LE(b)
	if err != nil {
		r.err = err
	}
	return d
}

func (r *layoutReader) skip(n int) { r.next(n) }

func (r *layoutReader) Err() error { return r.err }
