package edit

import (
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/internal/reloc"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// strOffsetsResolver implements diewalk.StrOffsetsResolver over a raw
// .debug_str_offsets section: resolving a strx index means reading the
// 4-byte entry at base+4*index (honoring relocations) and returning its
// value, which is itself an offset into .debug_str.
type strOffsetsResolver struct {
	codec bitcodec.Codec
	data  []byte
	idx   *reloc.Index
}

func (r *strOffsetsResolver) Resolve(base uint32, index uint32) (uint32, error) {
	off := int(base) + 4*int(index)
	if off < 0 || off+4 > len(r.data) {
		return 0, errs.Formatf(".debug_str_offsets index %d out of range at base 0x%x", index, base)
	}
	raw := r.codec.Read32(r.data[off:])
	return r.idx.Read32Relocated(r.data, uint64(off), raw), nil
}
