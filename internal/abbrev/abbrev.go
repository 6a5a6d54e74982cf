// Package abbrev parses a DWARF abbreviation table (spec §4.E): the
// per-CU schema mapping an abbreviation code to a tag plus an ordered
// list of (attribute, form) pairs that the DIE walker (component G)
// replays against the actual DIE bytes.
package abbrev

import (
	"github.com/Manu343726/debugedit/internal/bitcodec"
	"github.com/Manu343726/debugedit/pkg/errs"
)

// Form is a DWARF attribute form code, taken verbatim from the DWARF
// specification's DW_FORM_* enumeration.
type Form uint32

// Attr is a DWARF attribute code, taken verbatim from the DWARF
// specification's DW_AT_* enumeration.
type Attr uint32

// The DW_FORM_* values this package knows by name. Only those in the
// recognized set below are accepted by Parse; any other form, including
// ref_sup4, strp_sup and ref_sup8, is a hard parse error.
const (
	FormAddr          Form = 0x01
	FormBlock2        Form = 0x03
	FormBlock4        Form = 0x04
	FormData2         Form = 0x05
	FormData4         Form = 0x06
	FormData8         Form = 0x07
	FormString        Form = 0x08
	FormBlock         Form = 0x09
	FormBlock1        Form = 0x0a
	FormData1         Form = 0x0b
	FormFlag          Form = 0x0c
	FormSdata         Form = 0x0d
	FormStrp          Form = 0x0e
	FormUdata         Form = 0x0f
	FormRefAddr       Form = 0x10
	FormRef1          Form = 0x11
	FormRef2          Form = 0x12
	FormRef4          Form = 0x13
	FormRef8          Form = 0x14
	FormRefUdata      Form = 0x15
	FormIndirect      Form = 0x16
	FormSecOffset     Form = 0x17
	FormExprloc       Form = 0x18
	FormFlagPresent   Form = 0x19
	FormStrx          Form = 0x1a
	FormAddrx         Form = 0x1b
	FormRefSup4       Form = 0x1c
	FormStrpSup       Form = 0x1d
	FormData16        Form = 0x1e
	FormLineStrp      Form = 0x1f
	FormRefSig8       Form = 0x20
	FormImplicitConst Form = 0x21
	FormLoclistx      Form = 0x22
	FormRnglistx      Form = 0x23
	FormRefSup8       Form = 0x24
	FormStrx1         Form = 0x25
	FormStrx2         Form = 0x26
	FormStrx3         Form = 0x27
	FormStrx4         Form = 0x28
	FormAddrx1        Form = 0x29
	FormAddrx2        Form = 0x2a
	FormAddrx3        Form = 0x2b
	FormAddrx4        Form = 0x2c
)

// recognized is the closed accept set spec §4.E names: the DWARF-2 base
// set plus ref_sig8, data16, line_strp, implicit_const, all addrx forms,
// loclistx, rnglistx and all strx forms.
var recognized = map[Form]bool{
	FormAddr: true, FormBlock2: true, FormBlock4: true, FormData2: true,
	FormData4: true, FormData8: true, FormString: true, FormBlock: true,
	FormBlock1: true, FormData1: true, FormFlag: true, FormSdata: true,
	FormStrp: true, FormUdata: true, FormRefAddr: true, FormRef1: true,
	FormRef2: true, FormRef4: true, FormRef8: true, FormRefUdata: true,
	FormIndirect: true, FormSecOffset: true, FormExprloc: true,
	FormFlagPresent: true, FormStrx: true, FormAddrx: true,
	FormData16: true, FormLineStrp: true, FormRefSig8: true,
	FormImplicitConst: true, FormLoclistx: true, FormRnglistx: true,
	FormStrx1: true, FormStrx2: true, FormStrx3: true, FormStrx4: true,
	FormAddrx1: true, FormAddrx2: true, FormAddrx3: true, FormAddrx4: true,
}

// Recognized reports whether f is in the closed accept set §4.E defines.
// Exported so the DIE walker can validate forms it resolves dynamically
// (e.g. after following a DW_FORM_indirect) without duplicating the set.
func Recognized(f Form) bool {
	return recognized[f]
}

// AttrSpec is one (attribute, form) pair in a declaration.
type AttrSpec struct {
	Attr Attr
	Form Form
	// ImplicitConst holds the SLEB128 constant that follows a
	// DW_FORM_implicit_const form pair in the abbreviation table. The
	// value itself carries no meaning to debugedit (spec §4.E: "whose
	// value is discarded") — it is kept only so a caller wanting to
	// inspect the table has it available.
	ImplicitConst int64
}

// Declaration is one abbreviation table entry: a code, a tag, a
// has-children flag and its ordered attribute/form pairs.
type Declaration struct {
	Code        uint32
	Tag         uint32
	HasChildren bool
	Attrs       []AttrSpec
}

// Table maps abbreviation codes to their declarations, as parsed from one
// .debug_abbrev offset.
type Table struct {
	byCode map[uint32]*Declaration
}

// Lookup returns the declaration for code, or ok=false if code is unknown
// to this table (the DIE walker treats that as a format violation).
func (t *Table) Lookup(code uint32) (*Declaration, bool) {
	d, ok := t.byCode[code]
	return d, ok
}

// Parse reads a table starting at data[offset:] until a zero code
// terminates it, using codec for the ULEB128 reads. It returns the table
// and the number of bytes consumed.
//
// Grounded on the teacher's pkg/hw/cpu/mc instruction-table decoding
// idiom (a length-prefix-free sequence of variable-width records read
// until a sentinel), generalized here to DWARF's (code, tag,
// has_children, attr/form pairs..., 0, 0) record shape.
func Parse(codec bitcodec.Codec, data []byte, offset int) (*Table, int, error) {
	t := &Table{byCode: make(map[uint32]*Declaration)}
	cursor := offset

	for {
		code, n, err := readULEB(data, cursor)
		if err != nil {
			return nil, 0, err
		}
		cursor += n

		if code == 0 {
			break
		}

		if _, dup := t.byCode[code]; dup {
			return nil, 0, errs.Formatf("duplicate abbreviation code %d", code)
		}

		tag, n, err := readULEB(data, cursor)
		if err != nil {
			return nil, 0, err
		}
		cursor += n

		if cursor >= len(data) {
			return nil, 0, errs.Formatf("truncated abbreviation table at offset %d", cursor)
		}
		hasChildren := data[cursor] != 0
		cursor++

		decl := &Declaration{Code: code, Tag: tag, HasChildren: hasChildren}

		for {
			attr, n, err := readULEB(data, cursor)
			if err != nil {
				return nil, 0, err
			}
			cursor += n

			form, n, err := readULEB(data, cursor)
			if err != nil {
				return nil, 0, err
			}
			cursor += n

			if attr == 0 && form == 0 {
				break
			}

			f := Form(form)
			if !Recognized(f) {
				return nil, 0, errs.Formatf("unrecognized form 0x%x for attribute 0x%x in abbreviation code %d", form, attr, code)
			}

			spec := AttrSpec{Attr: Attr(attr), Form: f}
			if f == FormImplicitConst {
				v, n, err := bitcodec.ReadSLEB128(data[cursor:])
				if err != nil {
					return nil, 0, err
				}
				cursor += n
				spec.ImplicitConst = v
			}

			decl.Attrs = append(decl.Attrs, spec)
		}

		t.byCode[code] = decl
	}

	return t, cursor - offset, nil
}

func readULEB(data []byte, offset int) (uint32, int, error) {
	if offset >= len(data) {
		return 0, 0, errs.Formatf("truncated abbreviation table at offset %d", offset)
	}
	v, n, err := bitcodec.ReadULEB128(data[offset:])
	if err != nil {
		return 0, 0, err
	}
	return v, n, nil
}
