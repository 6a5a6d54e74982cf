// Package arscan classifies the members of a Unix ar archive as ELF
// objects with or without debug sections, the same quick check
// debugedit-classify-ar.c runs before a build system bothers invoking
// debugedit on an archive at all. It never rewrites anything; it only
// answers "does this archive contain at least one worthwhile member".
package arscan

import (
	"bytes"
	"debug/elf"
	"strconv"
	"strings"

	"github.com/Manu343726/debugedit/pkg/errs"
)

// Classification is one archive member's verdict.
type Classification int

const (
	// NotELF means the member's magic bytes aren't an ELF object.
	NotELF Classification = iota
	// NoDebugSections means the member is an ELF object but carries no
	// .debug_* or .zdebug_* section.
	NoDebugSections
	// HasDebugSections means the member is an ELF object with at least
	// one .debug_* or .zdebug_* section.
	HasDebugSections
)

const arMagic = "!<arch>\n"

// Member is one parsed archive member: its name and raw content.
type Member struct {
	Name string
	Data []byte
}

// ParseMembers parses the common ar(5) format: an 8-byte magic, then a
// sequence of 60-byte headers each followed by the member's (possibly
// odd-length, then padded to 2) content. GNU-extended long names
// (a "//" name table, or names recorded as "/<offset>") are resolved
// against that table when present.
func ParseMembers(data []byte) ([]Member, error) {
	if len(data) < len(arMagic) || string(data[:len(arMagic)]) != arMagic {
		return nil, errs.Formatf("not an ar archive: missing %q magic", arMagic)
	}

	var nameTable []byte
	var members []Member

	pos := len(arMagic)
	for pos+60 <= len(data) {
		hdr := data[pos : pos+60]
		rawName := strings.TrimRight(string(hdr[0:16]), " ")
		sizeField := strings.TrimSpace(string(hdr[48:58]))
		size, err := strconv.ParseInt(sizeField, 10, 64)
		if err != nil {
			return nil, errs.Wrap(errs.Format, err, "parsing ar member size field %q", sizeField)
		}

		contentStart := pos + 60
		contentEnd := contentStart + int(size)
		if contentEnd > len(data) {
			return nil, errs.Formatf("ar member %q runs past end of archive", rawName)
		}
		content := data[contentStart:contentEnd]

		name := rawName
		switch {
		case name == "//":
			nameTable = content
			name = ""
		case name == "/":
			name = "" // symbol table, not a real member
		case strings.HasPrefix(name, "/"):
			off, err := strconv.Atoi(name[1:])
			if err == nil && nameTable != nil && off >= 0 && off < len(nameTable) {
				end := bytes.IndexByte(nameTable[off:], '\n')
				if end >= 0 {
					name = strings.TrimRight(string(nameTable[off:off+end]), "/")
				}
			}
		default:
			name = strings.TrimSuffix(name, "/") // GNU format suffixes names with '/'
		}

		if name != "" {
			members = append(members, Member{Name: name, Data: content})
		}

		pos = contentEnd
		if pos%2 != 0 {
			pos++ // members are padded to an even offset
		}
	}

	return members, nil
}

// ClassifyMember runs classify_ar_member's check: not an ELF object, an
// ELF object with no debug sections, or one with debug sections.
func ClassifyMember(data []byte) (Classification, error) {
	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return NotELF, nil //nolint:nilerr // any parse failure just means "not an ELF object"
	}
	defer ef.Close()

	for _, sec := range ef.Sections {
		if strings.HasPrefix(sec.Name, ".debug_") || strings.HasPrefix(sec.Name, ".zdebug_") {
			return HasDebugSections, nil
		}
	}
	return NoDebugSections, nil
}

// Verbosity mirrors classify-ar's three-way -q/-v knob: Quiet suppresses
// even error reporting, Errors is the default, Verbose additionally
// reports the "found debug sections"/"too many members" successes.
type Verbosity int

const (
	Quiet Verbosity = iota - 1
	Errors
	Verbose
)

// Result is classify_ar_file's verdict plus the data a caller's
// diagnostics need.
type Result struct {
	Accepted       bool
	MemberCount    int
	HasDebugMember bool
	TooManyMembers bool
}

// ClassifyArchive implements classify_ar_file/classify_ar_elf: an archive
// is accepted only if it has at least one member with debug sections and,
// when maxMembers > 0, no more than that many members total. maxMembers
// <= 0 means unlimited.
func ClassifyArchive(data []byte, maxMembers int) (Result, error) {
	members, err := ParseMembers(data)
	if err != nil {
		return Result{}, err
	}

	var res Result
	res.MemberCount = len(members)
	for _, m := range members {
		class, err := ClassifyMember(m.Data)
		if err != nil {
			return Result{}, err
		}
		if class == HasDebugSections {
			res.HasDebugMember = true
		}
	}

	if maxMembers > 0 && res.MemberCount > maxMembers {
		res.TooManyMembers = true
	}

	res.Accepted = res.HasDebugMember && !res.TooManyMembers
	return res, nil
}
