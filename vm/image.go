package tyvm

import "encoding/binary"

// BytecodeImage is a decoded view over a compiled image's raw bytes: the
// header fields parsed out (per spec §3.1/§6.4) plus the raw byte slice
// itself, which the VM continues to address directly by ip (subroutine
// bodies are not copied out).
//
// Ported from the original checker's parseHeader (module2.h): the
// SourceMap size/address-range bookkeeping, Subroutine name/address
// entries, and the terminal Main entry are reproduced; the leading Jump is
// stepped over rather than followed, since in this layout the header
// entries come right after it. The "+8" storage-offset quirk when reading
// a subroutine's name (readStorage(bin, nameAddress+8)) is preserved too:
// the stored name address is 8 bytes (one Subroutine entry's operand
// width) below the interned string's real offset, and Builder.Finish
// writes it that way.
type BytecodeImage struct {
	Bin []byte

	SourceMap          []SourceMapEntry
	sourceMapAddr      uint32
	sourceMapAddrEnd   uint32
	Subroutines        []SubroutineEntry
	MainAddress        uint32
}

// SourceMapEntry maps one bytecode instruction pointer to the source byte
// range that produced it (spec §3.1, three u32 words per entry).
type SourceMapEntry struct {
	IP    uint32
	Start uint32
	End   uint32
}

// SubroutineEntry is one decoded subroutine table row: its interned name
// (empty for anonymous subroutines) and its body's start address.
type SubroutineEntry struct {
	Name    string
	Address uint32
}

func readUint32(bin []byte, offset uint32) uint32 {
	return binary.LittleEndian.Uint32(bin[offset : offset+4])
}

func readUint16(bin []byte, offset uint32) uint16 {
	return binary.LittleEndian.Uint16(bin[offset : offset+2])
}

func writeUint32(bin []byte, offset uint32, v uint32) {
	binary.LittleEndian.PutUint32(bin[offset:offset+4], v)
}

func writeUint16(bin []byte, offset uint32, v uint16) {
	binary.LittleEndian.PutUint16(bin[offset:offset+2], v)
}

// readStorage reads a u16-length-prefixed string starting at offset.
func readStorage(bin []byte, offset uint32) string {
	size := readUint16(bin, offset)
	return string(bin[offset+2 : offset+2+uint32(size)])
}

// DecodeHeader walks bin's header region (Jump, SourceMap, Subroutine*,
// Main) and returns a BytecodeImage ready for the VM to run. It does not
// validate or execute any subroutine body.
func DecodeHeader(bin []byte) (*BytecodeImage, error) {
	img := &BytecodeImage{Bin: bin}
	end := uint32(len(bin))
	foundMain := false

	for i := uint32(0); i < end; i++ {
		if int(i)+1 > len(bin) {
			return nil, errMalformedImage
		}
		op := Opcode(bin[i])
		switch op {
		case OpJump:
			if i+5 > end {
				return nil, errMalformedImage
			}
			// The header entries follow the Jump directly; its target
			// (storage_end) lies past the bodies and storage, so only its
			// operand is skipped here.
			i += 4
		case OpSourceMap:
			if i+5 > end {
				return nil, errMalformedImage
			}
			size := readUint32(bin, i+1)
			img.sourceMapAddr = i + 1 + 4
			i += 4 + size
			img.sourceMapAddrEnd = i
			for p := img.sourceMapAddr; p < img.sourceMapAddrEnd; p += 12 {
				img.SourceMap = append(img.SourceMap, SourceMapEntry{
					IP:    readUint32(bin, p),
					Start: readUint32(bin, p+4),
					End:   readUint32(bin, p+8),
				})
			}
		case OpSubroutine:
			if i+9 > end {
				return nil, errMalformedImage
			}
			nameAddr := readUint32(bin, i+1)
			var name string
			if nameAddr != 0 {
				name = readStorage(bin, nameAddr+8)
			}
			addr := readUint32(bin, i+5)
			if addr >= end {
				return nil, errAddressOutOfRange
			}
			i += 8
			img.Subroutines = append(img.Subroutines, SubroutineEntry{Name: name, Address: addr})
		case OpMain:
			if i+5 > end {
				return nil, errMalformedImage
			}
			img.MainAddress = readUint32(bin, i+1)
			if img.MainAddress >= end {
				return nil, errAddressOutOfRange
			}
			img.Subroutines = append(img.Subroutines, SubroutineEntry{Name: "main", Address: img.MainAddress})
			foundMain = true
		}
		if foundMain {
			break
		}
	}

	if !foundMain {
		return nil, errNoMain
	}
	return img, nil
}

// FindSourceMap returns the (start, end) source byte range for the first
// source-map entry whose IP matches ip, in table order, per spec invariant
// 4 (first match wins). ok is false if no entry matches.
func (img *BytecodeImage) FindSourceMap(ip uint32) (start, end uint32, ok bool) {
	for _, e := range img.SourceMap {
		if e.IP == ip {
			return e.Start, e.End, true
		}
	}
	return 0, 0, false
}

// Builder assembles a BytecodeImage byte-by-byte: it stages source-map
// entries and subroutine table rows, interns strings into a storage
// region, and back-patches forward addresses once every subroutine body
// has been emitted. Mirrors the teacher's two-pass compile.go shape
// (collect instructions/labels first, patch addresses, then serialize)
// adapted from assembly-line parsing to direct opcode emission.
type Builder struct {
	body    []byte
	storage []byte

	sourceMap   []SourceMapEntry
	subroutines []stagedSubroutine
	mainAddr    uint32

	// interned maps a string to its storage-region byte offset, so repeat
	// references to the same lexeme share one entry (spec §4.1: dedup is
	// allowed but not required; we do it because it is free here).
	interned map[string]uint32

	// internRefs records the body-relative position of every 4-byte
	// operand that holds a storage-region offset (StringLiteral,
	// NumberLiteral, BigIntLiteral). Storage is appended after the body,
	// so these offsets are only valid relative to the storage region's own
	// start; Finish rewrites each to an absolute image address once that
	// start (storageBase) is known.
	internRefs []uint32
}

type stagedSubroutine struct {
	hasName           bool
	nameStorageOffset uint32 // storage-relative offset from Intern, valid only if hasName
	bodyAddr          uint32
}

// NewBuilder creates an empty image builder.
func NewBuilder() *Builder {
	return &Builder{interned: map[string]uint32{}}
}

// Intern appends s to the storage region (unless already interned) and
// returns its byte offset, for use as a string-bearing opcode's operand.
func (b *Builder) Intern(s string) uint32 {
	if addr, ok := b.interned[s]; ok {
		return addr
	}
	addr := uint32(len(b.storage))
	buf := make([]byte, 2+len(s))
	binary.LittleEndian.PutUint16(buf, uint16(len(s)))
	copy(buf[2:], s)
	b.storage = append(b.storage, buf...)
	b.interned[s] = addr
	return addr
}

// Here returns the byte offset the next emitted opcode will occupy within
// the body region (before header prefixing); Finish adds the header
// length once known to turn it into an absolute image address.
func (b *Builder) Here() uint32 { return uint32(len(b.body)) }

// EmitOpcode appends a single opcode byte with no operand.
func (b *Builder) EmitOpcode(op Opcode) { b.body = append(b.body, byte(op)) }

// EmitOpcodeU32 appends op followed by a little-endian u32 operand.
func (b *Builder) EmitOpcodeU32(op Opcode, v uint32) {
	b.body = append(b.body, byte(op), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(b.body[len(b.body)-4:], v)
}

// EmitOpcodeStorageRef appends op followed by a u32 storage-region offset
// (as returned by Intern), for StringLiteral/NumberLiteral/BigIntLiteral.
// The offset is body-relative to the storage region until Finish rewrites
// it to an absolute image address, since storage is appended after every
// subroutine body and its base offset isn't known until then.
func (b *Builder) EmitOpcodeStorageRef(op Opcode, storageOffset uint32) {
	b.EmitOpcodeU32(op, storageOffset)
	b.internRefs = append(b.internRefs, uint32(len(b.body))-4)
}

// EmitOpcodeU16x2 appends op followed by two little-endian u16 operands.
func (b *Builder) EmitOpcodeU16x2(op Opcode, a, c uint16) {
	b.body = append(b.body, byte(op), 0, 0, 0, 0)
	off := len(b.body) - 4
	binary.LittleEndian.PutUint16(b.body[off:], a)
	binary.LittleEndian.PutUint16(b.body[off+2:], c)
}

// EmitOpcodeU32U16 appends op followed by a u32 then a u16 operand (used
// by Call/TailCall: address then argument count).
func (b *Builder) EmitOpcodeU32U16(op Opcode, addr uint32, argc uint16) {
	b.body = append(b.body, byte(op), 0, 0, 0, 0, 0, 0)
	off := len(b.body) - 6
	binary.LittleEndian.PutUint32(b.body[off:], addr)
	binary.LittleEndian.PutUint16(b.body[off+4:], argc)
}

// EmitOpcodeU16 appends op followed by a single u16 operand (Instantiate,
// CallExpression, Error).
func (b *Builder) EmitOpcodeU16(op Opcode, v uint16) {
	b.body = append(b.body, byte(op), 0, 0)
	binary.LittleEndian.PutUint16(b.body[len(b.body)-2:], v)
}

// PatchU32 overwrites the u32 operand starting at body-relative offset
// with v, for back-patching a forward Call/FunctionRef address once the
// referenced subroutine's final position is known.
func (b *Builder) PatchU32(bodyOffset uint32, v uint32) {
	binary.LittleEndian.PutUint32(b.body[bodyOffset:bodyOffset+4], v)
}

// RecordSourceMap stages a source-map entry keyed by a body-relative ip;
// Finish rewrites it to an absolute image address.
func (b *Builder) RecordSourceMap(ip, start, end uint32) {
	b.sourceMap = append(b.sourceMap, SourceMapEntry{IP: ip, Start: start, End: end})
}

// DeclareSubroutine registers a subroutine table row for the subroutine
// starting at the body-relative address bodyAddr. name is interned and
// recorded for disassembly/debugging; pass "" for an anonymous subroutine
// (its table entry will read back with an empty Name). Finish rewrites
// addresses to absolute image offsets once the header and body sizes are
// fixed.
func (b *Builder) DeclareSubroutine(name string, bodyAddr uint32) {
	s := stagedSubroutine{bodyAddr: bodyAddr}
	if name != "" {
		s.hasName = true
		s.nameStorageOffset = b.Intern(name)
	}
	b.subroutines = append(b.subroutines, s)
}

// SetMain records the main subroutine's body-relative address.
func (b *Builder) SetMain(addr uint32) { b.mainAddr = addr }

// Finish assembles the header, staged source map, subroutine table, and
// the emitted body/storage regions into one contiguous image, per
// spec §3.1's exact ordering:
//
//	Jump(&storage_end) SourceMap Subroutine* Main <bodies> <storage>
//
// All body-relative addresses recorded via RecordSourceMap/
// DeclareSubroutine/SetMain, and the address operands of the body's
// Call/TailCall/Jump/JumpCondition/TypeArgumentDefault/Distribute/
// FunctionRef/Set instructions, are rewritten to absolute image offsets
// here, since the header's size (and therefore the body's base offset) is
// only known once the source-map and subroutine-table sizes are fixed.
func (b *Builder) Finish() *BytecodeImage {
	headerSize := uint32(5) // Jump opcode + u32
	headerSize += 5 + uint32(len(b.sourceMap))*12
	headerSize += uint32(len(b.subroutines)) * 9 // Subroutine opcode + 2*u32
	headerSize += 5                              // Main opcode + u32

	bodyBase := headerSize
	storageBase := bodyBase + uint32(len(b.body))
	storageEnd := storageBase + uint32(len(b.storage))

	// Rewrite every interned-string operand (body-relative until now) to
	// an absolute image address before the body is copied into out.
	for _, pos := range b.internRefs {
		rel := binary.LittleEndian.Uint32(b.body[pos : pos+4])
		binary.LittleEndian.PutUint32(b.body[pos:pos+4], rel+storageBase)
	}

	// Rewrite every control-flow address operand (body-relative until now)
	// the same way, walking the body one instruction at a time by its
	// fixed operand widths.
	for ip := uint32(0); ip < uint32(len(b.body)); ip += 1 + uint32(Opcode(b.body[ip]).OperandWidth()) {
		switch Opcode(b.body[ip]) {
		case OpCall, OpTailCall, OpJump, OpTypeArgumentDefault, OpDistribute, OpFunctionRef, OpSet:
			writeUint32(b.body, ip+1, readUint32(b.body, ip+1)+bodyBase)
		case OpJumpCondition:
			writeUint16(b.body, ip+1, readUint16(b.body, ip+1)+uint16(bodyBase))
			writeUint16(b.body, ip+3, readUint16(b.body, ip+3)+uint16(bodyBase))
		}
	}

	out := make([]byte, 0, storageEnd)

	out = append(out, byte(OpJump), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(out[1:5], storageEnd)

	out = append(out, byte(OpSourceMap), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(out[len(out)-4:], uint32(len(b.sourceMap))*12)
	for _, e := range b.sourceMap {
		var buf [12]byte
		binary.LittleEndian.PutUint32(buf[0:], e.IP+bodyBase)
		binary.LittleEndian.PutUint32(buf[4:], e.Start)
		binary.LittleEndian.PutUint32(buf[8:], e.End)
		out = append(out, buf[:]...)
	}

	for _, s := range b.subroutines {
		out = append(out, byte(OpSubroutine), 0, 0, 0, 0, 0, 0, 0, 0)
		off := len(out) - 8
		var nameAddr uint32
		if s.hasName {
			// DecodeHeader reads the name via readStorage(bin, nameAddr+8)
			// (see the BytecodeImage doc comment), so the stored address is
			// offset back by the entry's own 8-byte width.
			nameAddr = storageBase + s.nameStorageOffset - 8
		}
		binary.LittleEndian.PutUint32(out[off:], nameAddr)
		binary.LittleEndian.PutUint32(out[off+4:], s.bodyAddr+bodyBase)
	}

	out = append(out, byte(OpMain), 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(out[len(out)-4:], b.mainAddr+bodyBase)

	out = append(out, b.body...)
	out = append(out, b.storage...)

	img, err := DecodeHeader(out)
	if err != nil {
		// A builder-produced image that fails to decode is a compiler bug,
		// not a checked-program error; surface it loudly during development
		// rather than silently returning a half-built image.
		panic(err)
	}
	return img
}
