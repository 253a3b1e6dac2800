package rewritex

import "testing"

// TestDecodeMovRegToReg decodes "mov rax, rdi" (48 89 f8).
func TestDecodeMovRegToReg(t *testing.T) {
	code := []byte{0x48, 0x89, 0xF8}
	in, err := DecodeOne(code, 0x1000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Len != 3 {
		t.Fatalf("expected Len 3, got %d", in.Len)
	}
	if in.Mnem != MMov {
		t.Fatalf("expected MMov, got %v", in.Mnem)
	}
	if in.Dst.Reg != AX || in.Dst.Width != W64 {
		t.Errorf("expected Dst rax (W64), got reg=%v width=%v", in.Dst.Reg, in.Dst.Width)
	}
	if in.Src.Reg != DI {
		t.Errorf("expected Src rdi, got %v", in.Src.Reg)
	}
}

// TestDecodeAddImmediate decodes "add eax, 5" (83 c0 05).
func TestDecodeAddImmediate(t *testing.T) {
	code := []byte{0x83, 0xC0, 0x05}
	in, err := DecodeOne(code, 0x2000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Len != 3 {
		t.Fatalf("expected Len 3, got %d", in.Len)
	}
	if in.Mnem != MAdd {
		t.Fatalf("expected MAdd, got %v", in.Mnem)
	}
	if in.Dst.Reg != AX || in.Dst.Width != W32 {
		t.Errorf("expected Dst eax (W32), got reg=%v width=%v", in.Dst.Reg, in.Dst.Width)
	}
	if in.Src.Imm != 5 {
		t.Errorf("expected immediate 5, got %d", in.Src.Imm)
	}
}

// TestDecodePushPop decodes "push rbp" (55) and "pop rbp" (5d).
func TestDecodePushPop(t *testing.T) {
	push, err := DecodeOne([]byte{0x55}, 0x3000)
	if err != nil {
		t.Fatalf("DecodeOne push: %v", err)
	}
	if push.Mnem != MPush || push.Len != 1 || push.Dst.Reg != BP {
		t.Errorf("expected push rbp, got mnem=%v len=%d reg=%v", push.Mnem, push.Len, push.Dst.Reg)
	}

	pop, err := DecodeOne([]byte{0x5D}, 0x3001)
	if err != nil {
		t.Fatalf("DecodeOne pop: %v", err)
	}
	if pop.Mnem != MPop || pop.Len != 1 || pop.Dst.Reg != BP {
		t.Errorf("expected pop rbp, got mnem=%v len=%d reg=%v", pop.Mnem, pop.Len, pop.Dst.Reg)
	}
}

// TestDecodeJccRel8 decodes "je +4" (74 04) and checks the resolved
// absolute target (addr + 2 + rel8).
func TestDecodeJccRel8(t *testing.T) {
	in, err := DecodeOne([]byte{0x74, 0x04}, 0x4000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Mnem != MJcc || in.Cond != CondE {
		t.Fatalf("expected Jcc/CondE, got mnem=%v cond=%v", in.Mnem, in.Cond)
	}
	want := uintptr(0x4000 + 2 + 4)
	if uintptr(in.Dst.Imm) != want {
		t.Errorf("expected target 0x%x, got 0x%x", want, in.Dst.Imm)
	}
}

// TestDecodeRet decodes the bare "ret" (c3).
func TestDecodeRet(t *testing.T) {
	in, err := DecodeOne([]byte{0xC3}, 0x5000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Mnem != MRet || in.Len != 1 {
		t.Errorf("expected bare ret, got mnem=%v len=%d", in.Mnem, in.Len)
	}
}

// TestDecodeUnsupportedOpcode confirms an unrecognized opcode is reported
// as DecoderUnsupported rather than silently guessed at.
func TestDecodeUnsupportedOpcode(t *testing.T) {
	_, err := DecodeOne([]byte{0x0F, 0x05}, 0x6000) // syscall, not in this decoder
	if err == nil {
		t.Fatalf("expected an error for an unrecognized opcode")
	}
	rwErr, ok := err.(*RewriteError)
	if !ok {
		t.Fatalf("expected *RewriteError, got %T", err)
	}
	if rwErr.Kind != DecoderUnsupported {
		t.Errorf("expected DecoderUnsupported, got %v", rwErr.Kind)
	}
}

// TestDecodeRecordsInvalidAndContinues confirms Decode, unlike DecodeOne,
// turns an unrecognized opcode into a single-byte MInvalid and keeps
// scanning rather than aborting the whole walk. The cursor advances one
// byte at a time, so 0F and 05 each become their own MInvalid.
func TestDecodeRecordsInvalidAndContinues(t *testing.T) {
	code := []byte{
		0x0F, 0x05, // syscall: not in this decoder
		0xC3, // ret
	}
	list, err := Decode(makeReader(0x6000, code), 0x6000, len(code), true)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if list.Len() != 3 {
		t.Fatalf("expected 3 instructions (two invalid bytes + ret), got %d", list.Len())
	}
	if list.At(0).Mnem != MInvalid || list.At(0).Len != 1 {
		t.Errorf("expected a single-byte MInvalid first, got mnem=%v len=%d", list.At(0).Mnem, list.At(0).Len)
	}
	if list.At(2).Mnem != MRet {
		t.Errorf("expected MRet third, got %v", list.At(2).Mnem)
	}
}

// TestDecodeModRMDisp8Mov decodes "48 8b 47 10" -> mov rax, [rdi+0x10]:
// width 64, base=rdi, no index, disp=16.
func TestDecodeModRMDisp8Mov(t *testing.T) {
	in, err := DecodeOne([]byte{0x48, 0x8B, 0x47, 0x10}, 0x7000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Len != 4 {
		t.Fatalf("expected Len 4, got %d", in.Len)
	}
	if in.Mnem != MMov || in.Dst.Reg != AX || in.Dst.Width != W64 {
		t.Fatalf("expected mov rax,..., got mnem=%v dst=%+v", in.Mnem, in.Dst)
	}
	if !in.Src.IsMemory() || in.Src.Base != DI || in.Src.Index != RegNone || in.Src.Scale != 0 || in.Src.Disp != 0x10 {
		t.Errorf("expected [rdi+0x10], got base=%v index=%v scale=%d disp=%d",
			in.Src.Base, in.Src.Index, in.Src.Scale, in.Src.Disp)
	}
}

// TestDecodeSIBNoBase decodes "48 8b 04 cd 00 00 00 00" -> mov rax,
// [rcx*8+0x0]: base=None, index=rcx, scale=8, disp=0.
func TestDecodeSIBNoBase(t *testing.T) {
	code := []byte{0x48, 0x8B, 0x04, 0xCD, 0x00, 0x00, 0x00, 0x00}
	in, err := DecodeOne(code, 0x8000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Len != len(code) {
		t.Fatalf("expected Len %d, got %d", len(code), in.Len)
	}
	if in.Mnem != MMov || in.Dst.Reg != AX {
		t.Fatalf("expected mov rax,..., got mnem=%v dst=%+v", in.Mnem, in.Dst)
	}
	if !in.Src.IsMemory() || in.Src.Base != RegNone || in.Src.Index != CX || in.Src.Scale != 8 || in.Src.Disp != 0 {
		t.Errorf("expected [rcx*8+0], got base=%v index=%v scale=%d disp=%d",
			in.Src.Base, in.Src.Index, in.Src.Scale, in.Src.Disp)
	}
}

// TestDecodeTestByteMemoryImmediate decodes "f6 00 10" -> test byte ptr
// [rax], 0x10: the TEST-with-immediate width follows the opcode's
// implicit byte width (F6, not F7).
func TestDecodeTestByteMemoryImmediate(t *testing.T) {
	in, err := DecodeOne([]byte{0xF6, 0x00, 0x10}, 0x9000)
	if err != nil {
		t.Fatalf("DecodeOne: %v", err)
	}
	if in.Len != 3 {
		t.Fatalf("expected Len 3, got %d", in.Len)
	}
	if in.Mnem != MTest {
		t.Fatalf("expected MTest, got %v", in.Mnem)
	}
	if !in.Dst.IsMemory() || in.Dst.Base != AX || in.Dst.Width != W8 {
		t.Errorf("expected byte ptr [rax], got base=%v width=%v", in.Dst.Base, in.Dst.Width)
	}
	if in.Src.Kind != OpImmediate || in.Src.Imm != 0x10 {
		t.Errorf("expected immediate 0x10, got %+v", in.Src)
	}
}
