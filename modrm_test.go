package rewritex

import "testing"

// TestEncodeModRMRegisterDirect encodes the reg-direct form used by
// "mov rax, rdi" 's ModR/M byte (f8 = 11 111 000: mod=3, reg=rdi, rm=rax).
func TestEncodeModRMRegisterDirect(t *testing.T) {
	out, needR, needX, needB := encodeModRM(nil, DI.Enc(), Reg64(W64, AX))
	if len(out) != 1 {
		t.Fatalf("expected 1 byte, got %d", len(out))
	}
	if out[0] != 0xF8 {
		t.Errorf("Byte 0: expected 0x%02X, got 0x%02X", 0xF8, out[0])
	}
	if needR || needX || needB {
		t.Errorf("expected no REX bits for rax/rdi, got R=%v X=%v B=%v", needR, needX, needB)
	}
}

// TestEncodeModRMRipRelative encodes "lea rax, [rip+0x10]": mod=00, rm=101
// selects RIP-relative addressing rather than a disp32-no-base form.
func TestEncodeModRMRipRelative(t *testing.T) {
	rm := Mem(W64, IP, RegNone, 0, 0x10, SegNone)
	out, needR, needX, needB := encodeModRM(nil, AX.Enc(), rm)
	want := []byte{0x05, 0x10, 0x00, 0x00, 0x00}
	if len(out) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(out))
	}
	for i, b := range want {
		if out[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, out[i])
		}
	}
	if needR || needX || needB {
		t.Errorf("expected no REX bits, got R=%v X=%v B=%v", needR, needX, needB)
	}
}

// TestEncodeModRMSIBNoBase encodes a SIB form with no base register:
// [rcx*4 + 0x100], which forces mod=00/rm=100 (SIB present) and base_raw=101
// (absent base, always followed by a disp32).
func TestEncodeModRMSIBNoBase(t *testing.T) {
	rm := Mem(W32, RegNone, CX, 4, 0x100, SegNone)
	out, needR, needX, needB := encodeModRM(nil, AX.Enc(), rm)
	want := []byte{0x04, 0x8D, 0x00, 0x01, 0x00, 0x00}
	if len(out) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(out))
	}
	for i, b := range want {
		if out[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, out[i])
		}
	}
	if needR || needX || needB {
		t.Errorf("expected no REX bits for rax/rcx, got R=%v X=%v B=%v", needR, needX, needB)
	}
}

// TestEncodeModRMAbsoluteNoBaseNoIndex encodes a bare absolute address
// [0x1000] with neither base nor index: this still must go through SIB
// (mod=00, rm=100, SIB base_raw=101) rather than being mistaken for a
// register-direct rm=000 (rax) form.
func TestEncodeModRMAbsoluteNoBaseNoIndex(t *testing.T) {
	rm := Mem(W64, RegNone, RegNone, 0, 0x1000, SegNone)
	out, needR, needX, needB := encodeModRM(nil, AX.Enc(), rm)
	want := []byte{0x04, 0x25, 0x00, 0x10, 0x00, 0x00}
	if len(out) != len(want) {
		t.Fatalf("expected %d bytes, got %d", len(want), len(out))
	}
	for i, b := range want {
		if out[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, out[i])
		}
	}
	if needR || needX || needB {
		t.Errorf("expected no REX bits, got R=%v X=%v B=%v", needR, needX, needB)
	}
}

// TestDecodeModRMDisp8 decodes "45 7f": mod=01 (disp8), reg=000 (rax),
// rm=101 (rbp) — disp8 off rbp, NOT RIP-relative, since RIP-relative only
// applies when mod==00.
func TestDecodeModRMDisp8(t *testing.T) {
	p := []byte{0x45, 0x7F}
	reg, rm, n, ok := decodeModRM(p, rexBits{}, W64, SegNone)
	if !ok {
		t.Fatalf("decodeModRM failed")
	}
	if n != 2 {
		t.Fatalf("expected 2 bytes consumed, got %d", n)
	}
	if reg.Reg != AX {
		t.Errorf("expected reg field rax, got %v", reg.Reg)
	}
	if !rm.IsMemory() || rm.Base != BP || rm.Index != RegNone || rm.Disp != 127 {
		t.Errorf("expected [rbp+127], got base=%v index=%v disp=%d", rm.Base, rm.Index, rm.Disp)
	}
}

// TestModRMRoundTrip decodes then re-encodes a SIB-with-base form and
// checks the bytes survive unchanged.
func TestModRMRoundTrip(t *testing.T) {
	// [rax + rcx*2 + 8], reg field = rdx: mod=01, reg=010, rm=100 (SIB)
	// sib: scale=01(2), index=001(rcx), base=000(rax); disp8=08.
	orig := []byte{0x54, 0x48, 0x08}
	reg, rm, n, ok := decodeModRM(orig, rexBits{}, W64, SegNone)
	if !ok || n != len(orig) {
		t.Fatalf("decodeModRM failed or consumed wrong length: ok=%v n=%d", ok, n)
	}
	out, needR, needX, needB := encodeModRM(nil, reg.Reg.Enc(), rm)
	if needR || needX || needB {
		t.Errorf("expected no REX bits, got R=%v X=%v B=%v", needR, needX, needB)
	}
	if len(out) != len(orig) {
		t.Fatalf("expected %d bytes, got %d", len(orig), len(out))
	}
	for i, b := range orig {
		if out[i] != b {
			t.Errorf("Byte %d: expected 0x%02X, got 0x%02X", i, b, out[i])
		}
	}
}
