package asm

import "testing"

func TestGetRegisterFreeListExhaustion(t *testing.T) {
	e := NewEmitter()
	got := make([]Register, 0, GeneralPurposeRegisterCount)
	for i := 0; i < GeneralPurposeRegisterCount; i++ {
		r, err := e.GetRegister()
		if err != nil {
			t.Fatalf("GetRegister #%d: %v", i, err)
		}
		got = append(got, r)
	}
	if _, err := e.GetRegister(); err == nil {
		t.Fatal("expected register exhaustion error")
	}

	// Registers must be handed out in increasing order starting at R0,
	// the lowest-indexed-free policy GetRegister documents.
	for i, r := range got {
		if r != Register(i) {
			t.Errorf("register %d: got %v, want R%d", i, r, i)
		}
	}

	e.FreeRegister(got[3])
	r, err := e.GetRegister()
	if err != nil {
		t.Fatalf("GetRegister after free: %v", err)
	}
	if r != got[3] {
		t.Errorf("expected freed register %v to be reused, got %v", got[3], r)
	}
}

func TestAddLabelDuplicate(t *testing.T) {
	e := NewEmitter()
	if err := e.AddLabel("loop"); err != nil {
		t.Fatalf("first AddLabel: %v", err)
	}
	if err := e.AddLabel("loop"); err == nil {
		t.Fatal("expected error re-defining a label")
	}
}

func TestAssembleUndefinedLabel(t *testing.T) {
	e := NewEmitter()
	e.Jump("nowhere")
	if _, _, err := e.Assemble(); err == nil {
		t.Fatal("expected error referencing an undefined label")
	}
}

func TestAssembleBranchFixup(t *testing.T) {
	e := NewEmitter()
	// JUMP site at offset 0; the placeholder displacement starts at
	// offset 2, right after the 2-byte opcode.
	e.Jump("target")
	e.PushInstruction(Comment) // pad so the label isn't at offset 0
	e.PushCString("pad")
	if err := e.AddLabel("target"); err != nil {
		t.Fatalf("AddLabel: %v", err)
	}

	program, _, err := e.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	targetOffset := len(program) // label bound at end of emitted bytes
	site := 2
	wantDisp := int64(targetOffset) - int64(site) + 2

	// Recompute displacement directly from the little-endian bytes at
	// the recorded site instead of trusting a second Emitter encoding.
	disp := int64(0)
	for i := 7; i >= 0; i-- {
		disp = disp<<8 | int64(program[site+i])
	}
	if disp != wantDisp {
		t.Errorf("disp = %d, want %d", disp, wantDisp)
	}
}

func TestStaticDataReverseAppendOffsets(t *testing.T) {
	e := NewEmitter()
	off1, size1 := e.AddStaticData("ab")
	off2, size2 := e.AddStaticData("cde")

	if size1 != 3 || size2 != 4 {
		t.Fatalf("sizes = %d, %d, want 3, 4 (string length + NUL)", size1, size2)
	}
	// First blob added sits nearest the stack top: its magnitude is its
	// own size; the second blob's magnitude includes both.
	if off1 != -3 {
		t.Errorf("off1 = %d, want -3", off1)
	}
	if off2 != -7 {
		t.Errorf("off2 = %d, want -7", off2)
	}
	if e.StaticDataSize() != 7 {
		t.Errorf("StaticDataSize() = %d, want 7", e.StaticDataSize())
	}

	// On disk the sink is un-reversed, so the blob added last comes
	// first and each blob reads forward; with the region loaded at the
	// stack bottom, blob bytes sit exactly at stackTop+offset.
	_, static, err := e.Assemble()
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if got := string(static); got != "cde\x00ab\x00" {
		t.Errorf("static data = %q, want %q", got, "cde\x00ab\x00")
	}
	if got := string(static[len(static)+int(off1):][:2]); got != "ab" {
		t.Errorf("blob at off1 = %q, want %q", got, "ab")
	}
	if got := string(static[len(static)+int(off2):][:3]); got != "cde" {
		t.Errorf("blob at off2 = %q, want %q", got, "cde")
	}
}

func TestCurrentLoopScoping(t *testing.T) {
	e := NewEmitter()
	if _, ok := e.CurrentLoop(); ok {
		t.Fatal("expected no current loop before any PushLoop")
	}
	e.PushLoop("start1", "end1")
	e.PushLoop("start2", "end2")

	loop, ok := e.CurrentLoop()
	if !ok || loop.Start != "start2" || loop.End != "end2" {
		t.Errorf("CurrentLoop() = %+v, %v, want start2/end2, true", loop, ok)
	}

	e.PopLoop()
	loop, ok = e.CurrentLoop()
	if !ok || loop.Start != "start1" {
		t.Errorf("CurrentLoop() after pop = %+v, %v, want start1, true", loop, ok)
	}
}
