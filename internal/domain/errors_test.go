package domain

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestKindOfThroughWrapping(t *testing.T) {
	base := WrapError(KindEncodeFailed, io.ErrClosedPipe, "write frame %d", 3)
	wrapped := errors.Wrap(base, "sink")
	wrapped = fmt.Errorf("job: %w", wrapped)

	if got := KindOf(wrapped); got != KindEncodeFailed {
		t.Fatalf("KindOf = %q, want %q", got, KindEncodeFailed)
	}
	if !errors.Is(wrapped, io.ErrClosedPipe) {
		t.Fatal("expected cause to be reachable with errors.Is")
	}
	if msg := MessageOf(wrapped); msg != "write frame 3: io: read/write on closed pipe" {
		t.Fatalf("MessageOf = %q", msg)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(io.EOF); got != "" {
		t.Fatalf("KindOf(io.EOF) = %q, want empty", got)
	}
	if WrapError(KindCorruptStream, nil, "nothing") != nil {
		t.Fatal("WrapError(nil) should be nil")
	}
}

func TestGlyphFrameString(t *testing.T) {
	g := &GlyphFrame{Cols: 3, Rows: 2, Cells: []byte("ab.@# ")}
	if got := g.String(); got != "ab.\n@# \n" {
		t.Fatalf("String() = %q", got)
	}
	if g.Row(1) != "@# " {
		t.Fatalf("Row(1) = %q", g.Row(1))
	}
}
