package cli

import (
	"bytes"
	"testing"
)

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "NAME", "PLATFORM", "LEVEL")
	tbl.Row("leaf1", "sonic", "1")
	tbl.Row("spine1", "eos", "2")
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}

	want := "NAME    PLATFORM  LEVEL\n" +
		"----    --------  -----\n" +
		"leaf1   sonic     1\n" +
		"spine1  eos       2\n"
	if got := buf.String(); got != want {
		t.Errorf("table =\n%s\nwant\n%s", got, want)
	}
}

func TestTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	tbl := NewTable(&buf, "NAME")
	if err := tbl.Flush(); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty table wrote %q", buf.String())
	}
}
