package kfxmpp

import (
	"testing"

	"mellium.im/sasl"
)

// TestSASLPlainVector checks the PLAIN mechanism against spec.md §8's
// vector: username "romeo", password "montague" -> base64
// "AHJvbWVvAG1vbnRhZ3Vl".
func TestSASLPlainVector(t *testing.T) {
	client := sasl.NewClient(sasl.Plain, sasl.Credentials("romeo", "montague"))
	_, resp, err := client.Step(nil)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	want := "AHJvbWVvAG1vbnRhZ3Vl"
	if string(resp) != want {
		t.Fatalf("resp = %q, want %q", resp, want)
	}
}
