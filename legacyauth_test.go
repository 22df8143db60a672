package kfxmpp

import "testing"

// TestLegacyDigestVector checks the jabber:iq:auth digest for stream id
// "3EE948B0" and password "bardfool":
// SHA1_hex("3EE948B0bardfool") == "f3ba84bda79c88c00b59c9ef8c9ade572cee479d".
func TestLegacyDigestVector(t *testing.T) {
	got := legacyDigest("3EE948B0", "bardfool")
	want := "f3ba84bda79c88c00b59c9ef8c9ade572cee479d"
	if got != want {
		t.Fatalf("legacyDigest = %q, want %q", got, want)
	}
}
