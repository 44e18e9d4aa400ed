package security

import (
	"strings"
	"testing"
)

func TestSealOpen(t *testing.T) {
	svc, err := NewEncryptionService("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	sealed, err := svc.Seal("Это важное сообщение")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !strings.HasPrefix(sealed, sealedPrefix) || strings.Contains(sealed, "важное") {
		t.Fatalf("text not sealed: %q", sealed)
	}
	plain, err := svc.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if plain != "Это важное сообщение" {
		t.Fatalf("round trip = %q", plain)
	}
	// legacy clear rows stay readable
	if got, _ := svc.Open("plain text"); got != "plain text" {
		t.Fatalf("clear text changed: %q", got)
	}
}

func TestNilServicePassesThrough(t *testing.T) {
	svc, err := NewEncryptionService("")
	if err != nil || svc != nil {
		t.Fatalf("empty key: svc=%v err=%v", svc, err)
	}
	s, _ := svc.Seal("hello")
	if s != "hello" {
		t.Fatalf("Seal on nil = %q", s)
	}
	if _, err := svc.Open(sealedPrefix + "AAAA"); err == nil {
		t.Fatal("opening sealed text without key should fail")
	}
}

func TestBadKeyLength(t *testing.T) {
	if _, err := NewEncryptionService("short"); err == nil {
		t.Fatal("expected key length error")
	}
}
