package password

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerify(t *testing.T) {
	hasher, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	ok, err := hasher.Verify("P@ssw0rd-Ascii", hash)
	if err != nil || !ok {
		t.Fatalf("expected verification to succeed, got %v %v", ok, err)
	}

	ok, err = hasher.Verify("wrong-password", hash)
	if err != nil || ok {
		t.Fatalf("expected verification to fail, got %v %v", ok, err)
	}
}

func TestHashesAreSalted(t *testing.T) {
	hasher, _ := New(DefaultConfig())
	a, _ := hasher.Hash("same-password")
	b, _ := hasher.Hash("same-password")
	if a == b {
		t.Fatal("expected distinct hashes for the same password")
	}
}

func TestHashRejectsShortPassword(t *testing.T) {
	hasher, _ := New(DefaultConfig())
	if _, err := hasher.Hash("short"); !errors.Is(err, ErrTooShort) {
		t.Fatalf("expected ErrTooShort, got %v", err)
	}
}

func TestNeedsRehash(t *testing.T) {
	weak, _ := New(DefaultConfig())
	hash, err := weak.Hash("test-password")
	if err != nil {
		t.Fatal(err)
	}

	strongCfg := DefaultConfig()
	strongCfg.Time = 3
	strong, _ := New(strongCfg)

	if up, err := strong.NeedsRehash(hash); err != nil || !up {
		t.Fatalf("expected rehash, got %v %v", up, err)
	}
	if up, err := weak.NeedsRehash(hash); err != nil || up {
		t.Fatalf("expected no rehash, got %v %v", up, err)
	}
	// Verification still uses the parameters recorded in the hash.
	if ok, err := strong.Verify("test-password", hash); err != nil || !ok {
		t.Fatalf("expected verify with recorded params, got %v %v", ok, err)
	}
}

func TestVerifyRejectsMalformedHashes(t *testing.T) {
	hasher, _ := New(DefaultConfig())
	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1$c2hvcnQ$a2V5",
		"$argon2id$v=19$m=8192,t=1,p=1,x=2$c2FsdHNhbHRzYWx0c2FsdA$a2V5",
	} {
		if _, err := hasher.Verify("whatever", encoded); !errors.Is(err, ErrInvalidHash) {
			t.Fatalf("Verify(%q): expected ErrInvalidHash, got %v", encoded, err)
		}
	}
}

func TestNewValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory = 1024
	if _, err := New(cfg); err == nil {
		t.Fatal("expected low memory to be rejected")
	}
	cfg = DefaultConfig()
	cfg.MinLength = 0
	if _, err := New(cfg); err == nil {
		t.Fatal("expected zero min length to be rejected")
	}
}
