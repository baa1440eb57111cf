package internal

import (
	"testing"
)

// FuzzDecodeRefreshToken exercises refresh token decoding with arbitrary strings.
// Goal: no panics; invalid inputs should return errors cleanly.
func FuzzDecodeRefreshToken(f *testing.F) {
	f.Add("")
	f.Add("abc")
	f.Add("AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA")

	sid, err := NewSessionID()
	if err == nil {
		secret, err := NewRefreshSecret()
		if err == nil {
			f.Add(EncodeRefreshToken(sid, secret))
		}
	}

	f.Add("!!!not-base64!!!")
	f.Add("aGVsbG8=")
	f.Add("dG9vLXNob3J0")

	f.Fuzz(func(t *testing.T, input string) {
		sid, secret, err := DecodeRefreshToken(input)
		if err != nil {
			return
		}

		sid2, secret2, err := DecodeRefreshToken(EncodeRefreshToken(sid, secret))
		if err != nil {
			t.Fatalf("roundtrip decode failed: %v", err)
		}
		if sid2 != sid {
			t.Errorf("roundtrip session ID mismatch: %q vs %q", sid2, sid)
		}
		if secret2 != secret {
			t.Error("roundtrip secret mismatch")
		}
	})
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatal(err)
	}
	secret, err := NewRefreshSecret()
	if err != nil {
		t.Fatal(err)
	}

	gotSID, gotSecret, err := DecodeRefreshToken(EncodeRefreshToken(sid, secret))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotSID != sid || gotSecret != secret {
		t.Fatal("round trip changed the token")
	}

	parsed, err := ParseSessionID(sid.String())
	if err != nil || parsed != sid {
		t.Fatalf("ParseSessionID(%q) = %v, %v", sid.String(), parsed, err)
	}
	if _, err := ParseSessionID("c2hvcnQ"); err == nil {
		t.Fatal("short session id accepted")
	}
}

func TestResetTokensAreDistinct(t *testing.T) {
	a, ha, err := NewResetToken()
	if err != nil {
		t.Fatal(err)
	}
	b, hb, err := NewResetToken()
	if err != nil {
		t.Fatal(err)
	}
	if a == b || ha == hb {
		t.Fatal("reset tokens collided")
	}
}
