package credits

import (
	"errors"
	"testing"
)

func TestNewUserID(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		input   string
		wantErr error
		wantVal string
	}{
		{name: "farcaster id", input: "fid:123", wantVal: "fid:123"},
		{name: "farcaster id trimmed", input: "  fid:123 ", wantVal: "fid:123"},
		{name: "wallet address lowercased", input: "addr:0x00112233445566778899AABBCCDDEEFF00112233", wantVal: "addr:0x00112233445566778899aabbccddeeff00112233"},
		{name: "zero fid", input: "fid:0", wantErr: ErrInvalidUserID},
		{name: "negative fid", input: "fid:-4", wantErr: ErrInvalidUserID},
		{name: "non numeric fid", input: "fid:abc", wantErr: ErrInvalidUserID},
		{name: "short address", input: "addr:0x1234", wantErr: ErrInvalidUserID},
		{name: "non hex address", input: "addr:0x00112233445566778899aabbccddeeff0011223g", wantErr: ErrInvalidUserID},
		{name: "missing prefix", input: "user-123", wantErr: ErrInvalidUserID},
		{name: "empty", input: "   ", wantErr: ErrInvalidUserID},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			result, err := NewUserID(tc.input)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected error %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.String() != tc.wantVal {
				t.Fatalf("expected %q, got %q", tc.wantVal, result.String())
			}
		})
	}
}

func TestNewTxIDCaseFolds(t *testing.T) {
	t.Parallel()
	txID, err := NewTxID("  0xDEADbeef ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if txID.String() != "0xdeadbeef" {
		t.Fatalf("expected lowercased hash, got %q", txID.String())
	}
}

func TestNewTxIDRejectsEmpty(t *testing.T) {
	t.Parallel()
	if _, err := NewTxID("   "); !errors.Is(err, ErrInvalidTxID) {
		t.Fatalf("expected ErrInvalidTxID, got %v", err)
	}
}
