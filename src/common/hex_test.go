package common

import (
	"bytes"
	"testing"
)

func TestHexRoundTrip(t *testing.T) {
	data := []byte{0x00, 0xab, 0x10, 0xff}

	s := EncodeToString(data)
	if s != "0X00AB10FF" {
		t.Fatalf("EncodeToString should be 0X00AB10FF, not %s", s)
	}

	for _, in := range []string{s, "0x00ab10ff", "00AB10FF"} {
		res, err := DecodeFromString(in)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(res, data) {
			t.Fatalf("DecodeFromString(%s) should be %v, not %v", in, data, res)
		}
	}
}

func TestStoreErr(t *testing.T) {
	err := NewStoreErr("Block", KeyNotFound, "abc")

	if !IsStore(err, KeyNotFound) {
		t.Fatal("err should be a KeyNotFound StoreErr")
	}
	if IsStore(err, NoRoster) {
		t.Fatal("err should not be a NoRoster StoreErr")
	}
	if err.Error() != "Block, abc, Not Found" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}
