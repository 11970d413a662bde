package price

import (
	"errors"
	"testing"
)

func TestConvert(t *testing.T) {
	got, err := Convert("1500000", 6, Quote{USD: 1.0, Local: 1536.0})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	want := Conversion{TokenAmount: 1.5, USD: 1.5, Local: 2304.0}
	if got != want {
		t.Fatalf("conversion mismatch: %+v != %+v", got, want)
	}
}

func TestConvertLargeAmount(t *testing.T) {
	// 123456.789 tokens with 18 decimals does not fit in uint64.
	got, err := Convert("123456789000000000000000", 18, Quote{USD: 2, Local: 3000})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if got.TokenAmount != 123456.789 {
		t.Fatalf("token amount mismatch: %v", got.TokenAmount)
	}
	if got.USD != 246913.578 {
		t.Fatalf("usd mismatch: %v", got.USD)
	}
}

func TestConvertRejectsMalformed(t *testing.T) {
	for _, input := range []string{"", "abc", "1.5", "0x10", "-1500000", "+15", "1e6", "1_000", " 15 0"} {
		if _, err := Convert(input, 6, Quote{USD: 1}); !errors.Is(err, ErrConversion) {
			t.Fatalf("expected ErrConversion for %q, got %v", input, err)
		}
	}
}
