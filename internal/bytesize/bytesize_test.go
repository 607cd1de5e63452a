package bytesize

import (
	"testing"
)

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"plain zero", "0", 0, false},
		{"plain bytes", "4096", 4096, false},
		{"bytes suffix", "512B", 512, false},

		{"kibibytes", "4Ki", 4 * 1024, false},
		{"kibibytes long", "4KiB", 4 * 1024, false},
		{"mebibytes", "10Mi", 10 * 1024 * 1024, false},
		{"mebibytes long", "10MiB", 10 * 1024 * 1024, false},
		{"gibibytes", "1GiB", 1024 * 1024 * 1024, false},
		{"tebibytes", "1TiB", 1024 * 1024 * 1024 * 1024, false},

		{"kilobytes", "1KB", 1000, false},
		{"megabytes", "100MB", 100 * 1000 * 1000, false},
		{"gigabytes", "2G", 2 * 1000 * 1000 * 1000, false},
		{"terabytes", "1TB", 1000 * 1000 * 1000 * 1000, false},

		{"lowercase unit", "1gib", 1024 * 1024 * 1024, false},
		{"uppercase unit", "1GIB", 1024 * 1024 * 1024, false},
		{"surrounding space", "  10MiB  ", 10 * 1024 * 1024, false},
		{"space before unit", "10 MiB", 10 * 1024 * 1024, false},

		{"fractional mebibytes", "1.5Mi", ByteSize(1.5 * 1024 * 1024), false},
		{"fractional gibibytes", "0.5Gi", ByteSize(0.5 * 1024 * 1024 * 1024), false},

		{"empty", "", 0, true},
		{"whitespace only", "   ", 0, true},
		{"unknown unit", "1Xi", 0, true},
		{"negative", "-1Gi", 0, true},
		{"unit only", "MiB", 0, true},
		{"garbage", "lots", 0, true},
		{"double dot", "1.2.3Ki", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseByteSize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseByteSize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseByteSize(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestString(t *testing.T) {
	tests := []struct {
		in   ByteSize
		want string
	}{
		{0, "0B"},
		{820, "820B"},
		{1024, "1KiB"},
		{2621, "2.56KiB"},
		{1024 * 1024, "1MiB"},
		{ByteSize(1.5 * 1024 * 1024), "1.5MiB"},
		{10 * 1024 * 1024 * 1024, "10GiB"},
		{3 * 1024 * 1024 * 1024 * 1024, "3TiB"},
	}

	for _, tt := range tests {
		if got := tt.in.String(); got != tt.want {
			t.Errorf("ByteSize(%d).String() = %q, want %q", uint64(tt.in), got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	if got := Format(2621); got != "2.56KiB" {
		t.Errorf("Format(2621) = %q, want 2.56KiB", got)
	}
	if got := Format(-5); got != "0B" {
		t.Errorf("Format(-5) = %q, want 0B", got)
	}
}

func TestUnmarshalText(t *testing.T) {
	var b ByteSize
	if err := b.UnmarshalText([]byte("10MiB")); err != nil {
		t.Fatalf("UnmarshalText(10MiB) error = %v", err)
	}
	if b != 10*1024*1024 {
		t.Errorf("UnmarshalText(10MiB) = %d, want %d", b, 10*1024*1024)
	}
	if err := b.UnmarshalText([]byte("nonsense")); err == nil {
		t.Error("UnmarshalText(nonsense) expected error")
	}
}
