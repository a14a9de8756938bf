package guest

import "testing"

func TestNormalizeMACFormats(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"colon separated", "aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"hyphen separated", "AA-BB-CC-DD-EE-FF", "AA:BB:CC:DD:EE:FF"},
		{"cisco dot separated", "aabb.ccdd.eeff", "AA:BB:CC:DD:EE:FF"},
		{"unseparated", "aabbccddeeff", "AA:BB:CC:DD:EE:FF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeMAC(tt.in)
			if !ok {
				t.Fatalf("NormalizeMAC(%q) rejected, want accepted", tt.in)
			}
			if got != tt.want {
				t.Errorf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeMACRejectsInvalid(t *testing.T) {
	tests := []string{"", "not-a-mac", "aa:bb:cc:dd:ee", "aa:bb:cc:dd:ee:ff:gg", "zz:bb:cc:dd:ee:ff"}
	for _, in := range tests {
		if _, ok := NormalizeMAC(in); ok {
			t.Errorf("NormalizeMAC(%q) accepted, want rejected", in)
		}
	}
}

func TestCaptureMACPrefersFirstMatchingHeader(t *testing.T) {
	headers := map[string]string{
		"X-Client-Mac": "aa:bb:cc:dd:ee:ff",
	}
	mac, ok := CaptureMAC(func(name string) string { return headers[name] })
	if !ok || mac != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("CaptureMAC() = %q, %v, want AA:BB:CC:DD:EE:FF, true", mac, ok)
	}
}

func TestCaptureMACAbsent(t *testing.T) {
	if _, ok := CaptureMAC(func(string) string { return "" }); ok {
		t.Fatal("CaptureMAC() with no headers set should report absent")
	}
}
