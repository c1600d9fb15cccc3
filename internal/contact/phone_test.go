package contact

import "testing"

func TestIsPhoneNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"10 digits", "6502530000", true},
		{"10 digits with dashes", "650-253-0000", true},
		{"10 digits with parens", "(650) 253-0000", true},
		{"10 digits with dots", "650.253.0000", true},
		{"E.164 format", "+16502530000", true},
		{"E.164 with spaces", "+1 650 253 0000", true},

		{"simple email", "user@example.com", false},
		{"numeric local part email", "6502530000@carrier.com", false},
		{"empty string", "", false},
		{"9 digits", "650253000", false},
		{"letters only", "abcdefghij", false},
		{"letters mixed in", "650abc2530000", false},
		{"plus in the middle", "650+2530000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsPhoneNumber(tt.input)
			if got != tt.expected {
				t.Errorf("IsPhoneNumber(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		region  string
		want    string
		wantErr bool
	}{
		{name: "national US", input: "(650) 253-0000", want: "+16502530000"},
		{name: "already E.164", input: "+1 650 253 0000", want: "+16502530000"},
		{name: "UK with country code", input: "+44 20 7031 3000", want: "+442070313000"},
		{name: "UK national with region", input: "020 7031 3000", region: "GB", want: "+442070313000"},
		{name: "too short", input: "12345", wantErr: true},
		{name: "not a phone", input: "call me", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizePhone(tt.input, tt.region)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NormalizePhone(%q) expected error, got %q", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizePhone(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizePhone(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeOptionalPhone(t *testing.T) {
	blank := "   "
	got, err := NormalizeOptionalPhone(&blank, "")
	if err != nil || got != nil {
		t.Fatalf("blank phone: got %v, %v", got, err)
	}
	if got, err := NormalizeOptionalPhone(nil, ""); err != nil || got != nil {
		t.Fatalf("nil phone: got %v, %v", got, err)
	}
}
