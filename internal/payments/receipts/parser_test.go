package receipts

import "testing"

func TestParseReceiptAmounts(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		text     string
		centavos int64
		found    bool
	}{
		{"peso sign with commas", "Transfer successful ₱12,500.00", 1250000, true},
		{"php marker", "Amount: PHP 12500", 1250000, true},
		{"plain p marker", "Sent P 1,250.50 via InstaPay", 125050, true},
		{"largest figure wins over fee", "Amount ₱1,000.00 Fee ₱15.00", 100000, true},
		{"single decimal digit", "₱99.5", 9950, true},
		{"unmarked number ignored", "Account 123456 on 20260901", 0, false},
		{"empty text", "", 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			parsed := ParseReceipt(tc.text)
			if !tc.found {
				if parsed.AmountCentavos != nil {
					t.Fatalf("expected no amount, got %d", *parsed.AmountCentavos)
				}
				return
			}
			if parsed.AmountCentavos == nil {
				t.Fatal("expected an amount")
			}
			if *parsed.AmountCentavos != tc.centavos {
				t.Fatalf("expected %d centavos, got %d", tc.centavos, *parsed.AmountCentavos)
			}
		})
	}
}

func TestParseReceiptReference(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		want string
	}{
		{"exact reference", "Ref: EVT-20260901-0a1b2c3d4e", "EVT-20260901-0a1b2c3d4e"},
		{"case is normalized", "ref evt-20260901-0A1B2C3D4E done", "EVT-20260901-0a1b2c3d4e"},
		{"embedded in line", "GCash Ref No. EVT-20260901-ffeeddccbb.", "EVT-20260901-ffeeddccbb"},
		{"wrong shape ignored", "Ref: EVT-2026-abc", ""},
		{"no reference", "Transfer complete", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			parsed := ParseReceipt(tc.text)
			if parsed.Reference != tc.want {
				t.Fatalf("expected reference %q, got %q", tc.want, parsed.Reference)
			}
		})
	}
}
