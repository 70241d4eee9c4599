// Package qr builds EMV-style merchant QR payloads for manual bank transfer
// payments. The payload is a flat TLV string (two-digit tag, two-digit length,
// value) terminated by a CRC-16/CCITT checksum, the format PH wallet apps scan.
package qr

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	tagPayloadFormat   = "00"
	tagInitiation      = "01"
	tagMerchantAccount = "26"
	tagCurrency        = "53"
	tagAmount          = "54"
	tagCountry         = "58"
	tagMerchantName    = "59"
	tagMerchantCity    = "60"
	tagAdditionalData  = "62"
	tagCRC             = "63"

	subTagAccountID = "00"
	subTagReference = "01"

	payloadFormatValue = "01"
	// dynamic QR: one payload per transaction
	initiationDynamic = "12"
	currencyPHP       = "608"
	countryPH         = "PH"

	maxFieldLen = 99
)

// Request carries everything needed to render one payment QR.
type Request struct {
	MerchantName    string
	MerchantCity    string
	MerchantAccount string
	AmountCentavos  int64
	Reference       string
}

// Encode renders the TLV payload string for the request.
func Encode(req Request) (string, error) {
	if strings.TrimSpace(req.MerchantName) == "" {
		return "", fmt.Errorf("merchant name is required")
	}
	if strings.TrimSpace(req.MerchantAccount) == "" {
		return "", fmt.Errorf("merchant account is required")
	}
	if req.AmountCentavos <= 0 {
		return "", fmt.Errorf("amount must be positive")
	}
	if strings.TrimSpace(req.Reference) == "" {
		return "", fmt.Errorf("reference is required")
	}

	amount := decimal.New(req.AmountCentavos, -2).StringFixed(2)

	var b strings.Builder
	if err := writeField(&b, tagPayloadFormat, payloadFormatValue); err != nil {
		return "", err
	}
	if err := writeField(&b, tagInitiation, initiationDynamic); err != nil {
		return "", err
	}

	account, err := encodeTemplate(subTagAccountID, req.MerchantAccount)
	if err != nil {
		return "", err
	}
	if err := writeField(&b, tagMerchantAccount, account); err != nil {
		return "", err
	}

	if err := writeField(&b, tagCurrency, currencyPHP); err != nil {
		return "", err
	}
	if err := writeField(&b, tagAmount, amount); err != nil {
		return "", err
	}
	if err := writeField(&b, tagCountry, countryPH); err != nil {
		return "", err
	}
	if err := writeField(&b, tagMerchantName, truncate(req.MerchantName, 25)); err != nil {
		return "", err
	}
	city := req.MerchantCity
	if strings.TrimSpace(city) == "" {
		city = "Manila"
	}
	if err := writeField(&b, tagMerchantCity, truncate(city, 15)); err != nil {
		return "", err
	}

	additional, err := encodeTemplate(subTagReference, req.Reference)
	if err != nil {
		return "", err
	}
	if err := writeField(&b, tagAdditionalData, additional); err != nil {
		return "", err
	}

	// CRC covers everything up to and including its own tag+length.
	payload := b.String() + tagCRC + "04"
	return payload + fmt.Sprintf("%04X", Checksum(payload)), nil
}

// Checksum computes CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) over data.
func Checksum(data string) uint16 {
	crc := uint16(0xFFFF)
	for i := 0; i < len(data); i++ {
		crc ^= uint16(data[i]) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Verify reports whether the payload's trailing CRC matches its contents.
func Verify(payload string) bool {
	if len(payload) < 8 {
		return false
	}
	body := payload[:len(payload)-4]
	tail := payload[len(payload)-4:]
	if !strings.HasSuffix(body, tagCRC+"04") {
		return false
	}
	return fmt.Sprintf("%04X", Checksum(body)) == tail
}

func encodeTemplate(subTag, value string) (string, error) {
	var b strings.Builder
	if err := writeField(&b, subTag, value); err != nil {
		return "", err
	}
	return b.String(), nil
}

func writeField(b *strings.Builder, tag, value string) error {
	if len(value) > maxFieldLen {
		return fmt.Errorf("field %s exceeds %d characters", tag, maxFieldLen)
	}
	fmt.Fprintf(b, "%s%02d%s", tag, len(value), value)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
