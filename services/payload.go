package services

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"cardex-server/models"
	"cardex-server/utils/errors"
)

const (
	maxIdentifierLen = 128

	// GestureCardKey carries the card id inside a gesture bundle.
	GestureCardKey = "cardID"

	ndefFlagMB  = 0x80
	ndefFlagME  = 0x40
	ndefFlagCF  = 0x20
	ndefFlagSR  = 0x10
	ndefFlagIL  = 0x08
	ndefTNFMask = 0x07

	ndefTNFWellKnown = 0x01
	ndefTextUTF16    = 0x80
	ndefLangLenMask  = 0x3f
)

// DetectPayload is what a client read from the transport. Only the field
// matching the exchange transport is used.
type DetectPayload struct {
	Text   string            `json:"text,omitempty"`
	NDEF   []byte            `json:"ndef,omitempty"`
	Bundle map[string]string `json:"bundle,omitempty"`
}

// Present builds the presentation payload for viewerID on transport.
func Present(transport models.Transport, viewerID string) (models.Presentation, error) {
	p := models.Presentation{Transport: transport}
	switch transport {
	case models.TransportQR:
		p.Text = viewerID
	case models.TransportNFC:
		p.NDEF = EncodeNDEFText(viewerID, "en")
	case models.TransportGesture:
		p.Bundle = map[string]string{GestureCardKey: viewerID}
	default:
		return models.Presentation{}, errors.Withf(errors.ErrInvalidInput, "unknown transport %q", transport)
	}
	return p, nil
}

// DecodeIdentifier extracts the presented card id. Any failure is
// ErrMalformedPayload.
func DecodeIdentifier(transport models.Transport, p DetectPayload) (string, error) {
	var raw string
	switch transport {
	case models.TransportQR:
		raw = p.Text
	case models.TransportNFC:
		text, err := DecodeNDEFText(p.NDEF)
		if err != nil {
			return "", errors.WithDetails(errors.ErrMalformedPayload, err)
		}
		raw = text
	case models.TransportGesture:
		raw = p.Bundle[GestureCardKey]
	default:
		return "", errors.Withf(errors.ErrMalformedPayload, "unknown transport %q", transport)
	}
	return validateIdentifier(raw)
}

func validateIdentifier(raw string) (string, error) {
	if !utf8.ValidString(raw) {
		return "", errors.Withf(errors.ErrMalformedPayload, "identifier is not valid UTF-8")
	}
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", errors.Withf(errors.ErrMalformedPayload, "identifier is empty")
	}
	if len(id) > maxIdentifierLen {
		return "", errors.Withf(errors.ErrMalformedPayload, "identifier longer than %d bytes", maxIdentifierLen)
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return "", errors.Withf(errors.ErrMalformedPayload, "identifier contains whitespace or control characters")
		}
	}
	return id, nil
}

// EncodeNDEFText builds a single-record NDEF message holding a well-known
// UTF-8 text record.
func EncodeNDEFText(text, lang string) []byte {
	payload := make([]byte, 0, 1+len(lang)+len(text))
	payload = append(payload, byte(len(lang)&ndefLangLenMask))
	payload = append(payload, lang...)
	payload = append(payload, text...)

	header := byte(ndefFlagMB | ndefFlagME | ndefTNFWellKnown)
	msg := []byte{}
	if len(payload) < 256 {
		msg = append(msg, header|ndefFlagSR, 1, byte(len(payload)))
	} else {
		msg = append(msg, header, 1)
		msg = binary.BigEndian.AppendUint32(msg, uint32(len(payload)))
	}
	msg = append(msg, 'T')
	return append(msg, payload...)
}

type ndefRecord struct {
	tnf     byte
	typ     []byte
	payload []byte
}

// DecodeNDEFText returns the text of the first well-known text record of
// an NDEF message.
func DecodeNDEFText(msg []byte) (string, error) {
	records, err := parseNDEF(msg)
	if err != nil {
		return "", err
	}
	for _, rec := range records {
		if rec.tnf == ndefTNFWellKnown && string(rec.typ) == "T" {
			return decodeTextRecord(rec.payload)
		}
	}
	return "", fmt.Errorf("no text record in NDEF message")
}

func parseNDEF(msg []byte) ([]ndefRecord, error) {
	if len(msg) == 0 {
		return nil, fmt.Errorf("empty NDEF message")
	}
	var records []ndefRecord
	for off := 0; off < len(msg); {
		header := msg[off]
		off++
		if header&ndefFlagCF != 0 {
			return nil, fmt.Errorf("chunked NDEF records are not supported")
		}
		if off >= len(msg) {
			return nil, fmt.Errorf("truncated NDEF record header")
		}
		typeLen := int(msg[off])
		off++

		var payloadLen int
		if header&ndefFlagSR != 0 {
			if off >= len(msg) {
				return nil, fmt.Errorf("truncated NDEF payload length")
			}
			payloadLen = int(msg[off])
			off++
		} else {
			if off+4 > len(msg) {
				return nil, fmt.Errorf("truncated NDEF payload length")
			}
			payloadLen = int(binary.BigEndian.Uint32(msg[off:]))
			off += 4
		}

		idLen := 0
		if header&ndefFlagIL != 0 {
			if off >= len(msg) {
				return nil, fmt.Errorf("truncated NDEF id length")
			}
			idLen = int(msg[off])
			off++
		}

		if payloadLen < 0 || off+typeLen+idLen+payloadLen > len(msg) {
			return nil, fmt.Errorf("NDEF record exceeds message length")
		}
		rec := ndefRecord{tnf: header & ndefTNFMask}
		rec.typ = msg[off : off+typeLen]
		off += typeLen + idLen
		rec.payload = msg[off : off+payloadLen]
		off += payloadLen
		records = append(records, rec)

		if header&ndefFlagME != 0 {
			break
		}
	}
	return records, nil
}

func decodeTextRecord(payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", fmt.Errorf("empty text record")
	}
	status := payload[0]
	langLen := int(status & ndefLangLenMask)
	if 1+langLen > len(payload) {
		return "", fmt.Errorf("text record language code exceeds payload")
	}
	body := payload[1+langLen:]
	if status&ndefTextUTF16 == 0 {
		if !utf8.Valid(body) {
			return "", fmt.Errorf("text record is not valid UTF-8")
		}
		return string(body), nil
	}
	return decodeUTF16(body)
}

func decodeUTF16(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", fmt.Errorf("odd length UTF-16 text")
	}
	order := binary.ByteOrder(binary.BigEndian)
	if len(b) >= 2 {
		switch {
		case b[0] == 0xFE && b[1] == 0xFF:
			b = b[2:]
		case b[0] == 0xFF && b[1] == 0xFE:
			order = binary.LittleEndian
			b = b[2:]
		}
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[2*i:])
	}
	return string(utf16.Decode(units)), nil
}
