package knx

import (
	"bytes"
	"errors"
	"testing"
)

func TestParseTelegram(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Telegram
		wantErr bool
	}{
		{
			name: "DPT14 write to 1/1/1",
			// src=1.1.5(0x1105), GA 1/1/1=0x0901, TPCI=0x00, APCI write=0x80, 16.0
			data: []byte{0x11, 0x05, 0x09, 0x01, 0x00, 0x80, 0x41, 0x80, 0x00, 0x00},
			want: Telegram{
				Source:      "1.1.5",
				Destination: GroupAddress{Main: 1, Middle: 1, Sub: 1},
				APCI:        APCIWrite,
				Data:        []byte{0x41, 0x80, 0x00, 0x00},
			},
		},
		{
			name: "DPT7 write to 1/1/2",
			// src=1.1.5, GA 1/1/2=0x0902, 3600s
			data: []byte{0x11, 0x05, 0x09, 0x02, 0x00, 0x80, 0x0E, 0x10},
			want: Telegram{
				Source:      "1.1.5",
				Destination: GroupAddress{Main: 1, Middle: 1, Sub: 2},
				APCI:        APCIWrite,
				Data:        []byte{0x0E, 0x10},
			},
		},
		{
			name: "short write",
			data: []byte{0x11, 0x01, 0x0A, 0x03, 0x00, 0x81},
			want: Telegram{
				Source:      "1.1.1",
				Destination: GroupAddress{Main: 1, Middle: 2, Sub: 3},
				APCI:        APCIWrite,
				Data:        []byte{0x01},
			},
		},
		{
			name: "read request",
			data: []byte{0x00, 0x01, 0x09, 0x01, 0x00, 0x00},
			want: Telegram{
				Source:      "0.0.1",
				Destination: GroupAddress{Main: 1, Middle: 1, Sub: 1},
				APCI:        APCIRead,
			},
		},
		{
			name: "response",
			data: []byte{0x11, 0x04, 0x09, 0x01, 0x00, 0x40, 0x41, 0x80, 0x00, 0x00},
			want: Telegram{
				Source:      "1.1.4",
				Destination: GroupAddress{Main: 1, Middle: 1, Sub: 1},
				APCI:        APCIResponse,
				Data:        []byte{0x41, 0x80, 0x00, 0x00},
			},
		},
		{
			name:    "too short",
			data:    []byte{0x11, 0x05, 0x09, 0x01, 0x00},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTelegram(tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTelegram) {
					t.Fatalf("ParseTelegram() error = %v, want ErrInvalidTelegram", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseTelegram() unexpected error: %v", err)
			}
			if got.Source != tt.want.Source {
				t.Errorf("Source = %q, want %q", got.Source, tt.want.Source)
			}
			if got.Destination != tt.want.Destination {
				t.Errorf("Destination = %v, want %v", got.Destination, tt.want.Destination)
			}
			if got.APCI != tt.want.APCI {
				t.Errorf("APCI = 0x%02X, want 0x%02X", got.APCI, tt.want.APCI)
			}
			if !bytes.Equal(got.Data, tt.want.Data) {
				t.Errorf("Data = %X, want %X", got.Data, tt.want.Data)
			}
			if got.Timestamp.IsZero() {
				t.Error("Timestamp not set")
			}
		})
	}
}

func TestTelegramGroupPacketRoundTrip(t *testing.T) {
	tests := []Telegram{
		{Source: "1.1.5", Destination: GroupAddress{1, 1, 1}, APCI: APCIWrite, Data: EncodeDPT14(16)},
		{Source: "1.1.5", Destination: GroupAddress{1, 1, 2}, APCI: APCIWrite, Data: EncodeDPT7(7200)},
		{Source: "15.15.255", Destination: GroupAddress{31, 7, 255}, APCI: APCIWrite, Data: []byte{0x01}},
		{Source: "1.0.1", Destination: GroupAddress{2, 0, 1}, APCI: APCIWrite, Data: []byte{0xBF}},
		{Source: "1.0.1", Destination: GroupAddress{2, 0, 1}, APCI: APCIRead},
	}

	for _, want := range tests {
		t.Run(want.String(), func(t *testing.T) {
			got, err := ParseTelegram(want.EncodeGroupPacket())
			if err != nil {
				t.Fatalf("ParseTelegram() unexpected error: %v", err)
			}
			if got.Source != want.Source || got.Destination != want.Destination || got.APCI != want.APCI {
				t.Errorf("round trip = %v, want %v", got, want)
			}
			if !bytes.Equal(got.Data, want.Data) {
				t.Errorf("Data = %X, want %X", got.Data, want.Data)
			}
		})
	}
}

func TestTelegramString(t *testing.T) {
	tel := NewWriteTelegram(GroupAddress{1, 1, 1}, []byte{0x41, 0x80, 0x00, 0x00})
	tel.Source = "1.1.5"

	want := "Telegram{Src:1.1.5, GA:1/1/1, APCI:WRITE, Data:41800000}"
	if got := tel.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !tel.IsWrite() {
		t.Error("IsWrite() = false for a write telegram")
	}
}

func TestKNXDMessage(t *testing.T) {
	msg := EncodeKNXDMessage(EIBOpenGroupCon, []byte{0x00, 0x00, 0x00})
	want := []byte{0x00, 0x05, 0x00, 0x26, 0x00, 0x00, 0x00}
	if !bytes.Equal(msg, want) {
		t.Fatalf("EncodeKNXDMessage() = %X, want %X", msg, want)
	}

	msgType, payload, err := ParseKNXDMessage(msg)
	if err != nil {
		t.Fatalf("ParseKNXDMessage() unexpected error: %v", err)
	}
	if msgType != EIBOpenGroupCon {
		t.Errorf("msgType = 0x%04X, want 0x%04X", msgType, EIBOpenGroupCon)
	}
	if !bytes.Equal(payload, []byte{0x00, 0x00, 0x00}) {
		t.Errorf("payload = %X", payload)
	}

	closeMsg := EncodeKNXDMessage(EIBClose, nil)
	if !bytes.Equal(closeMsg, []byte{0x00, 0x02, 0x00, 0x06}) {
		t.Errorf("EncodeKNXDMessage(EIBClose) = %X", closeMsg)
	}
}

func TestParseKNXDMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "too short", data: []byte{0x00, 0x02, 0x00}},
		{name: "size mismatch", data: []byte{0x00, 0x08, 0x00, 0x27, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ParseKNXDMessage(tt.data); !errors.Is(err, ErrInvalidTelegram) {
				t.Errorf("ParseKNXDMessage(%X) error = %v, want ErrInvalidTelegram", tt.data, err)
			}
		})
	}
}
