package wire

import (
	"bytes"
	"testing"
)

func TestSTRPDataRoundTrip(t *testing.T) {
	p := DataPacket{Dest: 0x0D, Src: 0x05, Seq: 1, Payload: []byte("hello")}
	frame := STRP{}.EncodeData(p)

	want := []byte{0x45, 0x0D, 0x05, 0x01, 0x00, 0x05, 0x00}
	want = append(want, []byte("hello")...)
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = % X, want % X", frame, want)
	}

	got, err := STRP{}.DecodeData(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Dest != p.Dest || got.Src != p.Src || got.Seq != p.Seq || !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("decoded %+v, want %+v", got, p)
	}
	if !got.HasSeq {
		t.Error("expected HasSeq for STRP")
	}
}

func TestSMRPDataRoundTrip(t *testing.T) {
	p := DataPacket{Dest: 0x0D, Src: 0x09, Payload: []byte("xy")}
	frame := SMRP{}.EncodeData(p)

	got, err := SMRP{}.DecodeData(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Dest != p.Dest || got.Src != p.Src || !bytes.Equal(got.Payload, p.Payload) {
		t.Errorf("decoded %+v, want %+v", got, p)
	}
	if got.HasSeq {
		t.Error("SMRP frames must never report HasSeq")
	}
}

func TestSTRPBeaconRoundTrip(t *testing.T) {
	b := Beacon{Parent: 7, ParentRSSI: -42}
	frame := STRP{}.EncodeBeacon(b)

	got, err := STRP{}.DecodeBeacon(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != b {
		t.Errorf("decoded %+v, want %+v", got, b)
	}
}

func TestDecodeRejectsShortFrame(t *testing.T) {
	if _, err := (STRP{}).DecodeData([]byte{0x45, 0x01}); err != ErrShortFrame {
		t.Errorf("got %v, want ErrShortFrame", err)
	}
	if _, err := (SMRP{}).DecodeData([]byte{0x45}); err != ErrShortFrame {
		t.Errorf("got %v, want ErrShortFrame", err)
	}
}

func TestDecodeRejectsOverlongLength(t *testing.T) {
	frame := STRP{}.EncodeData(DataPacket{Dest: 1, Src: 2, Payload: []byte("ab")})
	// corrupt the length field to claim more bytes than actually present
	frame[5] = 0xFF
	frame[6] = 0xFF
	if _, err := (STRP{}).DecodeData(frame); err != ErrBadLength {
		t.Errorf("got %v, want ErrBadLength", err)
	}
}

func TestZeroLengthPayloadRoundTrips(t *testing.T) {
	frame := STRP{}.EncodeData(DataPacket{Dest: 1, Src: 2})
	got, err := STRP{}.DecodeData(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Payload) != 0 {
		t.Errorf("payload = %v, want empty", got.Payload)
	}
}

func TestControlByteIdentification(t *testing.T) {
	ctrl, err := Control([]byte{ctrlBeacon, 1, 2})
	if err != nil || !IsBeacon(ctrl) || IsDataFrame(ctrl) {
		t.Errorf("expected beacon control byte to be recognized as a beacon")
	}
	ctrl, err = Control([]byte{ctrlData, 1, 2, 3, 4, 5, 6})
	if err != nil || !IsDataFrame(ctrl) || IsBeacon(ctrl) {
		t.Errorf("expected data control byte to be recognized as a data frame")
	}
	if _, err := Control(nil); err != ErrShortFrame {
		t.Errorf("got %v, want ErrShortFrame", err)
	}
}

func FuzzSTRPDataDecode(f *testing.F) {
	f.Add(STRP{}.EncodeData(DataPacket{Dest: 1, Src: 2, Seq: 3, Payload: []byte("abc")}))
	f.Add([]byte{0x45})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, frame []byte) {
		p, err := STRP{}.DecodeData(frame)
		if err != nil {
			return
		}
		if len(p.Payload) > len(frame) {
			t.Fatalf("decoded payload longer than input frame")
		}
	})
}

func FuzzSMRPDataDecode(f *testing.F) {
	f.Add(SMRP{}.EncodeData(DataPacket{Dest: 1, Src: 2, Payload: []byte("abc")}))

	f.Fuzz(func(t *testing.T, frame []byte) {
		p, err := SMRP{}.DecodeData(frame)
		if err != nil {
			return
		}
		if len(p.Payload) > len(frame) {
			t.Fatalf("decoded payload longer than input frame")
		}
	})
}
