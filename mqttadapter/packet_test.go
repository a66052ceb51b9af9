package mqttadapter

import (
	"bytes"
	"testing"
)

func TestRemainingLength_RoundTrip(t *testing.T) {
	cases := []int{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, 268435455}
	for _, n := range cases {
		enc, err := EncodeRemainingLength(n)
		if err != nil {
			t.Fatalf("encode %d: %v", n, err)
		}
		if len(enc) < 1 || len(enc) > 4 {
			t.Fatalf("encode %d: got %d bytes, want 1-4", n, len(enc))
		}
		got, err := DecodeRemainingLength(bytes.NewReader(enc))
		if err != nil {
			t.Fatalf("decode %d: %v", n, err)
		}
		if got != n {
			t.Errorf("round trip %d: got %d", n, got)
		}
	}
}

func TestRemainingLength_FullRangeSample(t *testing.T) {
	// Exhaustively checking all 268,435,456 values is impractical in a unit
	// test; sample densely at the bottom of the range (covering the 127/128
	// one-to-two-byte boundary) and at the top. The other byte-count
	// boundaries are checked by TestRemainingLength_RoundTrip.
	for n := 0; n < 300; n++ {
		enc, err := EncodeRemainingLength(n)
		if err != nil {
			t.Fatalf("encode %d: %v", n, err)
		}
		got, err := DecodeRemainingLength(bytes.NewReader(enc))
		if err != nil || got != n {
			t.Fatalf("round trip %d: got %d, err %v", n, got, err)
		}
	}
	for n := 268435455 - 300; n <= 268435455; n++ {
		enc, _ := EncodeRemainingLength(n)
		got, err := DecodeRemainingLength(bytes.NewReader(enc))
		if err != nil || got != n {
			t.Fatalf("round trip %d: got %d, err %v", n, got, err)
		}
	}
}

func TestRemainingLength_OutOfRange(t *testing.T) {
	if _, err := EncodeRemainingLength(268435456); err == nil {
		t.Error("expected error for 268,435,456 (one past max)")
	}
	if _, err := EncodeRemainingLength(-1); err == nil {
		t.Error("expected error for negative length")
	}
}

func TestBuildPublish_ExactWireBytes(t *testing.T) {
	// Scenario 4 from the testable-properties list: topic "x/y", payload
	// "hi", qos=1, retain=false, packet id 0x0001.
	packet, err := buildPublish("x/y", []byte("hi"), 1, false, 1)
	if err != nil {
		t.Fatalf("buildPublish: %v", err)
	}
	want := []byte{0x32, 9, 0x00, 0x03, 'x', '/', 'y', 0x00, 0x01, 'h', 'i'}
	if !bytes.Equal(packet, want) {
		t.Errorf("PUBLISH packet = % x, want % x", packet, want)
	}
}

func TestBuildPublish_QoS0HasNoPacketID(t *testing.T) {
	packet, err := buildPublish("a", []byte("z"), 0, false, 0)
	if err != nil {
		t.Fatalf("buildPublish: %v", err)
	}
	want := []byte{0x30, 4, 0x00, 0x01, 'a', 'z'}
	if !bytes.Equal(packet, want) {
		t.Errorf("PUBLISH packet = % x, want % x", packet, want)
	}
}

func TestBuildConnect_FlagsAndFields(t *testing.T) {
	packet, err := buildConnect("t1", "u", "p", 60)
	if err != nil {
		t.Fatalf("buildConnect: %v", err)
	}
	if packet[0] != 0x10 {
		t.Errorf("fixed header = 0x%02x, want 0x10", packet[0])
	}
	// variable header starts after fixed byte + 1-byte remaining length here
	variable := packet[2:]
	if string(variable[2:6]) != "MQTT" {
		t.Errorf("protocol name missing: % x", variable)
	}
	if variable[6] != 0x04 {
		t.Errorf("protocol level = 0x%02x, want 0x04", variable[6])
	}
	flags := variable[7]
	if flags&0x02 == 0 {
		t.Error("clean-session bit (bit 1) must always be set")
	}
	if flags&0x80 == 0 {
		t.Error("user-name bit (bit 7) should be set when username is present")
	}
	if flags&0x40 == 0 {
		t.Error("password bit (bit 6) should be set when password is present")
	}
}

func TestDisconnectPacket_FixedBytes(t *testing.T) {
	if !bytes.Equal(disconnectPacket, []byte{0xE0, 0x00}) {
		t.Errorf("DISCONNECT packet = % x, want e0 00", disconnectPacket)
	}
}
