package model_test

import (
	"testing"

	"github.com/firasghr/loadspiker-engine/model"
)

func TestSizeBounds_MatchTiming(t *testing.T) {
	if model.MaxURLBytes != 2*1024 {
		t.Errorf("MaxURLBytes = %d, want 2048", model.MaxURLBytes)
	}
	if model.MaxHeaderBlockBytes != 8*1024 {
		t.Errorf("MaxHeaderBlockBytes = %d, want 8192", model.MaxHeaderBlockBytes)
	}
	if model.MaxBodyBytes != 64*1024 {
		t.Errorf("MaxBodyBytes = %d, want 65536", model.MaxBodyBytes)
	}
	if model.MaxProtocolBlobBytes != 32*1024 {
		t.Errorf("MaxProtocolBlobBytes = %d, want 32768", model.MaxProtocolBlobBytes)
	}
}

func TestRequestDescriptor_CarriesProtocolSpecificPayload(t *testing.T) {
	req := model.RequestDescriptor{
		Protocol: model.ProtocolMQTT,
		MQTT: &model.MQTTPayload{
			ClientID: "c1",
			Topic:    "t/1",
			QoS:      1,
		},
	}
	if req.WS != nil || req.DB != nil {
		t.Error("expected only the MQTT payload pointer to be set")
	}
	if req.MQTT.Topic != "t/1" {
		t.Errorf("got Topic=%q, want t/1", req.MQTT.Topic)
	}
}

func TestResponseRecord_CarriesProtocolSpecificTrailer(t *testing.T) {
	rec := model.ResponseRecord{
		Protocol: model.ProtocolTCP,
		Success:  true,
		TCP: &model.TCPTrailer{
			BytesSent:     10,
			BytesReceived: 20,
		},
	}
	if rec.WS != nil || rec.MQTT != nil || rec.DB != nil || rec.UDP != nil {
		t.Error("expected only the TCP trailer pointer to be set")
	}
	if rec.TCP.BytesReceived != 20 {
		t.Errorf("got BytesReceived=%d, want 20", rec.TCP.BytesReceived)
	}
}

func TestProtocolConstants_AreDistinct(t *testing.T) {
	protocols := []model.Protocol{
		model.ProtocolHTTP,
		model.ProtocolWebSocket,
		model.ProtocolTCP,
		model.ProtocolUDP,
		model.ProtocolMQTT,
		model.ProtocolDatabase,
		model.ProtocolGRPC,
	}
	seen := make(map[model.Protocol]bool, len(protocols))
	for _, p := range protocols {
		if seen[p] {
			t.Errorf("duplicate protocol constant value %q", p)
		}
		seen[p] = true
	}
}
