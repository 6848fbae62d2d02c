package wire_test

import (
	"testing"

	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/notify"
	"github.com/xraph/aegis/wire"
)

func TestGetCodec(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", wire.CodecNameJSON},
		{"json", wire.CodecNameJSON},
		{"msgpack", wire.CodecNameMsgpack},
		{"protobuf", wire.CodecNameJSON},
	}
	for _, tt := range tests {
		if got := wire.GetCodec(tt.name).Name(); got != tt.want {
			t.Errorf("GetCodec(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestCodecs_CarryEventPayload(t *testing.T) {
	clientID := id.NewClientID()
	msg := notify.NewMessage(clientID, notify.WorkflowComplete{ClientName: "Ada", TotalSteps: 8, CompletedSteps: 8})

	frame, err := wire.NewEventFrame("client:"+clientID.String(), msg)
	if err != nil {
		t.Fatalf("NewEventFrame: %v", err)
	}

	for _, codec := range []wire.Codec{wire.JSONCodec{}, wire.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			data, err := codec.Encode(frame)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			decoded, err := codec.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			got, err := decoded.Message()
			if err != nil {
				t.Fatalf("Message: %v", err)
			}
			wc, ok := got.Payload.(notify.WorkflowComplete)
			if !ok || wc.ClientName != "Ada" || wc.CompletedSteps != 8 {
				t.Errorf("payload = %#v", got.Payload)
			}
		})
	}
}
