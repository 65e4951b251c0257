package mqtt

import (
	"testing"

	"firewatch/internal/models"
)

func TestDecodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{"Pause", `{"cmd":"pause"}`, "pause", false},
		{"Extra Fields", `{"cmd":"restart","source":"dashboard"}`, "restart", false},
		{"Missing Cmd", `{"action":"pause"}`, "", true},
		{"Invalid JSON", `pause`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := DecodeCommand([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if cmd.Cmd != tt.want {
				t.Errorf("Cmd = %q, want %q", cmd.Cmd, tt.want)
			}
		})
	}
}

func TestNewClient_DoesNotConnect(t *testing.T) {
	c := NewClient(models.MQTTConfig{Broker: "tcp://127.0.0.1:1", ClientID: "test", CommandsTopic: "firewatch/commands"})
	if c.client.IsConnected() {
		t.Error("client connected before Connect")
	}
}

func TestDeliverCommand(t *testing.T) {
	cmds := make(chan models.RemoteCommand, 1)

	if deliverCommand(cmds, []byte(`nope`)) {
		t.Error("undecodable payload delivered")
	}
	if !deliverCommand(cmds, []byte(`{"cmd":"pause"}`)) {
		t.Fatal("command not delivered")
	}
	// full queue drops instead of blocking the router
	if deliverCommand(cmds, []byte(`{"cmd":"resume"}`)) {
		t.Error("command delivered to a full queue")
	}

	if cmd := <-cmds; cmd.Cmd != "pause" {
		t.Errorf("Cmd = %q, want pause", cmd.Cmd)
	}
	if len(cmds) != 0 {
		t.Errorf("queue holds %d extra commands", len(cmds))
	}
}
