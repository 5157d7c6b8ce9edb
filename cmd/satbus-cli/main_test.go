package main

import (
	"testing"

	"satbus/internal/core/model"
)

func TestParseCommandSolarUsesEnabledNotOn(t *testing.T) {
	cmd, err := parseCommand("solar on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Type.Kind != model.CmdSetSolarPanel {
		t.Fatalf("expected CmdSetSolarPanel, got %v", cmd.Type.Kind)
	}
	if cmd.Type.Params.Enabled == nil || !*cmd.Type.Params.Enabled {
		t.Fatalf("expected Params.Enabled=true, got %+v", cmd.Type.Params)
	}
	if cmd.Type.Params.On != nil {
		t.Fatalf("expected Params.On to stay nil for solar, got %v", *cmd.Type.Params.On)
	}
}

func TestParseCommandCommsUsesEnabledNotOn(t *testing.T) {
	cmd, err := parseCommand("comms off")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Type.Kind != model.CmdSetCommsLink {
		t.Fatalf("expected CmdSetCommsLink, got %v", cmd.Type.Kind)
	}
	if cmd.Type.Params.Enabled == nil || *cmd.Type.Params.Enabled {
		t.Fatalf("expected Params.Enabled=false, got %+v", cmd.Type.Params)
	}
	if cmd.Type.Params.On != nil {
		t.Fatalf("expected Params.On to stay nil for comms, got %v", *cmd.Type.Params.On)
	}
}

func TestParseCommandHeaterStillUsesOn(t *testing.T) {
	cmd, err := parseCommand("heater on")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cmd.Type.Kind != model.CmdSetHeaterState {
		t.Fatalf("expected CmdSetHeaterState, got %v", cmd.Type.Kind)
	}
	if cmd.Type.Params.On == nil || !*cmd.Type.Params.On {
		t.Fatalf("expected Params.On=true, got %+v", cmd.Type.Params)
	}
	if cmd.Type.Params.Enabled != nil {
		t.Fatalf("expected Params.Enabled to stay nil for heater, got %v", *cmd.Type.Params.Enabled)
	}
}
