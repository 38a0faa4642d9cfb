package main

import "testing"

func TestNewRootCmdHasConnectSubcommand(t *testing.T) {
	root := newRootCmd()
	connect, _, err := root.Find([]string{"connect"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if connect == nil || connect.Use != "connect" {
		t.Fatalf("expected a connect subcommand, got %v", connect)
	}
}

func TestConnectFlagDefaults(t *testing.T) {
	root := newRootCmd()
	connect, _, err := root.Find([]string{"connect"})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}

	addr, err := connect.Flags().GetString("addr")
	if err != nil {
		t.Fatalf("GetString(addr): %v", err)
	}
	if addr != "localhost:26000" {
		t.Errorf("default addr: got %q, want %q", addr, "localhost:26000")
	}

	name, err := connect.Flags().GetString("name")
	if err != nil {
		t.Fatalf("GetString(name): %v", err)
	}
	if name != "" {
		t.Errorf("default name: got %q, want empty", name)
	}
}
