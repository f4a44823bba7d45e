package bot

import (
	"context"
	"strings"
	"testing"
)

func TestResolveCommand_FallsThrough(t *testing.T) {
	b := newTestBot(&fakeStore{}, &fakeGen{}, 10)

	tests := []struct {
		name string
		text string
	}{
		{"not addressed", "purge"},
		{"unregistered keyword", "<@" + testBotID + "> frobnicate"},
		{"mention alone", "<@" + testBotID + ">"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := b.resolveCommand(chatMsg("U1", tt.text)); ok {
				t.Errorf("resolveCommand(%q) resolved, want fall-through", tt.text)
			}
		})
	}
}

func TestResolveCommand_CapturesArguments(t *testing.T) {
	b := newTestBot(&fakeStore{}, &fakeGen{}, 10)

	inv, ok := b.resolveCommand(chatMsg("U1", "<@"+testBotID+"> purge a b c"))
	if !ok {
		t.Fatal("purge should resolve")
	}
	if inv.Key != "purge" {
		t.Errorf("key = %q, want purge", inv.Key)
	}
	if len(inv.Args) != 3 || inv.Args[0] != "a" || inv.Args[2] != "c" {
		t.Errorf("args = %v, want [a b c]", inv.Args)
	}
}

func TestRunCommand_Purge(t *testing.T) {
	st := &fakeStore{}
	b := newTestBot(st, &fakeGen{}, 10)

	msg := chatMsg("U1", "<@"+testBotID+"> purge")
	inv, ok := b.resolveCommand(msg)
	if !ok {
		t.Fatal("purge should resolve")
	}
	b.runCommand(context.Background(), msg, inv)

	if len(st.removed) != 1 || st.removed[0] != "U1" {
		t.Fatalf("removed = %v, want [U1]", st.removed)
	}
	out := expectOutbound(t, b)
	if !strings.Contains(out.Text, "<@U1>") {
		t.Errorf("confirmation should mention the user, got %q", out.Text)
	}
}

func TestRunCommand_PurgeFailureNoConfirmation(t *testing.T) {
	st := &fakeStore{removeErr: errBoom}
	b := newTestBot(st, &fakeGen{}, 10)

	msg := chatMsg("U1", "<@"+testBotID+"> purge")
	inv, _ := b.resolveCommand(msg)
	b.runCommand(context.Background(), msg, inv)

	expectNoOutbound(t, b)
}

func TestRunCommand_HelpListsEveryCommand(t *testing.T) {
	b := newTestBot(&fakeStore{}, &fakeGen{}, 10)

	msg := chatMsg("U1", "<@"+testBotID+"> help")
	inv, ok := b.resolveCommand(msg)
	if !ok {
		t.Fatal("help should resolve")
	}
	b.runCommand(context.Background(), msg, inv)

	out := expectOutbound(t, b)
	lines := strings.Split(out.Text, "\n")
	if len(lines) != len(b.commands) {
		t.Fatalf("help has %d lines, want %d", len(lines), len(b.commands))
	}
	for key, cmd := range b.commands {
		found := false
		for _, line := range lines {
			if line == cmd.Description {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("help output missing description for %q", key)
		}
	}
}

func TestRunCommand_HelpFlagInterception(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"short flag first", "<@" + testBotID + "> purge -h"},
		{"long flag first", "<@" + testBotID + "> purge --help"},
		{"flag after valid args", "<@" + testBotID + "> purge now really -h"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			b := newTestBot(st, &fakeGen{}, 10)

			msg := chatMsg("U1", tt.text)
			inv, ok := b.resolveCommand(msg)
			if !ok {
				t.Fatal("purge should resolve")
			}
			b.runCommand(context.Background(), msg, inv)

			out := expectOutbound(t, b)
			if out.Text != b.commands["purge"].Description {
				t.Errorf("reply = %q, want purge description", out.Text)
			}
			if len(st.removed) != 0 {
				t.Error("help flag must prevent the handler from running")
			}
		})
	}
}

func TestHasHelpFlag(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{nil, false},
		{[]string{"a", "b"}, false},
		{[]string{"-h"}, true},
		{[]string{"--help"}, true},
		{[]string{"x", "--help", "y"}, true},
		{[]string{"-help"}, false},
	}

	for _, tt := range tests {
		if got := hasHelpFlag(tt.args); got != tt.want {
			t.Errorf("hasHelpFlag(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
