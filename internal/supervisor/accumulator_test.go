package supervisor

import (
	"testing"

	"github.com/reelworks/reeltransfer/internal/events"
)

func TestErrorPath(t *testing.T) {
	cases := []struct {
		msg  string
		want string
	}{
		{"Copying File /media/card/a.mov", "/media/card/a.mov"},
		{"Copying File /media/card/with space.mov", "/media/card/with space.mov"},
		{`Accessing Destination Directory C:\archive\incoming\`, `C:\archive\incoming\`},
		{"Waiting 30 seconds...", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := errorPath(tc.msg); got != tc.want {
			t.Errorf("errorPath(%q) = %q, want %q", tc.msg, got, tc.want)
		}
	}
}

func TestConsumeErrorLine(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()
	errCh := bus.Subscribe(events.EventFileError)

	acc := newAccumulator(bus, 0)
	acc.consume("2024/01/15 12:00:00 ERROR 32 (0x00000020) Copying File /media/card/a.mov")

	if len(acc.errors) != 1 {
		t.Fatalf("errors = %v, want one entry", acc.errors)
	}
	fe := acc.errors[0]
	if fe.Path != "/media/card/a.mov" {
		t.Errorf("Path = %q, want the path operand only", fe.Path)
	}
	if fe.Code != 32 {
		t.Errorf("Code = %d, want 32", fe.Code)
	}
	if fe.Message != "Copying File /media/card/a.mov" {
		t.Errorf("Message = %q, want the full operation text", fe.Message)
	}

	select {
	case ev := <-errCh:
		published := ev.(*events.FileErrorEvent)
		if published.Path != "/media/card/a.mov" {
			t.Errorf("event Path = %q, want the path operand only", published.Path)
		}
	default:
		t.Error("no file error event published")
	}
}
