package signal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type stubParser struct {
	sig *Signal
	err error
}

func (s *stubParser) Parse(_ context.Context, _, _ string) (*Signal, error) {
	return s.sig, s.err
}

func TestRegistryDispatch(t *testing.T) {
	def := &stubParser{sig: &Signal{Action: ActionBuy, Base: "BTC"}}
	special := &stubParser{sig: &Signal{Action: ActionSell, Base: "ETH"}}

	reg := NewRegistry(def)
	reg.Register("whales", special)

	sig, err := reg.Parse(context.Background(), "msg", "whales")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sig.Base != "ETH" {
		t.Errorf("Base = %s, want variant parser's ETH", sig.Base)
	}

	sig, err = reg.Parse(context.Background(), "msg", "unknown-channel")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sig.Base != "BTC" {
		t.Errorf("Base = %s, want default parser's BTC", sig.Base)
	}
}

func TestRegistryNormalizesErrors(t *testing.T) {
	reg := NewRegistry(&stubParser{err: errors.New("regex blew up")})
	if _, err := reg.Parse(context.Background(), "msg", "alpha"); !errors.Is(err, ErrNoSignal) {
		t.Errorf("err = %v, want ErrNoSignal", err)
	}

	// A parser returning an incomplete signal is treated the same way.
	reg = NewRegistry(&stubParser{sig: &Signal{Action: ActionBuy}})
	if _, err := reg.Parse(context.Background(), "msg", "alpha"); !errors.Is(err, ErrNoSignal) {
		t.Errorf("incomplete signal: err = %v, want ErrNoSignal", err)
	}
}

func TestBuildRegistryFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	yaml := `channels:
  - channel: cryptowolf
    quote_default: USD
    entry_labels: ["einstieg"]
    target_labels: ["ziele"]
    stop_labels: ["stopp"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := BuildRegistry(path, nil, nil)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}

	sig, err := reg.Parse(context.Background(), "LONG #BTC/USD einstieg: 65000 ziele: 66000, 67000 stopp: 63000", "cryptowolf")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if sig.Action != ActionBuy || len(sig.Targets) != 2 || sig.StopLoss == nil {
		t.Errorf("custom labels not applied: %+v", sig)
	}

	// Channels without a variant still parse with the default layout.
	if _, err := reg.Parse(context.Background(), "LONG #BTC/USDT Entry: 65000 TP: 66000 SL: 63000", "other"); err != nil {
		t.Errorf("default parser: %v", err)
	}
}

func TestBuildRegistryMissingFile(t *testing.T) {
	reg, err := BuildRegistry(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	if err != nil {
		t.Fatalf("missing config should not fail: %v", err)
	}
	if reg == nil {
		t.Fatal("registry is nil")
	}
}
