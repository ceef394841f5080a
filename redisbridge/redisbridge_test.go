package redisbridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/danthegoodman1/tablesweep/utils"
	"github.com/danthegoodman1/tablesweep/workspace"
)

func TestPayloadCoding(t *testing.T) {
	if decodePayload(encodePayload(nil)) != nil {
		t.Fatal("deletion should decode to nil")
	}
	if string(decodePayload(encodePayload([]byte(`{"label":"x"}`)))) != `{"label":"x"}` {
		t.Fatal("value mangled")
	}
}

// The rest needs a redis: REDIS_ADDR=localhost:6379
func testBridge(t *testing.T) *RedisBridge {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rb, err := NewRedisBridge(context.Background(), Options{
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		Prefix:   "tablesweep_test_" + utils.GenRandomShortID() + ":",
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { rb.Shutdown(context.Background()) })
	return rb
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	rb := testBridge(t)

	if _, ok, err := rb.GetValue(ctx, "snap"); err != nil || ok {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := rb.SetValue(ctx, "snap", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	b, ok, err := rb.GetValue(ctx, "snap")
	if err != nil || !ok || string(b) != "v1" {
		t.Fatalf("unexpected %q ok=%v err=%v", b, ok, err)
	}
	if err := rb.SetValue(ctx, "snap", nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := rb.GetValue(ctx, "snap"); ok {
		t.Fatal("nil value should delete")
	}
}

func TestOnValueChange(t *testing.T) {
	ctx := context.Background()
	rb := testBridge(t)

	got := make(chan []byte, 4)
	stop, err := rb.OnValueChange(ctx, "snap", func(v []byte) { got <- v })
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	if err := rb.SetValue(ctx, "snap", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := rb.SetValue(ctx, "snap", nil); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"v1", ""} {
		select {
		case v := <-got:
			if string(v) != want {
				t.Fatalf("expected %q, got %q", want, v)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for notification")
		}
	}
}

func TestBridgedGatewayCapabilities(t *testing.T) {
	rb := testBridge(t)
	gw := workspace.WithBridge(workspace.NewMemory(), rb)
	caps := workspace.DetectCapabilities(gw)
	if !caps.KV || !caps.Push {
		t.Fatalf("unexpected capabilities %+v", caps)
	}
}
