package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/RoanBrand/oneshot"
	"github.com/urfave/cli/v2"
)

func TestServiceArgs(t *testing.T) {
	cases := map[string]string{
		"watch -t a/b --service install":           "watch -t a/b",
		"--broker x watch --service=start -t a":     "--broker x watch -t a",
		"watch -service stop --relay r -t a":        "watch --relay r -t a",
		"-c /etc/oneshot.json watch -service=stop": "-c /etc/oneshot.json watch",
	}
	for in, want := range cases {
		if got := strings.Join(serviceArgs(strings.Fields(in)), " "); got != want {
			t.Fatalf("%q: got %q, expected %q", in, got, want)
		}
	}
}

func TestApplyFlags(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range Flags {
		if err := f.Apply(set); err != nil {
			t.Fatal(err)
		}
	}
	if err := set.Parse([]string{"--broker", "mqtt.local", "--transport", "ws", "--id", "sensor-1", "--clean=false", "--keep-alive", "5"}); err != nil {
		t.Fatal(err)
	}

	c := new(oneshot.Client)
	applyFlags(cli.NewContext(cli.NewApp(), set, nil), c)
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	if c.URL() != "ws://mqtt.local:80/mqtt" || c.Connect.ID != "sensor-1" || c.Clean() || c.KeepAlive() != 5 {
		t.Fatalf("got %+v", c.Config)
	}
}

func flagSet(t *testing.T, flags []cli.Flag, args ...string) *cli.Context {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range flags {
		if err := f.Apply(set); err != nil {
			t.Fatal(err)
		}
	}
	if err := set.Parse(args); err != nil {
		t.Fatal(err)
	}
	return cli.NewContext(cli.NewApp(), set, nil)
}

func TestNewClientTransportOverride(t *testing.T) {
	f := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(f, []byte(`{"broker": {"address": "example.com"}}`), 0644); err != nil {
		t.Fatal(err)
	}

	c, closeStore, err := newClient(flagSet(t, Flags, "--config", f, "--transport", "wss"))
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	if got := c.URL(); got != "wss://example.com:443/mqtt" {
		t.Fatalf("got %q", got)
	}
}

func TestSubscribeFlagsLeaveWatchConfig(t *testing.T) {
	ctx := flagSet(t, []cli.Flag{FlagFilter, FlagTimeout, FlagRelay}, "-t", "a/#", "--timeout", "7", "--relay", "b")

	c := new(oneshot.Client)
	c.Watch.Topic = "from/config"
	timeoutFlag(ctx)(c)
	if c.Watch.Topic != "from/config" || c.Watch.RelayTopic != "" || c.SubscribeTimeout != 7 {
		t.Fatalf("got %+v", c.Config)
	}

	watchFlags(ctx)(c)
	if c.Watch.Topic != "a/#" || c.Watch.RelayTopic != "b" {
		t.Fatalf("got %+v", c.Watch)
	}
}
