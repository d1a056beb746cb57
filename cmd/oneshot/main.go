package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/RoanBrand/oneshot"
	"github.com/RoanBrand/oneshot/internal/store"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

func main() {
	app := cli.App{
		Name:  "oneshot",
		Usage: "publish or receive a single MQTT message",
		Flags: Flags,
		Commands: []*cli.Command{
			{
				Name:   "publish",
				Usage:  "connect, publish one message to every topic, disconnect",
				Flags:  []cli.Flag{FlagTopic, FlagMessage, FlagSkipConnack},
				Action: publish,
			},
			{
				Name:   "subscribe",
				Usage:  "connect, wait for one message, print it and disconnect",
				Flags:  []cli.Flag{FlagFilter, FlagTimeout},
				Action: subscribe,
			},
			{
				Name:   "watch",
				Usage:  "keep receiving messages one session at a time, logging or relaying them",
				Flags:  []cli.Flag{FlagFilter, FlagRelay, FlagService},
				Action: watch,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// newClient loads the config file and applies flag overrides.
// The returned closer releases the packet identifier store, if one is used.
func newClient(ctx *cli.Context, overrides ...func(*oneshot.Client)) (*oneshot.Client, func(), error) {
	c := new(oneshot.Client)

	if f := ctx.String(FlagConfig.Name); f != "" {
		if err := c.LoadFromFile(f); err != nil {
			return nil, nil, err
		}
		log.Debugln("Using config file:", f)
	} else if ePath, err := os.Executable(); err == nil {
		toTry := filepath.Join(filepath.Dir(ePath), "config.json")
		if fileExists(toTry) {
			if err := c.LoadFromFile(toTry); err != nil {
				return nil, nil, err
			}
			log.Debugln("Using config file:", toTry)
		}
	}

	applyFlags(ctx, c)
	for _, o := range overrides {
		o(c)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	if err := oneshot.SetupLogging(&c.Config); err != nil {
		return nil, nil, err
	}

	closer := func() {}
	if c.Store.Dir != "" {
		ids, err := store.Open(c.Store.Dir)
		if err != nil {
			return nil, nil, err
		}
		c.IDs = ids
		closer = func() {
			if err := ids.Close(); err != nil {
				log.WithFields(log.Fields{
					"err": err,
				}).Error("failed to close packet identifier store")
			}
		}
	}

	return c, closer, nil
}

func applyFlags(ctx *cli.Context, c *oneshot.Client) {
	if ctx.IsSet(FlagBroker.Name) {
		c.Broker.Address = ctx.String(FlagBroker.Name)
	}
	if ctx.IsSet(FlagTransport.Name) {
		c.Broker.Transport = ctx.String(FlagTransport.Name)
	}
	if ctx.IsSet(FlagClientID.Name) {
		c.Connect.ID = ctx.String(FlagClientID.Name)
	}
	if ctx.IsSet(FlagUsername.Name) {
		c.Connect.Username = ctx.String(FlagUsername.Name)
	}
	if ctx.IsSet(FlagPassword.Name) {
		c.Connect.Password = ctx.String(FlagPassword.Name)
	}
	if ctx.IsSet(FlagCleanSession.Name) {
		clean := ctx.Bool(FlagCleanSession.Name)
		c.Connect.CleanSession = &clean
	}
	if ctx.IsSet(FlagKeepAlive.Name) {
		keepAlive := uint16(ctx.Uint(FlagKeepAlive.Name))
		c.Connect.KeepAlive = &keepAlive
	}
	if ctx.IsSet(FlagStore.Name) {
		c.Store.Dir = ctx.String(FlagStore.Name)
	}
	if ctx.IsSet(FlagLogLevel.Name) {
		c.Log.Level = ctx.String(FlagLogLevel.Name)
	}
}

func timeoutFlag(ctx *cli.Context) func(*oneshot.Client) {
	return func(c *oneshot.Client) {
		if ctx.IsSet(FlagTimeout.Name) {
			c.SubscribeTimeout = ctx.Int64(FlagTimeout.Name)
		}
	}
}

// watchFlags applies the flags of the watch command over its config section.
func watchFlags(ctx *cli.Context) func(*oneshot.Client) {
	return func(c *oneshot.Client) {
		if ctx.IsSet(FlagFilter.Name) {
			c.Watch.Topic = ctx.String(FlagFilter.Name)
		}
		if ctx.IsSet(FlagRelay.Name) {
			c.Watch.RelayTopic = ctx.String(FlagRelay.Name)
		}
	}
}

// interruptible returns a context that is cancelled on SIGINT or SIGTERM.
func interruptible(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// publish sends the message to every topic concurrently, each in its own session.
func publish(ctx *cli.Context) error {
	c, closeStore, err := newClient(ctx, func(c *oneshot.Client) {
		if ctx.IsSet(FlagSkipConnack.Name) {
			c.PublishSkipConnack = ctx.Bool(FlagSkipConnack.Name)
		}
	})
	if err != nil {
		return err
	}
	defer closeStore()

	appCtx, cancel := interruptible(ctx.Context)
	defer cancel()

	msg := []byte(ctx.String(FlagMessage.Name))
	g, gCtx := errgroup.WithContext(appCtx)
	for _, topic := range ctx.StringSlice(FlagTopic.Name) {
		topic := topic
		g.Go(func() error {
			if err := c.Publish(gCtx, topic, msg); err != nil {
				return errors.Wrapf(err, "publish to %q", topic)
			}
			log.WithFields(log.Fields{
				"topic": topic,
				"bytes": len(msg),
			}).Info("Published")
			return nil
		})
	}

	return g.Wait()
}

func subscribe(ctx *cli.Context) error {
	topic := ctx.String(FlagFilter.Name)
	if topic == "" {
		return errors.New("no topic filter specified")
	}

	c, closeStore, err := newClient(ctx, timeoutFlag(ctx))
	if err != nil {
		return err
	}
	defer closeStore()

	appCtx, cancel := interruptible(ctx.Context)
	defer cancel()

	m, err := c.Subscribe(appCtx, topic)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"topic":    m.Topic,
		"retained": m.Retained,
	}).Debug("Received")

	out := ctx.App.Writer
	if _, err = out.Write(m.Payload); err != nil {
		return err
	}
	_, err = out.Write([]byte{'\n'})
	return err
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
