package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RoanBrand/oneshot"
	"github.com/RoanBrand/oneshot/internal/queue"
	"github.com/kardianos/service"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// program receives one message per session and hands it to the relay queue,
// which publishes it to the relay topic or logs it.
type program struct {
	client     *oneshot.Client
	closeStore func()

	relay  queue.Basic
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

const retryAfter = time.Second

func (p *program) Start(s service.Service) error {
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.relay.Init()

	log.WithFields(log.Fields{
		"broker": p.client.Addr(),
		"topic":  p.client.Watch.Topic,
		"relay":  p.client.Watch.RelayTopic,
	}).Info("Starting watch")

	p.wg.Add(2)
	go p.relay.StartDispatcher(p.dispatch, &p.wg)
	go p.receive()
	return nil
}

func (p *program) Stop(s service.Service) error {
	log.Info("Stopping watch")
	p.cancel()
	p.relay.Kill()
	p.wg.Wait()
	p.closeStore()
	return nil
}

func (p *program) receive() {
	defer p.wg.Done()
	c := p.client

	for {
		m, err := c.Subscribe(p.ctx, c.Watch.Topic)
		if p.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.WithFields(log.Fields{
				"topic": c.Watch.Topic,
				"err":   err,
			}).Error("Subscribe failed")

			select {
			case <-p.ctx.Done():
				return
			case <-time.After(retryAfter):
			}
			continue
		}

		p.relay.Add(queue.GetItem(m))
	}
}

func (p *program) dispatch(i *queue.Item) error {
	m := &i.M
	relay := p.client.Watch.RelayTopic
	if relay == "" {
		log.WithFields(log.Fields{
			"topic":    m.Topic,
			"retained": m.Retained,
			"payload":  string(m.Payload),
		}).Info("Received")
		return nil
	}

	if err := p.client.Publish(p.ctx, relay, m.Payload); err != nil {
		if p.ctx.Err() != nil {
			return err // stopping
		}
		log.WithFields(log.Fields{
			"topic": m.Topic,
			"relay": relay,
			"err":   err,
		}).Error("Relay failed")
		return nil
	}

	log.WithFields(log.Fields{
		"topic": m.Topic,
		"relay": relay,
	}).Debug("Relayed")
	return nil
}

func watch(ctx *cli.Context) error {
	// Set defaults before config override.
	if service.Interactive() {
		log.SetLevel(log.InfoLevel)
	} else if ePath, err := os.Executable(); err == nil {
		f, err := os.OpenFile(filepath.Join(filepath.Dir(ePath), "oneshot.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		log.SetOutput(f)
	}

	svcConfig := service.Config{
		Name:        "oneshot-watch",
		DisplayName: "oneshot MQTT watch",
		Description: "Receives MQTT messages one session at a time and relays them.",
		Arguments:   serviceArgs(os.Args[1:]),
	}

	if action := ctx.String(FlagService.Name); action != "" {
		s, err := service.New(&program{}, &svcConfig)
		if err != nil {
			return err
		}
		if err = service.Control(s, action); err != nil {
			log.Printf("Valid actions: %q\n", service.ControlAction)
			return err
		}
		return nil
	}

	c, closeStore, err := newClient(ctx, watchFlags(ctx))
	if err != nil {
		return err
	}
	if c.Watch.Topic == "" {
		closeStore()
		return errors.New("no topic filter specified")
	}

	s, err := service.New(&program{client: c, closeStore: closeStore}, &svcConfig)
	if err != nil {
		closeStore()
		return err
	}
	return s.Run()
}

// serviceArgs returns the arguments the installed service runs with: these, minus --service.
func serviceArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--service" || a == "-service":
			i++ // skip value
		case strings.HasPrefix(a, "--service=") || strings.HasPrefix(a, "-service="):
		default:
			out = append(out, a)
		}
	}
	return out
}
