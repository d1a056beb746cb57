package main

import "github.com/urfave/cli/v2"

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "path of config file. Defaults to config.json next to the executable, if present",
	EnvVars: []string{"ONESHOT_CONFIG"},
}

var FlagBroker = &cli.StringFlag{
	Name:    "broker",
	Aliases: []string{"b"},
	Usage:   "broker address, host[:port]",
	EnvVars: []string{"ONESHOT_BROKER"},
}

var FlagTransport = &cli.StringFlag{
	Name:    "transport",
	Usage:   "one of: [tcp, tls, ws, wss]",
	EnvVars: []string{"ONESHOT_TRANSPORT"},
}

var FlagClientID = &cli.StringFlag{
	Name:    "id",
	Usage:   "MQTT client identifier",
	EnvVars: []string{"ONESHOT_CLIENT_ID"},
}

var FlagUsername = &cli.StringFlag{
	Name:    "username",
	EnvVars: []string{"ONESHOT_USERNAME"},
}

var FlagPassword = &cli.StringFlag{
	Name:    "password",
	EnvVars: []string{"ONESHOT_PASSWORD"},
}

var FlagCleanSession = &cli.BoolFlag{
	Name:    "clean",
	Usage:   "start a clean session",
	EnvVars: []string{"ONESHOT_CLEAN_SESSION"},
}

var FlagKeepAlive = &cli.UintFlag{
	Name:    "keep-alive",
	Usage:   "keep alive in s",
	EnvVars: []string{"ONESHOT_KEEP_ALIVE"},
}

var FlagStore = &cli.StringFlag{
	Name:    "store",
	Usage:   "directory to keep packet identifiers in",
	EnvVars: []string{"ONESHOT_STORE"},
}

var FlagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	Usage:   "one of: [error, warn, info, debug]",
	EnvVars: []string{"LOG_LEVEL"},
}

var FlagTopic = &cli.StringSliceFlag{
	Name:     "topic",
	Aliases:  []string{"t"},
	Usage:    "topic to publish to, may be repeated",
	Required: true,
}

var FlagMessage = &cli.StringFlag{
	Name:    "message",
	Aliases: []string{"m"},
	Usage:   "message to publish",
}

var FlagSkipConnack = &cli.BoolFlag{
	Name:  "skip-connack",
	Usage: "publish without waiting for the broker to accept the connection",
}

var FlagFilter = &cli.StringFlag{
	Name:    "topic",
	Aliases: []string{"t"},
	Usage:   "topic filter to subscribe to",
}

var FlagTimeout = &cli.Int64Flag{
	Name:  "timeout",
	Usage: "seconds to wait for a message, 0 waits forever",
}

var FlagRelay = &cli.StringFlag{
	Name:  "relay",
	Usage: "topic to republish every received message to",
}

var FlagService = &cli.StringFlag{
	Name:  "service",
	Usage: "control the system service, one of: [install, uninstall, start, stop, restart]",
}

var Flags = []cli.Flag{
	FlagConfig,
	FlagBroker,
	FlagTransport,
	FlagClientID,
	FlagUsername,
	FlagPassword,
	FlagCleanSession,
	FlagKeepAlive,
	FlagStore,
	FlagLogLevel,
}
