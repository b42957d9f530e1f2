// Package main provides buckctl, a command-line client for the bucks ledger.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
)

func main() {
	g := &globals{}
	flag.StringVar(&g.addr, "addr", "127.0.0.1:50061", "bucksd gRPC address")
	flag.StringVar(&g.account, "account", os.Getenv("BUCKS_ACCOUNT"), "caller account id (default $BUCKS_ACCOUNT)")
	flag.DurationVar(&g.timeout, "timeout", 10*time.Second, "per-call timeout; watch ignores it")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")
	subcommands.Register(&mintCmd{}, "ledger")
	subcommands.Register(&fightCmd{}, "ledger")
	subcommands.Register(&getCmd{}, "query")
	subcommands.Register(&ownerCmd{}, "query")
	subcommands.Register(&balanceCmd{}, "query")
	subcommands.Register(&uriCmd{}, "query")
	subcommands.Register(&eventsCmd{}, "query")
	subcommands.Register(&watchCmd{}, "query")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	status := subcommands.Execute(ctx, g)
	stop()
	os.Exit(int(status))
}
