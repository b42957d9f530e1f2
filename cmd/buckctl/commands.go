package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"

	"github.com/cory-johannsen/crypdoebucks/internal/game/buck"
	"github.com/cory-johannsen/crypdoebucks/internal/ledger"
	"github.com/cory-johannsen/crypdoebucks/internal/service"
)

// globals holds the top-level flags shared by every command.
type globals struct {
	addr    string
	account string
	timeout time.Duration
}

var stdout io.Writer = os.Stdout

// run dials the ledger and calls fn. Positional args are validated by the
// command before run is called.
func run(ctx context.Context, args []interface{}, timeout bool, fn func(context.Context, *service.Client) error) subcommands.ExitStatus {
	g := args[0].(*globals)
	c, err := service.Dial(g.addr, buck.AccountID(g.account))
	if err != nil {
		fmt.Fprintf(os.Stderr, "buckctl: %v\n", err)
		return subcommands.ExitFailure
	}
	defer func() { _ = c.Close() }()

	if timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if err := fn(ctx, c); err != nil {
		fmt.Fprintf(os.Stderr, "buckctl: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func parseTokenID(s string) (buck.TokenID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token id %q: %w", s, err)
	}
	return buck.TokenID(n), nil
}

// tokenArgs parses exactly n token ids from f.
func tokenArgs(f *flag.FlagSet, n int) ([]buck.TokenID, error) {
	if f.NArg() != n {
		return nil, fmt.Errorf("expected %d token id argument(s), got %d", n, f.NArg())
	}
	ids := make([]buck.TokenID, n)
	for i := range ids {
		id, err := parseTokenID(f.Arg(i))
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

func usageError(f *flag.FlagSet, err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "buckctl: %v\n", err)
	f.Usage()
	return subcommands.ExitUsageError
}

type mintCmd struct {
	owner  string
	points uint
	style  uint
	does   uint64
}

func (*mintCmd) Name() string     { return "mint" }
func (*mintCmd) Synopsis() string { return "create a buck for an owner" }
func (*mintCmd) Usage() string {
	return "mint -owner <account> -points <n> -style <n> -does <n>\n"
}

func (c *mintCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.owner, "owner", "", "account that will own the buck")
	f.UintVar(&c.points, "points", 0, "strength points")
	f.UintVar(&c.style, "style", 0, "fighting style id")
	f.Uint64Var(&c.does, "does", 0, "initial does")
}

func (c *mintCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if c.owner == "" {
		return usageError(f, fmt.Errorf("-owner is required"))
	}
	if c.points > uint(^uint32(0)) || c.style > uint(^uint8(0)) {
		return usageError(f, fmt.Errorf("-points or -style out of range"))
	}
	req := ledger.MintRequest{
		Owner:         buck.AccountID(c.owner),
		Points:        uint32(c.points),
		FightingStyle: buck.FightingStyle(c.style),
		Does:          c.does,
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		id, err := client.CreateBuck(ctx, req)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "minted %s to %s\n", id, req.Owner)
		return nil
	})
}

type fightCmd struct{}

func (*fightCmd) Name() string             { return "fight" }
func (*fightCmd) Synopsis() string         { return "attack one buck with another you own" }
func (*fightCmd) Usage() string            { return "fight <attacker-id> <defender-id>\n" }
func (*fightCmd) SetFlags(*flag.FlagSet) {}

func (*fightCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	ids, err := tokenArgs(f, 2)
	if err != nil {
		return usageError(f, err)
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		res, err := client.Fight(ctx, ids[0], ids[1])
		if err != nil {
			return err
		}
		moved := strconv.FormatUint(res.DoesMoved, 10)
		if res.DoesMoved == buck.DrawSentinel {
			moved = "none (draw)"
		}
		fmt.Fprintf(stdout, "%s vs %s: %s (%d to %d), does moved: %s, seed %x\n",
			res.AttackerID, res.DefenderID, res.Outcome,
			res.AttackerScore, res.DefenderScore, moved, res.Seed[:])
		if res.Outcome != buck.Draw {
			fmt.Fprintf(stdout, "attacker ready at %s\n", time.Unix(res.ReadyTime, 0).UTC().Format(time.RFC3339))
		}
		return nil
	})
}

type getCmd struct{}

func (*getCmd) Name() string             { return "get" }
func (*getCmd) Synopsis() string         { return "show a buck's attributes" }
func (*getCmd) Usage() string            { return "get <id>\n" }
func (*getCmd) SetFlags(*flag.FlagSet) {}

func (*getCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	ids, err := tokenArgs(f, 1)
	if err != nil {
		return usageError(f, err)
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		b, err := client.GetBuck(ctx, ids[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "id=%s points=%d style=%d does=%d ready_time=%d\n",
			ids[0], b.Points, b.FightingStyle, b.Does, b.ReadyTime)
		return nil
	})
}

type ownerCmd struct{}

func (*ownerCmd) Name() string             { return "owner" }
func (*ownerCmd) Synopsis() string         { return "show the owner of a buck" }
func (*ownerCmd) Usage() string            { return "owner <id>\n" }
func (*ownerCmd) SetFlags(*flag.FlagSet) {}

func (*ownerCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	ids, err := tokenArgs(f, 1)
	if err != nil {
		return usageError(f, err)
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		owner, err := client.OwnerOf(ctx, ids[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, owner)
		return nil
	})
}

type balanceCmd struct{}

func (*balanceCmd) Name() string             { return "balance" }
func (*balanceCmd) Synopsis() string         { return "print 1 if an account owns a buck, else 0" }
func (*balanceCmd) Usage() string            { return "balance <account> <id>\n" }
func (*balanceCmd) SetFlags(*flag.FlagSet) {}

func (*balanceCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 2 {
		return usageError(f, fmt.Errorf("expected <account> <id>"))
	}
	account := buck.AccountID(f.Arg(0))
	id, err := parseTokenID(f.Arg(1))
	if err != nil {
		return usageError(f, err)
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		bal, err := client.BalanceOf(ctx, account, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, bal)
		return nil
	})
}

type uriCmd struct{ expand bool }

func (*uriCmd) Name() string     { return "uri" }
func (*uriCmd) Synopsis() string { return "print the metadata URI of a buck" }
func (*uriCmd) Usage() string    { return "uri [-expand] <id>\n" }

func (c *uriCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.expand, "expand", false, "substitute the 64-hex-digit id into the template")
}

func (c *uriCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	ids, err := tokenArgs(f, 1)
	if err != nil {
		return usageError(f, err)
	}
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		tmpl, expanded, err := client.MetadataURI(ctx, ids[0])
		if err != nil {
			return err
		}
		if c.expand {
			fmt.Fprintln(stdout, expanded)
		} else {
			fmt.Fprintln(stdout, tmpl)
		}
		return nil
	})
}

type eventsCmd struct {
	after uint64
	limit int
}

func (*eventsCmd) Name() string     { return "events" }
func (*eventsCmd) Synopsis() string { return "list logged mint and fight events" }
func (*eventsCmd) Usage() string    { return "events [-after <seq>] [-limit <n>]\n" }

func (c *eventsCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.after, "after", 0, "only events with a greater sequence number")
	f.IntVar(&c.limit, "limit", 100, "maximum events to list")
}

func (c *eventsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, true, func(ctx context.Context, client *service.Client) error {
		events, err := client.ListEvents(ctx, c.after, c.limit)
		if err != nil {
			return err
		}
		for _, e := range events {
			printEvent(e)
		}
		return nil
	})
}

type watchCmd struct{ after uint64 }

func (*watchCmd) Name() string     { return "watch" }
func (*watchCmd) Synopsis() string { return "follow events as they are committed" }
func (*watchCmd) Usage() string    { return "watch [-after <seq>]\n" }

func (c *watchCmd) SetFlags(f *flag.FlagSet) {
	f.Uint64Var(&c.after, "after", 0, "replay events with a greater sequence number first")
}

func (c *watchCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return run(ctx, args, false, func(ctx context.Context, client *service.Client) error {
		err := client.WatchEvents(ctx, c.after, func(e ledger.Event) error {
			printEvent(e)
			return nil
		})
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}

func printEvent(e ledger.Event) {
	at := e.At.Format(time.RFC3339)
	switch {
	case e.NewBuck != nil:
		fmt.Fprintf(stdout, "%d %s NewBuck id=%s to=%s points=%d does=%d\n",
			e.Seq, at, e.NewBuck.ID, e.NewBuck.To, e.NewBuck.Points, e.NewBuck.Does)
	case e.Fight != nil:
		fmt.Fprintf(stdout, "%d %s Fight attacker=%s defender=%s outcome=%s does_moved=%d\n",
			e.Seq, at, e.Fight.AttackerID, e.Fight.DefenderID, e.Fight.Outcome, e.Fight.DoesMoved)
	}
}
