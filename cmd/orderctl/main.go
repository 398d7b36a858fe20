// orderctl talks to an orderfeed server over HTTP or gRPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/zoravur/orderfeed/internal/common"
	"github.com/zoravur/orderfeed/internal/order"
	"github.com/zoravur/orderfeed/internal/rpc"
)

const usage = `usage: orderctl [-addr host:port | -grpc host:port] <command>

commands:
  list
  create <menu-url>
  add <order> <buyer> <food> <price>
  rm <order> <entry>
  pay <order> <entry> [true|false]
  state <order> <open|closed|delivered>
  watch <order>
`

type backend interface {
	List(ctx context.Context) ([]order.Snapshot, error)
	Get(ctx context.Context, id order.ID) (order.Snapshot, error)
	Create(ctx context.Context, menuURL string) (order.Snapshot, error)
	Add(ctx context.Context, id order.ID, e order.NewEntry) (order.Snapshot, error)
	Remove(ctx context.Context, id, entryID order.ID) (order.Snapshot, error)
	Pay(ctx context.Context, id, entryID order.ID, paid bool) (order.Snapshot, error)
	State(ctx context.Context, id order.ID, next order.State) (order.Snapshot, error)
	// Watch calls fn for every snapshot until ctx is done or the server
	// ends the stream.
	Watch(ctx context.Context, id order.ID, fn func(order.Snapshot)) error
	Close() error
}

var errUsage = errors.New("bad usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "orderctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("orderctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	addr := fs.String("addr", "localhost:8080", "HTTP address of the server")
	grpcAddr := fs.String("grpc", "", "use gRPC at this address instead of HTTP")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	args = fs.Args()
	if len(args) == 0 {
		return errUsage
	}

	var b backend
	if *grpcAddr != "" {
		c, err := rpc.Dial(*grpcAddr)
		if err != nil {
			return err
		}
		b = &grpcBackend{c: c}
	} else {
		b = newHTTPBackend(*addr)
	}
	defer b.Close()

	cmd, args := args[0], args[1:]
	need := func(n int) error {
		if len(args) < n {
			return errUsage
		}
		return nil
	}
	ids := func(n int) ([]order.ID, error) {
		out := make([]order.ID, n)
		for i := range out {
			id, err := common.ParseID("id", args[i])
			if err != nil {
				return nil, err
			}
			out[i] = id
		}
		return out, nil
	}

	show := func(snap order.Snapshot, err error) error {
		if err != nil {
			return err
		}
		printOrder(out, snap)
		return nil
	}

	switch cmd {
	case "list":
		list, err := b.List(ctx)
		if err != nil {
			return err
		}
		printList(out, list)
		return nil

	case "get":
		if err := need(1); err != nil {
			return err
		}
		id, err := ids(1)
		if err != nil {
			return err
		}
		return show(b.Get(ctx, id[0]))

	case "create":
		if err := need(1); err != nil {
			return err
		}
		return show(b.Create(ctx, args[0]))

	case "add":
		if err := need(4); err != nil {
			return err
		}
		id, err := ids(1)
		if err != nil {
			return err
		}
		price, err := common.ParsePrice(args[3])
		if err != nil {
			return err
		}
		return show(b.Add(ctx, id[0], order.NewEntry{Buyer: args[1], Food: args[2], Price: price}))

	case "rm":
		if err := need(2); err != nil {
			return err
		}
		id, err := ids(2)
		if err != nil {
			return err
		}
		return show(b.Remove(ctx, id[0], id[1]))

	case "pay":
		if err := need(2); err != nil {
			return err
		}
		id, err := ids(2)
		if err != nil {
			return err
		}
		paid := true
		if len(args) > 2 {
			if paid, err = strconv.ParseBool(args[2]); err != nil {
				return errUsage
			}
		}
		return show(b.Pay(ctx, id[0], id[1], paid))

	case "state":
		if err := need(2); err != nil {
			return err
		}
		id, err := ids(1)
		if err != nil {
			return err
		}
		next, err := order.ParseState(args[1])
		if err != nil {
			return err
		}
		return show(b.State(ctx, id[0], next))

	case "watch":
		if err := need(1); err != nil {
			return err
		}
		id, err := ids(1)
		if err != nil {
			return err
		}
		err = b.Watch(ctx, id[0], func(s order.Snapshot) {
			printOrder(out, s)
			fmt.Fprintln(out)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err

	default:
		return errUsage
	}
}

func printList(out io.Writer, list []order.Snapshot) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tENTRIES\tTOTAL\tMENU")
	for _, o := range list {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n", o.ID, o.StateName, len(o.Entries), o.Total, o.MenuURL)
	}
	tw.Flush()
}

func printOrder(out io.Writer, o order.Snapshot) {
	fmt.Fprintf(out, "order %d (%s, rev %d) %s\n", o.ID, o.StateName, o.Rev, o.MenuURL)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, e := range o.Entries {
		paid := ""
		if e.Paid {
			paid = "paid"
		}
		fmt.Fprintf(tw, "  #%d\t%s\t%s\t%s\t%s\n", e.ID, e.Buyer, e.Food, e.Price, paid)
	}
	tw.Flush()
	fmt.Fprintf(out, "  total %s\n", o.Total)
}
