// Command cartcli is a diagnostic CLI client for the cart sync engine.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/and161185/cartsync/internal/remote/httpapi"
	"github.com/and161185/cartsync/internal/session"
	"github.com/and161185/cartsync/internal/syncengine"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func usage() {
	fmt.Fprintf(os.Stderr, `cartcli
Usage:
  cartcli -addr URL [-token T] [-session ID] <cmd> [args]

Commands:
  version
  state
  totals
  analytics
  add        -file quote.json ('-'=stdin) [-inc]
  rm         -id <quote id>
  qty        -id <quote id> -n <quantity>
  save       -id <quote id>
  unsave     -id <quote id>
  select     -id <quote id>
  display    -cur <currency> -rates rates.json
  sync
  watch      [-interval 2s]
  force-sync -yes
`)
	os.Exit(2)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func readAll(p string) ([]byte, error) {
	if p == "-" {
		return os.ReadFile("/dev/stdin")
	}
	return os.ReadFile(p)
}

// ratesConverter converts via a static "FROM->TO": rate table loaded from a
// JSON file; stands in for the exchange-rate collaborator.
type ratesConverter struct {
	rates map[string]decimal.Decimal
}

func (r *ratesConverter) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	rate, ok := r.rates[from+"->"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s->%s", from, to)
	}
	return amount.Mul(rate), nil
}

func loadRates(path string) (*ratesConverter, error) {
	b, err := readAll(path)
	if err != nil {
		return nil, err
	}
	raw := map[string]string{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse rates: %w", err)
	}
	rc := &ratesConverter{rates: make(map[string]decimal.Decimal, len(raw))}
	for k, v := range raw {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("rate %s: %w", k, err)
		}
		rc.rates[k] = d
	}
	return rc, nil
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "cart API base URL")
	token := flag.String("token", "", "bearer token")
	sessionID := flag.String("session", "cli", "session id")
	ratesPath := flag.String("rates", "", "exchange rates JSON (display cmd)")
	timeout := flag.Duration("timeout", 30*time.Second, "request timeout")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)

	if cmd == "version" {
		fmt.Printf("cartcli %s (%s)\n", version, buildDate)
		return
	}

	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rem, err := httpapi.New(httpapi.Options{
		BaseURL: *addr,
		Token:   *token,
		Timeout: *timeout,
		Logger:  logger,
	})
	if err != nil {
		fail(err)
	}

	opts := session.Options{
		Logger: logger,
		Remote: rem,
		OnNotify: func(n syncengine.Notification) {
			fmt.Fprintf(os.Stderr, "notice: %s item=%s diffs=%d err=%v\n", n.Kind, n.ItemID, len(n.Diffs), n.Err)
		},
	}
	if *ratesPath != "" {
		conv, cerr := loadRates(*ratesPath)
		if cerr != nil {
			fail(cerr)
		}
		opts.Converter = conv
	}

	sess, err := session.New(opts)
	if err != nil {
		fail(err)
	}
	if err := sess.Init(ctx, *sessionID); err != nil {
		fail(err)
	}
	defer sess.Dispose()

	switch cmd {

	case "state":
		printJSON(map[string]any{
			"items":    sess.Items(),
			"saved":    sess.SavedItems(),
			"selected": sess.SelectedIDs(),
			"status":   sess.SyncStatus().String(),
		})

	case "totals":
		printJSON(map[string]any{
			"cart":     sess.CartTotal(),
			"selected": sess.SelectedTotal(),
			"weight":   sess.CartWeight(),
		})

	case "analytics":
		printJSON(sess.Analytics())

	case "add":
		fs := flag.NewFlagSet("add", flag.ExitOnError)
		file := fs.String("file", "", "quote JSON ('-'=stdin)")
		inc := fs.Bool("inc", false, "increment quantity if already in cart")
		_ = fs.Parse(flag.Args()[1:])
		if *file == "" {
			fmt.Fprintln(os.Stderr, "need -file")
			os.Exit(1)
		}
		b, rerr := readAll(*file)
		if rerr != nil {
			fail(rerr)
		}
		var raw map[string]any
		if jerr := json.Unmarshal(b, &raw); jerr != nil {
			fail(fmt.Errorf("parse quote: %w", jerr))
		}
		if aerr := sess.AddItem(ctx, raw, session.AddOptions{Increment: *inc}); aerr != nil {
			fail(aerr)
		}
		waitAndPrint(sess)

	case "rm":
		id := requireID()
		if err := sess.RemoveItem(ctx, id); err != nil {
			fail(err)
		}
		waitAndPrint(sess)

	case "qty":
		fs := flag.NewFlagSet("qty", flag.ExitOnError)
		id := fs.String("id", "", "quote id")
		n := fs.String("n", "", "quantity")
		_ = fs.Parse(flag.Args()[1:])
		if *id == "" || *n == "" {
			fmt.Fprintln(os.Stderr, "need -id and -n")
			os.Exit(1)
		}
		qty, perr := strconv.ParseFloat(*n, 64)
		if perr != nil {
			fail(perr)
		}
		if err := sess.UpdateQuantity(ctx, *id, qty); err != nil {
			fail(err)
		}
		waitAndPrint(sess)

	case "save":
		id := requireID()
		if err := sess.MoveToSaved(ctx, id); err != nil {
			fail(err)
		}
		waitAndPrint(sess)

	case "unsave":
		id := requireID()
		if err := sess.MoveToCart(ctx, id); err != nil {
			fail(err)
		}
		waitAndPrint(sess)

	case "select":
		id := requireID()
		if err := sess.ToggleSelection(id); err != nil {
			fail(err)
		}
		printJSON(sess.SelectedIDs())

	case "display":
		fs := flag.NewFlagSet("display", flag.ExitOnError)
		cur := fs.String("cur", "USD", "display currency")
		_ = fs.Parse(flag.Args()[1:])
		total, derr := sess.DisplayTotal(ctx, *cur)
		if derr != nil {
			fail(derr)
		}
		printJSON(map[string]string{*cur: total.String()})

	case "sync":
		diffs, serr := sess.SyncWithServer(ctx)
		if serr != nil {
			fail(serr)
		}
		printJSON(map[string]any{"diffs": diffs, "status": sess.SyncStatus().String()})

	case "watch":
		fs := flag.NewFlagSet("watch", flag.ExitOnError)
		interval := fs.Duration("interval", 2*time.Second, "event poll interval")
		_ = fs.Parse(flag.Args()[1:])
		watch(rem, sess, *interval)

	case "force-sync":
		fs := flag.NewFlagSet("force-sync", flag.ExitOnError)
		yes := fs.Bool("yes", false, "confirm overwriting the server cart")
		_ = fs.Parse(flag.Args()[1:])
		if !*yes {
			fail(fmt.Errorf("force-sync overwrites the server cart; pass -yes to confirm"))
		}
		if err := sess.ForceSyncToServer(ctx); err != nil {
			fail(err)
		}
		fmt.Println("ok")

	default:
		usage()
	}
}

func requireID() string {
	fs := flag.NewFlagSet(flag.Arg(0), flag.ExitOnError)
	id := fs.String("id", "", "quote id")
	_ = fs.Parse(flag.Args()[1:])
	if *id == "" {
		fmt.Fprintln(os.Stderr, "need -id")
		os.Exit(1)
	}
	return *id
}

// watch polls the server event feed and pushes every event into the
// session until interrupted. Each event triggers a reconciliation pull.
func watch(rem *httpapi.Client, sess *session.Session, interval time.Duration) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	since := time.Now()
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			evs, err := rem.Events(ctx, since)
			if err != nil {
				fmt.Fprintln(os.Stderr, "events:", err)
				continue
			}
			for _, ev := range evs {
				if ev.At.After(since) {
					since = ev.At
				}
				fmt.Fprintf(os.Stderr, "event: %s item=%s\n", ev.Type, ev.ItemID)
				sess.PushEvent(ev)
			}
		}
	}
}

func waitAndPrint(sess *session.Session) {
	// Dispatches are async; settle them so the printed status reflects the
	// server outcome.
	sess.Flush()
	printJSON(map[string]any{
		"items":  sess.Items(),
		"saved":  sess.SavedItems(),
		"status": sess.SyncStatus().String(),
	})
}
