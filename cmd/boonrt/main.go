// Command boonrt is the host harness for the Boon reactive engine: it loads
// a compiled program fixture, replays a scripted sequence of external
// events tick by tick, and prints the effects (and, on request, an explain
// trace) each tick produces. It is not a language front-end — compiling
// Boon source to the program.Program fixture this command loads is out of
// scope (spec.md §1 Non-goals), mirrored in SPEC_FULL.md §E.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joeycumines/go-eventloop"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"

	"github.com/boonlang/boon-core/internal/blog"
	"github.com/boonlang/boon-core/internal/diag"
	"github.com/boonlang/boon-core/internal/dispatch"
	"github.com/boonlang/boon-core/internal/effect"
	"github.com/boonlang/boon-core/internal/program"
	"github.com/boonlang/boon-core/internal/scope"
	"github.com/boonlang/boon-core/internal/value"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type runFlags struct {
	programPath string
	scriptPath  string
	maxTicks    int
	explain     bool
}

func newRootCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "boonrt",
		Short: "Replay a scripted event sequence against a compiled Boon program",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	cmd.Flags().StringVar(&flags.programPath, "program", "", "path to a compiled program fixture (JSON)")
	cmd.Flags().StringVar(&flags.scriptPath, "script", "", "path to an event script (JSON)")
	cmd.Flags().IntVar(&flags.maxTicks, "ticks", 0, "stop after this many ticks (0 = run the whole script)")
	cmd.Flags().BoolVar(&flags.explain, "explain", false, "after each tick, print an explain trace for each slot that tick's scripted events target")
	_ = cmd.MarkFlagRequired("program")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func run(ctx context.Context, flags *runFlags) error {
	prog, err := loadProgram(flags.programPath)
	if err != nil {
		return fmt.Errorf("loading program: %w", err)
	}
	script, err := loadScript(flags.scriptPath)
	if err != nil {
		return fmt.Errorf("loading script: %w", err)
	}
	if flags.maxTicks > 0 && len(script) > flags.maxTicks {
		script = script[:flags.maxTicks]
	}

	log := blog.New(os.Stderr, logiface.LevelInformational)

	loop, err := eventloop.New()
	if err != nil {
		return fmt.Errorf("starting event loop: %w", err)
	}

	d := dispatch.New(prog, log, nil, printEffect)
	defer d.Close()

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	loopDone := make(chan error, 1)
	go func() { loopDone <- loop.Run(loopCtx) }()

	tickErr := make(chan error, 1)
	remaining := len(script)

	var runTick func(i int)
	runTick = func(i int) {
		if i >= len(script) {
			cancel()
			return
		}
		entry := script[i]
		submit := func() {
			events, targets, convErr := entry.toEvents(d.Store)
			if convErr != nil {
				tickErr <- convErr
				cancel()
				return
			}
			if _, err := d.Tick(loopCtx, events); err != nil {
				tickErr <- err
				cancel()
				return
			}
			if flags.explain {
				for _, slot := range targets {
					fmt.Println(diag.Explain(d.Cache, slot).String())
				}
			}
			remaining--
			if remaining == 0 {
				cancel()
				return
			}
			runTick(i + 1)
		}
		if entry.DelayMs > 0 {
			_ = loop.ScheduleTimer(time.Duration(entry.DelayMs)*time.Millisecond, submit)
			return
		}
		_ = loop.Submit(eventloop.Task{Runnable: submit})
	}
	_ = loop.Submit(eventloop.Task{Runnable: func() { runTick(0) }})

	<-loopDone
	select {
	case err := <-tickErr:
		return err
	default:
	}
	return nil
}

func printEffect(e effect.Effect) {
	fmt.Printf("effect kind=%d path=%v value=%v route=%q message=%q\n",
		e.Kind, e.Path, e.Value, e.Route, e.Message)
}

// scriptEntry is one tick's worth of scripted external events, in the JSON
// fixture format cmd/boonrt reads (spec §6 "External interfaces" — a
// developer-facing replay format, not part of the engine's own contract).
// Every event targets a root-scope slot: the harness has no way to address
// a call or list-item scope that has not been created yet, so scripted
// fixtures exercise top-level HOLD/LINK declarations directly.
type scriptEntry struct {
	DelayMs int64         `json:"delay_ms"`
	Events  []scriptEvent `json:"events"`
}

type scriptEvent struct {
	Kind  string          `json:"kind"` // "scalar" | "route"
	Expr  int64           `json:"expr"`
	Value json.RawMessage `json:"value"`
	Route string          `json:"route"`
}

func (se scriptEntry) toEvents(store *scope.Store) ([]effect.Event, []scope.SlotKey, error) {
	events := make([]effect.Event, 0, len(se.Events))
	targets := make([]scope.SlotKey, 0, len(se.Events))
	for _, se := range se.Events {
		slot := scope.SlotKey{Scope: store.Root(), Expr: program.ExprID(se.Expr)}
		targets = append(targets, slot)
		switch se.Kind {
		case "route":
			events = append(events, effect.Event{Kind: effect.EventRoute, Target: slot, Route: se.Route})
		default:
			v, err := value.DecodeJSON(se.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("event targeting expr %d: %w", se.Expr, err)
			}
			events = append(events, effect.Event{Kind: effect.EventScalar, Target: slot, Value: v})
		}
	}
	return events, targets, nil
}

func loadProgram(path string) (*program.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return program.DecodeJSON(f)
}

func loadScript(path string) ([]scriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var entries []scriptEntry
	if err := json.NewDecoder(f).Decode(&entries); err != nil {
		return nil, err
	}
	return entries, nil
}
