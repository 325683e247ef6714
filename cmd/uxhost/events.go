package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tidwall/jsonc"

	"github.com/modoterra/uxhost/pkg/bridge"
	"github.com/modoterra/uxhost/pkg/codec"
	"github.com/modoterra/uxhost/pkg/core"
	"github.com/modoterra/uxhost/pkg/logstore"
	"github.com/modoterra/uxhost/pkg/presenter"
	"github.com/modoterra/uxhost/pkg/transport/uds"
)

func fetchSnapshot(ctx context.Context, client *uds.Client) ([]core.Event, error) {
	var snap []core.Event
	if err := client.Call(ctx, uds.ControlChannel, uds.MethodGetSnapshot, nil, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// --- Logs ---

var logsJSON bool

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Print the event log, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := requestCtx()
		defer cancel()

		snap, err := fetchSnapshot(ctx, client)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if logsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		if len(snap) == 0 {
			fmt.Fprintln(out, "no events")
			return nil
		}
		fmt.Fprint(out, presenter.Text(presenter.Present(snap, presenterOptions(cfg))))
		return nil
	},
}

func init() {
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "output as JSON")
}

// --- Tail ---

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Follow the event log as entries arrive",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		changes := make(chan logstore.Change, 16)
		client.OnEvent(func(msg uds.Message) {
			if msg.Method != uds.EventLogChanged {
				return
			}
			var c logstore.Change
			if err := codec.Convert(client.Codec(), msg.Result, &c); err != nil {
				return
			}
			select {
			case changes <- c:
			default:
			}
		})

		return tail(ctx, cmd.OutOrStdout(), client, presenterOptions(cfg), changes)
	},
}

// tail prints the current log oldest first, then each new entry as the
// host reports a change, until ctx is done or the connection drops.
func tail(ctx context.Context, w io.Writer, client *uds.Client, opts presenter.Options, changes <-chan logstore.Change) error {
	seen := 0
	printNew := func() error {
		snap, err := fetchSnapshot(ctx, client)
		if err != nil {
			return err
		}
		fresh := len(snap) - seen
		if fresh < 0 {
			fresh = len(snap)
		}
		for i := fresh - 1; i >= 0; i-- {
			fmt.Fprint(w, presenter.Text(presenter.Present(snap[i:i+1], opts)))
		}
		seen = len(snap)
		return nil
	}

	if err := printNew(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			if c.Kind == logstore.ChangeClear {
				fmt.Fprintln(w, "-- log cleared --")
				seen = 0
				continue
			}
			if err := printNew(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
		}
	}
}

// --- Clear ---

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the event log",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := requestCtx()
		defer cancel()

		if err := client.Call(ctx, uds.ControlChannel, uds.MethodClear, nil, nil); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "log cleared")
		return nil
	},
}

// --- Emit ---

var (
	emitType      string
	emitStep      string
	emitMessage   string
	emitMeta      []string
	emitTimestamp int64
	emitPayload   string
)

var emitCmd = &cobra.Command{
	Use:   "emit",
	Short: "Send an onKycEvent call to a host, as the embedded module would",
	Example: `  uxhost emit --type error --step upload --message "Upload failed" --meta code=500
  uxhost emit --payload '{"type": "flowStarted", /* comments allowed */ "timestamp": 1700000000000}'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		payload, err := emitArguments(cmd)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client, err := dialHost(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		ctx, cancel := requestCtx()
		defer cancel()

		if _, err := client.Request(ctx, bridge.ChannelName, bridge.MethodOnKycEvent, payload); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "sent ✓")
		return nil
	},
}

func init() {
	emitCmd.Flags().StringVar(&emitType, "type", "", "event type")
	emitCmd.Flags().StringVar(&emitStep, "step", "", "flow step")
	emitCmd.Flags().StringVar(&emitMessage, "message", "", "event message")
	emitCmd.Flags().StringArrayVar(&emitMeta, "meta", nil, "meta entry as key=value (repeatable)")
	emitCmd.Flags().Int64Var(&emitTimestamp, "timestamp", 0, "epoch milliseconds (host time when omitted)")
	emitCmd.Flags().StringVar(&emitPayload, "payload", "", "raw JSON payload; overrides the other flags")
}

// emitArguments builds the call arguments from the flags. Only flags
// that were set become keys, so the host applies its own defaults.
func emitArguments(cmd *cobra.Command) (any, error) {
	flags := cmd.Flags()
	if flags.Changed("payload") {
		var v any
		if err := json.Unmarshal(jsonc.ToJSON([]byte(emitPayload)), &v); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		return v, nil
	}

	args := map[string]any{}
	if flags.Changed("type") {
		args[core.KeyType] = emitType
	}
	if flags.Changed("step") {
		args[core.KeyStep] = emitStep
	}
	if flags.Changed("message") {
		args[core.KeyMessage] = emitMessage
	}
	if flags.Changed("timestamp") {
		args[core.KeyTimestamp] = emitTimestamp
	}
	if len(emitMeta) > 0 {
		meta := make(map[string]any, len(emitMeta))
		for _, kv := range emitMeta {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid meta %q: want key=value", kv)
			}
			meta[k] = parseMetaValue(v)
		}
		args[core.KeyMeta] = meta
	}
	return args, nil
}

func parseMetaValue(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}
