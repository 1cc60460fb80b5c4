package agentcli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lxzan/gws"
	"github.com/spf13/cobra"

	"github.com/openmotion/vrio/pkg/agent"
	"github.com/openmotion/vrio/vrinput/vibedsl"
)

func Main(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	dir, err := os.UserConfigDir()
	if err != nil {
		return err
	}
	cmd := NewRootCmd(filepath.Join(dir, "vrio"))
	cmd.SetArgs(args)
	cmd.SetIn(in)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	return cmd.ExecuteContext(ctx)
}

type agentProvider func() *agent.Agent

func NewRootCmd(configDir string) *cobra.Command {
	cfg := agent.Config{
		DataDir:    filepath.Join(configDir, "data"),
		CatalogDoc: filepath.Join(configDir, "catalog.md"),
		Settings:   filepath.Join(configDir, "settings.yaml"),
		HubAddr:    "127.0.0.1:8675",
		Slots:      4,
	}
	agentCmd := &cobra.Command{
		Use:   "vrio-agent",
		Short: "OpenMotion input agent",
		Long:  `The OpenMotion input agent polls VR controllers and gamepads and serves their state over WebSocket.`,
	}
	var a *agent.Agent
	agentProvider := func() *agent.Agent {
		return a
	}
	agentCmd.PersistentFlags().StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "data directory")
	agentCmd.PersistentFlags().StringVar(&cfg.CatalogDoc, "catalog-doc", cfg.CatalogDoc, "device alias document")
	agentCmd.PersistentFlags().StringVar(&cfg.Settings, "settings", cfg.Settings, "settings file with tick interval and haptic presets")
	agentCmd.PersistentFlags().StringVar(&cfg.Replay, "replay", cfg.Replay, "play back a recording instead of polling hardware")
	agentCmd.PersistentFlags().StringVar(&cfg.HubAddr, "hub-addr", cfg.HubAddr, "WebSocket listen address")
	agentCmd.PersistentFlags().IntVar(&cfg.Slots, "slots", cfg.Slots, "number of controller slots")
	agentCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = agent.NewAgent(cfg)
		return err
	}
	agentCmd.AddCommand(NewRun(agentProvider))
	agentCmd.AddCommand(NewListDevices(agentProvider))
	agentCmd.AddCommand(NewVibe(&cfg.HubAddr))
	return agentCmd
}

func NewRun(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the agent",
		Long:  `Run the polling loop, track connected devices and serve the event stream.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return agent().Run(cmd.Context())
		},
	}
}

func NewListDevices(agent agentProvider) *cobra.Command {
	return &cobra.Command{
		Use:   "list-devices",
		Short: "List tracked devices",
		Long:  `List every device the agent has seen, with style and last seen time.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer agent().Close()
			devices, err := agent().Track().ListDevices()
			if err != nil {
				return err
			}
			jsonB, err := json.MarshalIndent(devices, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonB))
			return nil
		},
	}
}

// NewVibe sends a vibration pattern to a running agent over its hub.
func NewVibe(hubAddr *string) *cobra.Command {
	var channel, preset string
	cmd := &cobra.Command{
		Use:   "vibe <slot> [pattern]",
		Short: "Vibrate a controller",
		Long:  `Send a vibration pattern to a controller slot of a running agent, e.g. "set(0.8); wait(200ms); set(0)". With --preset, a configured pattern is played instead.`,
		// Talks to a running agent instead of constructing one.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: vibe <slot> [pattern]")
			}
			slot, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid slot %q: %w", args[0], err)
			}
			var pattern string
			switch {
			case preset != "" && len(args) > 1:
				return fmt.Errorf("pass either a pattern or --preset, not both")
			case preset == "" && len(args) < 2:
				return fmt.Errorf("usage: vibe <slot> <pattern>")
			case preset == "":
				pattern = args[1]
				if _, err := vibedsl.Parse(pattern); err != nil {
					return fmt.Errorf("invalid pattern: %w", err)
				}
			}
			return sendVibe(cmd, *hubAddr, slot, channel, pattern, preset)
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "vibration channel")
	cmd.Flags().StringVar(&preset, "preset", "", "configured preset name")
	return cmd
}

type vibeReply struct {
	Type     string `json:"type"`
	Slot     int    `json:"slot"`
	Duration int64  `json:"durationMs"`
	Error    string `json:"error"`
}

type vibeClient struct {
	gws.BuiltinEventHandler
	replies chan vibeReply
}

func (c *vibeClient) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	var reply vibeReply
	if err := json.Unmarshal(message.Bytes(), &reply); err != nil {
		return
	}
	select {
	case c.replies <- reply:
	default:
	}
}

func sendVibe(cmd *cobra.Command, hubAddr string, slot int, channel, pattern, preset string) error {
	handler := &vibeClient{replies: make(chan vibeReply, 4)}
	socket, _, err := gws.NewClient(handler, &gws.ClientOption{
		Addr: fmt.Sprintf("ws://%s/ws", hubAddr),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to agent at %s: %w", hubAddr, err)
	}
	defer socket.WriteClose(1000, nil)
	go socket.ReadLoop()

	request, err := json.Marshal(map[string]any{
		"type":    "vibe",
		"slot":    slot,
		"channel": channel,
		"pattern": pattern,
		"preset":  preset,
	})
	if err != nil {
		return err
	}
	if err := socket.WriteMessage(gws.OpcodeText, request); err != nil {
		return fmt.Errorf("failed to send vibration request: %w", err)
	}

	timeout := time.After(5 * time.Second)
	for {
		select {
		case <-timeout:
			return fmt.Errorf("timed out waiting for the agent")
		case reply := <-handler.replies:
			switch reply.Type {
			case "vibe_accepted":
				fmt.Fprintf(cmd.OutOrStdout(), "vibrating slot %d for %s\n",
					reply.Slot, time.Duration(reply.Duration)*time.Millisecond)
				return nil
			case "error":
				return fmt.Errorf("%s", strings.TrimSpace(reply.Error))
			}
		}
	}
}
