// Command lanterm hosts or joins a terminal application over a direct peer connection.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/gordian-engine/lanterm"
	"github.com/gordian-engine/lanterm/internal/demoapps"
	"github.com/gordian-engine/lanterm/lapp"
	"github.com/gordian-engine/lanterm/lcert"
	"github.com/gordian-engine/lanterm/lchan"
	"github.com/gordian-engine/lanterm/lcodec"
	"github.com/gordian-engine/lanterm/lengine"
	"github.com/gordian-engine/lanterm/lsession"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(demoapps.NewRegistry()).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "lanterm: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(reg *lapp.Registry) *cobra.Command {
	root := &cobra.Command{
		Use:           "lanterm",
		Short:         "Play terminal applications with a peer over QUIC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to a TOML config file")

	host := &cobra.Command{
		Use:   "host",
		Short: "Listen for peers and host an application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			return runHost(cmd.Context(), cfg, reg, os.Stdin, cmd.OutOrStdout())
		},
	}
	addSessionFlags(host)

	join := &cobra.Command{
		Use:   "join",
		Short: "Connect to a host and run whichever application it selects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Peer == "" {
				return errors.New("join requires a host address (--peer or peer in the config file)")
			}
			return runJoin(cmd.Context(), cfg, reg, os.Stdin, cmd.OutOrStdout())
		},
	}
	addSessionFlags(join)
	join.Flags().String("peer", "", "host address to join")
	join.Flags().String("peer-id", "", "hex peer ID the host must present")

	list := &cobra.Command{
		Use:   "list",
		Short: "List available applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return listApps(cmd.OutOrStdout(), reg)
		},
	}

	root.AddCommand(host, join, list)
	return root
}

func addSessionFlags(cmd *cobra.Command) {
	d := defaultCLIConfig()
	f := cmd.Flags()
	f.String("listen", "", "UDP address to bind")
	f.String("app", "", "application ID (host: required; join: reject other applications)")
	f.String("log-level", d.LogLevel.String(), "log level (debug, info, warn, error)")
	f.Duration("cadence", d.Cadence, "engine wake interval")
	f.Duration("resync-interval", d.ResyncInterval, "longest gap between host snapshots")
	f.Uint32("max-frame-size", 0, "largest reliable frame in bytes (0 for the default)")
	f.String("codec", d.Codec, "wire codec (json or snappy+json); must match the peer")
}

func resolveConfig(cmd *cobra.Command) (cliConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(path)
	if err != nil {
		return cliConfig{}, err
	}
	if err := applyFlags(cmd, &cfg); err != nil {
		return cliConfig{}, err
	}
	return cfg, nil
}

func listApps(w io.Writer, reg *lapp.Registry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPLAYERS\tDESCRIPTION")
	for _, info := range reg.List() {
		players := fmt.Sprintf("%d-%d", info.MinPlayers, info.MaxPlayers)
		if info.MinPlayers == info.MaxPlayers {
			players = fmt.Sprint(info.MinPlayers)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.ID, info.Name, players, info.Description)
	}
	return tw.Flush()
}

func newLogger(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// node is a running lanterm.Node with its socket.
type node struct {
	*lanterm.Node
	cancel context.CancelFunc
	udp    *net.UDPConn
}

func startNode(ctx context.Context, log *slog.Logger, cfg cliConfig, listen string) (*node, error) {
	ua, err := net.ResolveUDPAddr("udp", listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address %q: %w", listen, err)
	}
	uc, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %q: %w", listen, err)
	}

	id, err := lcert.GenerateIdentity(lcert.IdentityConfig{})
	if err != nil {
		_ = uc.Close()
		return nil, err
	}

	nodeCtx, cancel := context.WithCancel(ctx)
	n, err := lanterm.NewNode(nodeCtx, log, lanterm.NodeConfig{
		UDPConn:  uc,
		Identity: id,
		Session: lsession.Config{
			Channel: lchan.Config{MaxFrameSize: cfg.MaxFrameSize},
		},
	})
	if err != nil {
		cancel()
		_ = uc.Close()
		return nil, err
	}
	return &node{Node: n, cancel: cancel, udp: uc}, nil
}

func (n *node) stop() {
	n.cancel()
	n.Wait()
	_ = n.udp.Close()
}

func runConfig(cfg cliConfig, local lcert.PeerID, lines <-chan string, out io.Writer) lapp.RunConfig {
	// Already validated.
	codec, _ := lcodec.ByName(cfg.Codec)
	if sc, ok := codec.(lcodec.Snappy); ok {
		sc.MaxDecodedLen = cfg.MaxFrameSize
		codec = sc
	}
	return lapp.RunConfig{
		Local:          local,
		Lines:          lines,
		Output:         out,
		Codec:          codec,
		Cadence:        cfg.Cadence,
		ResyncInterval: cfg.ResyncInterval,
	}
}

func runHost(ctx context.Context, cfg cliConfig, reg *lapp.Registry, in io.Reader, out io.Writer) error {
	entry, ok := reg.Lookup(cfg.App)
	if !ok {
		return fmt.Errorf("unknown application %q (see lanterm list)", cfg.App)
	}

	log := newLogger(cfg.LogLevel)
	n, err := startNode(ctx, log, cfg, cfg.listenAddr(defaultHostListen))
	if err != nil {
		return err
	}
	defer n.stop()

	fmt.Fprintf(out, "Hosting on %s\nPeer ID: %s\n", n.Addr(), n.ID())

	joins := make(chan *lsession.Negotiating)
	n.AcceptLoop(ctx, joins)

	lines := readLines(in)
	var sessions []*lsession.Negotiating
	for {
		fmt.Fprintf(out, "Starting %s; type %s to end, %s to resend the start signal\n",
			entry.Info().Name, lapp.QuitCommand, lapp.ResendStartCommand)

		res, err := entry.RunHost(ctx, log, runConfig(cfg, n.ID(), lines, out), sessions, joins)
		sessions = res.Sessions
		if err != nil || res.Reason != lengine.ReasonQuit {
			closeAll(sessions, "host stopped")
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		next, ok := promptNext(ctx, lines, out, reg)
		if !ok {
			closeAll(sessions, "host quit")
			return nil
		}
		entry = next
	}
}

// promptNext asks the operator which application to host next.
func promptNext(ctx context.Context, lines <-chan string, out io.Writer, reg *lapp.Registry) (*lapp.Entry, bool) {
	for {
		fmt.Fprintln(out, "Next application ID (blank to exit):")
		var line string
		select {
		case <-ctx.Done():
			return nil, false
		case l, ok := <-lines:
			if !ok {
				return nil, false
			}
			line = strings.TrimSpace(l)
		}
		if line == "" || line == lapp.QuitCommand {
			return nil, false
		}
		if e, ok := reg.Lookup(line); ok {
			return e, true
		}
		fmt.Fprintf(out, "Unknown application %q\n", line)
	}
}

func runJoin(ctx context.Context, cfg cliConfig, reg *lapp.Registry, in io.Reader, out io.Writer) error {
	log := newLogger(cfg.LogLevel)
	n, err := startNode(ctx, log, cfg, cfg.listenAddr(defaultJoinListen))
	if err != nil {
		return err
	}
	defer n.stop()

	s, err := n.Dial(ctx, cfg.Peer, cfg.PeerID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Connected to %s\n", s.Remote())

	lines := readLines(in)
	for {
		fmt.Fprintln(out, "Waiting for host to choose an application")
		selector, err := s.ClientHandshake(ctx, cfg.App)
		if err != nil {
			_ = s.Close("handshake failed")
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("handshake with host failed: %w", err)
		}

		entry, ok := reg.Lookup(selector)
		if !ok {
			_ = s.Close("unknown application")
			return fmt.Errorf("host selected unknown application %q", selector)
		}
		fmt.Fprintf(out, "Host started %s\n", entry.Info().Name)

		res, err := entry.RunClient(ctx, log, runConfig(cfg, n.ID(), lines, out), s)
		if err != nil {
			closeAll(res.Sessions, "client stopped")
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if res.Reason != lengine.ReasonRemoteEnded || len(res.Sessions) == 0 {
			closeAll(res.Sessions, "client quit")
			return nil
		}

		fmt.Fprintln(out, "Host ended the application")
		s = res.Sessions[0]
	}
}

func closeAll(sessions []*lsession.Negotiating, reason string) {
	for _, s := range sessions {
		_ = s.Close(reason)
	}
}

// readLines delivers lines from r until EOF, then closes the channel.
// The reader goroutine is not stoppable; it exits with the process.
func readLines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
