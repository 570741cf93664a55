// Command xrootd-client is a minimal terminal front-end for Session: enough
// to connect to a server, send one request, or exercise the read-splitting
// path from a shell, without writing a Go program.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	xrootd "github.com/juztas/xrootd"
	"github.com/juztas/xrootd/internal/core/message"
	"github.com/juztas/xrootd/internal/core/stream"
	"github.com/juztas/xrootd/pkg/lib/log"
)

var (
	host       string
	port       int
	configFile string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "xrootd-client",
		Short: "Talk to an xrootd-family storage server over the connection-stream core",
	}
	root.PersistentFlags().StringVar(&host, "host", "localhost", "server host")
	root.PersistentFlags().IntVar(&port, "port", 1094, "server port")
	root.PersistentFlags().StringVar(&configFile, "config", "", "optional TOML config file")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "per-operation timeout")

	root.AddCommand(connectCmd(), sendCmd(), splitReadCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newSession() (*xrootd.Session, error) {
	cfg, err := xrootd.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	return xrootd.NewSession(host, port, xrootd.WithConfig(cfg))
}

func connectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Connect to the server and report the resulting stream state",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			if st := s.Connect(); !st.IsOK() {
				return fmt.Errorf("connect: %w", st)
			}
			deadline := time.Now().Add(timeout)
			for s.State() != stream.StateConnected && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}
			fmt.Printf("stream state: %s\n", s.State())
			return nil
		},
	}
}

func sendCmd() *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Connect, send one request, and print the response bytes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			if st := s.Connect(); !st.IsOK() {
				return fmt.Errorf("connect: %w", st)
			}
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			resp, err := s.SendRequest(ctx, message.New([]byte(payload)), timeout)
			if err != nil {
				return err
			}
			fmt.Printf("response: %q\n", resp.Bytes())
			return nil
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "raw request bytes")
	return cmd
}

func splitReadCmd() *cobra.Command {
	var offset, length int64
	cmd := &cobra.Command{
		Use:   "split-read",
		Short: "Print how a read of --length bytes at --offset would be split across sub-streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession()
			if err != nil {
				return err
			}
			defer s.Close()
			if st := s.Connect(); !st.IsOK() {
				return fmt.Errorf("connect: %w", st)
			}
			if err := s.EstablishParallelStreams(); err != nil {
				log.Warn("could not establish every requested sub-stream", "err", err)
			}
			for _, chunk := range s.SplitReadRequest(offset, length) {
				fmt.Printf("stream %d: offset=%d length=%d\n", chunk.StreamNum, chunk.Offset, chunk.Length)
			}
			return nil
		},
	}
	cmd.Flags().Int64Var(&offset, "offset", 0, "read offset")
	cmd.Flags().Int64Var(&length, "length", 0, "read length")
	return cmd
}
