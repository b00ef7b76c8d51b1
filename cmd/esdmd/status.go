package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"esdmd/internal/config"
	"esdmd/internal/daemon"
)

func StatusCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running and its seed level",
		RunE:  runStatus,
	}
	root.AddCommand(c)
	return c
}

var _ = StatusCmd(rootCmd)

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunningConfig()
	if err != nil {
		return err
	}

	dm := daemon.NewManager(cfg.Daemon.PIDFile, cfg.Daemon.PIDFile+".state.json")
	dstatus, err := dm.Status()
	if err != nil {
		return err
	}
	if !dstatus.Running {
		fmt.Println("esdmd is not running")
		return nil
	}
	fmt.Printf("esdmd is running (pid %d, uptime %s, version %s)\n", dstatus.PID, dstatus.Uptime.Round(time.Second), dstatus.Version)

	client := controlClient(cfg.IPC.SocketPath)
	resp, err := client.Get("http://control/control/status")
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer resp.Body.Close()

	var st struct {
		Operational bool   `json:"operational"`
		FullySeeded bool   `json:"fully_seeded"`
		MinSeeded   bool   `json:"min_seeded"`
		AllNodeSeed bool   `json:"all_nodes_seeded"`
		AvailBits   uint32 `json:"available_entropy_bits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	fmt.Printf("operational=%v fully_seeded=%v min_seeded=%v all_nodes_seeded=%v available_entropy_bits=%d\n",
		st.Operational, st.FullySeeded, st.MinSeeded, st.AllNodeSeed, st.AvailBits)
	return nil
}

// loadRunningConfig reads the config file without re-validating it
// against the full schema; the CLI only needs the daemon/IPC paths.
func loadRunningConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	return config.Load(path)
}

// controlClient builds an http.Client that dials the daemon's unix
// control socket regardless of the URL host given to it.
func controlClient(socketPath string) *http.Client {
	return &http.Client{
		Timeout: 5 * time.Second,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
	}
}
