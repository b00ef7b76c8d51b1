package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func ResetStateCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "reset-state",
		Short: "Force the running daemon back to the uninitialized seed level",
		RunE:  runResetState,
	}
	root.AddCommand(c)
	return c
}

var _ = ResetStateCmd(rootCmd)

func runResetState(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunningConfig()
	if err != nil {
		return err
	}

	client := controlClient(cfg.IPC.SocketPath)
	resp, err := client.Post("http://control/control/reset-state", "application/json", nil)
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("reset-state failed: %s", resp.Status)
	}
	fmt.Println("state reset")
	return nil
}
