package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

var (
	addEntropyFile string
	addEntropyBits uint32
)

func AddEntropyCmd(root *cobra.Command) *cobra.Command {
	c := &cobra.Command{
		Use:   "add-entropy",
		Short: "Inject externally-sourced entropy into the auxiliary pool",
		Long: `add-entropy reads raw bytes (from --file, or stdin if omitted) and
hands them to the running daemon's auxiliary source. --bits asserts how
much entropy the operator believes that data carries; like the manager's
own bootstrap seed, this assertion is never independently verified.`,
		RunE: runAddEntropy,
	}
	c.Flags().StringVar(&addEntropyFile, "file", "", "file to read entropy bytes from (default: stdin)")
	c.Flags().Uint32Var(&addEntropyBits, "bits", 0, "asserted entropy content of the supplied bytes, in bits")
	root.AddCommand(c)
	return c
}

var _ = AddEntropyCmd(rootCmd)

func runAddEntropy(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunningConfig()
	if err != nil {
		return err
	}

	var data []byte
	if addEntropyFile != "" {
		data, err = os.ReadFile(addEntropyFile)
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("read entropy data: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("no entropy data supplied")
	}

	body, err := json.Marshal(struct {
		DataHex string `json:"data_hex"`
		Bits    uint32 `json:"bits"`
	}{DataHex: hex.EncodeToString(data), Bits: addEntropyBits})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	client := controlClient(cfg.IPC.SocketPath)
	resp, err := client.Post("http://control/control/add-entropy", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dial control socket: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("add-entropy failed: %s", resp.Status)
	}
	fmt.Printf("injected %d bytes, credited %d bits\n", len(data), addEntropyBits)
	return nil
}
