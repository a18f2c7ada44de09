package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running phoenix service",
	RunE:  runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	pid, err := readPIDFile()
	if err != nil {
		return fmt.Errorf("phoenix does not appear to be running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to signal process %d: %w", pid, err)
	}

	// Give the service a moment to shut down and confirm
	for i := 0; i < 10; i++ {
		time.Sleep(200 * time.Millisecond)
		if !processAlive(pid) {
			fmt.Printf("Phoenix stopped (pid %d)\n", pid)
			return nil
		}
	}

	fmt.Printf("Stop signal sent to pid %d, shutdown still in progress\n", pid)
	return nil
}
