package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phoenixlabs/phoenix/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the phoenix service is running",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	pid, err := readPIDFile()
	if err != nil {
		fmt.Println("Phoenix is not running")
		return nil
	}

	if !processAlive(pid) {
		fmt.Printf("Phoenix is not running (stale PID file, pid %d)\n", pid)
		return nil
	}

	fmt.Printf("Phoenix is running (pid %d)\n", pid)
	return nil
}

// pidFilePath resolves the PID file inside the configured data directory
func pidFilePath() (string, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return "", fmt.Errorf("failed to load configuration: %w", err)
	}
	return filepath.Join(cfg.DataDir, "phoenix.pid"), nil
}

func readPIDFile() (int, error) {
	path, err := pidFilePath()
	if err != nil {
		return 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file: %w", err)
	}
	return pid, nil
}

// processAlive checks a PID with signal 0
func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
