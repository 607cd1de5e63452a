package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fioncat/csync/internal/cli/health"
	"github.com/fioncat/csync/internal/cli/output"
	"github.com/fioncat/csync/internal/cli/timeutil"
)

var (
	statusOutput  string
	statusPidFile string
	statusAPIPort int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the csync server.

This command checks the server health by calling the health endpoint
and displays the running process and server version.

Examples:
  # Check status (uses default settings)
  csyncd status

  # Check status with custom API port
  csyncd status --api-port 8703

  # Output as JSON
  csyncd status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/csync/csyncd.pid)")
	statusCmd.Flags().IntVar(&statusAPIPort, "api-port", 7703, "API server port")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// ServerStatus represents the server status information.
type ServerStatus struct {
	Running    bool   `json:"running" yaml:"running"`
	PID        int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Message    string `json:"message" yaml:"message"`
	Version    string `json:"version,omitempty" yaml:"version,omitempty"`
	ServerTime int64  `json:"server_time,omitempty" yaml:"server_time,omitempty"`
	Healthy    bool   `json:"healthy" yaml:"healthy"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	status := ServerStatus{
		Running: false,
		Healthy: false,
		Message: "Server is not running",
	}

	// Use default PID file if not specified
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	// Check PID file first
	pidData, err := os.ReadFile(pidPath)
	if err == nil {
		pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
		if err == nil {
			// Check if process is running
			process, err := os.FindProcess(pid)
			if err == nil {
				// On Unix, FindProcess always succeeds, we need to send signal 0 to check
				err = process.Signal(syscall.Signal(0))
				if err == nil {
					status.Running = true
					status.PID = pid
				}
			}
		}
	}

	// Check health endpoint (works for both daemon and foreground mode)
	healthURL := fmt.Sprintf("http://localhost:%d/v1/healthz", statusAPIPort)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(healthURL)
	if err == nil {
		defer func() { _ = resp.Body.Close() }()

		var healthResp health.Response
		if err := json.NewDecoder(resp.Body).Decode(&healthResp); err == nil {
			status.Running = true
			status.Healthy = healthResp.Code == http.StatusOK
			status.Version = healthResp.Data.Version
			status.ServerTime = healthResp.Data.Timestamp
			if status.Healthy {
				status.Message = "Server is running and healthy"
			} else {
				status.Message = fmt.Sprintf("Server is running but unhealthy: %s", healthResp.Message)
			}
		} else {
			status.Running = true
			status.Message = "Server is running but health response invalid"
		}
	} else if status.Running {
		// PID file says running but health check failed
		status.Message = "Server process exists but health check failed"
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, status)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, status)
	default:
		return printStatusTable(status)
	}
}

func printStatusTable(status ServerStatus) error {
	pairs := make([][2]string, 0, 4)
	if status.Running {
		state := "\033[32m● Running\033[0m"
		if !status.Healthy {
			state = "\033[33m● Running (unhealthy)\033[0m"
		}
		pairs = append(pairs, [2]string{"Status", state})
		if status.PID != 0 {
			pairs = append(pairs, [2]string{"PID", strconv.Itoa(status.PID)})
		}
		if status.Version != "" {
			pairs = append(pairs, [2]string{"Version", status.Version})
		}
		if status.ServerTime != 0 {
			pairs = append(pairs, [2]string{"Server time", timeutil.FormatUnix(status.ServerTime)})
		}
	} else {
		pairs = append(pairs, [2]string{"Status", "\033[31m○ Stopped\033[0m"})
	}

	fmt.Println()
	if err := output.SimpleTable(os.Stdout, pairs); err != nil {
		return err
	}
	fmt.Printf("\n%s\n", status.Message)
	return nil
}
