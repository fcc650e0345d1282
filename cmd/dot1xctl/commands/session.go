package commands

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

// sessionView mirrors cmd/dot1x-authenticatord's JSON introspection shape.
type sessionView struct {
	Supplicant string `json:"supplicant"`
	Port       string `json:"port"`
	State      string `json:"state"`
}

func sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect 802.1X supplicant sessions",
	}

	cmd.AddCommand(sessionListCmd())

	return cmd
}

// --- session list ---

func sessionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all live supplicant sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			sessions, err := fetchSessions()
			if err != nil {
				return fmt.Errorf("fetch sessions: %w", err)
			}

			out, err := formatSessions(sessions, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)

			return nil
		},
	}
}

// fetchSessions retrieves the current session snapshot from the daemon's
// /sessions introspection endpoint.
func fetchSessions() ([]sessionView, error) {
	resp, err := httpClient.Get("http://" + serverAddr + "/sessions")
	if err != nil {
		return nil, fmt.Errorf("get /sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get /sessions: unexpected status %s", resp.Status)
	}

	var sessions []sessionView
	if err := json.NewDecoder(resp.Body).Decode(&sessions); err != nil {
		return nil, fmt.Errorf("decode sessions: %w", err)
	}

	return sessions, nil
}
