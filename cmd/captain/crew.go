package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/captain/pkg/types"
)

var crewCmd = &cobra.Command{
	Use:   "crew",
	Short: "List the crew",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		fleet, err := c.ListCrew()
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, fleet); ok {
			return err
		}
		printCrewTable(fleet)
		return nil
	},
}

var preregCmd = &cobra.Command{
	Use:   "prereg NAME",
	Short: "Preregister a sailor",
	Long: `Preregister a sailor so the captain accepts its heartbeats and can
reach it for direct assignment before the first report arrives.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		ip, _ := cmd.Flags().GetString("ip")
		port, _ := cmd.Flags().GetInt("port")
		services, _ := cmd.Flags().GetStringSlice("services")
		maxTime, _ := cmd.Flags().GetString("max-time")

		if err := c.Prereg(args[0], ip, port, services, maxTime); err != nil {
			return err
		}
		fmt.Printf("✓ Sailor %s preregistered\n", args[0])
		return nil
	},
}

var rmsailorCmd = &cobra.Command{
	Use:   "rmsailor NAME",
	Short: "Remove a sailor from the crew",
	Long: `Remove a sailor. Chores assigned or running on it are failed with
reason "sailor lost".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		if err := c.RemoveSailor(args[0]); err != nil {
			return err
		}
		fmt.Printf("✓ Sailor %s removed\n", args[0])
		return nil
	},
}

func init() {
	preregCmd.Flags().String("ip", "", "Sailor address (required)")
	preregCmd.Flags().Int("port", 0, "Sailor daemon port (default 8001)")
	preregCmd.Flags().StringSlice("services", nil, "Capability tags, e.g. GPU")
	preregCmd.Flags().String("max-time", "", "Per-chore wall clock limit, DD-hh:mm:ss")
	_ = preregCmd.MarkFlagRequired("ip")

	rootCmd.AddCommand(crewCmd)
	rootCmd.AddCommand(preregCmd)
	rootCmd.AddCommand(rmsailorCmd)
}

func printCrewTable(fleet []types.Sailor) {
	if len(fleet) == 0 {
		fmt.Println("No sailors.")
		return
	}
	fmt.Printf("%-14s %-16s %-6s %-9s %-9s %-8s %s\n",
		"NAME", "IP", "PORT", "CPUS", "GPUS", "STATUS", "LAST SEEN")
	for _, s := range fleet {
		fmt.Printf("%-14s %-16s %-6d %-9s %-9s %-8s %s\n",
			s.Name, s.IP, s.Port,
			fmt.Sprintf("%d/%d", s.UsedCPUs, s.CPUs),
			fmt.Sprintf("%d/%d", s.UsedGPUs, s.GPUs.Int()),
			s.Status, lastSeen(s.LastSeen))
	}
}

func lastSeen(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return fmt.Sprintf("%s ago", time.Since(time.Unix(ts, 0)).Round(time.Second))
}
