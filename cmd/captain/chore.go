package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/types"
)

var choreCmd = &cobra.Command{
	Use:   "chore SCRIPT",
	Short: "Submit a chore",
	Long: `Submit a shell script for execution on the crew.

Examples:
  # Run a script anywhere with the default single CPU
  captain chore /home/alice/crunch.sh --owner alice

  # Ask for resources and a capability tag
  captain chore /home/alice/train.sh --owner alice --cpus 4 --gpus 1 --service GPU

  # Pin to one sailor and redirect output
  captain chore /home/alice/backup.sh --owner alice --sailor bosun --out /var/log/backup.out`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		owner, _ := cmd.Flags().GetString("owner")
		service, _ := cmd.Flags().GetString("service")
		sailor, _ := cmd.Flags().GetString("sailor")
		cpus, _ := cmd.Flags().GetInt("cpus")
		gpus, _ := cmd.Flags().GetInt("gpus")
		out, _ := cmd.Flags().GetString("out")
		wd, _ := cmd.Flags().GetString("wd")

		id, err := c.SubmitChore(captain.SubmitRequest{
			Owner:  owner,
			Script: args[0],
			Configuration: types.ChoreConfig{
				Service: service,
				Sailor:  sailor,
				CPUs:    cpus,
				GPUs:    gpus,
				Out:     out,
				WD:      wd,
			},
		})
		if err != nil {
			return err
		}
		fmt.Printf("✓ Chore %d submitted\n", id)
		return nil
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel ID",
	Short: "Cancel a chore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("chore id must be a number, got %q", args[0])
		}
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		if err := c.CancelChore(id, reason); err != nil {
			return err
		}
		fmt.Printf("✓ Chore %d canceled\n", id)
		return nil
	},
}

var choresCmd = &cobra.Command{
	Use:   "chores",
	Short: "List chores",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		archived, _ := cmd.Flags().GetBool("archived")
		owner, _ := cmd.Flags().GetString("owner")
		var list []types.Chore
		switch {
		case archived:
			list, err = c.ArchivedChores()
		case owner != "":
			list, err = c.ListChoresOwned(owner)
		default:
			list, err = c.ListChores()
		}
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, list); ok {
			return err
		}
		printChoreTable(list)
		return nil
	},
}

func init() {
	choreCmd.Flags().String("owner", "", "Submitting user id (required)")
	choreCmd.Flags().String("service", "", "Required capability tag, e.g. GPU")
	choreCmd.Flags().String("sailor", "", "Run only on this sailor")
	choreCmd.Flags().Int("cpus", 1, "CPUs to reserve")
	choreCmd.Flags().Int("gpus", 0, "GPUs to reserve")
	choreCmd.Flags().String("out", "", "Output file path on the sailor")
	choreCmd.Flags().String("wd", "", "Working directory on the sailor")
	_ = choreCmd.MarkFlagRequired("owner")

	cancelCmd.Flags().String("reason", "", "Recorded cancel reason")

	choresCmd.Flags().String("owner", "", "Only this owner's chores")
	choresCmd.Flags().Bool("archived", false, "List archived chores instead of live ones")

	rootCmd.AddCommand(choreCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(choresCmd)
}

func printChoreTable(list []types.Chore) {
	if len(list) == 0 {
		fmt.Println("No chores.")
		return
	}
	fmt.Printf("%-11s %-10s %-10s %-12s %-20s %s\n",
		"ID", "OWNER", "STATUS", "SAILOR", "SUBMITTED", "SCRIPT")
	for _, chore := range list {
		fmt.Printf("%-11d %-10s %-10s %-12s %-20s %s\n",
			chore.ID, chore.Owner, chore.Status, orDash(chore.Sailor),
			time.Unix(chore.SubmitTime, 0).Format("2006-01-02 15:04:05"),
			chore.Script)
	}
}
