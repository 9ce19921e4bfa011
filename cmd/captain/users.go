package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarterdeck/captain/pkg/captain"
	"github.com/quarterdeck/captain/pkg/types"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List user records",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		list, err := c.ListUsers()
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, list); ok {
			return err
		}
		printUserTable(list)
		return nil
	},
}

var userSetCmd = &cobra.Command{
	Use:   "user-set UID",
	Short: "Create or update a user record",
	Long: `Create or update a user record. Only the flags given change; other
fields keep their stored values. A chores limit of 0 means unlimited,
an empty time limit means unlimited.

Examples:
  captain user-set alice --name "Alice" --chores-limit 4
  captain user-set alice --time-limit 1-00:00:00`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		upd := captain.UserUpdate{UID: args[0]}
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			upd.Name = &name
		}
		if cmd.Flags().Changed("chores-limit") {
			limit, _ := cmd.Flags().GetInt("chores-limit")
			upd.ChoresLimit = &limit
		}
		if cmd.Flags().Changed("time-limit") {
			timeLimit, _ := cmd.Flags().GetString("time-limit")
			upd.TimeLimit = &timeLimit
		}
		if cmd.Flags().Changed("notes") {
			notes, _ := cmd.Flags().GetString("notes")
			upd.Notes = &notes
		}
		if err := c.SetUser(upd); err != nil {
			return err
		}
		fmt.Printf("✓ User %s updated\n", args[0])
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login UID",
	Short: "Obtain a session token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(cmd)
		if err != nil {
			return err
		}
		token, err := c.Login(args[0])
		if err != nil {
			return err
		}
		if ok, err := printJSON(cmd, token); ok {
			return err
		}
		fmt.Printf("Token:   %s\n", token.Token)
		fmt.Printf("Expires: %s\n", token.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	userSetCmd.Flags().String("name", "", "Display name")
	userSetCmd.Flags().Int("chores-limit", 0, "Max concurrent active chores, 0 = unlimited")
	userSetCmd.Flags().String("time-limit", "", "Total runtime budget, DD-hh:mm:ss")
	userSetCmd.Flags().String("notes", "", "Free-form notes")

	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(userSetCmd)
	rootCmd.AddCommand(loginCmd)
}

func printUserTable(list []types.User) {
	if len(list) == 0 {
		fmt.Println("No users.")
		return
	}
	fmt.Printf("%-12s %-20s %-8s %-12s %s\n",
		"UID", "NAME", "LIMIT", "TIME LIMIT", "NOTES")
	for _, u := range list {
		limit := "-"
		if u.ChoresLimit > 0 {
			limit = fmt.Sprintf("%d", u.ChoresLimit)
		}
		fmt.Printf("%-12s %-20s %-8s %-12s %s\n",
			u.UID, orDash(u.Name), limit, orDash(u.TimeLimit), u.Notes)
	}
}
