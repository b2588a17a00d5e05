package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yarkm13/fetchopusd/internal/browse"
)

var (
	browseAccountID uint
	browseDirsOnly  bool
	browseAskPass   bool

	browseCmd = &cobra.Command{
		Use:   "browse [PATH]",
		Short: "List a directory of an account",
		Args:  cobra.MaximumNArgs(1),
		RunE:  browsePath,
	}
)

func init() {
	browseCmd.Flags().UintVar(&browseAccountID, "account", 0, "account id")
	browseCmd.Flags().BoolVar(&browseDirsOnly, "dirs", false, "list directories only")
	browseCmd.Flags().BoolVar(&browseAskPass, "ask-password", false, "prompt for the password instead of using the stored one")
	cobra.CheckErr(browseCmd.MarkFlagRequired("account"))
	rootCmd.AddCommand(browseCmd)
}

func browsePath(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	account, err := a.store.GetAccountByID(cmd.Context(), browseAccountID)
	if err != nil {
		return err
	}
	if browseAskPass {
		password, err := askPassword("Enter password: ")
		if err != nil {
			return err
		}
		account.Credential = string(password)
		secureWipe(password)
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	cache := browse.NewCache(a.drivers, cfg.Browse.MaxIdle)
	defer cache.Close()

	entries, err := cache.Browse(cmd.Context(), account, path, browseDirsOnly)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, e := range entries {
		kind := "-"
		if e.IsDir {
			kind = "d"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", kind, e.Size, e.ModTime.Format("2006-01-02 15:04"), e.Name)
	}
	return w.Flush()
}
