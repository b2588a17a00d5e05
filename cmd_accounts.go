package main

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/yarkm13/fetchopusd/internal/job"
)

var (
	newAccount      job.Account
	newProtocol     string
	accountKeyFile  string
	accountAskCreds bool

	accountsCmd = &cobra.Command{
		Use:   "accounts",
		Short: "Manage endpoint accounts",
	}

	accountsAddCmd = &cobra.Command{
		Use:   "add",
		Short: "Register a local, FTP or SSH account",
		Args:  cobra.NoArgs,
		RunE:  addAccount,
	}

	accountsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered accounts",
		Args:  cobra.NoArgs,
		RunE:  listAccounts,
	}
)

func init() {
	flags := accountsAddCmd.Flags()
	flags.StringVar(&newAccount.Name, "name", "", "account name")
	flags.StringVar(&newProtocol, "protocol", "", "LOCAL, FTP or SSH")
	flags.StringVar(&newAccount.Host, "host", "", "server host name")
	flags.IntVar(&newAccount.Port, "port", 0, "server port (default 21 for FTP, 22 for SSH)")
	flags.StringVar(&newAccount.User, "user", "", "login")
	flags.StringVar(&newAccount.DefaultPath, "default-path", "", "path listed when browsing without a path")
	flags.StringVar(&accountKeyFile, "key-file", "", "SSH private key used instead of a password")
	flags.BoolVar(&accountAskCreds, "ask-password", false, "prompt for the password")
	cobra.CheckErr(accountsAddCmd.MarkFlagRequired("protocol"))

	accountsCmd.AddCommand(accountsAddCmd, accountsListCmd)
	rootCmd.AddCommand(accountsCmd)
}

func addAccount(cmd *cobra.Command, _ []string) error {
	newAccount.Protocol = job.Protocol(strings.ToUpper(newProtocol))
	switch newAccount.Protocol {
	case job.ProtocolLocal:
	case job.ProtocolFTP, job.ProtocolSSH:
		if newAccount.Host == "" {
			return errors.Errorf("--host is required for %s accounts", newAccount.Protocol)
		}
	default:
		return errors.Errorf("unknown protocol %q", newProtocol)
	}

	switch {
	case accountKeyFile != "":
		key, err := os.ReadFile(accountKeyFile)
		if err != nil {
			return errors.Wrap(err, "failed to read key file")
		}
		newAccount.Credential = base64.StdEncoding.EncodeToString(key)
		secureWipe(key)
	case accountAskCreds:
		password, err := askPassword("Enter password: ")
		if err != nil {
			return err
		}
		newAccount.Credential = string(password)
		secureWipe(password)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.store.SaveAccount(cmd.Context(), &newAccount); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created account %d: %s\n", newAccount.ID, newAccount.String())
	return nil
}

func listAccounts(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	accounts, err := a.store.ListAccounts(cmd.Context())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tENDPOINT\tDEFAULT PATH")
	for _, acc := range accounts {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", acc.ID, acc.Name, acc.String(), acc.DefaultPath)
	}
	return w.Flush()
}
