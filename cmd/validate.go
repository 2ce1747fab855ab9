// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the connection to the console",
		RunE:  runValidate,
	}
}

func runValidate(cmd *cobra.Command, _ []string) error {
	cfg, err := configFromFlags(cmd)
	if err != nil {
		return err
	}

	client := insightvm.NewClient(cfg, slog.Default())
	if err := client.VerifyAuthentication(cmd.Context()); err != nil {
		return &ExitError{Code: 3, Message: err.Error()}
	}

	account, err := client.GetAccount(cmd.Context())
	if err != nil {
		return &ExitError{Code: 3, Message: err.Error()}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Authenticated against %s as %s\n", account.Host, account.User)
	return nil
}
