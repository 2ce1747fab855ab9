// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

func createAccountEntity(account *insightvm.Account) graph.Entity {
	var webLink string
	if len(account.Links) > 0 {
		webLink = account.Links[0].Href
	}
	return graph.Entity{
		Key:   graph.AccountKey(account.User),
		Type:  graph.TypeAccount,
		Class: graph.ClassAccount,
		Properties: map[string]any{
			"name":            account.User,
			"host":            account.Host,
			"serial":          account.Serial,
			"operatingSystem": account.OperatingSystem,
			"superuser":       account.Superuser,
			"webLink":         webLink,
		},
	}
}

// fetchAccountDetails materializes the console itself as the Account entity
// and shares it with the dependent steps via the job-state data map.
func fetchAccountDetails(ctx context.Context, ec *ExecutionContext) error {
	account, err := ec.Client.GetAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "fetching administration info")
	}

	accountEntity := createAccountEntity(account)
	if err := ec.JobState.AddEntity(accountEntity); err != nil {
		return err
	}
	ec.JobState.SetData(accountEntityDataKey, accountEntity)
	return nil
}

// accountEntity returns the Account entity stored by fetchAccountDetails.
// Its absence is a pipeline ordering bug, not a recoverable condition.
func accountEntity(ec *ExecutionContext) (graph.Entity, error) {
	v, ok := ec.JobState.GetData(accountEntityDataKey)
	if !ok {
		return graph.Entity{}, errors.New("account entity not found in job state: fetch-account must run first")
	}
	e, ok := v.(graph.Entity)
	if !ok {
		return graph.Entity{}, errors.Errorf("unexpected account entity data type %T", v)
	}
	return e, nil
}
