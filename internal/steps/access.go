// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package steps

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bonial-oss/insightvm-graph-connector/internal/graph"
	"github.com/bonial-oss/insightvm-graph-connector/internal/insightvm"
)

func createUserEntity(user insightvm.User) graph.Entity {
	return graph.Entity{
		Key:   graph.UserKey(user.ID),
		Type:  graph.TypeUser,
		Class: graph.ClassUser,
		Properties: map[string]any{
			"id":       user.ID,
			"name":     user.Name,
			"username": user.Login,
			"email":    user.Email,
			"active":   user.Enabled,
			"locked":   user.Locked,
		},
	}
}

// fetchUsers ingests console users and links them to the account.
func fetchUsers(ctx context.Context, ec *ExecutionContext) error {
	account, err := accountEntity(ec)
	if err != nil {
		return err
	}

	err = ec.Client.IterateUsers(ctx, func(user insightvm.User) error {
		userEntity := createUserEntity(user)
		if err := ec.JobState.AddEntity(userEntity); err != nil {
			return err
		}
		return ec.JobState.AddRelationship(graph.NewRelationship(graph.RelHas, &account, &userEntity))
	})
	return errors.Wrap(err, "iterating users")
}
