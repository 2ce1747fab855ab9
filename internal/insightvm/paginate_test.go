// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package insightvm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedHandler serves totalPages pages of perPage users each.
func pagedHandler(t *testing.T, totalPages, perPage int, requests *int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		*requests++
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))

		users := make([]User, perPage)
		for i := range users {
			users[i] = User{ID: page*perPage + i, Login: fmt.Sprintf("user-%d-%d", page, i)}
		}
		resp := map[string]any{
			"resources": users,
			"page": Page{
				Number:         page,
				Size:           perPage,
				TotalResources: totalPages * perPage,
				TotalPages:     totalPages,
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}
}

func TestPaginate_WalksAllPages(t *testing.T) {
	var requests int
	server := httptest.NewServer(pagedHandler(t, 3, 2, &requests))
	defer server.Close()

	c := newTestClient(t, server, nil)

	var seen []int
	err := paginate(context.Background(), c, "users", 2, func(users []User) (PageAction, error) {
		for _, u := range users {
			seen = append(seen, u.ID)
		}
		return ContinuePaging, nil
	})
	require.NoError(t, err)

	assert.Equal(t, 3, requests, "totalPages=3 must issue exactly 3 page requests")
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, seen)
}

func TestPaginate_StopPaging(t *testing.T) {
	var requests int
	server := httptest.NewServer(pagedHandler(t, 5, 2, &requests))
	defer server.Close()

	c := newTestClient(t, server, nil)

	err := paginate(context.Background(), c, "users", 2, func([]User) (PageAction, error) {
		return StopPaging, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
}

func TestPaginate_NotFoundIsEmptyStream(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	var pages int
	err := paginate(context.Background(), c, "assets/99/vulnerabilities", 10, func([]AssetVulnerability) (PageAction, error) {
		pages++
		return ContinuePaging, nil
	})
	require.NoError(t, err, "404 on a sub-resource is not an error")
	assert.Equal(t, 1, requests)
	assert.Zero(t, pages, "no items may reach the handler")
}

func TestPaginate_MissingPageEnvelopeTerminates(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests++
		fmt.Fprint(w, `{"resources": [{"id": 1, "login": "solo"}]}`)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)

	var seen int
	err := paginate(context.Background(), c, "users", 10, func(users []User) (PageAction, error) {
		seen += len(users)
		return ContinuePaging, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, requests)
	assert.Equal(t, 1, seen)
}

func TestPaginate_IterateeErrorAborts(t *testing.T) {
	var requests int
	server := httptest.NewServer(pagedHandler(t, 3, 2, &requests))
	defer server.Close()

	c := newTestClient(t, server, nil)

	err := paginate(context.Background(), c, "users", 2, func([]User) (PageAction, error) {
		return ContinuePaging, fmt.Errorf("boom")
	})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 1, requests)
}

func TestPaginate_ContextCancelStopsRequests(t *testing.T) {
	var requests int
	server := httptest.NewServer(pagedHandler(t, 10, 1, &requests))
	defer server.Close()

	c := newTestClient(t, server, nil)

	ctx, cancel := context.WithCancel(context.Background())
	err := paginate(ctx, c, "users", 1, func([]User) (PageAction, error) {
		cancel()
		return ContinuePaging, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, requests, "no further page request after cancellation")
}
