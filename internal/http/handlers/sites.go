package handlers

import (
	"context"

	"github.com/geocoder89/seodash/internal/domain/user"
	"golang.org/x/sync/errgroup"
)

// fanOutLimit bounds concurrent upstream calls for admin overviews.
const fanOutLimit = 4

type SiteDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	ListWithSites(ctx context.Context) ([]user.User, error)
}

// siteTarget is one site to report on, with its owner when there is one.
type siteTarget struct {
	UserID string
	Email  string
	Name   string
	Site   string
}

type siteResult[T any] struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Site   string `json:"siteLink"`
	Data   *T     `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func ownerTargets(users []user.User) []siteTarget {
	out := make([]siteTarget, 0, len(users))
	for _, u := range users {
		if u.Site() == "" {
			continue
		}
		out = append(out, siteTarget{UserID: u.ID, Email: u.Email, Name: u.Name, Site: u.Site()})
	}
	return out
}

func siteTargets(sites []string) []siteTarget {
	out := make([]siteTarget, 0, len(sites))
	for _, s := range sites {
		out = append(out, siteTarget{Site: s})
	}
	return out
}

// fanOut runs fn for every target and keeps per target failures in the
// result instead of failing the whole call.
func fanOut[T any](ctx context.Context, targets []siteTarget, fn func(ctx context.Context, site string) (T, error)) []siteResult[T] {
	results := make([]siteResult[T], len(targets))

	var g errgroup.Group
	g.SetLimit(fanOutLimit)

	for i, t := range targets {
		g.Go(func() error {
			res := siteResult[T]{UserID: t.UserID, Email: t.Email, Name: t.Name, Site: t.Site}
			data, err := fn(ctx, t.Site)
			if err != nil {
				res.Error = err.Error()
			} else {
				res.Data = &data
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}
