// Package compat implements the Compatibility Gate (spec.md §4.9, C9):
// the session-bootstrap decision of whether a client may proceed,
// must run a local migration chain, must rebuild its store, or is
// rejected outright, based on comparing its declared schema version
// and hash against the server's current ones.
package compat

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/schema"
)

// CurrentVersion is the server's current schema version. It is bumped
// by hand whenever a migration changes the shape the schema
// descriptor (C3) observes; MigrationChain must then gain the step(s)
// needed to bring an older client forward.
const CurrentVersion = 1

// MigrationStep is one static entry in the migration chain registry
// (spec.md §4.9: "a static registry of {from, to, name, transform}").
// Transform names a client-side hook; the server never executes it —
// it only serves the chain metadata so a client can run its own
// local-replica transform.
type MigrationStep struct {
	From      int
	To        int
	Name      string
	Transform string
}

// MigrationChain is the full static chain compiled into this binary.
// Empty today since CurrentVersion has never advanced past 1; adding
// a step here is how a future schema bump stays migratable instead of
// forcing every older client to rebuild.
var MigrationChain []MigrationStep

// Action is one of the four verdicts the six rows of the decision
// table map to (spec.md §4.9).
type Action string

const (
	ActionProceed Action = "proceed"
	ActionMigrate Action = "migrate"
	ActionRebuild Action = "rebuild"
	ActionReject  Action = "reject"
)

// ClientState is what the client declares at session bootstrap. A nil
// Version means "client has no version recorded" (first-ever session).
type ClientState struct {
	Version *int
	Hash    *string
}

// Decision is the gate's verdict plus the server's current schema
// descriptor, so a "proceed" or "migrate" client can update its
// stored (version, hash) pair.
type Decision struct {
	Action  Action
	Version int
	Hash    string
}

// Gate wires C9 to the pool it introspects via C3.
type Gate struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Gate {
	return &Gate{Pool: pool}
}

// Decide runs the spec.md §4.9 decision table. The hash recomputation
// retries with backoff: introspecting information_schema can
// transiently race a concurrent administrative DDL migration.
func (g *Gate) Decide(ctx context.Context, client ClientState) (Decision, error) {
	hash, err := g.currentHash(ctx)
	if err != nil {
		return Decision{}, err
	}

	switch {
	case client.Version == nil:
		// Client has no version recorded: record current, proceed.
		return Decision{Action: ActionProceed, Version: CurrentVersion, Hash: hash}, nil

	case *client.Version > CurrentVersion:
		return Decision{Action: ActionReject, Version: CurrentVersion, Hash: hash}, nil

	case *client.Version < CurrentVersion:
		if chainExists(*client.Version, CurrentVersion) {
			return Decision{Action: ActionMigrate, Version: CurrentVersion, Hash: hash}, nil
		}
		return Decision{Action: ActionRebuild, Version: CurrentVersion, Hash: hash}, nil

	default: // versions equal
		if client.Hash == nil || *client.Hash != hash {
			return Decision{Action: ActionRebuild, Version: CurrentVersion, Hash: hash}, nil
		}
		return Decision{Action: ActionProceed, Version: CurrentVersion, Hash: hash}, nil
	}
}

func (g *Gate) currentHash(ctx context.Context) (string, error) {
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)

	var hash string
	operation := func() error {
		snap, err := schema.Introspect(ctx, g.Pool)
		if err != nil {
			return err
		}
		h, err := schema.Hash(snap)
		if err != nil {
			return backoff.Permanent(err)
		}
		hash = h
		return nil
	}

	if err := backoff.Retry(operation, bo); err != nil {
		return "", fmt.Errorf("compat: introspect schema: %w", err)
	}
	return hash, nil
}

// chainExists reports whether MigrationChain contains a path of steps
// from version `from` to version `to`, hopping through intermediate
// versions if necessary.
func chainExists(from, to int) bool {
	if from == to {
		return true
	}
	visited := map[int]bool{from: true}
	frontier := []int{from}
	for len(frontier) > 0 {
		next := frontier[:0]
		for _, v := range frontier {
			for _, step := range MigrationChain {
				if step.From != v || visited[step.To] {
					continue
				}
				if step.To == to {
					return true
				}
				visited[step.To] = true
				next = append(next, step.To)
			}
		}
		frontier = next
	}
	return false
}
