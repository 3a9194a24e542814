//go:build !adminrpc
// +build !adminrpc

package main

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enginerepair/engshopsync/internal/auth"
)

// startAdminRPC is a no-op when building without the adminrpc tag.
func startAdminRPC(pool *pgxpool.Pool, jwtCfg auth.JWTCfg, addr string) {}

// stopAdminRPC is a no-op when building without the adminrpc tag.
func stopAdminRPC() {}
