//go:build adminrpc
// +build adminrpc

package main

import (
	"net"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"

	"github.com/enginerepair/engshopsync/internal/adminrpc"
	"github.com/enginerepair/engshopsync/internal/auth"
)

var adminServer *grpc.Server

// startAdminRPC starts the administrative gRPC server (change-request
// approval/rejection, schema inspection) when built with -tags adminrpc.
func startAdminRPC(pool *pgxpool.Pool, jwtCfg auth.JWTCfg, addr string) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to listen for admin rpc")
	}

	adminServer = adminrpc.NewServer(pool, jwtCfg)

	go func() {
		log.Info().Str("addr", addr).Msg("starting admin rpc server")
		if err := adminServer.Serve(lis); err != nil {
			log.Fatal().Err(err).Msg("admin rpc server failed")
		}
	}()
}

func stopAdminRPC() {
	if adminServer != nil {
		adminServer.GracefulStop()
		log.Info().Msg("admin rpc server stopped")
	}
}
