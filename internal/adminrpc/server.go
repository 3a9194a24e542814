package adminrpc

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/enginerepair/engshopsync/internal/auth"
)

// NewServer builds the admin gRPC server: recovery, correlation id,
// and bearer auth run on every RPC before the AdminService methods
// themselves. Reflection is registered so grpcurl works against it
// without a local copy of the service description.
func NewServer(pool *pgxpool.Pool, jwtCfg auth.JWTCfg) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			RecoveryInterceptor(),
			CorrelationInterceptor(),
			AuthInterceptor(pool, jwtCfg),
		),
	)
	RegisterAdminServiceServer(srv, NewService(pool))
	reflection.Register(srv)
	return srv
}
