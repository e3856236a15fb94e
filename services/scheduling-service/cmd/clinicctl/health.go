package main

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicsched/libs/grpcx"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func healthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a service over gRPC health",
		RunE: func(cmd *cobra.Command, args []string) error {
			v := settings(cmd.Flags())
			opts := grpcx.DialOptions{Timeout: v.GetDuration("timeout")}
			conn, err := grpcx.Dial(v.GetString("addr"), opts)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := opts.WithTimeout(cmd.Context())
			defer cancel()
			status, err := grpcx.Check(ctx, conn, v.GetString("service"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), status.String())
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("service not serving")
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "localhost:9090", "gRPC address")
	cmd.Flags().String("service", "scheduling-service", "Service name, empty for the server as a whole")
	cmd.Flags().Duration("timeout", 3*time.Second, "Probe timeout")
	return cmd
}
