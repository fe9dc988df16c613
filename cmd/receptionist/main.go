package main

import (
	"context"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/receptionist"
	"go.uber.org/zap"
)

func main() {
	go prometheus.Run()

	for {
		ctx, cancel := context.WithCancel(context.Background())

		app, err := receptionist.NewApp(ctx, cancel)
		if err != nil {
			logging.Logger.Fatal("failed to create receptionist app", zap.String("error", err.Error()))
		}

		err = app.Run(ctx)
		if err != nil {
			panic(err)
		}

		<-ctx.Done()

		app.HealthCheckerService.Check()

		cancel()
	}
}
