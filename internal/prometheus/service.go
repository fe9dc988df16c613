package prometheus

import (
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/receptionist/internal/logging"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewServer exposes /metrics and a process liveness probe. It outlives app
// restarts, so it is not tied to an app context.
func NewServer(port string, timeout time.Duration) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}
}

func Run() {
	server := NewServer(config.Conf.PrometheusPort, time.Duration(config.Conf.PrometheusTimeout)*time.Second)

	logging.Logger.Info("[Run] start prometheus server", zap.String("port", config.Conf.PrometheusPort))

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logging.Logger.Error("[Run] failed to start prometheus server", zap.String("error", err.Error()))
	}
}
