package predict

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/askiada/gemstone-pipeline/internal/artifact"
	"github.com/askiada/gemstone-pipeline/internal/dataset"
	"github.com/askiada/gemstone-pipeline/internal/features"
	"github.com/askiada/gemstone-pipeline/internal/regress"
)

// Predictor is satisfied by Pipeline.
type Predictor interface {
	Predict(ctx context.Context, rec dataset.Record) (float64, error)
}

// Response is the body of a successful prediction.
type Response struct {
	Price string `json:"price"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server exposes the prediction pipeline over HTTP.
type Server struct {
	router    *mux.Router
	predictor Predictor
	logger    *zap.Logger
}

func NewServer(predictor Predictor, logger *zap.Logger) *Server {
	s := &Server{router: mux.NewRouter(), predictor: predictor, logger: logger}
	s.router.Use(s.loggingMiddleware)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/predict", s.handlePredict).Methods(http.MethodPost)

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errC := make(chan error, 1)
	go func() {
		s.logger.Info("prediction server listening", zap.String("addr", addr))
		errC <- srv.ListenAndServe()
	}()

	select {
	case err := <-errC:
		return errors.Wrap(err, "prediction server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return errors.Wrap(srv.Shutdown(shutdownCtx), "unable to shut down prediction server")
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	var rec dataset.Record
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&rec)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid record: " + err.Error()})

		return
	}

	price, err := s.predictor.Predict(r.Context(), rec)
	if err != nil {
		status := statusOf(err)
		if status == http.StatusInternalServerError {
			s.logger.Error("prediction failed", zap.Error(err))
		}
		writeJSON(w, status, errorResponse{Error: err.Error()})

		return
	}

	writeJSON(w, http.StatusOK, Response{Price: decimal.NewFromFloat(price).StringFixed(2)})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, dataset.ErrMissingField),
		errors.Is(err, features.ErrUnknownCategory),
		errors.Is(err, dataset.ErrNonFinite),
		errors.Is(err, features.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.Is(err, artifact.ErrNotFound),
		errors.Is(err, regress.ErrEncoderMismatch):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body) //nolint:errchkjson
}
