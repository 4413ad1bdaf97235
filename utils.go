package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"queueforge/pkg/game"
	"queueforge/pkg/queue"
)

// setupLogging opens logs/server.log and logs/error.log. verbose mirrors both
// to the console.
func setupLogging(logDir string, verbose bool) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	fInfo, err := os.OpenFile(filepath.Join(logDir, "server.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open server.log: %w", err)
	}
	fErr, err := os.OpenFile(filepath.Join(logDir, "error.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("open error.log: %w", err)
	}

	var infoOut, errOut io.Writer = fInfo, fErr
	if verbose {
		infoOut = io.MultiWriter(fInfo, os.Stdout)
		errOut = io.MultiWriter(fErr, os.Stderr)
	}
	InfoLog = log.New(infoOut, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(errOut, "ERROR: ", log.Ldate|log.Ltime|log.Lshortfile)
	return nil
}

func configureLimiter(perSecond float64, burst int) {
	ipLock.Lock()
	defer ipLock.Unlock()
	limitRate = rate.Limit(perSecond)
	limitBurst = burst
	clear(ipLimiters)
}

func getLimiter(ip string) *rate.Limiter {
	ipLock.Lock()
	defer ipLock.Unlock()
	limiter, exists := ipLimiters[ip]
	if !exists {
		limiter = rate.NewLimiter(limitRate, limitBurst)
		ipLimiters[ip] = limiter
	}
	return limiter
}

// middlewareCORS adds headers to allow browser clients
func middlewareCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func middlewareSecurity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !getLimiter(ip).Allow() {
			http.Error(w, "Rate Limit", http.StatusTooManyRequests)
			return
		}

		if r.Method == http.MethodGet || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		// fetch() sometimes sends a charset suffix or no type at all
		contentType := r.Header.Get("Content-Type")
		if contentType == "" || strings.Contains(contentType, "application/json") {
			next.ServeHTTP(w, r)
			return
		}

		http.Error(w, "Bad Type: "+contentType, http.StatusUnsupportedMediaType)
	})
}

// --- Responses ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ErrorLog.Printf("encode response: %v", err)
	}
}

// writeError maps engine and order errors onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrInsufficientResources):
		status = http.StatusPaymentRequired
	case errors.Is(err, game.ErrUnknownKind),
		errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrMaxLevel),
		errors.Is(err, game.ErrRequirementsNotMet),
		errors.Is(err, queue.ErrInvalidItem):
		status = http.StatusBadRequest
	case errors.Is(err, queue.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrEffectApplication),
		errors.Is(err, queue.ErrNotCancellable),
		errors.Is(err, game.ErrLaterLevelQueued):
		status = http.StatusConflict
	case errors.Is(err, queue.ErrConcurrencyConflict):
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		ErrorLog.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	http.Error(w, err.Error(), status)
}

func parsePlanetID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("planet_id")
	if raw == "" {
		return 0, errors.New("planet_id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid planet_id %q", raw)
	}
	return id, nil
}
