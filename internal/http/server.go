package http

import (
	"container/list"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/ledger"
	"fintrack/internal/state"
	"fintrack/internal/view"
)

// LRU cache with TTL and size-based eviction, used for the annual
// summary which scans every transaction of a year.
type lruCache[T any] struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type cacheItem[T any] struct {
	key       string
	data      T
	expiresAt time.Time
}

func newLRUCache[T any](maxSize int, ttl time.Duration) *lruCache[T] {
	return &lruCache[T]{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

func (c *lruCache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	elem, exists := c.items[key]
	if !exists {
		return zero, false
	}

	item := elem.Value.(*cacheItem[T])
	if time.Now().After(item.expiresAt) {
		c.removeElement(elem)
		return zero, false
	}

	c.lru.MoveToFront(elem)
	return item.data, true
}

func (c *lruCache[T]) Set(key string, data T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item := &cacheItem[T]{
		key:       key,
		data:      data,
		expiresAt: time.Now().Add(c.ttl),
	}

	if elem, exists := c.items[key]; exists {
		elem.Value = item
		c.lru.MoveToFront(elem)
		return
	}

	elem := c.lru.PushFront(item)
	c.items[key] = elem

	if c.lru.Len() > c.maxSize {
		if oldest := c.lru.Back(); oldest != nil {
			c.removeElement(oldest)
		}
	}
}

// Clear drops every entry. Called after each mutation; summaries are
// cheap enough to rebuild that fine-grained invalidation is not worth
// tracking which years a batch touched.
func (c *lruCache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
}

func (c *lruCache[T]) removeElement(elem *list.Element) {
	item := elem.Value.(*cacheItem[T])
	delete(c.items, item.key)
	c.lru.Remove(elem)
}

type Server struct {
	http.Server
	tracker     *state.Tracker
	ledger      *ledger.Coordinator
	auth        auth.Provider
	rateLimiter *rateLimiter

	summaryCache *lruCache[[]view.MonthSummary]

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientInfo
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 mutating requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer wires routes against the live tracker and the ledger
// coordinator, returning a ready-to-run http.Server.
func NewServer(addr string, tracker *state.Tracker, coord *ledger.Coordinator, authProvider auth.Provider) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		tracker:      tracker,
		ledger:       coord,
		auth:         authProvider,
		rateLimiter:  newRateLimiter(),
		summaryCache: newLRUCache[[]view.MonthSummary](20, 5*time.Minute),
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.withSecurityHeaders(s.handleListTransactions))
	mux.HandleFunc("GET /api/summary/month", s.withSecurityHeaders(s.handleMonthSummary))
	mux.HandleFunc("GET /api/summary/annual", s.withSecurityHeaders(s.handleAnnualSummary))
	mux.HandleFunc("GET /api/reminders", s.withSecurityHeaders(s.handleReminders))

	mux.HandleFunc("POST /api/transactions/{kind}", s.withSecurityHeaders(s.handleCreateTransaction))
	mux.HandleFunc("PUT /api/transactions/{kind}/{id}", s.withSecurityHeaders(s.handleUpdateTransaction))
	mux.HandleFunc("DELETE /api/transactions/{kind}/{id}", s.withSecurityHeaders(s.handleDeleteTransaction))

	mux.HandleFunc("POST /api/transfers", s.withSecurityHeaders(s.handleCreateTransfer))
	mux.HandleFunc("DELETE /api/transfers/{id}", s.withSecurityHeaders(s.handleDeleteTransfer))

	mux.HandleFunc("POST /api/expenses/{id}/paid", s.withSecurityHeaders(s.handleSetExpensePaid))
	mux.HandleFunc("POST /api/expenses/{id}/installments", s.withSecurityHeaders(s.handleExpandInstallments))

	mux.HandleFunc("POST /api/bulk/delete", s.withSecurityHeaders(s.handleBulkDelete))
	mux.HandleFunc("POST /api/bulk/paid", s.withSecurityHeaders(s.handleBulkSetPaid))

	mux.HandleFunc("GET /api/accounts", s.withSecurityHeaders(s.handleListAccounts))
	mux.HandleFunc("POST /api/accounts", s.withSecurityHeaders(s.handleAddAccount))
	mux.HandleFunc("PUT /api/accounts/{id}", s.withSecurityHeaders(s.handleRenameAccount))
	mux.HandleFunc("DELETE /api/accounts/{id}", s.withSecurityHeaders(s.handleDeleteAccount))

	mux.HandleFunc("GET /api/categories/{kind}", s.withSecurityHeaders(s.handleListCategories))
	mux.HandleFunc("POST /api/categories/{kind}", s.withSecurityHeaders(s.handleAddCategory))
	mux.HandleFunc("PUT /api/categories/{kind}/{id}", s.withSecurityHeaders(s.handleUpdateCategory))
	mux.HandleFunc("DELETE /api/categories/{kind}/{id}", s.withSecurityHeaders(s.handleDeleteCategory))

	mux.HandleFunc("GET /api/templates/{kind}", s.withSecurityHeaders(s.handleListTemplates))
	mux.HandleFunc("POST /api/templates/{kind}", s.withSecurityHeaders(s.handleAddTemplate))
	mux.HandleFunc("DELETE /api/templates/{kind}/{id}", s.withSecurityHeaders(s.handleDeleteTemplate))

	mux.HandleFunc("POST /api/session/signout", s.withSecurityHeaders(s.handleSignOut))

	return s
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

// withSecurityHeaders adds security headers, rate limiting, and request logging to responses
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Extract client IP (considering proxies)
		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"client_ip", clientIP)

		// Rate limit mutating requests only; reads are cheap.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			slog.WarnContext(ctx, "Rate limit exceeded", "client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		duration := time.Since(start)
		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", duration.Milliseconds(),
			"client_ip", clientIP)
	}
}

type requestIDKey struct{}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// generateRequestID creates a unique request ID for tracing
func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.tracker.Ready():
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	default:
		http.Error(w, "collections not yet loaded", http.StatusServiceUnavailable)
	}
}
