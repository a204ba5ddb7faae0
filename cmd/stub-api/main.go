// Local stand-in for the conversion-upload platform. All behavior is
// scripted so client code can be exercised without real credentials:
//
//   - account 429000429 answers 429 (Retry-After: 1) twice per process,
//     then succeeds, to exercise the retry path
//   - conversions whose orderId starts with "reject" come back as
//     per-entry partial failures at their batch positions
//   - validateOnly requests are echoed without being "applied"
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/conversion-relay/internal/ads"
	"github.com/ignite/conversion-relay/internal/pkg/httputil"
)

const throttledAccount = "429000429"

type stubServer struct {
	mu       sync.Mutex
	throttle map[string]int // accountID -> 429s already served
}

func main() {
	log.Println("Starting conversion platform STUB API (scripted responses, local testing only)")

	s := &stubServer{throttle: make(map[string]int)}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:8080", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Developer-Token", "X-Login-Account"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.OK(w, map[string]string{"status": "healthy", "service": "conversion-platform-stub"})
	})

	r.Post("/accounts/{accountID}:uploadConversions", s.handleUpload)
	r.Post("/accounts/{accountID}/search", s.handleSearch)

	addr := os.Getenv("STUB_API_ADDR")
	if addr == "" {
		addr = ":8090"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	log.Printf("stub API listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("stub API: %v", err)
	}
}

func (s *stubServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")

	if r.Header.Get("X-Developer-Token") == "" {
		httputil.Error(w, http.StatusUnauthorized, "missing developer token", "UNAUTHENTICATED")
		return
	}

	if accountID == throttledAccount && s.shouldThrottle(accountID) {
		w.Header().Set("Retry-After", "1")
		httputil.Error(w, http.StatusTooManyRequests, "resource exhausted, slow down", "RESOURCE_EXHAUSTED")
		return
	}

	var req ads.UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "malformed request body: "+err.Error())
		return
	}
	if len(req.Conversions) == 0 {
		httputil.BadRequest(w, "conversions must not be empty")
		return
	}
	if len(req.Conversions) > 2000 {
		httputil.BadRequest(w, "too many conversions in one request (max 2000)")
		return
	}

	resp := ads.UploadResponse{}
	var details []ads.PartialFailureDetail

	for i, conv := range req.Conversions {
		if strings.HasPrefix(conv.OrderID, "reject") {
			idx := i
			details = append(details, ads.PartialFailureDetail{
				Errors: []ads.EntryError{{
					Message: "conversion rejected by stub (orderId " + conv.OrderID + ")",
					Location: &ads.ErrorLocation{
						FieldPathElements: []ads.FieldPathElement{{FieldName: "conversions", Index: &idx}},
					},
				}},
			})
			continue
		}
		resp.Results = append(resp.Results, ads.ConversionResult{
			ConversionAction:   conv.ConversionAction,
			ConversionDateTime: conv.ConversionDateTime,
			OrderID:            conv.OrderID,
		})
	}

	if len(details) > 0 {
		if req.PartialFailurePolicy != ads.PartialFailurePolicyContinue {
			// Atomic mode: reject the whole batch.
			httputil.BadRequest(w, "batch contains invalid conversions and partial failure is not enabled")
			return
		}
		resp.PartialFailureError = &ads.PartialFailureError{
			Code:    3,
			Message: "some conversions were rejected",
			Details: details,
		}
	}

	httputil.OK(w, resp)
}

func (s *stubServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Developer-Token") == "" {
		httputil.Error(w, http.StatusUnauthorized, "missing developer token", "UNAUTHENTICATED")
		return
	}

	var req ads.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, "malformed request body: "+err.Error())
		return
	}

	accountID := chi.URLParam(r, "accountID")
	var resp ads.SearchResponse
	switch {
	case strings.Contains(req.Query, "accessible_accounts"):
		resp.Results = []ads.SearchRow{
			{Account: &ads.AccountRow{ID: "1112223334", Name: "Stub Sub-Account A"}},
			{Account: &ads.AccountRow{ID: "5556667778", Name: "Stub Sub-Account B"}},
		}
	case strings.Contains(req.Query, "conversion_action"):
		resp.Results = []ads.SearchRow{
			{ConversionAction: &ads.ConversionActionRow{
				ResourceName: "accounts/" + accountID + "/conversionActions/1001",
				ID:           "1001",
				Name:         "purchase",
			}},
			{ConversionAction: &ads.ConversionActionRow{
				ResourceName: "accounts/" + accountID + "/conversionActions/1002",
				ID:           "1002",
				Name:         "signup",
			}},
		}
	default:
		httputil.BadRequest(w, "unsupported stub query: "+req.Query)
		return
	}

	httputil.OK(w, resp)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// shouldThrottle serves two 429s per throttled account, then lets the
// request through.
func (s *stubServer) shouldThrottle(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.throttle[accountID] >= 2 {
		s.throttle[accountID] = 0
		return false
	}
	s.throttle[accountID]++
	return true
}
