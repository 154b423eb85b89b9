package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestCheckForUpdates(t *testing.T) {
	logger := zap.NewNop().Sugar()

	tests := []struct {
		name           string
		currentVersion string
		latestVersion  string
		wantUpdate     bool
		statusCode     int
	}{
		{
			name:           "update available",
			currentVersion: "v1.0.0",
			latestVersion:  "v1.1.0",
			wantUpdate:     true,
			statusCode:     http.StatusOK,
		},
		{
			name:           "already up to date",
			currentVersion: "v1.1.0",
			latestVersion:  "v1.1.0",
			wantUpdate:     false,
			statusCode:     http.StatusOK,
		},
		{
			name:           "development build never updates",
			currentVersion: "3f9c2ab",
			latestVersion:  "v1.1.0",
			wantUpdate:     false,
			statusCode:     http.StatusOK,
		},
		{
			name:           "release API error",
			currentVersion: "v1.0.0",
			latestVersion:  "v1.1.0",
			statusCode:     http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			releases := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.statusCode != http.StatusOK {
					w.WriteHeader(tt.statusCode)
					return
				}
				json.NewEncoder(w).Encode(GitHubRelease{TagName: tt.latestVersion})
			}))
			defer releases.Close()

			uc := NewUpdateChecker(logger)
			uc.apiURL = releases.URL

			updateAvailable, err := uc.CheckForUpdates(tt.currentVersion)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if tt.statusCode != http.StatusOK {
				if updateAvailable != nil {
					t.Errorf("expected nil result for status %d, got %v", tt.statusCode, *updateAvailable)
				}
				return
			}

			if updateAvailable == nil {
				t.Fatal("expected a result for a 200 response")
			}
			if *updateAvailable != tt.wantUpdate {
				t.Errorf("got updateAvailable = %v, want %v", *updateAvailable, tt.wantUpdate)
			}
		})
	}
}
