package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	ScoringAPIURL  string
	ScoringAPIKey  string
	SupabaseURL    string
	SupabaseKey    string
	SupabaseBucket string
	WSAuthPassword string
}

// Load reads environment variables and returns Config with sane defaults.
func Load() Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	addr := os.Getenv("HTTP_ADDRESS")
	if addr == "" {
		addr = ":8080"
	}

	scoringURL := os.Getenv("SCORING_API_URL")
	if scoringURL == "" {
		log.Println("Warning: SCORING_API_URL not set - adherence scoring will not work")
	}
	scoringKey := os.Getenv("SCORING_API_KEY")
	if scoringKey == "" {
		log.Println("Warning: SCORING_API_KEY not set - scoring requests will be unauthenticated")
	}

	supabaseURL := os.Getenv("SUPABASE_URL")
	supabaseKey := os.Getenv("SUPABASE_SERVICE_ROLE_KEY")
	if supabaseURL == "" || supabaseKey == "" {
		log.Println("Warning: SUPABASE_URL/SUPABASE_SERVICE_ROLE_KEY not set - session summaries will not be stored")
	}
	bucket := os.Getenv("SUPABASE_BUCKET")
	if bucket == "" {
		bucket = "session-summaries"
	}

	wsPassword := os.Getenv("WS_AUTH_PASSWORD")
	if wsPassword == "" {
		log.Println("Warning: WS_AUTH_PASSWORD not set - websocket endpoint is open")
	}

	log.Printf("config: HTTP_ADDRESS=%s", addr)
	return Config{
		HTTPAddress:    addr,
		ScoringAPIURL:  scoringURL,
		ScoringAPIKey:  scoringKey,
		SupabaseURL:    supabaseURL,
		SupabaseKey:    supabaseKey,
		SupabaseBucket: bucket,
		WSAuthPassword: wsPassword,
	}
}
