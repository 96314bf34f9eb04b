package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"saunafreunde/internal/auth"
	"saunafreunde/internal/client"
	"saunafreunde/internal/logging"
	"saunafreunde/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	var (
		baseURL = flag.String("api", envOr("SAUNAFREUNDE_API", "http://localhost:8080"), "API base URL")
		date    = flag.String("date", time.Now().Format("2006-01-02"), "any day of the week to show (YYYY-MM-DD)")
		user    = flag.String("user", "", "member id; signs a token with JWT_SECRET")
		mine    = flag.Bool("mine", false, "list the member's upcoming claims instead of the week")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	logger := logging.NewWithWriter(os.Stderr, level, false)

	var token string
	if *user != "" {
		var err error
		token, err = auth.Sign(os.Getenv("JWT_SECRET"), os.Getenv("JWT_ISSUER"), *user, time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to sign token")
		}
	}

	api := client.New(*baseURL, token)
	if addr := os.Getenv("REDIS_ADDRESS"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
		defer rdb.Close()
		api.UseRedisCache(rdb, 30*time.Second)
		logger.Debug().Str("redis", addr).Msg("Using Redis cache")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *mine {
		if token == "" {
			logger.Fatal().Msg("-mine needs -user")
		}
		claims, err := api.MyClaims(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("Failed to load claims")
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, c := range claims {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.StartTime.Local().Format("Mon 02.01. 15:04"), c.SaunaName, c.AufgussType)
		}
		_ = w.Flush()
		return
	}

	planner := client.NewPlanner(api)
	plan, err := planner.LoadWeek(ctx, *date)
	if err != nil {
		logger.Fatal().Err(err).Str("date", *date).Msg("Failed to load week")
	}
	printWeek(plan)
}

func printWeek(plan schedule.WeekPlan) {
	fmt.Printf("Woche %s bis %s\n", plan.WeekStart.Format("02.01.2006"), plan.WeekEnd.Add(-time.Second).Format("02.01.2006"))
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, day := range plan.Days {
		fmt.Fprintf(w, "\n%s\n", day.Date)
		for _, slot := range day.Slots {
			host, kind := "frei", ""
			if slot.Claim != nil {
				kind = slot.Claim.AufgussType
				host = slot.Claim.ClaimedBy
				if slot.Claim.Profile != nil {
					host = slot.Claim.Profile.Name
				}
			}
			fmt.Fprintf(w, "  %s\t%s\t%s\t%s\n", slot.Start.Local().Format("15:04"), slot.Resource, kind, host)
		}
	}
	for _, c := range plan.Unmatched {
		fmt.Fprintf(w, "\n! ausserhalb des Rasters: %s %s (%s)\n", c.SaunaName, c.StartTime.Local().Format("02.01. 15:04"), c.ClaimedBy)
	}
	_ = w.Flush()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
