package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"genie-bridge/handler"
	"genie-bridge/internal/integrations/genie"
	"genie-bridge/internal/integrations/paramstore"
	"genie-bridge/internal/repository"
	"genie-bridge/internal/session"
	"genie-bridge/internal/slack"
	"genie-bridge/internal/usecase"
)

func main() {
	ctx := context.Background()
	log := slog.Default()

	// ---- Configuration (read only here) ----
	databricksHost := mustEnv("DATABRICKS_HOST")
	spaceID := mustEnv("SPACE_ID")
	paramPrefix := mustEnv("PARAM_PREFIX")
	dedupTable := mustEnv("DEDUP_TABLE")
	slackChannelID := mustEnv("SLACK_CHANNEL_ID")
	maintainContext := envBool("MAINTAIN_CONTEXT", true)
	maxRetries := envInt("MAX_RETRIES", 10)
	retryInterval := envInt("RETRY_INTERVAL_SECONDS", 5)
	earlyFetchAfter := envInt("EARLY_FETCH_AFTER", 4)
	formatTables := envBool("FORMAT_TABLES", true)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		log.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	dedupStore, err := repository.New(awsdynamodb.NewFromConfig(cfg), dedupTable)
	if err != nil {
		log.Error("failed to create dedup store", "err", err)
		os.Exit(1)
	}
	genieClient, err := genie.NewClient(ssmClient, paramPrefix, databricksHost, spaceID)
	if err != nil {
		log.Error("failed to create Genie client", "err", err)
		os.Exit(1)
	}
	slackClient, err := slack.NewClient(ssmClient, paramPrefix)
	if err != nil {
		log.Error("failed to create Slack client", "err", err)
		os.Exit(1)
	}

	// ---- Core ----
	sessions := session.New(maintainContext)
	queryService, err := usecase.NewQueryService(genieClient, sessions, usecase.Config{
		MaxRetries:      maxRetries,
		RetryInterval:   time.Duration(retryInterval) * time.Second,
		EarlyFetchAfter: earlyFetchAfter,
	})
	if err != nil {
		log.Error("failed to create query service", "err", err)
		os.Exit(1)
	}

	// ---- Transport ----
	bot, err := slack.NewBot(queryService, slackClient, dedupStore, ssmClient, paramPrefix, slack.BotConfig{
		ChannelID:    slackChannelID,
		FormatTables: formatTables,
	}, log)
	if err != nil {
		log.Error("failed to create Slack bot", "err", err)
		os.Exit(1)
	}

	debugInfo := map[string]any{
		"databricks_host":  databricksHost,
		"space_id":         spaceID != "",
		"param_prefix":     paramPrefix != "",
		"dedup_table":      dedupTable != "",
		"slack_channel_id": slackChannelID != "",
		"maintain_context": maintainContext,
		"max_retries":      maxRetries,
		"retry_interval":   retryInterval,
		"format_tables":    formatTables,
	}

	h, err := handler.NewHandler(queryService, bot, debugInfo, log)
	if err != nil {
		log.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
