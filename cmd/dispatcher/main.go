package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/piyushmakhija5/dispatcher-sub001/internal/api"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/contract"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/flow"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/genai"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/lockfile"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/messaging"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/models"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/recovery"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/store"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/util"
	"github.com/piyushmakhija5/dispatcher-sub001/internal/voice"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for dispatcher state data
	DefaultStateDir = "/var/lib/dispatcher"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "dispatcher.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	st, err := openStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	genaiClient := buildGenAIClient(flags)
	resolver := contract.NewResolver(genaiClient, st)
	engine := flow.NewEngine(st, resolver)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	msgService, router := buildMessagingChannel(ctx, flags, engine)
	if msgService != nil {
		defer msgService.Stop()
	}

	var rebinder recovery.ContactRebinder
	if router != nil {
		rebinder = router
	}
	if err := recovery.NewManager(st, rebinder).RecoverAll(ctx); err != nil {
		slog.Warn("Startup recovery finished with errors", "error", err)
	}

	apiOpts := buildAPIOptions(ctx, flags, st, genaiClient, msgService)
	server := api.NewServer(engine, st, nil, apiOpts...)

	slog.Info("Dispatcher starting", "state_dir", *flags.stateDir, "api_addr", *flags.apiAddr, "channel", *flags.textChannel)
	if err := server.Run(ctx); err != nil {
		slog.Error("Dispatcher failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Dispatcher exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	OpenAIKey       string
	APIAddr         string
	TextChannel     string
	VoiceWebhookURL string
	DriverPhone     string
	ReplyDelay      time.Duration
	SilenceDelay    time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	openaiKey       *string
	apiAddr         *string
	textChannel     *string
	voiceWebhookURL *string
	driverPhone     *string
	replyDelay      *time.Duration
	silenceDelay    *time.Duration
	qrOutput        *string
	numeric         *bool
}

// initializeLogger sets up structured logging. Level defaults to info and can
// be raised with DISPATCHER_DEBUG.
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("DISPATCHER_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("DISPATCHER_STATE_DIR"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		APIAddr:         os.Getenv("API_ADDR"),
		TextChannel:     os.Getenv("TEXT_CHANNEL"),
		VoiceWebhookURL: os.Getenv("VOICE_WEBHOOK_URL"),
		DriverPhone:     os.Getenv("DRIVER_PHONE"),
		ReplyDelay:      util.ParseDurationEnv("DISPATCHER_REPLY_DELAY", messaging.DefaultReplyDelay),
		SilenceDelay:    util.ParseDurationEnv("DISPATCHER_SILENCE_DELAY", flow.DefaultSilenceDelay),
	}
	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"DISPATCHER_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"TEXT_CHANNEL", config.TextChannel)
	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for dispatcher data (overrides $DISPATCHER_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "database DSN for the session store (overrides $DATABASE_URL)"),
		openaiKey:       flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		textChannel:     flag.String("text-channel", config.TextChannel, "text channel: whatsapp, sms, or empty for HTTP only (overrides $TEXT_CHANNEL)"),
		voiceWebhookURL: flag.String("voice-webhook-url", config.VoiceWebhookURL, "public URL for Twilio voice webhooks; empty disables voice mode (overrides $VOICE_WEBHOOK_URL)"),
		driverPhone:     flag.String("driver-phone", config.DriverPhone, "driver phone number for the confirmation call; empty skips driver confirmation (overrides $DRIVER_PHONE)"),
		replyDelay:      flag.Duration("reply-delay", config.ReplyDelay, "pacing delay before text replies (overrides $DISPATCHER_REPLY_DELAY)"),
		silenceDelay:    flag.Duration("silence-delay", config.SilenceDelay, "end-of-call silence window for voice sessions (overrides $DISPATCHER_SILENCE_DELAY)"),
		qrOutput:        flag.String("qr-output", "", "path to write WhatsApp login QR code"),
		numeric:         flag.Bool("numeric-code", false, "use numeric WhatsApp login code instead of QR code"),
	}
	flag.Parse()

	// Follow an overridden state directory when the DSN was left at its default.
	if *flags.dbDSN == config.DatabaseURL &&
		config.DatabaseURL == filepath.Join(config.StateDir, DefaultDBFileName) &&
		*flags.stateDir != config.StateDir {
		*flags.dbDSN = filepath.Join(*flags.stateDir, DefaultDBFileName)
	}
	return flags
}

// openStore opens the session store matching the configured DSN.
func openStore(flags Flags) (store.Store, error) {
	if store.DetectDSNType(*flags.dbDSN) == store.DSNTypePostgres {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", *flags.dbDSN)
	return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
}

// buildGenAIClient constructs the extraction client, or nil when no API key is
// configured; the contract resolver then falls back to documented defaults.
func buildGenAIClient(flags Flags) genai.ClientInterface {
	if *flags.openaiKey == "" {
		slog.Info("No OpenAI API key configured, contract and slot extraction disabled")
		return nil
	}
	client, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
	if err != nil {
		slog.Error("Failed to build GenAI client, extraction disabled", "error", err)
		return nil
	}
	return client
}

// buildMessagingChannel wires the configured text channel and starts its
// response router. Returns nils when the service is HTTP-only.
func buildMessagingChannel(ctx context.Context, flags Flags, engine *flow.Engine) (messaging.Service, *messaging.ResponseRouter) {
	var svc messaging.Service
	switch *flags.textChannel {
	case "whatsapp":
		var waOpts []messaging.WhatsAppOption
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, messaging.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, messaging.WithNumericCode())
		}
		client, err := messaging.NewWhatsAppClient(waOpts...)
		if err != nil {
			slog.Error("Failed to build WhatsApp client, continuing HTTP-only", "error", err)
			return nil, nil
		}
		svc = messaging.NewWhatsAppService(client)
	case "sms":
		client, err := messaging.NewTwilioSMSClient()
		if err != nil {
			slog.Error("Failed to build Twilio SMS client, continuing HTTP-only", "error", err)
			return nil, nil
		}
		svc = messaging.NewTwilioSMSService(client)
	case "":
		return nil, nil
	default:
		slog.Error("Unknown text channel, continuing HTTP-only", "channel", *flags.textChannel)
		return nil, nil
	}

	if err := svc.Start(ctx); err != nil {
		slog.Error("Failed to start messaging service, continuing HTTP-only", "error", err)
		return nil, nil
	}
	router := messaging.NewResponseRouter(svc, engine, messaging.WithReplyDelay(*flags.replyDelay))
	go router.Run(ctx)
	slog.Info("Text channel started", "channel", *flags.textChannel)
	return svc, router
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(ctx context.Context, flags Flags, st store.Store, genaiClient genai.ClientInterface, msgService messaging.Service) []api.Option {
	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if smsService, ok := msgService.(*messaging.TwilioSMSService); ok {
		apiOpts = append(apiOpts, api.WithSMSSink(smsService))
	}
	if *flags.voiceWebhookURL != "" {
		apiOpts = append(apiOpts, api.WithVoiceLauncher(&twilioVoiceLauncher{
			ctx:          ctx,
			st:           st,
			slots:        genaiClient,
			webhookURL:   *flags.voiceWebhookURL,
			driverPhone:  *flags.driverPhone,
			silenceDelay: *flags.silenceDelay,
		}))
		slog.Info("Voice mode enabled",
			"webhook_url", *flags.voiceWebhookURL,
			"driver_confirmation", *flags.driverPhone != "")
	}
	return apiOpts
}

// twilioVoiceLauncher starts an outbound Twilio call and a listener for each
// new voice session. The launcher's context outlives individual HTTP requests
// so listeners keep running until shutdown.
type twilioVoiceLauncher struct {
	ctx          context.Context
	st           store.Store
	slots        genai.ClientInterface
	webhookURL   string
	driverPhone  string
	silenceDelay time.Duration
}

// LaunchVoiceSession places the warehouse call and starts consuming its event
// stream. The returned transports double as the webhook sinks; the driver leg
// posts its events to the /driver suffix of the voice webhook URL.
func (v *twilioVoiceLauncher) LaunchVoiceSession(sess *models.Session) (*api.VoiceCall, error) {
	opts := []voice.Option{voice.WithWebhookURL(v.webhookURL)}
	if sess.Params.WarehousePhone != "" {
		opts = append(opts, voice.WithToNumber(sess.Params.WarehousePhone))
	}
	transport, err := voice.NewTwilioTransport(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build voice transport: %w", err)
	}

	listenerOpts := []flow.ListenerOption{flow.WithSilenceDelay(v.silenceDelay)}
	if v.slots != nil {
		listenerOpts = append(listenerOpts, flow.WithSlotExtractor(v.slots))
	}
	call := &api.VoiceCall{Warehouse: transport}
	if v.driverPhone != "" {
		driverTransport, err := voice.NewTwilioTransport(
			voice.WithWebhookURL(v.webhookURL+"/driver"),
			voice.WithToNumber(v.driverPhone),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to build driver transport: %w", err)
		}
		listenerOpts = append(listenerOpts, flow.WithDriverTransport(driverTransport))
		call.Driver = driverTransport
	}
	listener := flow.NewListener(v.st, sess, transport, listenerOpts...)

	vars := map[string]string{
		"original_time": sess.Params.OriginalAppointment,
		"delay_minutes": strconv.Itoa(sess.Params.DelayMinutes),
	}
	if err := transport.Start(v.ctx, "warehouse-negotiation", vars); err != nil {
		return nil, fmt.Errorf("failed to start warehouse call: %w", err)
	}

	go func() {
		if err := listener.Run(v.ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Voice listener exited with error", "error", err, "sessionID", sess.ID)
		}
	}()
	return call, nil
}
