package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/cyverse-de/configurate"
	"github.com/cyverse-de/go-mod/otelutils"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/cyverse-de/helpdesk-notifier/api"
	"github.com/cyverse-de/helpdesk-notifier/channels"
	"github.com/cyverse-de/helpdesk-notifier/db"
	"github.com/cyverse-de/helpdesk-notifier/dispatch"
	"github.com/cyverse-de/helpdesk-notifier/handlers"
	"github.com/cyverse-de/helpdesk-notifier/handlerset"
	"github.com/cyverse-de/helpdesk-notifier/linking"
	"github.com/cyverse-de/helpdesk-notifier/logging"
	"github.com/cyverse-de/helpdesk-notifier/readstate"
	"github.com/cyverse-de/helpdesk-notifier/templates"
	"github.com/cyverse-de/helpdesk-notifier/verification"
)

const serviceName = "helpdesk-notifier"

var log = logging.Log.WithField("package", "main")

// commandLineOptionValues represents the values of the command-line options that were passed on the command line when
// this service was invoked.
type commandLineOptionValues struct {
	Config  string
	EnvFile string
}

func parseCommandLine() *commandLineOptionValues {
	optionValues := &commandLineOptionValues{}
	opt := getoptions.New()

	// Default option values.
	defaultConfigPath := "/etc/helpdesk/notifier.yml"
	defaultEnvFile := ".env"

	// Define the command-line options.
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&optionValues.Config, "config", defaultConfigPath,
		opt.Alias("c"),
		opt.Description("the path to the configuration file"))
	opt.StringVar(&optionValues.EnvFile, "env-file", defaultEnvFile,
		opt.Alias("e"),
		opt.Description("the path to an optional file of environment variable settings"))

	// Parse the command line, handling requests for help and usage errors.
	_, err := opt.Parse(os.Args[1:])
	if opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
		fmt.Fprint(os.Stderr, opt.Help(getoptions.HelpSynopsis))
		os.Exit(1)
	}

	return optionValues
}

// transports holds the external channel transports that are configured. Either may be nil.
type transports struct {
	bot      *channels.TelegramBot
	telegram dispatch.TelegramSender
	email    *channels.EmailSender
}

func initTransports(config *serviceConfig) *transports {
	t := &transports{}

	// Telegram is disabled when no bot token is configured.
	if config.TelegramToken == "" {
		log.Warn("no telegram bot token is configured; telegram notifications are disabled")
	} else {
		bot, err := channels.NewTelegramBot(channels.TelegramSettings{
			Token:          config.TelegramToken,
			PollTimeout:    config.TelegramPollTimeout,
			RequestTimeout: config.Timeout,
		})
		if err != nil {
			log.WithError(err).Warn("unable to connect to the telegram bot API; telegram notifications are disabled")
		} else {
			t.bot = bot
			t.telegram = channels.NewTelegramSender(bot, config.TelegramRate)
			if config.TelegramBotUsername == "" {
				config.TelegramBotUsername = bot.Username()
			}
		}
	}

	// Email is disabled when no SMTP relay is configured.
	if config.SMTP.Host == "" {
		log.Warn("no SMTP host is configured; email notifications are disabled")
	} else {
		smtp, err := channels.NewSMTPTransport(config.SMTP)
		if err != nil {
			log.WithError(err).Warn("invalid SMTP settings; email notifications are disabled")
		} else {
			t.email = channels.NewEmailSender(smtp)
		}
	}

	return t
}

func main() {
	// Parse the command-line.
	optionValues := parseCommandLine()

	// Load environment variable settings from the env file if it exists.
	if err := godotenv.Load(optionValues.EnvFile); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Fatal("unable to load the environment file")
	}

	// Read in the configuration file.
	cfg, err := configurate.InitDefaults(optionValues.Config, defaultConfig)
	if err != nil {
		log.WithError(err).Fatal("unable to read the configuration file")
	}
	config := loadConfig(cfg)

	// Initialize logging.
	logging.SetupLogging(config.LogLevel)

	// Initialize tracing.
	tracerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	shutdownTracer := otelutils.TracerProviderFromEnv(tracerCtx, serviceName, func(e error) { log.Fatal(e) })
	defer shutdownTracer()

	// Establish the database connection and create the tables this service owns.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.InitDatabase("postgres", config.DatabaseURI)
	if err != nil {
		log.WithError(err).Fatal("unable to connect to the database")
	}
	defer database.Close()

	if err = db.Migrate(ctx, database); err != nil {
		log.WithError(err).Fatal("unable to migrate the database")
	}
	if err = db.RegisterNotificationTypes(ctx, database); err != nil {
		log.WithError(err).Fatal("unable to register the notification types")
	}
	store := db.NewClient(database)

	// Build the components.
	t := initTransports(config)
	renderer := templates.New(config.Strict)
	feed := channels.NewFeed(store)

	var emailSender dispatch.EmailSender
	var mailer verification.Mailer
	if t.email != nil {
		emailSender = t.email
		mailer = t.email
	}

	dispatcher := dispatch.New(store, feed, renderer, t.telegram, emailSender, config.Timeout)
	linker := linking.New(store, linking.QRCode{}, config.TelegramBotUsername)
	verifier := verification.New(store, renderer, mailer, config.CodeTTL)
	tracker := readstate.New(store)

	// Start handling inbound bot messages.
	if t.bot != nil {
		t.bot.Listen(ctx, linker.HandleInbound)
	}

	// Start consuming business events from the AMQP exchange.
	var handlerSet *handlerset.HandlerSet
	if config.AMQP.URI == "" {
		log.Warn("no AMQP URI is configured; events are only accepted over HTTP")
	} else {
		handlerSet, err = handlerset.New(&config.AMQP, handlers.InitMessageHandlers(dispatcher))
		if err != nil {
			log.WithError(err).Fatal("unable to create the AMQP handler set")
		}
		handlerSet.Listen()
	}

	// Start the HTTP server.
	server := &api.Server{
		Notifier:  dispatcher,
		Feed:      feed,
		Email:     verifier,
		Linker:    linker,
		ReadState: tracker,
	}
	httpServer := &http.Server{
		Addr:              config.ListenAddress,
		Handler:           server.Router(config.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infof("listening on %s", config.ListenAddress)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("the HTTP server failed")
		}
	}()

	// Wait for a shutdown signal.
	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("unable to shut down the HTTP server cleanly")
	}
	if handlerSet != nil {
		handlerSet.Close()
	}
	if t.bot != nil {
		t.bot.Stop(shutdownCtx)
	}
	if err = dispatcher.Drain(shutdownCtx); err != nil {
		log.WithError(err).Warn("some notifications were still being delivered at shutdown")
	}
}
