package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/uptrace/bun/migrate"
	ddEcho "gopkg.in/DataDog/dd-trace-go.v1/contrib/labstack/echo.v4"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"

	"github.com/shauritanga/rtexpress-payments/common"
	"github.com/shauritanga/rtexpress-payments/db"
	"github.com/shauritanga/rtexpress-payments/db/migrations"
	"github.com/shauritanga/rtexpress-payments/gateway"
	"github.com/shauritanga/rtexpress-payments/lib/logging"
	"github.com/shauritanga/rtexpress-payments/lib/service"
	"github.com/shauritanga/rtexpress-payments/lib/transport"
	"github.com/shauritanga/rtexpress-payments/rabbitmq"
)

func main() {

	c := &service.Config{}

	// Load configuration from environment variables
	err := godotenv.Load(".env")
	if err != nil {
		fmt.Println("Failed to load .env file")
	}
	err = envconfig.Process("", c)
	if err != nil {
		log.Fatalf("Error loading environment variables: %v", err)
	}

	// Setup logging to STDOUT or a configured log file
	logger := logging.Logger(c.LogFilePath)

	// Open a DB connection based on the configured DATABASE_URI
	dbConn, err := db.Open(c)
	if err != nil {
		logger.Fatalf("Error initializing db connection: %v", err)
	}

	// Migrate the DB
	startupCtx := context.Background()
	migrator := migrate.NewMigrator(dbConn, migrations.Migrations)
	err = migrator.Init(startupCtx)
	if err != nil {
		logger.Fatalf("Error initializing db migrator: %v", err)
	}
	_, err = migrator.Migrate(startupCtx)
	if err != nil {
		logger.Fatalf("Error migrating database: %v", err)
	}

	// Setup exception tracking with Sentry if configured
	// sentry init needs to happen before the echo middlewares are added
	if c.SentryDSN != "" {
		if err = sentry.Init(sentry.ClientOptions{
			Dsn:              c.SentryDSN,
			IgnoreErrors:     []string{"401"},
			EnableTracing:    c.SentryTracesSampleRate > 0,
			TracesSampleRate: c.SentryTracesSampleRate,
		}); err != nil {
			logger.Errorf("sentry init error: %v", err)
		}
	}

	gateways := initGateways(c)
	if len(gateways) == 0 {
		logger.Fatal("No payment gateway is enabled")
	}
	if _, ok := gateways[c.DefaultGateway]; !ok {
		logger.Fatalf("Default gateway %s is not enabled", c.DefaultGateway)
	}
	for name := range gateways {
		logger.Infof("Enabled payment gateway: %s", name)
	}

	svc := &service.PaymentsService{
		Config:        c,
		DB:            dbConn,
		Logger:        logger,
		Gateways:      gateways,
		PaymentPubSub: service.NewPubsub(),
	}

	// If no RABBITMQ_URI was provided we will not attempt to create a client
	// No rabbitmq features will be available in this case.
	var rabbitmqClient rabbitmq.Client
	if c.RabbitMQUri != "" {
		rabbitmqClient, err = rabbitmq.Dial(c.RabbitMQUri,
			rabbitmq.WithLogger(logger),
			rabbitmq.WithPaymentExchange(c.RabbitMQPaymentExchange),
		)
		if err != nil {
			logger.Fatal(err)
		}
		// close the connection gently at the end of the runtime
		defer rabbitmqClient.Close()
	}

	//init echo server
	e := transport.InitEcho(c, logger)
	//if Datadog is configured, add datadog middleware
	if c.DatadogAgentUrl != "" {
		tracer.Start(tracer.WithAgentAddr(c.DatadogAgentUrl))
		defer tracer.Stop()
		e.Use(ddEcho.Middleware(ddEcho.WithServiceName("rtexpress-payments")))
	}

	logMw := transport.CreateLoggingMiddleware(logger)
	// strict rate limit for requests that move money
	strictRateLimitMiddleware := transport.CreateRateLimitMiddleware(c.StrictRateLimit, c.BurstRateLimit)
	transport.RegisterEndpoints(svc, e, strictRateLimitMiddleware, logMw)

	var backgroundWg sync.WaitGroup
	backGroundCtx, _ := signal.NotifyContext(context.Background(), os.Interrupt)

	// Periodically reconcile payments whose webhook never arrived
	backgroundWg.Add(1)
	go func() {
		svc.StartPendingPaymentSweep(backGroundCtx)
		svc.Logger.Info("Pending payment sweep done")
		backgroundWg.Done()
	}()

	//Start webhook notifier
	if svc.Config.WebhookUrl != "" {
		backgroundWg.Add(1)
		go func() {
			svc.StartWebhookNotifier(backGroundCtx)
			svc.Logger.Info("Webhook notifier done")
			backgroundWg.Done()
		}()
	}

	//Start rabbit publisher
	if rabbitmqClient != nil {
		backgroundWg.Add(1)
		go func() {
			err = rabbitmqClient.StartPublishPayments(backGroundCtx, rabbitmq.SubscribePaymentEvents(svc))
			if err != nil && err != context.Canceled {
				svc.Logger.Error(err)
				sentry.CaptureException(err)
			}
			svc.Logger.Info("Rabbit payment publisher done")
			backgroundWg.Done()
		}()
	}

	//Start Prometheus server if necessary
	if svc.Config.EnablePrometheus {
		go transport.StartPrometheusEcho(logger, svc, e)
	}

	// Start server
	go func() {
		if err := e.Start(fmt.Sprintf(":%v", c.Port)); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("shutting down the server")
		}
	}()

	<-backGroundCtx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		e.Logger.Fatal(err)
	}
	//Wait for graceful shutdown of background routines
	backgroundWg.Wait()
	svc.Logger.Info("Payments service exiting gracefully. Goodbye.")
}

func initGateways(c *service.Config) map[string]gateway.Adapter {
	timeout := time.Duration(c.GatewayTimeout) * time.Second
	gateways := map[string]gateway.Adapter{}
	if c.StripeEnabled && c.StripeBaseUrl != "" {
		gateways[common.GatewayStripe] = gateway.NewStripeAdapter(gateway.StripeConfig{
			BaseURL:        c.StripeBaseUrl,
			SecretKey:      c.StripeSecretKey,
			WebhookSecret:  c.StripeWebhookSecret,
			RequestTimeout: timeout,
		})
	}
	if c.PaypalEnabled && c.PaypalBaseUrl != "" {
		gateways[common.GatewayPaypal] = gateway.NewPaypalAdapter(gateway.PaypalConfig{
			BaseURL:        c.PaypalBaseUrl,
			ClientID:       c.PaypalClientId,
			APIKey:         c.PaypalApiKey,
			WebhookSecret:  c.PaypalWebhookSecret,
			RequestTimeout: timeout,
		})
	}
	if c.MpesaEnabled && c.MpesaBaseUrl != "" {
		gateways[common.GatewayMpesa] = gateway.NewMpesaAdapter(gateway.MpesaConfig{
			BaseURL:        c.MpesaBaseUrl,
			ShortCode:      c.MpesaShortCode,
			APIKey:         c.MpesaApiKey,
			CallbackSecret: c.MpesaCallbackSecret,
			RequestTimeout: timeout,
		})
	}
	return gateways
}
