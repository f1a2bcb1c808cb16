package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/googlesamples/android-credentials/internal/config"
	"github.com/googlesamples/android-credentials/internal/handlers"
	"github.com/googlesamples/android-credentials/internal/middleware"
	"github.com/googlesamples/android-credentials/internal/registry"
	"github.com/googlesamples/android-credentials/internal/repository"
	"github.com/googlesamples/android-credentials/internal/service"
	"github.com/googlesamples/android-credentials/internal/sms"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	creds, err := config.LoadCredentials(cfg.CredentialsFile)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load credentials")
	}

	clientRegistry := registry.New(creds.Clients, logger)
	logger.WithField("clients", clientRegistry.Len()).Info("Client registry loaded")

	otpStore, err := initOTPStore(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize OTP store")
	}

	dispatcher := sms.NewTwilioClient(creds.Twilio, logger)
	verifyService := service.NewVerifyService(otpStore, dispatcher, &cfg.OTP, logger)
	verifyHandlers := handlers.NewVerifyHandlers(clientRegistry, verifyService, logger)

	router := setupRouter(verifyHandlers, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initOTPStore(cfg *config.Config, logger *logrus.Logger) (repository.OTPStore, error) {
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis OTP store initialized")
		return repository.NewRedisOTPStore(client, logger), nil

	case "dynamodb":
		client, err := initDynamoDB(cfg, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewDynamoOTPStore(client, cfg.DynamoDB.TableName, logger), nil

	case "memory":
		logger.Info("In-memory OTP store initialized")
		return repository.NewMemoryOTPStore(), nil

	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(verifyHandlers *handlers.VerifyHandlers, logger *logrus.Logger) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Hello World!"))
	}).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/request", verifyHandlers.RequestOTP).Methods("POST", "OPTIONS")
	api.HandleFunc("/verify", verifyHandlers.VerifyOTP).Methods("POST", "OPTIONS")
	api.HandleFunc("/reset", verifyHandlers.ResetOTP).Methods("POST", "OPTIONS")

	return router
}
