package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	config "github.com/mekdim/clinic-services/configs"
	nats "github.com/mekdim/clinic-services/internal/nats"
	"github.com/mekdim/clinic-services/internal/receptionsvc/activity"
	"github.com/mekdim/clinic-services/internal/receptionsvc/broker"
	"github.com/mekdim/clinic-services/internal/receptionsvc/db"
	handlers "github.com/mekdim/clinic-services/internal/receptionsvc/handlers"
	"github.com/mekdim/clinic-services/internal/receptionsvc/service"
	"github.com/mekdim/clinic-services/internal/receptionsvc/store"
	log "github.com/sirupsen/logrus"
)

const SERVICE_NAME = "reception"

var instanceId string

func init() {
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
	config.Logging(SERVICE_NAME + "_service_" + instanceId)
	config.LoadEnv(SERVICE_NAME)
}

func main() {
	// pg connection
	dbpool, err := db.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	patientStore := store.NewPatientStore(dbpool)
	patientService := service.NewPatientService(patientStore)

	visitStore := store.NewVisitStore(dbpool)
	visitService := service.NewVisitService(visitStore)

	vaccineStore := store.NewVaccineStore(dbpool)
	vaccineService := service.NewVaccineService(vaccineStore)

	// activity log (mongo); non-fatal when absent, audit is best effort
	var recorder handlers.ActivityRecorder
	logger, err := activity.Connect(context.Background())
	if err != nil {
		log.Warnf("activity log unavailable, auditing disabled: %v", err)
	} else {
		recorder = logger
	}

	// Connect to NATS
	n, err := nats.Connect()
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(0)
	}

	defer n.Conn.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// board event publisher
	b := broker.NewBroker(n.Conn)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	rateLimitStr := os.Getenv("RATE_LIMIT")
	rateLimit, err := strconv.Atoi(rateLimitStr)
	if err != nil {
		log.Fatalf("Invalid RATE_LIMIT value: %v", err)
	}
	r.Use(httprate.LimitByIP(rateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(patientService, visitService, vaccineService, recorder, b)
	h.InitAuth()
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + os.Getenv("RECEPTION_SERVICE_PORT"),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
