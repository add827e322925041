package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"github.com/camden-git/wildidbackend/config"
	"github.com/camden-git/wildidbackend/database"
	"github.com/camden-git/wildidbackend/handlers"
	"github.com/camden-git/wildidbackend/media"
	"github.com/camden-git/wildidbackend/services"
	"github.com/camden-git/wildidbackend/workers"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Info: No .env file found or error loading: %v", err)
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	if dbDir := filepath.Dir(cfg.DatabasePath); dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			log.Fatalf("FATAL: Failed to create database directory %s: %v", dbDir, err)
		}
	}

	db, err := database.InitDB(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database: %v", err)
	}
	defer db.Close()

	store, err := media.NewLocalStore(cfg.CacheStoragePath)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize artifact store: %v", err)
	}

	reader := &media.MetadataReader{LibraryRoot: cfg.LibraryRoot}
	renderer := &media.CropRenderer{TargetSize: cfg.ChipTargetSize}
	extractor := media.NewORBExtractor(cfg.FeatureMaxCount)
	defer extractor.Close()

	artifacts, err := services.NewArtifactService(db, store, reader, renderer, extractor,
		cfg.ChipConfigString(), cfg.FeatureConfigString())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize artifact service: %v", err)
	}

	log.Printf("Initializing precompute worker pool (Workers: %d, Queue Size: %d)...",
		cfg.NumPrecomputeWorkers, cfg.PrecomputeQueueSize)
	precomputer := workers.NewPrecomputer(artifacts, cfg.PrecomputeQueueSize, cfg.NumPrecomputeWorkers)
	defer precomputer.Stop()

	log.Printf("Scanning imagery from root: %s", cfg.LibraryRoot)
	log.Printf("Using database: %s", cfg.DatabasePath)
	log.Printf("Storing derived artifacts in: %s", cfg.CacheStoragePath)
	log.Printf("Chip target size (area sqrt): %dpx", cfg.ChipTargetSize)

	r := chi.NewRouter()

	corsOptions := cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"}, //TODO: configurable
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}

	corsHandler := cors.New(corsOptions)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(corsHandler.Handler)

	imageHandler := &handlers.ImageHandler{DB: db, Cfg: cfg, Reader: reader}
	annotationHandler := &handlers.AnnotationHandler{DB: db, Precomputer: precomputer}
	nameHandler := &handlers.NameHandler{DB: db}
	identifyHandler := &handlers.IdentifyHandler{DB: db, Cfg: cfg, Artifacts: artifacts, Store: store}
	tableHandler := &handlers.TableHandler{DB: db}
	maintenanceHandler := &handlers.MaintenanceHandler{DB: db, Artifacts: artifacts}

	r.Route("/api", func(r chi.Router) {
		r.Route("/images", func(r chi.Router) {
			r.Post("/", imageHandler.AddImages)
			r.Get("/", imageHandler.ListImages)
			r.Delete("/", imageHandler.DeleteImages)
			r.Post("/scan", imageHandler.ScanLibrary)
			r.Get("/{image_uuid}", imageHandler.GetImage)
		})

		r.Route("/annotations", func(r chi.Router) {
			r.Post("/", annotationHandler.AddAnnotations)
			r.Get("/", annotationHandler.ListAnnotations)
			r.Delete("/", annotationHandler.DeleteAnnotations)
			r.Route("/{annot_uuid}", func(r chi.Router) {
				r.Get("/", annotationHandler.GetAnnotation)
				r.Patch("/", annotationHandler.UpdateAnnotation)
			})
		})

		r.Route("/names", func(r chi.Router) {
			r.Post("/", nameHandler.AddNames)
			r.Get("/", nameHandler.ListNames)
			r.Get("/{name_text}", nameHandler.GetName)
		})

		r.Post("/identify", identifyHandler.Identify)

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", tableHandler.ListTables)
			r.Get("/{table}/columns", tableHandler.ListColumns)
			r.Post("/{table}/{column}/get", tableHandler.GetProperty)
			r.Post("/{table}/{column}/set", tableHandler.SetProperty)
		})

		r.Post("/maintenance/sweep", maintenanceHandler.Sweep)

		r.Get("/chips/{filename}", handlers.ChipServer(store))
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	serverAddr := ":" + port
	fmt.Printf("Server starting on http://localhost:%s\n", port)
	log.Printf("Server listening on %s", serverAddr)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.Fatal(server.ListenAndServe())
}
