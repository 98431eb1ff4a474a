package main

import (
	"context"
	"log"
	"net/http"

	api "github.com/vfx-pipeline/asset-server/pkg/asset_server"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/auth"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/config"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/database"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/handler"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/repositories"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/services"
	"github.com/vfx-pipeline/asset-server/pkg/asset_server/storage"
	"github.com/vfx-pipeline/asset-server/pkg/jobs"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database %s: %v", cfg.DBPath, err)
	}

	store, err := storage.NewStore(cfg.StorageRoot)
	if err != nil {
		log.Fatalf("failed to prepare storage root %s: %v", cfg.StorageRoot, err)
	}

	repo := repositories.NewAssetRepository(db)
	assetService := services.NewAssetService(repo, store)
	assetController := handler.NewAssetsAPIController(assetService)
	keystore := auth.NewKeystore(cfg.KeysFile)

	jobs.ScheduleOrphanScan(context.Background(), db, store)

	api.RegisterErrorHook()
	router := api.NewRouter(config.ServerVersion, assetController, keystore, cfg.JWTSecret)

	log.Printf("Asset server listening on %s", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, router))
}
