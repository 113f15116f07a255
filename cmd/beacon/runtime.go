package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mattjoyce/beacon/internal/acquire"
	"github.com/mattjoyce/beacon/internal/capability"
	"github.com/mattjoyce/beacon/internal/config"
	"github.com/mattjoyce/beacon/internal/device"
	"github.com/mattjoyce/beacon/internal/dispatch"
	"github.com/mattjoyce/beacon/internal/history"
	"github.com/mattjoyce/beacon/internal/log"
	"github.com/mattjoyce/beacon/internal/storage"
	"github.com/mattjoyce/beacon/internal/transport"
)

// openState opens and migrates the state database.
func openState(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := storage.OpenSQLite(ctx, cfg.Service.StatePath)
	if err != nil {
		return nil, fmt.Errorf("open state %s: %w", cfg.Service.StatePath, err)
	}
	if err := storage.BootstrapSQLite(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap state: %w", err)
	}
	return db, nil
}

// newClient builds the single transport shared by alerts and contacts.
func newClient(cfg *config.Config) *transport.Client {
	t := transport.NewHTTPTransport(nil, cfg.Endpoint.SigningSecret)
	return transport.NewClient(t, cfg.Endpoint.BaseURL, cfg.Endpoint.RecipientID)
}

// newDevices wires the camera and location stand-ins from the device
// section. The static fix wins over photo EXIF.
func newDevices(d config.DeviceConfig) (acquire.CaptureDevice, acquire.LocationProvider) {
	camera := device.FileCamera{Path: d.PhotoPath, MaxDimension: d.MaxDimension}

	var locators device.FirstFix
	if fix := d.Fix(); fix != nil {
		locators = append(locators, device.StaticLocator{Fix: fix})
	}
	if d.ExifLocation && d.PhotoPath != "" {
		locators = append(locators, device.ExifLocator{Path: d.PhotoPath})
	}
	return camera, locators
}

// dispatcher bundles everything one process needs to run attempts.
type dispatcher struct {
	coord   *dispatch.Coordinator
	client  *transport.Client
	history *history.Recorder
	grants  *capability.Store
}

func newDispatcher(cfg *config.Config, db *sql.DB, prompter capability.Prompter, sink dispatch.StatusSink) *dispatcher {
	grants := capability.NewStore(db, prompter)
	camera, locator := newDevices(cfg.Device)
	stage := acquire.NewStage(grants, camera, locator, cfg.Acquisition.Policy())
	client := newClient(cfg)
	rec := history.NewRecorder(db)

	sinks := dispatch.Tee{
		dispatch.LogSink{Logger: log.WithComponent("dispatch")},
		rec,
	}
	if sink != nil {
		sinks = append(sinks, sink)
	}

	coord := dispatch.NewCoordinator(stage, client, sinks, dispatch.Options{
		SendTimeout: cfg.Endpoint.SendTimeout,
		Logger:      log.WithComponent("dispatch"),
	})
	return &dispatcher{coord: coord, client: client, history: rec, grants: grants}
}
