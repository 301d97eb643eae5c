package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/kwv/tpsmesh/rpm"

	"gonum.org/v1/gonum/mat"
)

// App wires the MQTT ingest, the registration engine and the publisher
// together for service mode. Every non-reference source is registered onto
// the reference set whenever either side publishes a fresh point set.
type App struct {
	config    *rpm.ServiceConfig
	state     *rpm.StateTracker
	publisher *rpm.Publisher
	mqtt      *rpm.MQTTClient

	// registrations run one at a time; point sets can arrive concurrently
	// from the MQTT router.
	mu sync.Mutex
}

// NewApp creates the service around a loaded configuration.
func NewApp(config *rpm.ServiceConfig) *App {
	state := rpm.NewStateTracker()
	for _, src := range config.Sources {
		if src.Color != "" {
			state.SetColor(src.ID, src.Color)
		}
	}
	return &App{
		config: config,
		state:  state,
	}
}

// Start connects to the broker and begins processing point sets.
func (a *App) Start() error {
	client, err := rpm.InitMQTT(a.config, a.HandlePoints)
	if err != nil {
		return fmt.Errorf("starting MQTT: %w", err)
	}
	a.mqtt = client
	if client != nil {
		a.publisher = rpm.NewPublisher(client.Client(), a.config.MQTT.PublishPrefix)
	}
	return nil
}

// Stop disconnects from the broker.
func (a *App) Stop() {
	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
}

// HandlePoints is the MQTT ingest callback.
func (a *App) HandlePoints(sourceID string, points *mat.Dense, err error) {
	if err != nil {
		log.Printf("Dropping point set for %s: %v", sourceID, err)
		return
	}
	rows, _ := points.Dims()
	log.Printf("Point set for %s: %d points", sourceID, rows)
	a.state.UpdatePoints(sourceID, points)

	a.mu.Lock()
	defer a.mu.Unlock()

	if sourceID == a.config.Reference {
		// Fresh reference: every known source needs re-registering.
		for _, src := range a.config.Sources {
			if src.ID == a.config.Reference {
				continue
			}
			if _, ok := a.state.Points(src.ID); ok {
				a.registerSource(src.ID)
			}
		}
		return
	}

	if _, ok := a.state.Points(a.config.Reference); ok {
		a.registerSource(sourceID)
	}
}

// registerSource runs the engine for one source against the reference set
// and publishes the outcome. Failures are logged and leave the previous
// registration in place.
func (a *App) registerSource(sourceID string) {
	source, ok := a.state.Points(sourceID)
	if !ok {
		return
	}
	target, ok := a.state.Points(a.config.Reference)
	if !ok {
		return
	}

	start := time.Now()
	result, err := rpm.Estimate(context.Background(), source, target, nil, a.config.Engine)
	if err != nil {
		log.Printf("Registration failed for %s: %v", sourceID, err)
		return
	}

	reg := &rpm.Registration{
		SourceID:  sourceID,
		Result:    result,
		Summary:   rpm.Summarize(result, target, 0.5),
		Timestamp: time.Now(),
	}
	a.state.UpdateRegistration(reg)

	log.Printf("Registered %s onto %s in %v: %d/%d matched",
		sourceID, a.config.Reference, time.Since(start).Round(time.Millisecond),
		reg.Summary.Matched, reg.Summary.SourceCount)

	if a.publisher != nil {
		if err := a.publisher.PublishRegistration(reg); err != nil {
			log.Printf("Publish failed for %s: %v", sourceID, err)
		}
	}
}
