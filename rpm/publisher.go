package rpm

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gonum.org/v1/gonum/mat"
)

// Publisher publishes registration outcomes to MQTT. Each registered source
// gets two retained topics under the publish prefix: the warped point set as
// GeoJSON and a JSON match summary.
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
}

// NewPublisher creates a registration publisher. If client is nil,
// publishing is disabled (for testing).
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = os.Getenv("MQTT_PUBLISH_PREFIX")
	}
	if prefix == "" {
		prefix = "tpsmesh"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           0,
		retain:        true,
	}
}

// PublishRegistration publishes the warped points and summary for a source.
func (p *Publisher) PublishRegistration(reg *Registration) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	warped := reg.Result.WarpSource()
	if err := p.publishWarped(reg.SourceID, warped); err != nil {
		log.Printf("Error publishing warped points for %s: %v", reg.SourceID, err)
		return err
	}
	if err := p.publishSummary(reg); err != nil {
		log.Printf("Error publishing summary for %s: %v", reg.SourceID, err)
		return err
	}
	return nil
}

func (p *Publisher) publishWarped(sourceID string, warped *mat.Dense) error {
	topic := fmt.Sprintf("%s/%s/warped", p.publishPrefix, sourceID)

	payload, err := EncodePointsGeoJSON(warped)
	if err != nil {
		return fmt.Errorf("encoding warped points: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *Publisher) publishSummary(reg *Registration) error {
	topic := fmt.Sprintf("%s/%s/match", p.publishPrefix, reg.SourceID)

	message := map[string]interface{}{
		"sourceId":  reg.SourceID,
		"summary":   reg.Summary,
		"timestamp": reg.Timestamp.Unix(),
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}

	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	log.Printf("Published registration for %s: %d/%d matched, outlier mass %.2f",
		reg.SourceID, reg.Summary.Matched, reg.Summary.SourceCount, reg.Summary.OutlierMass)
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
