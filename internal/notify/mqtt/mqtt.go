// Package mqtt implements a publish-only MQTT status notifier, following
// the teacher's paho.golang/autopaho connection-manager wrapper
// (pkg/mqtt/client.go) trimmed to the one direction this daemon needs:
// announcing each device's final DeviceStatus once its job's workflow
// returns, never subscribing to commands
// (commands arrive exclusively through commands/incoming/, per
// SPEC_FULL.md §5.10).
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/natej/panos-upgrade/internal/model"
	"github.com/natej/panos-upgrade/pkg/log"
)

// Options configures the notifier.
type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// Notifier publishes device statuses to an MQTT broker.
type Notifier struct {
	cfg    Options
	cm     *autopaho.ConnectionManager
}

// New constructs a Notifier and starts its connection manager. Start
// returns once the initial connection attempt has been queued;
// autopaho reconnects in the background for the notifier's lifetime.
func New(ctx context.Context, cfg Options) (*Notifier, error) {
	brokerURL, err := url.Parse(cfg.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("parsing broker url %s: %w", cfg.BrokerURL, err)
	}

	n := &Notifier{cfg: cfg}

	cm, err := autopaho.NewConnection(ctx, autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ConnectTimeout:                10 * time.Second,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		TlsCfg:                        &tls.Config{},
		ClientConfig: paho.ClientConfig{
			ClientID: cfg.ClientID,
			OnClientError: func(err error) {
				log.Error(err, "mqtt client error")
			},
		},
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			log.Info("mqtt notifier connected", "broker", cfg.BrokerURL)
		},
		OnConnectError: func(err error) {
			log.Error(err, "mqtt notifier connection attempt failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("starting mqtt connection: %w", err)
	}
	n.cm = cm
	return n, nil
}

// statusChange is the payload PublishStatus sends for one DeviceStatus.
type statusChange struct {
	Serial        string               `json:"serial"`
	JobID         string                `json:"job_id,omitempty"`
	UpgradeStatus model.UpgradeStatus   `json:"upgrade_status"`
	CurrentPhase  string                `json:"current_phase"`
	Errors        []model.StatusError  `json:"errors,omitempty"`
	Timestamp     time.Time            `json:"timestamp"`
}

// PublishStatus announces a device's latest status under
// "{prefix}/devices/{serial}/status", QoS 1, not retained: subscribers
// are expected to be live dashboards, not late joiners reconstructing
// history (history lives in status/devices/{serial}.json).
func (n *Notifier) PublishStatus(ctx context.Context, ds *model.DeviceStatus) error {
	payload, err := json.Marshal(statusChange{
		Serial:        ds.Serial,
		JobID:         ds.JobID,
		UpgradeStatus: ds.UpgradeStatus,
		CurrentPhase:  ds.CurrentPhase,
		Errors:        ds.Errors,
		Timestamp:     ds.LastUpdated,
	})
	if err != nil {
		return fmt.Errorf("marshaling status change for %s: %w", ds.Serial, err)
	}

	topic := fmt.Sprintf("%s/devices/%s/status", n.cfg.TopicPrefix, ds.Serial)
	_, err = n.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     1,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("publishing status for %s: %w", ds.Serial, err)
	}
	return nil
}

// Disconnect gracefully closes the MQTT connection.
func (n *Notifier) Disconnect(ctx context.Context) {
	if n.cm != nil {
		_ = n.cm.Disconnect(ctx)
	}
}
