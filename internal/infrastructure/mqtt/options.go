package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/solarlog-collector/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second

	// defaultAckTimeout bounds every wait for a broker acknowledgement.
	defaultAckTimeout = 5 * time.Second

	disconnectQuiesceMs = 1000
	keepAlive           = 60 * time.Second
	maxQoS              = 2
)

// Values of StatusMessage.Status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	reasonUnexpected = "unexpected_disconnect"
	reasonShutdown   = "graceful_shutdown"
)

// Identity names the collector in its retained status messages.
type Identity struct {
	SiteID  string
	Version string
}

// StatusMessage is the retained payload on <prefix>/system/status. The
// offline form with reason unexpected_disconnect is registered as the will,
// so the broker publishes it if the collector dies without closing.
type StatusMessage struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	SiteID    string `json:"site_id,omitempty"`
	Version   string `json:"version,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (id Identity) status(clientID, state, reason string) []byte {
	payload, _ := json.Marshal(StatusMessage{ //nolint:errchkjson // string fields only
		Status:    state,
		ClientID:  clientID,
		SiteID:    id.SiteID,
		Version:   id.Version,
		Reason:    reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	return payload
}

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// buildClientOptions maps the mqtt config block onto paho options.
// Sessions are clean; Client replays its own subscriptions on reconnect.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// configureWill registers the retained unexpected-offline status.
func configureWill(opts *pahomqtt.ClientOptions, cfg config.MQTTConfig, topics Topics, id Identity) {
	will := id.status(cfg.Broker.ClientID, StatusOffline, reasonUnexpected)
	opts.SetBinaryWill(topics.SystemStatus(), will, byte(cfg.QoS), true)
}
