package mqtt

import (
	"fmt"
	"slices"
)

// SubscribeCommands routes <prefix>/command/settings to handler at the
// configured QoS.
func (c *Client) SubscribeCommands(handler MessageHandler) error {
	return c.Subscribe(c.topics.CommandSettings(), byte(c.cfg.QoS), handler)
}

// Subscribe registers handler for a topic filter, which may contain + and
// # wildcards. The subscription is remembered and replayed after every
// reconnect; one the broker refuses is forgotten again.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if err := validate(topic, qos); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.remember(subscription{topic: topic, qos: qos, handler: handler})
	if err := await(c.client.Subscribe(topic, qos, c.wrapHandler(handler)), ErrSubscribeFailed); err != nil {
		c.forget(topic)
		return err
	}
	return nil
}

// Subscriptions returns the remembered topic filters, sorted.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	topics := make([]string, 0, len(c.subscriptions))
	for topic := range c.subscriptions {
		topics = append(topics, topic)
	}
	c.subMu.RUnlock()

	slices.Sort(topics)
	return topics
}

func (c *Client) remember(sub subscription) {
	c.subMu.Lock()
	c.subscriptions[sub.topic] = sub
	c.subMu.Unlock()
}

func (c *Client) forget(topic string) {
	c.subMu.Lock()
	delete(c.subscriptions, topic)
	c.subMu.Unlock()
}
