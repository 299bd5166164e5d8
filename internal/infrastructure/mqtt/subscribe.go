package mqtt

// Subscribe routes messages matching a topic filter (+ and # allowed) to
// handler. The route is remembered and re-established after a reconnect.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	switch {
	case filter == "":
		return &OpError{Op: "subscribe", Err: ErrInvalidTopic}
	case qos > maxQoS:
		return &OpError{Op: "subscribe", Topic: filter, Err: ErrInvalidQoS}
	case handler == nil:
		return &OpError{Op: "subscribe", Topic: filter, Err: ErrNilHandler}
	case !c.IsConnected():
		return &OpError{Op: "subscribe", Topic: filter, Err: ErrNotConnected}
	}

	if err := wait("subscribe", filter, c.paho.Subscribe(filter, qos, c.deliver(handler)), ackTimeout); err != nil {
		return err
	}

	c.mu.Lock()
	if c.routes == nil {
		c.routes = make(map[string]route)
	}
	c.routes[filter] = route{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops a route. The route is forgotten even if the broker
// does not confirm, so it is not restored on the next reconnect.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return &OpError{Op: "unsubscribe", Err: ErrInvalidTopic}
	}
	if !c.IsConnected() {
		return &OpError{Op: "unsubscribe", Topic: filter, Err: ErrNotConnected}
	}

	c.mu.Lock()
	delete(c.routes, filter)
	c.mu.Unlock()

	return wait("unsubscribe", filter, c.paho.Unsubscribe(filter), ackTimeout)
}

// SubscriptionCount returns the number of remembered routes.
func (c *Client) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.routes)
}

// HasSubscription reports whether filter is a remembered route.
func (c *Client) HasSubscription(filter string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.routes[filter]
	return ok
}
