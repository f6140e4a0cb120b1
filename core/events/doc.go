// Package events defines the domain events published on the event bus.
// Dashboards and bridges consume them; the chat notifier turns order
// events into customer messages.
package events
