// Package model contains the domain types shared by the dispatch engine:
// channels, drivers, orders, customers and messages.
package model
