// Package event defines the canonical membership event record and the
// durable store contract that holds records until they are delivered.
package event
