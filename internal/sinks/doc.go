// Package sinks forwards registry events to external systems.
//
// MQTTRelay publishes each device's state as a retained message on
// fieldgate/device/{address}/state and clears it when the device is
// removed. Telemetry writes the numeric fields of every change to InfluxDB.
//
// Both are registry subscribers:
//
//	relay := sinks.NewMQTTRelay(mqttClient, logger)
//	relay.Start()
//	defer relay.Close()
//	cancel := registry.Subscribe(relay.HandleEvent)
package sinks
