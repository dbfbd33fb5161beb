// Package mqtt connects the gateway to an MQTT broker.
//
// Traffic runs in both directions:
//
//	scanners -> fieldgate/scan/{scanner}          SubscribeScans
//	gateway  -> fieldgate/device/{address}/state  PublishRetained
//	gateway  -> fieldgate/system/status           online, offline and last will
//
// Use TLS (broker.tls) outside a trusted LAN and pass credentials through
// FIELDGATE_MQTT_USERNAME and FIELDGATE_MQTT_PASSWORD.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.SubscribeScans(mqtt.Topics{}.ScanEvents(), scanner.HandleMessage)
package mqtt
