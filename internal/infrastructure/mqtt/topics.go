package mqtt

import (
	"strings"
)

// Gateway topic layout:
//
//	fieldgate/scan/{scanner}          scan events published by radio scanners
//	fieldgate/device/{address}/state  retained device state, empty when removed
//	fieldgate/system/status           retained gateway status, also the LWT
const (
	topicScan   = "fieldgate/scan"
	topicDevice = "fieldgate/device"
	topicSystem = "fieldgate/system"
)

// Topics builds gateway topic names.
type Topics struct{}

// ScanEvents is the default scan subscription pattern, one level per scanner.
func (Topics) ScanEvents() string {
	return topicScan + "/+"
}

// DeviceState returns the retained state topic of a device. Address
// separators are stripped so the address forms a single topic level.
//
//	Topics{}.DeviceState("aa:bb:cc:dd:ee:ff") // fieldgate/device/AABBCCDDEEFF/state
func (Topics) DeviceState(address string) string {
	return topicDevice + "/" + topicAddress(address) + "/state"
}

// SystemStatus returns the gateway status topic.
func (Topics) SystemStatus() string {
	return topicSystem + "/status"
}

// scannerFromTopic names the scanner that published on topic: the last
// topic level, whatever pattern the subscription used.
func scannerFromTopic(topic string) string {
	if i := strings.LastIndexByte(topic, '/'); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

var addressSeparators = strings.NewReplacer(":", "", "-", "", ".", "")

func topicAddress(address string) string {
	return strings.ToUpper(addressSeparators.Replace(address))
}
